// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eventlog

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/uuid"
)

// Unmarshallable is an interface for populating the object by unmarshalling data.
type Unmarshallable interface {
	Unmarshal(io.Reader) error
}

// ByteSizedArray represents an array of bytes no longer than 255 entries that is serialized first
// with a single byte specifying the array size.
type ByteSizedArray struct {
	Data []byte
}

// Unmarshal reads an array of bytes no longer than 255 entries that is serialized first
// with a single byte specifying the array size.
func (b *ByteSizedArray) Unmarshal(r io.Reader) error {
	var size byte
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("failed to read array size as %T: %w", size, err)
	}
	return readArray(r, int(size), &b.Data)
}

// Uint32SizedArray represents an array of bytes no longer than 2^32 - 1 entries that is serialized
// first with a little endian uint32 specifying the array size.
type Uint32SizedArray struct {
	Data []byte
}

// Unmarshal reads an array of bytes no longer than 2^32 - 1 entries that is serialized
// first with a little endian uint32 specifying the array size.
func (b *Uint32SizedArray) Unmarshal(r io.Reader) error {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("failed to read array size as %T: %w", size, err)
	}
	if lr, ok := r.(interface{ Len() int }); ok && uint64(size) > uint64(lr.Len()) {
		return fmt.Errorf("%w: array size %d exceeds the %d remaining bytes", efi.ErrMalformed, size,
			lr.Len())
	}
	return readArray(r, int(size), &b.Data)
}

func readArray(r io.Reader, size int, data *[]byte) error {
	result := make([]byte, size)
	if n, err := io.ReadFull(r, result); err != nil {
		return fmt.Errorf("failed to read array sized %d (read %d bytes): %w", size, n, err)
	}
	*data = result
	return nil
}

// EfiGUID represents a UUID that is marshalled as an EFI_GUID.
type EfiGUID struct {
	UUID uuid.UUID
}

// Unmarshal reads an EFI_GUID field.
func (g *EfiGUID) Unmarshal(r io.Reader) error {
	var efiguid [abi.SizeofEFIGUID]byte
	if i, err := io.ReadFull(r, efiguid[:]); err != nil {
		return fmt.Errorf("failed to read EFI_GUID (read %d bytes): %w", i, err)
	}
	result, err := abi.FromEFIGUID(efiguid[:])
	if err != nil {
		return err
	}
	g.UUID = result
	return nil
}

func littleRead(r io.Reader, field string, data any) (err error) {
	um, ok := data.(Unmarshallable)
	if ok {
		err = um.Unmarshal(r)
	} else {
		err = binary.Read(r, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s as %T: %w", field, data, err)
	}
	return nil
}
