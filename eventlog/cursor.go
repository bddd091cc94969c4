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

	"github.com/google/tdvf-measure/efi"
)

// cursor reads little endian fields from an immutable buffer. Every read checks the remaining
// length first and fails with efi.ErrMalformed rather than reading past the end.
type cursor struct {
	data []byte
	off  int
}

func (c *cursor) remaining() int {
	return len(c.data) - c.off
}

func (c *cursor) take(field string, n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, fmt.Errorf("%w: %s at offset 0x%x needs %d bytes, %d remain", efi.ErrMalformed,
			field, c.off, n, c.remaining())
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u8(field string) (uint8, error) {
	b, err := c.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16(field string) (uint16, error) {
	b, err := c.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32(field string) (uint32, error) {
	b, err := c.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64(field string) (uint64, error) {
	b, err := c.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// sized reads a little endian uint32 length followed by that many bytes.
func (c *cursor) sized(field string) ([]byte, error) {
	size, err := c.u32(field + " size")
	if err != nil {
		return nil, err
	}
	if uint64(size) > uint64(c.remaining()) {
		return nil, fmt.Errorf("%w: %s size %d at offset 0x%x exceeds the %d remaining bytes",
			efi.ErrMalformed, field, size, c.off-4, c.remaining())
	}
	return c.take(field, int(size))
}

// padding returns true if the rest of the buffer holds no further records.
func (c *cursor) padding() bool {
	rest := c.data[c.off:]
	if len(rest) >= 4 && binary.LittleEndian.Uint32(rest) == 0xFFFFFFFF {
		return true
	}
	for _, b := range rest {
		if b != 0 {
			return false
		}
	}
	return true
}
