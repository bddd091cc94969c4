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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/tdvf-measure/abi"
)

// Marshallable is an interface for writing an object as a stream of bytes to a writer.
type Marshallable interface {
	Marshal(io.Writer) error
}

// Marshal writes an array of bytes no longer than 255 entries with an initial byte noting
// the array length, and then each byte of the array afterwards.
func (b *ByteSizedArray) Marshal(w io.Writer) error {
	if len(b.Data) > 255 {
		return fmt.Errorf("data is too long for ByteSizedArray: %d", len(b.Data))
	}
	return writeSizedArray(w, byte(len(b.Data)), b.Data)
}

// Marshal writes an array of bytes with a initial 4 bytes in little endian noting
// the array length, and then each byte of the array afterwards.
func (b *Uint32SizedArray) Marshal(w io.Writer) error {
	return writeSizedArray(w, uint32(len(b.Data)), b.Data)
}

func writeSizedArray(w io.Writer, size any, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, size); err != nil {
		return fmt.Errorf("failed to write array size as %T: %v", size, err)
	}
	if n, err := w.Write(data); err != nil || n != len(data) {
		return fmt.Errorf("failed to write array (wrote %d bytes): %v", n, err)
	}
	return nil
}

func littleWrite(w io.Writer, field string, data any) (err error) {
	m, ok := data.(Marshallable)
	if ok {
		err = m.Marshal(w)
	} else {
		err = binary.Write(w, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s as %T: %v", field, data, err)
	}
	return nil
}

// Marshal writes an EFI_GUID field.
func (g *EfiGUID) Marshal(w io.Writer) error {
	var efiguid [abi.SizeofEFIGUID]byte
	if err := abi.PutUUID(efiguid[:], g.UUID); err != nil {
		return err
	}
	if i, err := w.Write(efiguid[:]); err != nil || i != abi.SizeofEFIGUID {
		return fmt.Errorf("failed to write EFI_GUID (wrote %d bytes): %w", i, err)
	}
	return nil
}

// Marshal writes the TCG_EfiSpecIDEventStruct.
func (s *SpecIDEvent) Marshal(w io.Writer) error {
	fixed := []struct {
		name string
		data any
	}{
		{"Signature", s.Signature},
		{"PlatformClass", s.PlatformClass},
		{"SpecVersionMinor", s.VersionMinor},
		{"SpecVersionMajor", s.VersionMajor},
		{"SpecErrata", s.Errata},
		{"UintnSize", s.UintnSize},
		{"NumberOfAlgorithms", uint32(len(s.Algorithms))},
		{"DigestSizes", s.Algorithms},
	}
	for _, f := range fixed {
		if err := littleWrite(w, f.name, f.data); err != nil {
			return err
		}
	}
	return littleWrite(w, "VendorInfo", &ByteSizedArray{Data: s.VendorInfo})
}

// MarshalHeader writes the TCG_PCClientPCREvent header record that carries s.
func MarshalHeader(w io.Writer, s *SpecIDEvent) error {
	var body bytes.Buffer
	if err := s.Marshal(&body); err != nil {
		return err
	}
	if err := littleWrite(w, "PCRIndex", uint32(0)); err != nil {
		return err
	}
	if err := littleWrite(w, "EventType", EvNoAction); err != nil {
		return err
	}
	if err := littleWrite(w, "SHA1Digest", [20]byte{}); err != nil {
		return err
	}
	return littleWrite(w, "EventData", &Uint32SizedArray{Data: body.Bytes()})
}

// Marshal writes e as a TD_EVENT record.
func (e *Event) Marshal(w io.Writer) error {
	if err := littleWrite(w, "MRIndex", e.MRIndex); err != nil {
		return err
	}
	if err := littleWrite(w, "EventType", e.EventType); err != nil {
		return err
	}
	if err := littleWrite(w, "DigestCount", uint32(len(e.Digests))); err != nil {
		return err
	}
	for i, d := range e.Digests {
		if err := littleWrite(w, fmt.Sprintf("Digests[%d].AlgID", i), d.AlgID); err != nil {
			return err
		}
		if n, err := w.Write(d.Digest); err != nil || n != len(d.Digest) {
			return fmt.Errorf("failed to write Digests[%d] (wrote %d bytes): %v", i, n, err)
		}
	}
	return littleWrite(w, "EventData", &Uint32SizedArray{Data: e.Data})
}

// Bytes returns the TD_EVENT record encoding of e.
func (e *Event) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(SizeOf(e))
	if err := e.Marshal(&buf); err != nil {
		panic(fmt.Errorf("internal: could not encode event: %v", err))
	}
	return buf.Bytes()
}

// Marshal writes the EFI_TD_FINAL_EVENTS_TABLE.
func (f *FinalEvents) Marshal(w io.Writer) error {
	if err := littleWrite(w, "Version", f.Version); err != nil {
		return err
	}
	if err := littleWrite(w, "NumberOfEvents", uint64(len(f.Events))); err != nil {
		return err
	}
	for i, e := range f.Events {
		if err := e.Marshal(w); err != nil {
			return fmt.Errorf("final event %d: %v", i, err)
		}
	}
	return nil
}
