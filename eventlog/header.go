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
	"fmt"

	"github.com/google/tdvf-measure/efi"
)

const (
	// EventSignatureSize is the size of the signature header for a TCG event log's EventData payload.
	EventSignatureSize = 16

	specIDMajor = 2
	specIDMinor = 0
	// UintnSize 2 means UINTN is 64 bits.
	specIDUintnSize = 2
)

// SpecIDEventSignature is the signature of the TCG_EfiSpecIDEventStruct that starts every
// crypto-agile log.
var SpecIDEventSignature = [EventSignatureSize]byte{
	'S', 'p', 'e', 'c', ' ', 'I', 'D', ' ', 'E', 'v', 'e', 'n', 't', '0', '3', 0}

// AlgorithmSize is one TCG_EfiSpecIdEventAlgorithmSize entry.
type AlgorithmSize struct {
	ID         uint16
	DigestSize uint16
}

// SpecIDEvent is the TCG_EfiSpecIDEventStruct body of the log's header record.
type SpecIDEvent struct {
	Signature     [EventSignatureSize]byte
	PlatformClass uint32
	VersionMinor  uint8
	VersionMajor  uint8
	Errata        uint8
	UintnSize     uint8
	Algorithms    []AlgorithmSize
	VendorInfo    []byte
}

// NewSpecIDEvent returns the Spec ID Event03 body a TD firmware writes for the given digests.
func NewSpecIDEvent(algs ...uint16) *SpecIDEvent {
	s := &SpecIDEvent{
		Signature:    SpecIDEventSignature,
		VersionMinor: specIDMinor,
		VersionMajor: specIDMajor,
		UintnSize:    specIDUintnSize,
	}
	for _, alg := range algs {
		s.Algorithms = append(s.Algorithms, AlgorithmSize{ID: alg, DigestSize: uint16(tpmAlgoSize[alg])})
	}
	return s
}

// Header is the TCG_PCClientPCREvent record that starts a crypto-agile log. Its digest is always a
// zero SHA-1 value and its data is a SpecIDEvent.
type Header struct {
	PCRIndex   uint32
	EventType  uint32
	SHA1Digest [20]byte
	SpecID     SpecIDEvent
	// Size is the byte length of the whole header record.
	Size int
}

// DigestSize returns the size of alg's digests in this log. The header's algorithm table wins over
// the well-known sizes. Entries for an algorithm with neither take no digest bytes.
func (h *Header) DigestSize(alg uint16) (int, bool) {
	if h != nil {
		for _, a := range h.SpecID.Algorithms {
			if a.ID == alg {
				return int(a.DigestSize), true
			}
		}
	}
	size, ok := tpmAlgoSize[alg]
	return size, ok
}

// Declares returns true if the header's algorithm table lists alg.
func (h *Header) Declares(alg uint16) bool {
	if h == nil {
		return false
	}
	for _, a := range h.SpecID.Algorithms {
		if a.ID == alg {
			return true
		}
	}
	return false
}

// Algorithms returns the TPM_ALG_IDs the header declares, in header order.
func (h *Header) Algorithms() []uint16 {
	result := make([]uint16, len(h.SpecID.Algorithms))
	for i, a := range h.SpecID.Algorithms {
		result[i] = a.ID
	}
	return result
}

func readSpecIDEvent(data []byte) (*SpecIDEvent, error) {
	c := &cursor{data: data}
	s := &SpecIDEvent{}
	sig, err := c.take("Spec ID signature", EventSignatureSize)
	if err != nil {
		return nil, err
	}
	copy(s.Signature[:], sig)
	if !bytes.Equal(sig, SpecIDEventSignature[:]) {
		return nil, fmt.Errorf("%w: invalid spec id signature %q", efi.ErrMalformed, sig)
	}
	if s.PlatformClass, err = c.u32("PlatformClass"); err != nil {
		return nil, err
	}
	if s.VersionMinor, err = c.u8("SpecVersionMinor"); err != nil {
		return nil, err
	}
	if s.VersionMajor, err = c.u8("SpecVersionMajor"); err != nil {
		return nil, err
	}
	if s.Errata, err = c.u8("SpecErrata"); err != nil {
		return nil, err
	}
	if s.UintnSize, err = c.u8("UintnSize"); err != nil {
		return nil, err
	}
	if s.VersionMajor != specIDMajor || s.VersionMinor != specIDMinor {
		return nil, fmt.Errorf("%w: unsupported spec id version %d.%d", efi.ErrMalformed,
			s.VersionMajor, s.VersionMinor)
	}
	numAlgs, err := c.u32("NumberOfAlgorithms")
	if err != nil {
		return nil, err
	}
	// Each entry needs 4 bytes, so a count larger than the buffer allows is malformed.
	if uint64(numAlgs)*4 > uint64(c.remaining()) {
		return nil, fmt.Errorf("%w: %d algorithms do not fit the spec id event", efi.ErrMalformed, numAlgs)
	}
	for i := uint32(0); i < numAlgs; i++ {
		var a AlgorithmSize
		if a.ID, err = c.u16("algorithmId"); err != nil {
			return nil, err
		}
		if a.DigestSize, err = c.u16("digestSize"); err != nil {
			return nil, err
		}
		s.Algorithms = append(s.Algorithms, a)
	}
	vendorSize, err := c.u8("vendorInfoSize")
	if err != nil {
		return nil, err
	}
	if s.VendorInfo, err = c.take("vendorInfo", int(vendorSize)); err != nil {
		return nil, err
	}
	if c.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes follow the spec id event", efi.ErrMalformed, c.remaining())
	}
	return s, nil
}

func readHeader(c *cursor) (*Header, error) {
	start := c.off
	h := &Header{}
	var err error
	if h.PCRIndex, err = c.u32("header PCRIndex"); err != nil {
		return nil, err
	}
	if h.EventType, err = c.u32("header EventType"); err != nil {
		return nil, err
	}
	if h.EventType != EvNoAction {
		return nil, fmt.Errorf("%w: header event type 0x%x, want EV_NO_ACTION", efi.ErrMalformed,
			h.EventType)
	}
	digest, err := c.take("header SHA1Digest", len(h.SHA1Digest))
	if err != nil {
		return nil, err
	}
	copy(h.SHA1Digest[:], digest)
	body, err := c.sized("header EventData")
	if err != nil {
		return nil, err
	}
	spec, err := readSpecIDEvent(body)
	if err != nil {
		return nil, err
	}
	h.SpecID = *spec
	h.Size = c.off - start
	return h, nil
}
