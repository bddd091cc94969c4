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
	"fmt"

	"github.com/google/logger"
	"github.com/google/tdvf-measure/efi"
)

// TaggedDigest represents a digest interpreted as tagged by the TPM_ALG_ID.
type TaggedDigest struct {
	AlgID  uint16
	Digest []byte
}

// DigestList is the TPML_DIGEST_VALUES of one event, one digest per algorithm.
type DigestList []TaggedDigest

// Get returns the digest for alg, if present.
func (l DigestList) Get(alg uint16) ([]byte, bool) {
	for _, d := range l {
		if d.AlgID == alg {
			return d.Digest, true
		}
	}
	return nil, false
}

// Event is one TD_EVENT record (TCG_PCR_EVENT2 layout with an MR index in place of the PCR index).
type Event struct {
	MRIndex   uint32
	EventType uint32
	Digests   DigestList
	Data      []byte
	// Offset is the record's position in the buffer it was parsed from.
	Offset int
}

// SizeOf returns the encoded size of e.
func SizeOf(e *Event) int {
	size := 4 + 4 + 4
	for _, d := range e.Digests {
		size += 2 + len(d.Digest)
	}
	return size + 4 + len(e.Data)
}

// DigestForAlgorithm returns e's digest for alg, or false if e carries none. An entry for an
// algorithm of unknown size holds an empty digest, which counts as none.
func DigestForAlgorithm(e *Event, alg uint16) ([]byte, bool) {
	d, ok := e.Digests.Get(alg)
	if !ok || len(d) == 0 {
		return nil, false
	}
	return d, true
}

// DigestForAlgorithm returns e's digest for alg if l's header declares alg. Digests of undeclared
// algorithms are not present.
func (l *Log) DigestForAlgorithm(e *Event, alg uint16) ([]byte, bool) {
	if !l.Header.Declares(alg) {
		return nil, false
	}
	return DigestForAlgorithm(e, alg)
}

func readEvent(c *cursor, h *Header) (*Event, error) {
	e := &Event{Offset: c.off}
	var err error
	if e.MRIndex, err = c.u32("MRIndex"); err != nil {
		return nil, err
	}
	if e.EventType, err = c.u32("EventType"); err != nil {
		return nil, err
	}
	count, err := c.u32("digest count")
	if err != nil {
		return nil, err
	}
	// Every digest entry holds at least its 2 byte algorithm id.
	if uint64(count)*2 > uint64(c.remaining()) {
		return nil, fmt.Errorf("%w: event at 0x%x claims %d digests", efi.ErrMalformed, e.Offset, count)
	}
	e.Digests = make(DigestList, 0, count)
	for i := uint32(0); i < count; i++ {
		alg, err := c.u16("digest algorithm")
		if err != nil {
			return nil, err
		}
		size, ok := h.DigestSize(alg)
		if !ok {
			logger.V(1).Infof("event at 0x%x: digest algorithm 0x%04x has no known size, reading it as empty",
				e.Offset, alg)
		}
		digest, err := c.take(AlgorithmName(alg)+" digest", size)
		if err != nil {
			return nil, err
		}
		e.Digests = append(e.Digests, TaggedDigest{AlgID: alg, Digest: digest})
	}
	if e.Data, err = c.sized("EventData"); err != nil {
		return nil, err
	}
	return e, nil
}
