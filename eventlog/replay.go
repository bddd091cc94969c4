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
	"strings"

	"github.com/google/logger"
	"github.com/google/tdvf-measure/efi"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ReplayError reports the registers whose replayed value differs from the live value.
type ReplayError struct {
	Mismatched []uint32
	err        error
}

// Error returns the combined mismatch descriptions.
func (e *ReplayError) Error() string {
	return e.err.Error()
}

// Unwrap returns the individual register errors.
func (e *ReplayError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// RecomputeExpected replays the digests of every entry that extended mr with alg. The register
// starts as zeros and each entry folds in as r = H(r || digest). Entries of the primary log come
// first, then final's in table order. EV_NO_ACTION entries and entries without an alg digest do not
// take part. final may be nil. alg must be declared in l's header.
func RecomputeExpected(l *Log, final *FinalEvents, mr uint32, alg uint16) (TaggedDigest, error) {
	if !l.Header.Declares(alg) {
		return TaggedDigest{}, fmt.Errorf("%w: log does not declare algorithm %s", efi.ErrNotFound,
			AlgorithmName(alg))
	}
	h, err := CryptoHash(alg)
	if err != nil {
		return TaggedDigest{}, err
	}
	r := make([]byte, h.Size())
	fold := func(e *Event) error {
		if e.MRIndex != mr || e.EventType == EvNoAction {
			return nil
		}
		d, ok := l.DigestForAlgorithm(e, alg)
		if !ok {
			logger.V(1).Infof("event at 0x%x has no %s digest", e.Offset, AlgorithmName(alg))
			return nil
		}
		if len(d) != h.Size() {
			return fmt.Errorf("%w: event at 0x%x has a %d byte %s digest", efi.ErrMalformed, e.Offset,
				len(d), AlgorithmName(alg))
		}
		hasher := h.New()
		hasher.Write(r)
		hasher.Write(d)
		r = hasher.Sum(r[:0])
		return nil
	}
	it := l.Events()
	for it.Next() {
		if err := fold(it.Event()); err != nil {
			return TaggedDigest{}, err
		}
	}
	if err := it.Err(); err != nil {
		return TaggedDigest{}, err
	}
	if final != nil {
		for _, e := range final.Events {
			if err := fold(e); err != nil {
				return TaggedDigest{}, err
			}
		}
	}
	return TaggedDigest{AlgID: alg, Digest: r}, nil
}

// ReplayAll recomputes every register the log mentions, for every algorithm it declares whose hash
// is available.
func ReplayAll(l *Log, final *FinalEvents) (map[uint32]DigestList, error) {
	events, err := l.All()
	if err != nil {
		return nil, err
	}
	if final != nil {
		events = append(events, final.Events...)
	}
	mrs := map[uint32]bool{}
	for _, e := range events {
		if e.EventType != EvNoAction {
			mrs[e.MRIndex] = true
		}
	}
	result := make(map[uint32]DigestList, len(mrs))
	indices := maps.Keys(mrs)
	slices.Sort(indices)
	for _, mr := range indices {
		for _, alg := range l.Header.Algorithms() {
			if _, err := CryptoHash(alg); err != nil {
				logger.V(1).Infof("skipping %s: %v", AlgorithmName(alg), err)
				continue
			}
			d, err := RecomputeExpected(l, final, mr, alg)
			if err != nil {
				return nil, fmt.Errorf("MR[%d] %s: %w", mr, AlgorithmName(alg), err)
			}
			result[mr] = append(result[mr], d)
		}
	}
	return result, nil
}

// Verify compares expected register values against live ones. Registers absent from live are not
// compared. The error is a *ReplayError naming every mismatched register.
func Verify(expected, live map[uint32][]byte, alg uint16) error {
	var errs error
	var mismatched []uint32
	indices := maps.Keys(expected)
	slices.Sort(indices)
	for _, mr := range indices {
		got, ok := live[mr]
		if !ok {
			continue
		}
		if want := expected[mr]; !bytes.Equal(got, want) {
			mismatched = append(mismatched, mr)
			errs = multierr.Append(errs, fmt.Errorf("MR[%d] %s is %x, replay gives %x", mr,
				AlgorithmName(alg), got, want))
		}
	}
	if errs == nil {
		return nil
	}
	return &ReplayError{Mismatched: mismatched, err: errs}
}

// MismatchSummary lists the mismatched registers of a *ReplayError, e.g. "RTMR[0], RTMR[2]".
func (e *ReplayError) MismatchSummary(name func(uint32) string) string {
	names := make([]string, len(e.Mismatched))
	for i, mr := range e.Mismatched {
		names[i] = name(mr)
	}
	return strings.Join(names, ", ")
}
