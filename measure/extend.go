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

package measure

import (
	"fmt"
	"io"

	"github.com/google/logger"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/tdx"
)

// Extender measures data into RTMRs. It is not safe for concurrent use.
type Extender struct {
	reg *Registry
	hw  tdx.RTMRExtender
}

// NewExtender returns an Extender that hashes with reg's algorithms and extends through hw.
func NewExtender(reg *Registry, hw tdx.RTMRExtender) *Extender {
	return &Extender{reg: reg, hw: hw}
}

// Registry returns the algorithms e hashes with.
func (e *Extender) Registry() *Registry {
	return e.reg
}

// Sequence is a digest computation in progress for every registered algorithm.
type Sequence struct {
	e    *Extender
	algs []HashAlgorithm
	ctxs []HashContext
	done bool
}

// With nothing registered every operation is unsupported, whatever its arguments.
func (e *Extender) checkRegistered() error {
	if e.reg.Empty() {
		return fmt.Errorf("%w: no hash algorithm is registered", efi.ErrUnsupported)
	}
	return nil
}

func (e *Extender) checkTarget(mr abi.MRIndex) error {
	if err := e.checkRegistered(); err != nil {
		return err
	}
	_, err := mr.RTMR()
	return err
}

// Start begins a hash sequence.
func (e *Extender) Start() (*Sequence, error) {
	if err := e.checkRegistered(); err != nil {
		return nil, err
	}
	s := &Sequence{e: e, algs: e.reg.Algorithms()}
	for _, a := range s.algs {
		s.ctxs = append(s.ctxs, a.Init())
	}
	return s, nil
}

// Update hashes data into every algorithm's digest.
func (s *Sequence) Update(data []byte) error {
	if s.done {
		return fmt.Errorf("%w: hash sequence already completed", efi.ErrInvalidParameter)
	}
	for _, c := range s.ctxs {
		c.Update(data)
	}
	return nil
}

// Write lets a Sequence consume an io.Reader.
func (s *Sequence) Write(data []byte) (int, error) {
	if err := s.Update(data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// CompleteAndExtend hashes the final data, ends the sequence, and extends mr with the result.
func (s *Sequence) CompleteAndExtend(mr abi.MRIndex, data []byte) (eventlog.DigestList, error) {
	if _, err := mr.RTMR(); err != nil {
		return nil, err
	}
	if err := s.Update(data); err != nil {
		return nil, err
	}
	s.done = true
	digests := make(eventlog.DigestList, len(s.algs))
	for i, a := range s.algs {
		digests[i] = eventlog.TaggedDigest{AlgID: a.ID(), Digest: s.ctxs[i].Final()}
	}
	if err := s.e.extend(mr, digests); err != nil {
		return nil, err
	}
	return digests, nil
}

// ExtendRegister measures data into mr.
func (e *Extender) ExtendRegister(mr abi.MRIndex, data []byte) (eventlog.DigestList, error) {
	if err := e.checkTarget(mr); err != nil {
		return nil, err
	}
	s, err := e.Start()
	if err != nil {
		return nil, err
	}
	return s.CompleteAndExtend(mr, data)
}

// HashThenExtend measures everything r yields into mr.
func (e *Extender) HashThenExtend(mr abi.MRIndex, r io.Reader) (eventlog.DigestList, error) {
	if err := e.checkTarget(mr); err != nil {
		return nil, err
	}
	s, err := e.Start()
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(s, r); err != nil {
		return nil, fmt.Errorf("could not read measured data: %w", err)
	}
	return s.CompleteAndExtend(mr, nil)
}

// ExtendDigests extends mr with digests computed elsewhere. Each digest must be of a registered
// algorithm and of that algorithm's size.
func (e *Extender) ExtendDigests(mr abi.MRIndex, digests eventlog.DigestList) error {
	if err := e.checkTarget(mr); err != nil {
		return err
	}
	if len(digests) == 0 {
		return fmt.Errorf("%w: no digests to extend %v with", efi.ErrInvalidParameter, mr)
	}
	for _, d := range digests {
		a := e.reg.Lookup(d.AlgID)
		if a == nil {
			return fmt.Errorf("%w: %s is not a registered algorithm", efi.ErrUnsupported,
				eventlog.AlgorithmName(d.AlgID))
		}
		if len(d.Digest) != a.DigestSize() {
			return fmt.Errorf("%w: %s digest is %d bytes, want %d", efi.ErrInvalidParameter,
				eventlog.AlgorithmName(d.AlgID), len(d.Digest), a.DigestSize())
		}
	}
	return e.extend(mr, digests)
}

// The hardware register takes one digest: SHA-384 when present, otherwise the first.
func (e *Extender) extend(mr abi.MRIndex, digests eventlog.DigestList) error {
	rtmr, err := mr.RTMR()
	if err != nil {
		return err
	}
	digest, ok := digests.Get(eventlog.AlgSHA384)
	if !ok {
		digest = digests[0].Digest
	}
	if err := e.hw.ExtendRTMR(digest, rtmr); err != nil {
		return fmt.Errorf("could not extend %v: %w", mr, err)
	}
	logger.V(1).Infof("extended %v with %x", mr, digest)
	return nil
}
