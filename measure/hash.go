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

// Package measure extends TD runtime measurement registers with digests computed by a registry of
// hash algorithms.
package measure

import (
	"crypto"
	"encoding"
	"hash"

	"github.com/google/tdvf-measure/eventlog"
)

// HashContext is one in-progress digest computation.
type HashContext interface {
	Update(data []byte)
	Final() []byte
}

// HashAlgorithm describes a digest the registry can compute.
type HashAlgorithm interface {
	// ID is the TPM_ALG_ID of the digest.
	ID() uint16
	DigestSize() int
	// ContextSize is the size of the serialized hash state.
	ContextSize() int
	Init() HashContext
}

type cryptoAlgorithm struct {
	id uint16
	h  crypto.Hash
}

type cryptoContext struct {
	h hash.Hash
}

func (c *cryptoContext) Update(data []byte) {
	c.h.Write(data)
}

func (c *cryptoContext) Final() []byte {
	return c.h.Sum(nil)
}

func (a *cryptoAlgorithm) ID() uint16 { return a.id }

func (a *cryptoAlgorithm) DigestSize() int { return a.h.Size() }

func (a *cryptoAlgorithm) ContextSize() int {
	m, ok := a.h.New().(encoding.BinaryMarshaler)
	if !ok {
		return 0
	}
	state, err := m.MarshalBinary()
	if err != nil {
		return 0
	}
	return len(state)
}

func (a *cryptoAlgorithm) Init() HashContext {
	return &cryptoContext{h: a.h.New()}
}

// FromCrypto returns a HashAlgorithm backed by a Go crypto.Hash. The hash must be linked in.
func FromCrypto(id uint16, h crypto.Hash) HashAlgorithm {
	return &cryptoAlgorithm{id: id, h: h}
}

// SHA384 is the digest TDX RTMRs are extended with.
var SHA384 = FromCrypto(eventlog.AlgSHA384, crypto.SHA384)
