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

	"github.com/google/logger"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"golang.org/x/exp/slices"
)

// RegistryOptions bounds what a Registry accepts.
type RegistryOptions struct {
	// Capacity is the number of algorithms the registry holds.
	Capacity int
	// Allowed lists the TPM_ALG_IDs that may be registered.
	Allowed []uint16
}

// DefaultRegistryOptions returns the TD policy: one slot, SHA-384 only.
func DefaultRegistryOptions() *RegistryOptions {
	return &RegistryOptions{Capacity: 1, Allowed: []uint16{eventlog.AlgSHA384}}
}

// Registry holds the hash algorithms measurements are computed with, in registration order. It is
// not safe for concurrent use.
type Registry struct {
	opts RegistryOptions
	algs []HashAlgorithm
}

// NewRegistry returns an empty registry with the default policy.
func NewRegistry() *Registry {
	return NewRegistryWithOptions(DefaultRegistryOptions())
}

// NewRegistryWithOptions returns an empty registry with the given policy.
func NewRegistryWithOptions(opts *RegistryOptions) *Registry {
	return &Registry{opts: *opts}
}

// Register adds alg to the registry.
func (r *Registry) Register(alg HashAlgorithm) error {
	id := alg.ID()
	if !slices.Contains(r.opts.Allowed, id) {
		return fmt.Errorf("%w: hash algorithm %s is not allowed", efi.ErrUnsupported,
			eventlog.AlgorithmName(id))
	}
	if r.Lookup(id) != nil {
		return fmt.Errorf("%w: hash algorithm %s is already registered", efi.ErrAlreadyStarted,
			eventlog.AlgorithmName(id))
	}
	if len(r.algs) >= r.opts.Capacity {
		return fmt.Errorf("%w: hash algorithm registry holds %d algorithms", efi.ErrOutOfResources,
			r.opts.Capacity)
	}
	r.algs = append(r.algs, alg)
	logger.V(1).Infof("registered hash algorithm %s", eventlog.AlgorithmName(id))
	return nil
}

// Lookup returns the registered algorithm with the given id, or nil.
func (r *Registry) Lookup(id uint16) HashAlgorithm {
	for _, a := range r.algs {
		if a.ID() == id {
			return a
		}
	}
	return nil
}

// Algorithms returns the registered algorithms in registration order.
func (r *Registry) Algorithms() []HashAlgorithm {
	return slices.Clone(r.algs)
}

// Empty returns true if no algorithm is registered.
func (r *Registry) Empty() bool {
	return len(r.algs) == 0
}
