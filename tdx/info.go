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

package tdx

import (
	"fmt"

	"github.com/pkg/errors"
)

const gpawMask = 0x3f

// GuestInfo caches the TD properties that cannot change after TD build. It is not safe for
// concurrent use.
type GuestInfo struct {
	c InfoCaller

	sharedPageMask uint64
	maxVCPUs       uint32
	haveMaxVCPUs   bool
}

// NewGuestInfo returns a GuestInfo that queries c on first use.
func NewGuestInfo(c InfoCaller) *GuestInfo {
	return &GuestInfo{c: c}
}

// The TD cannot continue without its own properties, so a failed query is fatal.
func (g *GuestInfo) query() *VPInfo {
	info, err := g.c.VPInfo()
	if err != nil {
		panic(fmt.Sprintf("tdx: fatal: %v", errors.Wrap(err, "TDG.VP.INFO")))
	}
	if info == nil {
		panic("tdx: fatal: TDG.VP.INFO returned no output")
	}
	return info
}

// SharedPageMask returns the GPA bit that marks a page as shared with the host. The guest physical
// address width must be 48 or 52 bits.
func (g *GuestInfo) SharedPageMask() uint64 {
	if g.sharedPageMask != 0 {
		return g.sharedPageMask
	}
	gpaw := g.query().GPAW & gpawMask
	if gpaw != 48 && gpaw != 52 {
		panic(fmt.Sprintf("tdx: fatal: unsupported guest physical address width %d", gpaw))
	}
	g.sharedPageMask = uint64(1) << (gpaw - 1)
	return g.sharedPageMask
}

// MaxVCPUs returns the maximum number of virtual CPUs the TD was built with.
func (g *GuestInfo) MaxVCPUs() uint32 {
	if !g.haveMaxVCPUs {
		g.maxVCPUs = g.query().MaxVCPUs
		g.haveMaxVCPUs = true
	}
	return g.maxVCPUs
}

// VCPUs returns the number of virtual CPUs currently running. The host may change it at runtime so
// it is queried on every call.
func (g *GuestInfo) VCPUs() uint32 {
	return g.query().NumVCPUs
}
