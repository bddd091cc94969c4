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

	"github.com/google/logger"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
)

// Acceptor accepts pending private pages into the TD. It is not safe for concurrent use.
type Acceptor struct {
	c          PageAccepter
	duplicates uint64
}

// NewAcceptor returns an Acceptor that issues page accepts through c.
func NewAcceptor(c PageAccepter) *Acceptor {
	return &Acceptor{c: c}
}

// Duplicates returns how many pages were reported as already accepted over the Acceptor's life.
func (a *Acceptor) Duplicates() uint64 {
	return a.duplicates
}

type acceptFrame struct {
	addr  abi.EFIPhysicalAddress
	left  uint64
	class PageSize
}

// Accept accepts every page of r. A page the TDX module cannot accept at r.Size is accepted as the
// pages of the next-smaller class that cover it. Pages accepted before an error stay accepted.
func (a *Acceptor) Accept(r Region) error {
	if err := r.validate(); err != nil {
		return err
	}
	// One frame per page class at most: a child is only pushed by a frame of a larger class.
	stack := make([]acceptFrame, 0, len(pageBytes))
	stack = append(stack, acceptFrame{addr: r.Start, left: r.Pages, class: r.Size})
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.left == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		addr, class := top.addr, top.class
		top.addr += abi.EFIPhysicalAddress(class.Bytes())
		top.left--

		status := a.c.AcceptPage(AcceptArg(addr, class))
		switch status.Class() {
		case StatusSuccess:
		case StatusPageAlreadyAccepted:
			a.duplicates++
			logger.V(1).Infof("Address 0x%x already accepted. Total already accepted pages: %d",
				addr, a.duplicates)
		case StatusPageSizeMismatch:
			child, ratio, ok := class.smaller()
			if !ok {
				return fmt.Errorf("%w: page 0x%x cannot fall back from page size %v",
					efi.ErrInvalidParameter, addr, class)
			}
			logger.V(1).Infof("Address 0x%x cannot be accepted as a %v page, falling back to %v",
				addr, class, child)
			stack = append(stack, acceptFrame{addr: addr, left: ratio, class: child})
		default:
			return fmt.Errorf("%w: page 0x%x (%v) failed to be accepted: %v", efi.ErrInvalidParameter,
				addr, class, status)
		}
	}
	return nil
}
