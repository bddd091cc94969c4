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

// Package tdx implements the guest side of TD memory acceptance and TD information queries on top
// of an abstract TDCALL transport.
package tdx

import (
	"fmt"

	"github.com/google/tdvf-measure/abi"
)

// Status is the completion status a TDCALL leaf returns in RAX.
type Status uint64

const (
	// StatusSuccess is TDX_SUCCESS.
	StatusSuccess Status = 0
	// StatusPageAlreadyAccepted is TDX_PAGE_ALREADY_ACCEPTED with its operand details masked.
	StatusPageAlreadyAccepted Status = 0x00000B0A00000000
	// StatusPageSizeMismatch is TDX_PAGE_SIZE_MISMATCH with its operand details masked.
	StatusPageSizeMismatch Status = 0xC0000B0B00000000

	// The low 16 bits carry operand details that do not affect classification.
	statusDetailMask Status = 0xFFFF
)

// Class returns s without its operand detail bits.
func (s Status) Class() Status {
	return s &^ statusDetailMask
}

func (s Status) String() string {
	switch s.Class() {
	case StatusSuccess:
		return "TDX_SUCCESS"
	case StatusPageAlreadyAccepted:
		return "TDX_PAGE_ALREADY_ACCEPTED"
	case StatusPageSizeMismatch:
		return "TDX_PAGE_SIZE_MISMATCH"
	}
	return fmt.Sprintf("TDX_STATUS(0x%016x)", uint64(s))
}

// VPInfo is the subset of TDG.VP.INFO output the measurement code consumes.
type VPInfo struct {
	// GPAW is the raw RCX output. Only the low 6 bits hold the guest physical address width.
	GPAW uint64
	// Attributes are the TD attributes.
	Attributes uint64
	// NumVCPUs is the number of virtual CPUs currently running.
	NumVCPUs uint32
	// MaxVCPUs is the maximum number of virtual CPUs the TD was built with.
	MaxVCPUs uint32
}

// PageAccepter issues TDG.MEM.PAGE.ACCEPT. The argument is the page GPA ORed with the page level.
type PageAccepter interface {
	AcceptPage(arg uint64) Status
}

// InfoCaller issues TDG.VP.INFO.
type InfoCaller interface {
	VPInfo() (*VPInfo, error)
}

// RTMRExtender issues TDG.MR.RTMR.EXTEND with a digest for the given hardware RTMR number.
type RTMRExtender interface {
	ExtendRTMR(digest []byte, rtmr uint8) error
}

// AcceptArg returns the TDG.MEM.PAGE.ACCEPT argument for a page at gpa of the given size class.
func AcceptArg(gpa abi.EFIPhysicalAddress, size PageSize) uint64 {
	return uint64(gpa) | uint64(size)
}
