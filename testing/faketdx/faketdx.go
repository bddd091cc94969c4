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

// Package faketdx simulates the TDX module's guest-facing calls for tests and the simulate
// command.
package faketdx

import (
	"crypto/sha512"
	"fmt"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/tdx"
)

const (
	smallPage = 0x1000
	// RTMRCount is the number of runtime measurement registers.
	RTMRCount = 4
	// Detail bits the fake ORs into non-success statuses so callers must mask them.
	statusDetail = 0x2a
)

// Extension records one TDG.MR.RTMR.EXTEND call.
type Extension struct {
	RTMR   uint8
	Digest []byte
}

// TD is a fake trust domain. The zero value is not usable, use New.
type TD struct {
	// Info is returned by VPInfo.
	Info tdx.VPInfo
	// InfoErr, if set, is returned by VPInfo.
	InfoErr error
	// InfoCalls counts VPInfo calls.
	InfoCalls int

	// Refuse2M holds the addresses at which a 2M accept reports a page size mismatch.
	Refuse2M map[abi.EFIPhysicalAddress]bool
	// Fail holds the addresses at which any accept returns the given status.
	Fail map[abi.EFIPhysicalAddress]tdx.Status
	// Calls holds every TDG.MEM.PAGE.ACCEPT argument in order.
	Calls []uint64

	// ExtendErr, if set, is returned by ExtendRTMR without changing any register.
	ExtendErr error
	// Extensions holds every successful extension in order.
	Extensions []Extension

	accepted map[uint64]bool
	rtmrs    [RTMRCount][sha512.Size384]byte
}

// New returns a TD with a 48-bit guest physical address width and no accepted memory.
func New() *TD {
	return &TD{
		Info:     tdx.VPInfo{GPAW: 48, NumVCPUs: 4, MaxVCPUs: 8},
		Refuse2M: make(map[abi.EFIPhysicalAddress]bool),
		Fail:     make(map[abi.EFIPhysicalAddress]tdx.Status),
		accepted: make(map[uint64]bool),
	}
}

// VPInfo returns a copy of td.Info.
func (td *TD) VPInfo() (*tdx.VPInfo, error) {
	td.InfoCalls++
	if td.InfoErr != nil {
		return nil, td.InfoErr
	}
	info := td.Info
	return &info, nil
}

// AcceptPage accepts the page the argument describes.
func (td *TD) AcceptPage(arg uint64) tdx.Status {
	td.Calls = append(td.Calls, arg)
	size := tdx.PageSize(arg & (smallPage - 1))
	addr := abi.EFIPhysicalAddress(arg &^ (smallPage - 1))
	if status, ok := td.Fail[addr]; ok {
		return status
	}
	length := size.Bytes()
	if length == 0 || uint64(addr)%length != 0 {
		return tdx.Status(0xC000010000000000 | statusDetail)
	}
	if size == tdx.PageSize2M && td.Refuse2M[addr] {
		return tdx.StatusPageSizeMismatch | statusDetail
	}
	var done uint64
	for p := uint64(addr); p < uint64(addr)+length; p += smallPage {
		if td.accepted[p] {
			done++
		}
	}
	switch {
	case done == length/smallPage:
		return tdx.StatusPageAlreadyAccepted | statusDetail
	case done != 0:
		// Part of the range was accepted at a smaller size.
		return tdx.StatusPageSizeMismatch | statusDetail
	}
	for p := uint64(addr); p < uint64(addr)+length; p += smallPage {
		td.accepted[p] = true
	}
	return tdx.StatusSuccess
}

// Accepted returns true if the 4K page containing addr is accepted.
func (td *TD) Accepted(addr abi.EFIPhysicalAddress) bool {
	return td.accepted[uint64(addr)&^(smallPage-1)]
}

// AcceptedBytes returns the total accepted memory.
func (td *TD) AcceptedBytes() uint64 {
	return uint64(len(td.accepted)) * smallPage
}

// ExtendRTMR sets RTMR[rtmr] to SHA-384(RTMR[rtmr] || digest).
func (td *TD) ExtendRTMR(digest []byte, rtmr uint8) error {
	if td.ExtendErr != nil {
		return td.ExtendErr
	}
	if int(rtmr) >= RTMRCount {
		return fmt.Errorf("RTMR index %d out of range", rtmr)
	}
	if len(digest) != sha512.Size384 {
		return fmt.Errorf("RTMR extension digest is %d bytes, want %d", len(digest), sha512.Size384)
	}
	h := sha512.New384()
	h.Write(td.rtmrs[rtmr][:])
	h.Write(digest)
	copy(td.rtmrs[rtmr][:], h.Sum(nil))
	td.Extensions = append(td.Extensions, Extension{RTMR: rtmr, Digest: append([]byte(nil), digest...)})
	return nil
}

// RTMR returns a copy of the hardware RTMR value.
func (td *TD) RTMR(rtmr uint8) []byte {
	return append([]byte(nil), td.rtmrs[rtmr][:]...)
}

// Registers returns every extendable register keyed by its MR index.
func (td *TD) Registers() map[uint32][]byte {
	result := make(map[uint32][]byte, RTMRCount)
	for i := uint8(0); i < RTMRCount; i++ {
		result[uint32(i)+1] = td.RTMR(i)
	}
	return result
}
