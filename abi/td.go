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

// Package abi defines the binary layouts shared by the TD measurement protocol, its event log, and
// the firmware tables that locate the log.
package abi

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/tdvf-measure/efi"
)

// EFIPhysicalAddress is a guest physical address.
type EFIPhysicalAddress uint64

// MRIndex identifies a TD measurement register. Index 0 is the build-time MRTD and the rest are
// the runtime-extendable RTMRs.
type MRIndex uint32

const (
	// MRTD is the build-time measurement register.
	MRTD MRIndex = iota
	// RTMR0 receives firmware configuration measurements.
	RTMR0
	// RTMR1 receives firmware code and boot loader measurements.
	RTMR1
	// RTMR2 receives OS and kernel measurements.
	RTMR2
	// RTMR3 is reserved for runtime use.
	RTMR3
	// MaxMRIndex is the largest valid MRIndex.
	MaxMRIndex = RTMR3
)

// String returns the register name.
func (m MRIndex) String() string {
	switch {
	case m == MRTD:
		return "MRTD"
	case m <= MaxMRIndex:
		return fmt.Sprintf("RTMR%d", m-1)
	default:
		return fmt.Sprintf("MR(%d)", uint32(m))
	}
}

// ParseMRIndex reads a register name as String writes it, or a decimal index.
func ParseMRIndex(s string) (MRIndex, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "MRTD" {
		return MRTD, nil
	}
	if rest, ok := strings.CutPrefix(name, "RTMR"); ok {
		n, err := strconv.ParseUint(rest, 10, 8)
		if err == nil && MRIndex(n)+RTMR0 <= MaxMRIndex {
			return MRIndex(n) + RTMR0, nil
		}
	} else if n, err := strconv.ParseUint(name, 10, 32); err == nil && MRIndex(n) <= MaxMRIndex {
		return MRIndex(n), nil
	}
	return 0, fmt.Errorf("%w: unknown measurement register %q", efi.ErrInvalidParameter, s)
}

// RTMR returns the hardware RTMR number that m extends. MRTD is not extendable.
func (m MRIndex) RTMR() (uint8, error) {
	if m == MRTD || m > MaxMRIndex {
		return 0, fmt.Errorf("%w: %v is not an extendable register", efi.ErrInvalidParameter, m)
	}
	return uint8(m - 1), nil
}

const (
	// TDFlagExtendOnly directs HashLogExtendEvent to extend without logging.
	TDFlagExtendOnly uint64 = 0x1
	// TDFlagPECOFFImage directs HashLogExtendEvent to measure the data as a PE/COFF image.
	TDFlagPECOFFImage uint64 = 0x10

	// TDEventLogFormatTCG2 is the only supported event log format bit.
	TDEventLogFormatTCG2 uint32 = 0x2
	// TDBootHashAlgSHA384 is the EFI_TD_BOOT_HASH_ALG bit for SHA-384.
	TDBootHashAlgSHA384 uint32 = 0x4

	// SizeofTDEventHeader is the packed size of EFI_TD_EVENT_HEADER.
	SizeofTDEventHeader = 14
	// TDEventHeaderVersion is the only supported EFI_TD_EVENT_HEADER version.
	TDEventHeaderVersion = 1
	sizeofTDEventSize    = 4
)

// TDEventHeader is EFI_TD_EVENT_HEADER.
type TDEventHeader struct {
	HeaderSize    uint32
	HeaderVersion uint16
	MRIndex       MRIndex
	EventType     uint32
}

// TDEvent is EFI_TD_EVENT, the caller-provided description of an event to extend and log.
type TDEvent struct {
	// Size is the total size of the event including the Size field, header, and Event data.
	Size   uint32
	Header TDEventHeader
	Event  []byte
}

// NewTDEvent returns a well-formed TDEvent for the given register, type and event data.
func NewTDEvent(mr MRIndex, eventType uint32, event []byte) *TDEvent {
	return &TDEvent{
		Size: uint32(sizeofTDEventSize + SizeofTDEventHeader + len(event)),
		Header: TDEventHeader{
			HeaderSize:    SizeofTDEventHeader,
			HeaderVersion: TDEventHeaderVersion,
			MRIndex:       mr,
			EventType:     eventType,
		},
		Event: event,
	}
}

// Validate returns an efi.ErrInvalidParameter error if e does not describe itself consistently.
func (e *TDEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event is nil", efi.ErrInvalidParameter)
	}
	if e.Header.HeaderSize != SizeofTDEventHeader {
		return fmt.Errorf("%w: event header size %d, want %d", efi.ErrInvalidParameter,
			e.Header.HeaderSize, SizeofTDEventHeader)
	}
	if e.Header.HeaderVersion != TDEventHeaderVersion {
		return fmt.Errorf("%w: event header version %d, want %d", efi.ErrInvalidParameter,
			e.Header.HeaderVersion, TDEventHeaderVersion)
	}
	if e.Size < sizeofTDEventSize+e.Header.HeaderSize {
		return fmt.Errorf("%w: event size %d is smaller than its header", efi.ErrInvalidParameter, e.Size)
	}
	if want := uint32(sizeofTDEventSize + SizeofTDEventHeader + len(e.Event)); e.Size != want {
		return fmt.Errorf("%w: event size %d, want %d", efi.ErrInvalidParameter, e.Size, want)
	}
	if e.Header.MRIndex > MaxMRIndex {
		return fmt.Errorf("%w: event register index %d", efi.ErrInvalidParameter, e.Header.MRIndex)
	}
	return nil
}

// TDEventFromBytes parses an EFI_TD_EVENT from the beginning of data.
func TDEventFromBytes(data []byte) (*TDEvent, error) {
	if len(data) < sizeofTDEventSize+SizeofTDEventHeader {
		return nil, fmt.Errorf("%w: data too small for TD event: %d < %d", efi.ErrInvalidParameter,
			len(data), sizeofTDEventSize+SizeofTDEventHeader)
	}
	e := &TDEvent{
		Size: binary.LittleEndian.Uint32(data[0:4]),
		Header: TDEventHeader{
			HeaderSize:    binary.LittleEndian.Uint32(data[4:8]),
			HeaderVersion: binary.LittleEndian.Uint16(data[8:10]),
			MRIndex:       MRIndex(binary.LittleEndian.Uint32(data[10:14])),
			EventType:     binary.LittleEndian.Uint32(data[14:18]),
		},
	}
	start := uint64(sizeofTDEventSize) + uint64(e.Header.HeaderSize)
	if uint64(e.Size) > uint64(len(data)) || start > uint64(e.Size) {
		return nil, fmt.Errorf("%w: TD event size %d with header size %d does not fit %d bytes",
			efi.ErrInvalidParameter, e.Size, e.Header.HeaderSize, len(data))
	}
	e.Event = data[start:e.Size]
	return e, nil
}

// Put writes e in its ABI format to the beginning of data.
func (e *TDEvent) Put(data []byte) error {
	if len(data) < int(e.Size) || e.Size < sizeofTDEventSize+SizeofTDEventHeader {
		return fmt.Errorf("data too small for TD event: %d < %d", len(data), e.Size)
	}
	binary.LittleEndian.PutUint32(data[0:4], e.Size)
	binary.LittleEndian.PutUint32(data[4:8], e.Header.HeaderSize)
	binary.LittleEndian.PutUint16(data[8:10], e.Header.HeaderVersion)
	binary.LittleEndian.PutUint32(data[10:14], uint32(e.Header.MRIndex))
	binary.LittleEndian.PutUint32(data[14:18], e.Header.EventType)
	copy(data[sizeofTDEventSize+SizeofTDEventHeader:e.Size], e.Event)
	return nil
}
