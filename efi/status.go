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

// Package efi defines the error conditions shared by the measurement packages and their EFI_STATUS
// encodings.
package efi

import (
	"errors"
	"fmt"
)

// Status is an EFI_STATUS value.
type Status uint64

const errorBit Status = 1 << 63

// EFI_STATUS codes from the UEFI specification, Appendix D.
const (
	Success          Status = 0
	InvalidParameter Status = errorBit | 2
	Unsupported      Status = errorBit | 3
	BufferTooSmall   Status = errorBit | 5
	DeviceError      Status = errorBit | 7
	OutOfResources   Status = errorBit | 9
	VolumeFull       Status = errorBit | 11
	NotFound         Status = errorBit | 14
	AlreadyStarted   Status = errorBit | 20
)

var (
	// ErrInvalidParameter is returned for a bad page size class, register index, event record, or
	// event log format.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnsupported is returned when no hash algorithm is registered, an algorithm is not allowed
	// by policy, or an external register index has no mapping.
	ErrUnsupported = errors.New("unsupported")
	// ErrOutOfResources is returned when the hash algorithm registry is full.
	ErrOutOfResources = errors.New("out of resources")
	// ErrAlreadyStarted is returned when a hash algorithm is registered twice.
	ErrAlreadyStarted = errors.New("already started")
	// ErrVolumeFull is returned when a register was extended but its event could not be logged.
	ErrVolumeFull = errors.New("volume full")
	// ErrDeviceError is returned when the hardware transport fails outside of its status protocol.
	ErrDeviceError = errors.New("device error")
	// ErrNotFound is returned when a requested table or log is absent.
	ErrNotFound = errors.New("not found")
	// ErrMalformed is returned when an event log record would be read past its bounds or does not
	// describe itself consistently. It is an ErrInvalidParameter.
	ErrMalformed = fmt.Errorf("malformed event log: %w", ErrInvalidParameter)
)

var statusNames = map[Status]string{
	Success:          "EFI_SUCCESS",
	InvalidParameter: "EFI_INVALID_PARAMETER",
	Unsupported:      "EFI_UNSUPPORTED",
	BufferTooSmall:   "EFI_BUFFER_TOO_SMALL",
	DeviceError:      "EFI_DEVICE_ERROR",
	OutOfResources:   "EFI_OUT_OF_RESOURCES",
	VolumeFull:       "EFI_VOLUME_FULL",
	NotFound:         "EFI_NOT_FOUND",
	AlreadyStarted:   "EFI_ALREADY_STARTED",
}

// Ordered so that the most specific sentinel wins.
var statusErrors = []struct {
	err    error
	status Status
}{
	{ErrVolumeFull, VolumeFull},
	{ErrAlreadyStarted, AlreadyStarted},
	{ErrOutOfResources, OutOfResources},
	{ErrUnsupported, Unsupported},
	{ErrNotFound, NotFound},
	{ErrInvalidParameter, InvalidParameter},
	{ErrDeviceError, DeviceError},
}

// IsError returns true if the status has the EFI error bit set.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("EFI_STATUS(0x%x)", uint64(s))
}

// Err returns the sentinel error for the status, or nil for Success.
func (s Status) Err() error {
	if s == Success {
		return nil
	}
	for _, se := range statusErrors {
		if se.status == s {
			return se.err
		}
	}
	return fmt.Errorf("%w: %v", ErrDeviceError, s)
}

// StatusOf returns the EFI_STATUS that best describes err. Errors outside the taxonomy are device
// errors.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status
		}
	}
	return DeviceError
}
