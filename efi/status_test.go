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

package efi

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		want Status
	}{
		{name: "nil", want: Success},
		{name: "wrapped invalid", err: fmt.Errorf("page 0x1000: %w", ErrInvalidParameter), want: InvalidParameter},
		{name: "malformed is invalid", err: fmt.Errorf("record 3: %w", ErrMalformed), want: InvalidParameter},
		{name: "volume full", err: ErrVolumeFull, want: VolumeFull},
		{name: "already started", err: ErrAlreadyStarted, want: AlreadyStarted},
		{name: "out of resources", err: ErrOutOfResources, want: OutOfResources},
		{name: "unsupported", err: ErrUnsupported, want: Unsupported},
		{name: "unknown", err: errors.New("boom"), want: DeviceError},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.err); got != tc.want {
				t.Errorf("StatusOf(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestStatusErrRoundTrip(t *testing.T) {
	for _, s := range []Status{InvalidParameter, Unsupported, OutOfResources, VolumeFull, NotFound, AlreadyStarted, DeviceError} {
		if got := StatusOf(s.Err()); got != s {
			t.Errorf("StatusOf(%v.Err()) = %v, want %v", s, got, s)
		}
		if !s.IsError() {
			t.Errorf("%v.IsError() = false, want true", s)
		}
	}
	if Success.Err() != nil {
		t.Errorf("Success.Err() = %v, want nil", Success.Err())
	}
	if got := Status(errorBit | 0x42).String(); got != "EFI_STATUS(0x8000000000000042)" {
		t.Errorf("unnamed status String() = %q", got)
	}
}
