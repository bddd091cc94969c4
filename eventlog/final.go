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

package eventlog

import (
	"fmt"

	"github.com/google/tdvf-measure/efi"
)

const (
	// FinalEventsVersion is the EFI_TD_FINAL_EVENTS_TABLE version.
	FinalEventsVersion = 1
	// SizeofFinalEventsHeader is the size of the version and event count fields.
	SizeofFinalEventsHeader = 16
)

// FinalEvents is the EFI_TD_FINAL_EVENTS_TABLE: the events logged after the first GetEventLog
// call, in append order.
type FinalEvents struct {
	Version uint64
	Events  []*Event
}

// ParseFinalEvents reads a final events table whose digests are sized by h.
func ParseFinalEvents(data []byte, h *Header) (*FinalEvents, error) {
	c := &cursor{data: data}
	version, err := c.u64("final events Version")
	if err != nil {
		return nil, err
	}
	if version != FinalEventsVersion {
		return nil, fmt.Errorf("%w: final events table version %d, want %d", efi.ErrMalformed, version,
			FinalEventsVersion)
	}
	count, err := c.u64("final events NumberOfEvents")
	if err != nil {
		return nil, err
	}
	// The smallest record is 16 bytes, so a larger count cannot fit.
	if count > uint64(c.remaining())/16 {
		return nil, fmt.Errorf("%w: %d final events do not fit %d bytes", efi.ErrMalformed, count,
			c.remaining())
	}
	f := &FinalEvents{Version: version, Events: make([]*Event, 0, count)}
	for i := uint64(0); i < count; i++ {
		e, err := readEvent(c, h)
		if err != nil {
			return nil, fmt.Errorf("final event %d: %w", i, err)
		}
		f.Events = append(f.Events, e)
	}
	return f, nil
}
