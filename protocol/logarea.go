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

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/tdvf-measure/eventlog"
)

// LogArea is a fixed-capacity region that event records are appended to.
type LogArea struct {
	buf       []byte
	capacity  int
	lastEntry int
	truncated bool
}

func newLogArea(capacity int) *LogArea {
	return &LogArea{buf: make([]byte, 0, capacity), capacity: capacity, lastEntry: -1}
}

// append adds record if it fits. Once a record does not fit the area is truncated and takes no
// further records.
func (a *LogArea) append(record []byte) bool {
	if a.truncated || len(record) > a.capacity-len(a.buf) {
		a.truncated = true
		return false
	}
	a.lastEntry = len(a.buf)
	a.buf = append(a.buf, record...)
	return true
}

// Bytes returns the records written so far.
func (a *LogArea) Bytes() []byte {
	return a.buf
}

// LastEntry returns the offset of the last record, or -1 if there is none.
func (a *LogArea) LastEntry() int {
	return a.lastEntry
}

// Truncated returns true if a record was dropped for lack of space.
func (a *LogArea) Truncated() bool {
	return a.truncated
}

// finalArea holds the EFI_TD_FINAL_EVENTS_TABLE: a version, an event count, and the records.
type finalArea struct {
	*LogArea
	count uint64
}

func newFinalArea(capacity int) *finalArea {
	f := &finalArea{LogArea: newLogArea(capacity)}
	if capacity < eventlog.SizeofFinalEventsHeader {
		f.truncated = true
		return f
	}
	var header bytes.Buffer
	if err := (&eventlog.FinalEvents{Version: eventlog.FinalEventsVersion}).Marshal(&header); err != nil {
		panic(fmt.Errorf("internal: could not encode final events header: %v", err))
	}
	f.buf = append(f.buf, header.Bytes()...)
	return f
}

func (f *finalArea) append(record []byte) bool {
	if !f.LogArea.append(record) {
		return false
	}
	f.count++
	binary.LittleEndian.PutUint64(f.buf[8:16], f.count)
	return true
}
