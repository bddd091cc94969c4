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

// Package testlog builds crypto-agile event logs for tests.
package testlog

import (
	"bytes"
	"fmt"

	"github.com/google/tdvf-measure/eventlog"
)

// Log is an encoded event log and the entries it holds.
type Log struct {
	Data      []byte
	LastEntry int
	Events    []*eventlog.Event
}

// Event returns an event for mr whose digests are of data under each of algs.
func Event(algs []uint16, mr, eventType uint32, data []byte) *eventlog.Event {
	e := &eventlog.Event{MRIndex: mr, EventType: eventType, Data: data}
	for _, alg := range algs {
		h, err := eventlog.CryptoHash(alg)
		if err != nil {
			panic(fmt.Sprintf("testlog: %v", err))
		}
		hasher := h.New()
		hasher.Write(data)
		e.Digests = append(e.Digests, eventlog.TaggedDigest{AlgID: alg, Digest: hasher.Sum(nil)})
	}
	return e
}

// Build encodes a log whose header declares algs, followed by events. Each event's Offset is set
// to its position in the result.
func Build(algs []uint16, events ...*eventlog.Event) (*Log, error) {
	var buf bytes.Buffer
	if err := eventlog.MarshalHeader(&buf, eventlog.NewSpecIDEvent(algs...)); err != nil {
		return nil, err
	}
	l := &Log{LastEntry: -1}
	for _, e := range events {
		l.LastEntry = buf.Len()
		e.Offset = buf.Len()
		if err := e.Marshal(&buf); err != nil {
			return nil, err
		}
		l.Events = append(l.Events, e)
	}
	l.Data = buf.Bytes()
	return l, nil
}

// Must panics if Build fails.
func Must(l *Log, err error) *Log {
	if err != nil {
		panic(fmt.Sprintf("testlog: %v", err))
	}
	return l
}

// Fold returns the register value after extending zeros with each digest under alg.
func Fold(alg uint16, digests ...[]byte) []byte {
	h, err := eventlog.CryptoHash(alg)
	if err != nil {
		panic(fmt.Sprintf("testlog: %v", err))
	}
	r := make([]byte, h.Size())
	for _, d := range digests {
		hasher := h.New()
		hasher.Write(r)
		hasher.Write(d)
		r = hasher.Sum(nil)
	}
	return r
}

// Final encodes a final events table holding events.
func Final(events ...*eventlog.Event) []byte {
	var buf bytes.Buffer
	f := &eventlog.FinalEvents{Version: eventlog.FinalEventsVersion, Events: events}
	if err := f.Marshal(&buf); err != nil {
		panic(fmt.Sprintf("testlog: %v", err))
	}
	return buf.Bytes()
}
