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

// Package eventlog reads, writes, and replays the TCG crypto-agile event log that TD firmware keeps
// for its measurement registers, and decodes the EventData payloads it can carry.
package eventlog

import (
	"fmt"

	"github.com/google/tdvf-measure/efi"
)

// ParseOptions configures Parse.
type ParseOptions struct {
	// LastEntry is the offset of the first byte of the log's last entry. -1 means the offset is
	// unknown, and reading stops at the end of the buffer or at trailing padding.
	LastEntry int
}

// DefaultParseOptions returns options for a log whose last entry is unknown.
func DefaultParseOptions() *ParseOptions {
	return &ParseOptions{LastEntry: -1}
}

// Log is a parsed log header over the caller's buffer. Entries are decoded lazily by Events. The
// buffer must not change while the Log is in use.
type Log struct {
	Header    *Header
	data      []byte
	lastEntry int
}

// Parse reads the header record of a crypto-agile log.
func Parse(data []byte, opts *ParseOptions) (*Log, error) {
	if opts == nil {
		opts = DefaultParseOptions()
	}
	if opts.LastEntry < -1 {
		return nil, fmt.Errorf("%w: last entry offset %d", efi.ErrInvalidParameter, opts.LastEntry)
	}
	c := &cursor{data: data}
	h, err := readHeader(c)
	if err != nil {
		return nil, fmt.Errorf("could not read event log header: %w", err)
	}
	return &Log{Header: h, data: data, lastEntry: opts.LastEntry}, nil
}

// Bytes returns the buffer l was parsed from.
func (l *Log) Bytes() []byte {
	return l.data
}

// Iterator walks the entries of a Log in order.
type Iterator struct {
	l    *Log
	c    cursor
	cur  *Event
	err  error
	done bool
}

// Events returns an iterator positioned before the first entry.
func (l *Log) Events() *Iterator {
	return &Iterator{l: l, c: cursor{data: l.data, off: l.Header.Size}}
}

func (it *Iterator) atEnd() bool {
	if it.l.lastEntry >= 0 {
		return it.c.off > it.l.lastEntry
	}
	return it.c.remaining() == 0 || it.c.padding()
}

// Next decodes the next entry. It returns false at the end of the log or on error.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.atEnd() {
		it.done = true
		it.cur = nil
		return false
	}
	e, err := readEvent(&it.c, it.l.Header)
	if err != nil {
		it.err = err
		it.done = true
		it.cur = nil
		return false
	}
	it.cur = e
	return true
}

// Event returns the entry Next decoded.
func (it *Iterator) Event() *Event {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// All decodes every entry of l.
func (l *Log) All() ([]*Event, error) {
	var result []*Event
	it := l.Events()
	for it.Next() {
		result = append(result, it.Event())
	}
	return result, it.Err()
}
