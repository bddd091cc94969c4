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

package eventlog_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/testing/match"
	"github.com/google/tdvf-measure/testing/testlog"
)

var (
	tdAlgs   = []uint16{eventlog.AlgSHA384}
	manyAlgs = []uint16{eventlog.AlgSHA256, eventlog.AlgSHA384, eventlog.AlgSHA512}
)

func parse(t *testing.T, data []byte, lastEntry int) *eventlog.Log {
	t.Helper()
	l, err := eventlog.Parse(data, &eventlog.ParseOptions{LastEntry: lastEntry})
	if err != nil {
		t.Fatalf("Parse() = %v, want nil", err)
	}
	return l
}

func TestRoundTrip(t *testing.T) {
	var events []*eventlog.Event
	for i := 0; i < 6; i++ {
		var data []byte
		if i != 3 {
			data = []byte(fmt.Sprintf("component %d", i))
		}
		events = append(events, testlog.Event(manyAlgs, uint32(i%4+1), eventlog.EvEFIPlatformFirmwareBlob2, data))
	}
	l := testlog.Must(testlog.Build(manyAlgs, events...))
	for _, lastEntry := range []int{-1, l.LastEntry} {
		t.Run(fmt.Sprintf("last entry %d", lastEntry), func(t *testing.T) {
			got, err := parse(t, l.Data, lastEntry).All()
			if err != nil {
				t.Fatalf("All() = %v, want nil", err)
			}
			if diff := cmp.Diff(got, l.Events, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("All() diff (-got +want):\n%s", diff)
			}
			for i, e := range got {
				var buf bytes.Buffer
				if err := e.Marshal(&buf); err != nil {
					t.Fatalf("Marshal(event %d) = %v", i, err)
				}
				if want := l.Data[e.Offset : e.Offset+eventlog.SizeOf(e)]; !bytes.Equal(buf.Bytes(), want) {
					t.Errorf("event %d encodes to %x, want %x", i, buf.Bytes(), want)
				}
				if !bytes.Equal(e.Bytes(), buf.Bytes()) {
					t.Errorf("event %d Bytes() = %x, want %x", i, e.Bytes(), buf.Bytes())
				}
			}
		})
	}
}

func TestHeader(t *testing.T) {
	l := parse(t, testlog.Must(testlog.Build(manyAlgs)).Data, -1)
	if diff := cmp.Diff(l.Header.Algorithms(), manyAlgs); diff != "" {
		t.Errorf("Algorithms() diff (-got +want):\n%s", diff)
	}
	if got, ok := l.Header.DigestSize(eventlog.AlgSHA512); !ok || got != 64 {
		t.Errorf("DigestSize(SHA512) = %d, %v, want 64, true", got, ok)
	}
	if events, err := l.All(); err != nil || len(events) != 0 {
		t.Errorf("All() = %v, %v, want no events", events, err)
	}
}

func TestParseErrors(t *testing.T) {
	good := testlog.Must(testlog.Build(tdAlgs)).Data
	modify := func(off int, b ...byte) []byte {
		data := append([]byte{}, good...)
		copy(data[off:], b)
		return data
	}
	tcs := []struct {
		name    string
		data    []byte
		opts    *eventlog.ParseOptions
		wantErr string
	}{
		{
			name:    "empty",
			wantErr: "header PCRIndex at offset 0x0 needs 4 bytes, 0 remain",
		},
		{
			name:    "not no action",
			data:    modify(4, 5),
			wantErr: "header event type 0x5, want EV_NO_ACTION",
		},
		{
			name:    "bad signature",
			data:    modify(32, 'X'),
			wantErr: "invalid spec id signature",
		},
		{
			name:    "bad version",
			data:    modify(32+16+5, 1),
			wantErr: "unsupported spec id version 1.0",
		},
		{
			name:    "header size too large",
			data:    modify(28, 0xff, 0xff),
			wantErr: "header EventData size 65535 at offset 0x1c exceeds",
		},
		{
			name:    "bad last entry",
			data:    good,
			opts:    &eventlog.ParseOptions{LastEntry: -2},
			wantErr: "last entry offset -2",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eventlog.Parse(tc.data, tc.opts)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("Parse() = %v, want %q", err, tc.wantErr)
			}
			if !errors.Is(err, efi.ErrInvalidParameter) {
				t.Errorf("Parse() = %v, want an invalid parameter error", err)
			}
		})
	}
}

func TestBoundary(t *testing.T) {
	l := testlog.Must(testlog.Build(tdAlgs,
		testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, []byte("boot")),
		testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, []byte("config"))))
	short := l.Data[:len(l.Data)-1]
	for _, lastEntry := range []int{-1, l.LastEntry} {
		t.Run(fmt.Sprintf("last entry %d", lastEntry), func(t *testing.T) {
			it := parse(t, short, lastEntry).Events()
			n := 0
			for it.Next() {
				n++
			}
			if n != 1 {
				t.Errorf("read %d events before the error, want 1", n)
			}
			if !errors.Is(it.Err(), efi.ErrMalformed) {
				t.Fatalf("Err() = %v, want malformed", it.Err())
			}
			if it.Next() {
				t.Error("Next() after an error = true, want false")
			}
		})
	}
}

func TestStopRules(t *testing.T) {
	l := testlog.Must(testlog.Build(tdAlgs,
		testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, []byte("boot")),
		testlog.Event(tdAlgs, 2, eventlog.EvEFIAction, []byte("config"))))
	tcs := []struct {
		name      string
		data      []byte
		lastEntry int
		want      int
		wantErr   string
	}{
		{
			name:      "ff padding",
			data:      append(append([]byte{}, l.Data...), bytes.Repeat([]byte{0xff}, 64)...),
			lastEntry: -1,
			want:      2,
		},
		{
			name:      "zero padding",
			data:      append(append([]byte{}, l.Data...), make([]byte, 64)...),
			lastEntry: -1,
			want:      2,
		},
		{
			name:      "garbage after last entry",
			data:      append(append([]byte{}, l.Data...), 1, 2, 3),
			lastEntry: l.LastEntry,
			want:      2,
		},
		{
			name:      "garbage without last entry",
			data:      append(append([]byte{}, l.Data...), 1, 2, 3),
			lastEntry: -1,
			wantErr:   "MRIndex at offset",
		},
		{
			name:      "last entry is first entry",
			data:      l.Data,
			lastEntry: l.Events[0].Offset,
			want:      1,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			events, err := parse(t, tc.data, tc.lastEntry).All()
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("All() = %v, want %q", err, tc.wantErr)
			}
			if tc.wantErr == "" && len(events) != tc.want {
				t.Fatalf("All() = %d events, want %d", len(events), tc.want)
			}
		})
	}
}

func TestUnknownDigestAlgorithm(t *testing.T) {
	odd := testlog.Event(tdAlgs, 2, eventlog.EvEFIAction, []byte("odd"))
	odd.Digests = append(eventlog.DigestList{{AlgID: 0x99}}, odd.Digests...)
	l := testlog.Must(testlog.Build(tdAlgs,
		testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, []byte("boot")),
		odd,
		testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, []byte("config"))))
	log := parse(t, l.Data, -1)
	events, err := log.All()
	if err != nil {
		t.Fatalf("All() = %v, want nil", err)
	}
	if len(events) != 3 {
		t.Fatalf("All() = %d events, want 3", len(events))
	}
	if d, ok := log.DigestForAlgorithm(events[1], 0x99); ok {
		t.Errorf("DigestForAlgorithm(0x99) = %x, want not present", d)
	}
	if _, ok := log.DigestForAlgorithm(events[1], eventlog.AlgSHA384); !ok {
		t.Error("DigestForAlgorithm(SHA384) is not present after an unknown digest")
	}
	got, err := eventlog.RecomputeExpected(log, nil, 1, eventlog.AlgSHA384)
	if err != nil {
		t.Fatalf("RecomputeExpected(1) = %v, want nil", err)
	}
	if want := testlog.Fold(eventlog.AlgSHA384, sha384("boot"), sha384("config")); !bytes.Equal(got.Digest, want) {
		t.Errorf("RecomputeExpected(1) = %x, want %x", got.Digest, want)
	}
	got, err = eventlog.RecomputeExpected(log, nil, 2, eventlog.AlgSHA384)
	if err != nil {
		t.Fatalf("RecomputeExpected(2) = %v, want nil", err)
	}
	if want := testlog.Fold(eventlog.AlgSHA384, sha384("odd")); !bytes.Equal(got.Digest, want) {
		t.Errorf("RecomputeExpected(2) = %x, want %x", got.Digest, want)
	}
}

func TestUndeclaredDigestAlgorithm(t *testing.T) {
	both := []uint16{eventlog.AlgSHA256, eventlog.AlgSHA384}
	l := testlog.Must(testlog.Build(tdAlgs,
		testlog.Event(both, 1, eventlog.EvEFIAction, []byte("boot")),
		testlog.Event(tdAlgs, 2, eventlog.EvEFIAction, []byte("kernel"))))
	log := parse(t, l.Data, -1)
	events, err := log.All()
	if err != nil {
		t.Fatalf("All() = %v, want nil", err)
	}
	if d, ok := log.DigestForAlgorithm(events[0], eventlog.AlgSHA256); ok {
		t.Errorf("DigestForAlgorithm(SHA256) = %x, want not present in a SHA384 log", d)
	}
	if _, ok := eventlog.DigestForAlgorithm(events[0], eventlog.AlgSHA256); !ok {
		t.Error("the entry lost its SHA256 digest")
	}
	if _, err := eventlog.RecomputeExpected(log, nil, 1, eventlog.AlgSHA256); !errors.Is(err, efi.ErrNotFound) {
		t.Errorf("RecomputeExpected(SHA256) = %v, want not found", err)
	}
	for mr, data := range map[uint32]string{1: "boot", 2: "kernel"} {
		got, err := eventlog.RecomputeExpected(log, nil, mr, eventlog.AlgSHA384)
		if err != nil {
			t.Fatalf("RecomputeExpected(%d) = %v, want nil", mr, err)
		}
		if want := testlog.Fold(eventlog.AlgSHA384, sha384(data)); !bytes.Equal(got.Digest, want) {
			t.Errorf("RecomputeExpected(%d) = %x, want %x", mr, got.Digest, want)
		}
	}
}

func TestDigestCountBound(t *testing.T) {
	l := testlog.Must(testlog.Build(tdAlgs, testlog.Event(tdAlgs, 1, eventlog.EvEFIAction, nil)))
	data := append([]byte{}, l.Data...)
	binary.LittleEndian.PutUint32(data[l.LastEntry+8:], 0xffffffff)
	_, err := parse(t, data, -1).All()
	if !match.Error(err, "claims 4294967295 digests") {
		t.Fatalf("All() = %v, want a digest count error", err)
	}
}

func TestDigestForAlgorithm(t *testing.T) {
	e := testlog.Event([]uint16{eventlog.AlgSHA256}, 1, eventlog.EvEFIAction, []byte("x"))
	e.Digests = append(e.Digests, eventlog.TaggedDigest{AlgID: 0x99, Digest: []byte{}})
	if _, ok := eventlog.DigestForAlgorithm(e, 0x99); ok {
		t.Error("DigestForAlgorithm(0x99) found an empty digest")
	}
	if _, ok := eventlog.DigestForAlgorithm(e, eventlog.AlgSHA384); ok {
		t.Error("DigestForAlgorithm(SHA384) found a digest the event does not carry")
	}
	if d, ok := eventlog.DigestForAlgorithm(e, eventlog.AlgSHA256); !ok || len(d) != 32 {
		t.Errorf("DigestForAlgorithm(SHA256) = %x, %v, want a 32 byte digest", d, ok)
	}
}

func TestSizeOf(t *testing.T) {
	e := testlog.Event(manyAlgs, 1, eventlog.EvEFIAction, []byte("abc"))
	if got, want := eventlog.SizeOf(e), 12+(2+32)+(2+48)+(2+64)+4+3; got != want {
		t.Errorf("SizeOf() = %d, want %d", got, want)
	}
}
