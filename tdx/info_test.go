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

package tdx_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/tdvf-measure/tdx"
	"github.com/google/tdvf-measure/testing/faketdx"
)

func TestSharedPageMask(t *testing.T) {
	tcs := []struct {
		name      string
		gpaw      uint64
		want      uint64
		wantPanic string
	}{
		{name: "48", gpaw: 48, want: 1 << 47},
		{name: "52", gpaw: 52, want: 1 << 51},
		{name: "high bits ignored", gpaw: 0xc0 | 52, want: 1 << 51},
		{name: "bad width", gpaw: 40, wantPanic: "tdx: fatal: unsupported guest physical address width 40"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			td := faketdx.New()
			td.Info.GPAW = tc.gpaw
			g := tdx.NewGuestInfo(td)
			defer func() {
				r := recover()
				if (r == nil) != (tc.wantPanic == "") {
					t.Fatalf("panic behavior %v, want %q", r, tc.wantPanic)
				}
				if r != nil && !strings.Contains(fmt.Sprint(r), tc.wantPanic) {
					t.Fatalf("panic %v, want %q", r, tc.wantPanic)
				}
			}()
			if got := g.SharedPageMask(); got != tc.want {
				t.Errorf("SharedPageMask() = 0x%x, want 0x%x", got, tc.want)
			}
			if got := g.SharedPageMask(); got != tc.want {
				t.Errorf("cached SharedPageMask() = 0x%x, want 0x%x", got, tc.want)
			}
			if td.InfoCalls != 1 {
				t.Errorf("SharedPageMask twice made %d info calls, want 1", td.InfoCalls)
			}
		})
	}
}

func TestVCPUCaching(t *testing.T) {
	td := faketdx.New()
	g := tdx.NewGuestInfo(td)
	if got := g.MaxVCPUs(); got != 8 {
		t.Errorf("MaxVCPUs() = %d, want 8", got)
	}
	td.Info.MaxVCPUs = 16
	if got := g.MaxVCPUs(); got != 8 {
		t.Errorf("cached MaxVCPUs() = %d, want 8", got)
	}
	if got := g.VCPUs(); got != 4 {
		t.Errorf("VCPUs() = %d, want 4", got)
	}
	td.Info.NumVCPUs = 2
	if got := g.VCPUs(); got != 2 {
		t.Errorf("VCPUs() after change = %d, want 2", got)
	}
	if td.InfoCalls != 3 {
		t.Errorf("made %d info calls, want 3", td.InfoCalls)
	}
}

func TestInfoCallFailurePanics(t *testing.T) {
	td := faketdx.New()
	td.InfoErr = errors.New("tdcall failed")
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(fmt.Sprint(r), "tdx: fatal: TDG.VP.INFO: tdcall failed") {
			t.Fatalf("panic %v, want TDG.VP.INFO failure", r)
		}
	}()
	tdx.NewGuestInfo(td).VCPUs()
}
