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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/tdx"
	"github.com/google/tdvf-measure/testing/faketdx"
	"github.com/google/tdvf-measure/testing/match"
)

func TestCover(t *testing.T) {
	tcs := []struct {
		name    string
		start   abi.EFIPhysicalAddress
		length  uint64
		want    []tdx.Region
		wantErr string
	}{
		{name: "empty"},
		{
			name:   "small only",
			start:  0x1000,
			length: 0x3000,
			want:   []tdx.Region{{Start: 0x1000, Pages: 3, Size: tdx.PageSize4K}},
		},
		{
			name:   "aligned",
			start:  0x400000,
			length: 2 * size2M,
			want:   []tdx.Region{{Start: 0x400000, Pages: 2, Size: tdx.PageSize2M}},
		},
		{
			name:   "head and tail",
			start:  0x1ff000,
			length: 0x1000 + size2M + 0x2000,
			want: []tdx.Region{
				{Start: 0x1ff000, Pages: 1, Size: tdx.PageSize4K},
				{Start: 0x200000, Pages: 1, Size: tdx.PageSize2M},
				{Start: 0x400000, Pages: 2, Size: tdx.PageSize4K},
			},
		},
		{name: "unaligned", start: 0x10, length: 0x1000, wantErr: "not 4K aligned"},
		{name: "overflow", start: 0xfffffffffffff000, length: 0x2000, wantErr: "overflows"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tdx.Cover(tc.start, tc.length)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("Cover(0x%x, 0x%x) = %v, want %q", tc.start, tc.length, err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Cover(0x%x, 0x%x) diff (-want +got):\n%s", tc.start, tc.length, diff)
			}
			var total uint64
			for i, r := range got {
				total += r.Length()
				for _, other := range got[i+1:] {
					if r.Overlaps(other) {
						t.Errorf("regions %+v and %+v overlap", r, other)
					}
				}
			}
			if err == nil && total != tc.length {
				t.Errorf("Cover(0x%x, 0x%x) covers 0x%x bytes", tc.start, tc.length, total)
			}
		})
	}
}

func TestCoverAccept(t *testing.T) {
	regions, err := tdx.Cover(0x1ff000, 0x1000+size2M+0x2000)
	if err != nil {
		t.Fatal(err)
	}
	td := faketdx.New()
	a := tdx.NewAcceptor(td)
	for _, r := range regions {
		if err := a.Accept(r); err != nil {
			t.Fatalf("Accept(%+v) = %v", r, err)
		}
	}
	if got, want := td.AcceptedBytes(), uint64(0x1000+size2M+0x2000); got != want {
		t.Errorf("AcceptedBytes() = 0x%x, want 0x%x", got, want)
	}
}

func TestPageSize(t *testing.T) {
	if got := tdx.PageSize2M.Bytes() / tdx.PageSize4K.Bytes(); got != 512 {
		t.Errorf("2M/4K = %d, want 512", got)
	}
	if got := tdx.PageSize(7).Bytes(); got != 0 {
		t.Errorf("PageSize(7).Bytes() = %d, want 0", got)
	}
	if got := tdx.AcceptArg(0x200000, tdx.PageSize2M); got != 0x200001 {
		t.Errorf("AcceptArg(0x200000, 2M) = 0x%x, want 0x200001", got)
	}
}
