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

package tdx

import (
	"fmt"
	"math/bits"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
)

// PageSize is a page size class. Its value is the TDX page level.
type PageSize uint64

const (
	// PageSize4K is the 4KiB page level.
	PageSize4K PageSize = iota
	// PageSize2M is the 2MiB page level.
	PageSize2M
)

// pageBytes is the ordered class table. Fallback goes from an entry to the one before it.
var pageBytes = []uint64{
	PageSize4K: 0x1000,
	PageSize2M: 0x200000,
}

func (p PageSize) valid() bool {
	return uint64(p) < uint64(len(pageBytes))
}

// Bytes returns the size in bytes of one page of class p, or 0 if p is not a page class.
func (p PageSize) Bytes() uint64 {
	if !p.valid() {
		return 0
	}
	return pageBytes[p]
}

// smaller returns the next-smaller class and how many of its pages cover one page of p.
func (p PageSize) smaller() (PageSize, uint64, bool) {
	if p == 0 || !p.valid() {
		return 0, 0, false
	}
	return p - 1, pageBytes[p] / pageBytes[p-1], true
}

func (p PageSize) String() string {
	switch p {
	case PageSize4K:
		return "4K"
	case PageSize2M:
		return "2M"
	}
	return fmt.Sprintf("PageSize(%d)", uint64(p))
}

// Region is a run of same-sized guest physical pages to accept.
type Region struct {
	Start abi.EFIPhysicalAddress
	Pages uint64
	Size  PageSize
}

// Length returns the byte length of r.
func (r Region) Length() uint64 {
	return r.Pages * r.Size.Bytes()
}

func (r Region) end() abi.EFIPhysicalAddress {
	return abi.EFIPhysicalAddress(uint64(r.Start) + r.Length())
}

func (r Region) validate() error {
	if !r.Size.valid() {
		return fmt.Errorf("%w: unsupported page size %v", efi.ErrInvalidParameter, r.Size)
	}
	size := r.Size.Bytes()
	if uint64(r.Start)%size != 0 {
		return fmt.Errorf("%w: start 0x%x is not %v aligned", efi.ErrInvalidParameter, r.Start, r.Size)
	}
	hi, length := bits.Mul64(r.Pages, size)
	if hi != 0 {
		return fmt.Errorf("%w: %d %v pages overflow", efi.ErrInvalidParameter, r.Pages, r.Size)
	}
	if _, carry := bits.Add64(uint64(r.Start), length, 0); carry != 0 {
		return fmt.Errorf("%w: region at 0x%x of length 0x%x overflows", efi.ErrInvalidParameter,
			r.Start, length)
	}
	return nil
}

// Overlaps returns true if r and other share any byte.
func (r Region) Overlaps(other Region) bool {
	if r.Length() == 0 || other.Length() == 0 {
		return false
	}
	return r.Start < other.end() && other.Start < r.end()
}

// Cover splits the byte range [start, start+length) into the fewest regions that use the largest
// page class possible. Both ends must be 4K aligned.
func Cover(start abi.EFIPhysicalAddress, length uint64) ([]Region, error) {
	small := PageSize4K.Bytes()
	if uint64(start)%small != 0 || length%small != 0 {
		return nil, fmt.Errorf("%w: range 0x%x+0x%x is not 4K aligned", efi.ErrInvalidParameter,
			start, length)
	}
	if _, carry := bits.Add64(uint64(start), length, 0); carry != 0 {
		return nil, fmt.Errorf("%w: range 0x%x+0x%x overflows", efi.ErrInvalidParameter, start, length)
	}
	end := uint64(start) + length
	large := PageSize2M.Bytes()
	head := (uint64(start) + large - 1) &^ (large - 1)
	tail := end &^ (large - 1)
	if head < uint64(start) || head >= tail {
		if length == 0 {
			return nil, nil
		}
		return []Region{{Start: start, Pages: length / small, Size: PageSize4K}}, nil
	}
	var result []Region
	if head > uint64(start) {
		result = append(result, Region{Start: start, Pages: (head - uint64(start)) / small, Size: PageSize4K})
	}
	result = append(result, Region{Start: abi.EFIPhysicalAddress(head), Pages: (tail - head) / large, Size: PageSize2M})
	if end > tail {
		result = append(result, Region{Start: abi.EFIPhysicalAddress(tail), Pages: (end - tail) / small, Size: PageSize4K})
	}
	return result, nil
}
