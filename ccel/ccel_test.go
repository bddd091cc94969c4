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

package ccel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/testing/match"
)

var tdTable = &Table{
	Signature:       Signature,
	Length:          SizeofTable,
	Revision:        1,
	OEMID:           "INTEL ",
	OEMTableID:      "EDK2    ",
	OEMRevision:     2,
	CreatorID:       "    ",
	CreatorRevision: 0x1000013,
	CCType:          CCTypeTDX,
	CCSubType:       0,
	LAML:            0x10000,
	LASA:            0x7fbf0000,
}

func withChecksum(t *Table) *Table {
	result := *t
	result.Checksum = t.Bytes()[9]
	return &result
}

func TestParseTable(t *testing.T) {
	good := tdTable.Bytes()
	legacy := &Table{Signature: LegacySignature, Length: SizeofTable, OEMID: "INTEL ",
		OEMTableID: "TDX     ", CreatorID: "INTL", LAML: 0x20000, LASA: 0x800000}
	modify := func(off int, b ...byte) []byte {
		data := append([]byte{}, good...)
		copy(data[off:], b)
		return data
	}
	tcs := []struct {
		name    string
		data    []byte
		want    *Table
		wantErr string
	}{
		{
			name: "tdx",
			data: good,
			want: withChecksum(tdTable),
		},
		{
			name: "legacy",
			data: legacy.Bytes(),
			want: withChecksum(legacy),
		},
		{
			name: "trailing bytes",
			data: append(append([]byte{}, good...), 0xff, 0xff),
			want: withChecksum(tdTable),
		},
		{
			name:    "short",
			data:    good[:SizeofTable-1],
			wantErr: "CCEL table is 55 bytes, want at least 56",
		},
		{
			name:    "signature",
			data:    modify(0, 'T', 'P', 'M', '2'),
			wantErr: `table signature "TPM2"`,
		},
		{
			name:    "cc type",
			data:    modify(36, 3),
			wantErr: "unknown CC type 3",
		},
		{
			name:    "length too small",
			data:    modify(4, 36),
			wantErr: "table length 36 for 56 bytes",
		},
		{
			name:    "length too large",
			data:    modify(4, 64),
			wantErr: "table length 64 for 56 bytes",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTable(tc.data)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("ParseTable() = %v, want %q", err, tc.wantErr)
			}
			if tc.wantErr != "" {
				if !errors.Is(err, efi.ErrInvalidParameter) {
					t.Errorf("ParseTable() = %v, want invalid parameter", err)
				}
				return
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("ParseTable() diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestBytesChecksum(t *testing.T) {
	if sum := checksum(tdTable.Bytes()); sum != 0 {
		t.Errorf("checksum(Bytes()) = 0x%02x, want 0", sum)
	}
}

func writeSysfs(t *testing.T, table, log []byte) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "firmware", "acpi", "tables", "data")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if table != nil {
		if err := os.WriteFile(filepath.Join(root, tablePath), table, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if log != nil {
		if err := os.WriteFile(filepath.Join(root, dataPath), log, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestLocate(t *testing.T) {
	small := *tdTable
	small.LAML = 8
	log := binary.LittleEndian.AppendUint64(nil, 0x1122334455667788)
	tcs := []struct {
		name    string
		table   []byte
		log     []byte
		wantLog []byte
		target  error
		wantErr string
	}{
		{
			name:    "cut to LAML",
			table:   small.Bytes(),
			log:     append(append([]byte{}, log...), bytes.Repeat([]byte{0xff}, 32)...),
			wantLog: log,
		},
		{
			name:    "shorter than LAML",
			table:   tdTable.Bytes(),
			log:     log,
			wantLog: log,
		},
		{
			name:    "no table",
			log:     log,
			target:  efi.ErrNotFound,
			wantErr: "could not read CCEL table",
		},
		{
			name:    "no data",
			table:   tdTable.Bytes(),
			target:  efi.ErrNotFound,
			wantErr: "could not read CCEL data",
		},
		{
			name:    "bad table",
			table:   []byte("CCEL"),
			log:     log,
			target:  efi.ErrInvalidParameter,
			wantErr: "CCEL table is 4 bytes",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			root := writeSysfs(t, tc.table, tc.log)
			_, got, err := Locate(&LocateOptions{SysfsRoot: root})
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("Locate() = %v, want %q", err, tc.wantErr)
			}
			if tc.wantErr != "" {
				if !errors.Is(err, tc.target) {
					t.Errorf("Locate() = %v, want %v", err, tc.target)
				}
				return
			}
			if diff := cmp.Diff(got, tc.wantLog); diff != "" {
				t.Errorf("Locate() log diff (-got +want):\n%s", diff)
			}
		})
	}
}
