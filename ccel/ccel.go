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

// Package ccel reads the ACPI table that locates a TD's event log, and the log itself from Linux
// sysfs.
package ccel

import (
	"encoding/binary"
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/logger"
	"github.com/google/tdvf-measure/efi"
)

const (
	// Signature is the CC Event Log ACPI table signature.
	Signature = "CCEL"
	// LegacySignature is the signature early TD firmware used for the same table layout, with a
	// reserved field in place of the CC type.
	LegacySignature = "TDEL"
	// SizeofTable is the size of both table layouts.
	SizeofTable = 56
	// sizeofHeader is the ACPI description header size.
	sizeofHeader = 36

	// DefaultSysfsRoot is where Linux exposes ACPI tables.
	DefaultSysfsRoot = "/sys"
	tablePath        = "firmware/acpi/tables/CCEL"
	dataPath         = "firmware/acpi/tables/data/CCEL"
)

// CCType is the confidential computing technology the table describes.
type CCType uint8

// Known CC types.
const (
	CCTypeReserved CCType = iota
	CCTypeSEV
	CCTypeTDX
)

func (t CCType) String() string {
	switch t {
	case CCTypeReserved:
		return "Reserved"
	case CCTypeSEV:
		return "SEV"
	case CCTypeTDX:
		return "TDX"
	}
	return fmt.Sprintf("CCType(%d)", uint8(t))
}

// Table is the CC Event Log ACPI table, or its legacy TDEL form.
type Table struct {
	Signature       string
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           string
	OEMTableID      string
	OEMRevision     uint32
	CreatorID       string
	CreatorRevision uint32
	// CCType and CCSubType are zero in a TDEL table.
	CCType    CCType
	CCSubType uint8
	// LAML is the log area minimum length.
	LAML uint64
	// LASA is the log area start address.
	LASA uint64
}

func checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

// ParseTable reads a CCEL or TDEL table.
func ParseTable(data []byte) (*Table, error) {
	if len(data) < SizeofTable {
		return nil, fmt.Errorf("%w: CCEL table is %d bytes, want at least %d", efi.ErrInvalidParameter,
			len(data), SizeofTable)
	}
	t := &Table{
		Signature:       string(data[0:4]),
		Length:          binary.LittleEndian.Uint32(data[4:8]),
		Revision:        data[8],
		Checksum:        data[9],
		OEMID:           string(data[10:16]),
		OEMTableID:      string(data[16:24]),
		OEMRevision:     binary.LittleEndian.Uint32(data[24:28]),
		CreatorID:       string(data[28:32]),
		CreatorRevision: binary.LittleEndian.Uint32(data[32:36]),
		LAML:            binary.LittleEndian.Uint64(data[40:48]),
		LASA:            binary.LittleEndian.Uint64(data[48:56]),
	}
	switch t.Signature {
	case Signature:
		t.CCType = CCType(data[36])
		t.CCSubType = data[37]
		if t.CCType > CCTypeTDX {
			return nil, fmt.Errorf("%w: unknown CC type %d", efi.ErrInvalidParameter, data[36])
		}
	case LegacySignature:
	default:
		return nil, fmt.Errorf("%w: table signature %q, want %q or %q", efi.ErrInvalidParameter,
			t.Signature, Signature, LegacySignature)
	}
	if t.Length < SizeofTable || uint64(t.Length) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: table length %d for %d bytes of data", efi.ErrInvalidParameter,
			t.Length, len(data))
	}
	if sum := checksum(data[:t.Length]); sum != 0 {
		logger.Warningf("%s table checksum is off by 0x%02x", t.Signature, sum)
	}
	return t, nil
}

func putString(data []byte, s string) {
	n := copy(data, s)
	for i := n; i < len(data); i++ {
		data[i] = ' '
	}
}

// Bytes returns the table's ABI encoding with a correct checksum and length.
func (t *Table) Bytes() []byte {
	data := make([]byte, SizeofTable)
	copy(data[0:4], t.Signature)
	binary.LittleEndian.PutUint32(data[4:8], SizeofTable)
	data[8] = t.Revision
	putString(data[10:16], t.OEMID)
	putString(data[16:24], t.OEMTableID)
	binary.LittleEndian.PutUint32(data[24:28], t.OEMRevision)
	putString(data[28:32], t.CreatorID)
	binary.LittleEndian.PutUint32(data[32:36], t.CreatorRevision)
	if t.Signature == Signature {
		data[36] = uint8(t.CCType)
		data[37] = t.CCSubType
	}
	binary.LittleEndian.PutUint64(data[40:48], t.LAML)
	binary.LittleEndian.PutUint64(data[48:56], t.LASA)
	data[9] = -checksum(data)
	return data
}

// LocateOptions says where to look for the table and log.
type LocateOptions struct {
	// SysfsRoot is the sysfs mount point.
	SysfsRoot string
}

// DefaultLocateOptions returns options for the running Linux guest.
func DefaultLocateOptions() *LocateOptions {
	return &LocateOptions{SysfsRoot: DefaultSysfsRoot}
}

func readUnder(root, unsafePath string) ([]byte, error) {
	path, err := securejoin.SecureJoin(root, unsafePath)
	if err != nil {
		return nil, fmt.Errorf("%s evaluated to illegal path: %v", unsafePath, err)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", efi.ErrNotFound, path)
	}
	return data, err
}

// Locate returns the ACPI table and the event log it describes. The log is cut to the table's
// LAML, since sysfs may expose a larger region.
func Locate(opts *LocateOptions) (*Table, []byte, error) {
	if opts == nil {
		opts = DefaultLocateOptions()
	}
	raw, err := readUnder(opts.SysfsRoot, tablePath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read CCEL table: %w", err)
	}
	table, err := ParseTable(raw)
	if err != nil {
		return nil, nil, err
	}
	log, err := readUnder(opts.SysfsRoot, dataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read CCEL data: %w", err)
	}
	if uint64(len(log)) > table.LAML {
		log = log[:table.LAML]
	}
	return table, log, nil
}
