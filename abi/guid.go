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

package abi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	// TDProtocolGUID identifies EFI_TD_PROTOCOL.
	TDProtocolGUID = "96751a3d-72f4-41a6-a794-ed5d0e67ae6b"
	// TDFinalEventsTableGUID identifies the EFI configuration table that holds the final events
	// table.
	TDFinalEventsTableGUID = "dd4a4648-2de7-4665-964d-21d9ef5fb446"
	// SizeofEFIGUID is the byte size of an EFI_GUID.
	SizeofEFIGUID = 16
)

// EFIGUID is the mixed-endian field representation of a GUID as UEFI lays it out in memory.
type EFIGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]uint8
}

// Put writes g in its ABI format to the beginning of data.
func (g EFIGUID) Put(data []byte) error {
	if len(data) < SizeofEFIGUID {
		return fmt.Errorf("data too small for GUID: %d < %d", len(data), SizeofEFIGUID)
	}
	binary.LittleEndian.PutUint32(data[0:4], g.Data1)
	binary.LittleEndian.PutUint16(data[4:6], g.Data2)
	binary.LittleEndian.PutUint16(data[6:8], g.Data3)
	copy(data[8:16], g.Data4[:])
	return nil
}

// ParseEFIGUID reads a 16 byte EFI_GUID.
func ParseEFIGUID(data []byte) (EFIGUID, error) {
	if len(data) != SizeofEFIGUID {
		return EFIGUID{}, fmt.Errorf("incorrect data size for EFI GUID: %d, want %d", len(data), SizeofEFIGUID)
	}
	result := EFIGUID{
		Data1: binary.LittleEndian.Uint32(data[0:4]),
		Data2: binary.LittleEndian.Uint16(data[4:6]),
		Data3: binary.LittleEndian.Uint16(data[6:8]),
	}
	copy(result.Data4[:], data[8:16])
	return result, nil
}

// UUID returns g as the RFC 4122 byte order GUID.
func (g EFIGUID) UUID() uuid.UUID {
	var result uuid.UUID
	binary.BigEndian.PutUint32(result[0:4], g.Data1)
	binary.BigEndian.PutUint16(result[4:6], g.Data2)
	binary.BigEndian.PutUint16(result[6:8], g.Data3)
	copy(result[8:16], g.Data4[:])
	return result
}

// FromEFIGUID parses a 16 byte EFI_GUID into a uuid.UUID.
func FromEFIGUID(efiguid []byte) (uuid.UUID, error) {
	guid, err := ParseEFIGUID(efiguid)
	if err != nil {
		return uuid.UUID{}, err
	}
	return guid.UUID(), nil
}

// PutUUID writes a uuid.UUID to data in EFI_GUID format.
func PutUUID(data []byte, guid uuid.UUID) error {
	if len(data) < SizeofEFIGUID {
		return fmt.Errorf("data too small for GUID: %d < %d", len(data), SizeofEFIGUID)
	}
	binary.LittleEndian.PutUint32(data[0:4], binary.BigEndian.Uint32(guid[0:4]))
	binary.LittleEndian.PutUint16(data[4:6], binary.BigEndian.Uint16(guid[4:6]))
	binary.LittleEndian.PutUint16(data[6:8], binary.BigEndian.Uint16(guid[6:8]))
	copy(data[8:16], guid[8:16])
	return nil
}
