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

package eventlog

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/tdvf-measure/testing/match"
	"github.com/google/uuid"
)

const efiGlobalVariable = "8be4df61-93ca-11d2-aa0d-00e098032b8c"

var efiGlobalVariableBytes = []byte{0x61, 0xdf, 0xe4, 0x8b, 0xca, 0x93, 0xd2, 0x11, 0xaa, 0x0d, 0x00, 0xe0, 0x98, 0x03, 0x2b, 0x8c}

func u64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func TestDecodeEventData(t *testing.T) {
	tcs := []struct {
		name      string
		eventType uint32
		data      []byte
		want      UnmarshallableFromBytes
		wantErr   string
	}{
		{
			name:      "efi action",
			eventType: EvEFIAction,
			data:      []byte("Calling EFI Application from Boot Option"),
			want:      &TextEvent{Text: "Calling EFI Application from Boot Option"},
		},
		{
			name:      "post code with NUL",
			eventType: EvPostCode,
			data:      []byte("ACPI DATA\x00"),
			want:      &TextEvent{Text: "ACPI DATA"},
		},
		{
			name:      "crtm version",
			eventType: EvSCRTMVersion,
			data:      []byte{'1', 0, '.', 0, '0', 0, 0, 0},
			want:      &UCS2Event{Text: "1.0"},
		},
		{
			name:      "odd crtm version",
			eventType: EvSCRTMVersion,
			data:      []byte{'1', 0, '.'},
			wantErr:   "EV_S_CRTM_VERSION: odd length 3 for a UCS-2 string",
		},
		{
			name:      "separator",
			eventType: EvSeparator,
			data:      []byte{0, 0, 0, 0},
			want:      &SeparatorEvent{Value: []byte{0, 0, 0, 0}},
		},
		{
			name:      "secure boot variable",
			eventType: EvEFIVariableDriverConfig,
			data: combine(efiGlobalVariableBytes, u64(2), u64(1),
				[]byte{'P', 0, 'K', 0}, []byte{0x01}),
			want: &VariableDataEvent{
				VariableName: EfiGUID{UUID: uuid.MustParse(efiGlobalVariable)},
				UnicodeName:  "PK",
				VariableData: []byte{0x01},
			},
		},
		{
			name:      "variable name too long",
			eventType: EvEFIVariableBoot,
			data:      combine(efiGlobalVariableBytes, u64(20), u64(0), []byte{'B', 0}),
			wantErr:   "variable name length 20 and data length 0 exceed the 2 remaining bytes",
		},
		{
			name:      "image load",
			eventType: EvEFIBootServicesApplication,
			data:      combine(u64(0x7e000000), u64(0x2000), u64(0), u64(4), []byte{0x7f, 0xff, 0x04, 0x00}),
			want: &ImageLoadEvent{
				ImageLocationInMemory: 0x7e000000,
				ImageLengthInMemory:   0x2000,
				DevicePath:            []byte{0x7f, 0xff, 0x04, 0x00},
			},
		},
		{
			name:      "image load bad path length",
			eventType: EvEFIBootServicesDriver,
			data:      combine(u64(0x7e000000), u64(0x2000), u64(0), u64(8), []byte{0x7f, 0xff}),
			wantErr:   "device path length 8, but 2 bytes remain",
		},
		{
			name:      "firmware blob",
			eventType: EvEFIPlatformFirmwareBlob,
			data:      combine(u64(0xffc84000), u64(0x37c000)),
			want:      &FirmwareBlobEvent{BlobBase: 0xffc84000, BlobLength: 0x37c000},
		},
		{
			name:      "firmware blob2",
			eventType: EvEFIPlatformFirmwareBlob2,
			data:      combine(bytesizedArray([]byte("TdHob")), u64(0x809000), u64(0x2000)),
			want:      &FirmwareBlobEvent{Description: "TdHob", BlobBase: 0x809000, BlobLength: 0x2000},
		},
		{
			name:      "firmware blob trailing",
			eventType: EvEFIPlatformFirmwareBlob,
			data:      combine(u64(1), u64(2), []byte{0}),
			wantErr:   "1 bytes remaining of FirmwareBlobEvent",
		},
		{
			name:      "handoff tables2",
			eventType: EvEFIHandoffTables2,
			data: combine(bytesizedArray([]byte("ACPI")), u64(1),
				efiGlobalVariableBytes, u64(0x7fb7e000)),
			want: &HandoffTablesEvent{
				Description: "ACPI",
				Tables: []HandoffTable{{
					VendorGUID:  EfiGUID{UUID: uuid.MustParse(efiGlobalVariable)},
					VendorTable: 0x7fb7e000,
				}},
			},
		},
		{
			name:      "handoff tables count too large",
			eventType: EvEFIHandoffTables,
			data:      combine(u64(0x1000000), efiGlobalVariableBytes, u64(0)),
			wantErr:   "16777216 handoff tables exceed the 24 remaining bytes",
		},
		{
			name:      "spdm",
			eventType: EvEFISPDMFirmwareBlob,
			data: combine([]byte("SPDM Device Sec\x00"), []byte{1, 0, 0x20, 0},
				[]byte{0x02, 0, 0, 0}, []byte{0x03, 0, 0, 0}, []byte{0xaa}),
			want: &SPDMEvent{
				Signature:    [EventSignatureSize]byte{'S', 'P', 'D', 'M', ' ', 'D', 'e', 'v', 'i', 'c', 'e', ' ', 'S', 'e', 'c'},
				Version:      1,
				Length:       0x20,
				SpdmHashAlgo: 2,
				DeviceType:   3,
				Rest:         []byte{0xaa},
			},
		},
		{
			name:      "unknown",
			eventType: 0x12345,
			data:      []byte{1, 2, 3},
			want:      &UnknownEvent{Data: []byte{1, 2, 3}},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeEventData(tc.eventType, tc.data)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("DecodeEventData(%s, %v) = %v, want %q", EventTypeName(tc.eventType), tc.data, err,
					tc.wantErr)
			}
			if tc.wantErr != "" {
				return
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Fatalf("DecodeEventData() diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestVariableDataEventMarshal(t *testing.T) {
	e := &VariableDataEvent{
		VariableName: EfiGUID{UUID: uuid.MustParse(efiGlobalVariable)},
		UnicodeName:  "SecureBoot",
		VariableData: []byte{0},
	}
	var buf bytes.Buffer
	if err := e.Marshal(&buf); err != nil {
		t.Fatalf("Marshal() = %v, want nil", err)
	}
	got := &VariableDataEvent{}
	if err := got.UnmarshalFromBytes(buf.Bytes()); err != nil {
		t.Fatalf("UnmarshalFromBytes(%v) = %v, want nil", buf.Bytes(), err)
	}
	if diff := cmp.Diff(got, e); diff != "" {
		t.Fatalf("round trip diff (-got +want):\n%s", diff)
	}
}

func TestEventTypeName(t *testing.T) {
	tcs := []struct {
		eventType uint32
		want      string
	}{
		{EvNoAction, "EV_NO_ACTION"},
		{EvEFIPlatformFirmwareBlob2, "EV_EFI_PLATFORM_FIRMWARE_BLOB2"},
		{EvEFIHandoffTables2, "EV_EFI_HANDOFF_TABLES2"},
		{0x7, "EV_S_CRTM_CONTENTS"},
		{0x800000ff, "EV_UNKNOWN(0x800000ff)"},
	}
	for _, tc := range tcs {
		if got := EventTypeName(tc.eventType); got != tc.want {
			t.Errorf("EventTypeName(0x%x) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}

func TestParseEventType(t *testing.T) {
	tcs := []struct {
		in      string
		want    uint32
		wantErr string
	}{
		{in: "EV_SEPARATOR", want: EvSeparator},
		{in: "ev_efi_action", want: EvEFIAction},
		{in: "0x80000008", want: EvEFIPlatformFirmwareBlob},
		{in: "13", want: EvIPL},
		{in: "EV_BOGUS", wantErr: `unknown event type "EV_BOGUS"`},
		{in: "0x100000000", wantErr: "unknown event type"},
	}
	for _, tc := range tcs {
		got, err := ParseEventType(tc.in)
		if !match.Error(err, tc.wantErr) {
			t.Errorf("ParseEventType(%q) = %v, want %q", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEventType(%q) = 0x%x, want 0x%x", tc.in, got, tc.want)
		}
	}
}
