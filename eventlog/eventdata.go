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
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TCG event types from the PC Client Platform Firmware Profile.
const (
	EvPrebootCert         uint32 = 0x0
	EvPostCode            uint32 = 0x1
	EvNoAction            uint32 = 0x3
	EvSeparator           uint32 = 0x4
	EvAction              uint32 = 0x5
	EvEventTag            uint32 = 0x6
	EvSCRTMContents       uint32 = 0x7
	EvSCRTMVersion        uint32 = 0x8
	EvCPUMicrocode        uint32 = 0x9
	EvPlatformConfigFlags uint32 = 0xA
	EvTableOfDevices      uint32 = 0xB
	EvCompactHash         uint32 = 0xC
	EvIPL                 uint32 = 0xD
	EvIPLPartitionData    uint32 = 0xE
	EvNonhostCode         uint32 = 0xF
	EvNonhostConfig       uint32 = 0x10
	EvNonhostInfo         uint32 = 0x11
	EvOmitBootDeviceEvent uint32 = 0x12

	evEFIEventBase                 uint32 = 0x80000000
	EvEFIVariableDriverConfig             = evEFIEventBase + 0x1
	EvEFIVariableBoot                     = evEFIEventBase + 0x2
	EvEFIBootServicesApplication          = evEFIEventBase + 0x3
	EvEFIBootServicesDriver               = evEFIEventBase + 0x4
	EvEFIRuntimeServicesDriver            = evEFIEventBase + 0x5
	EvEFIGPTEvent                         = evEFIEventBase + 0x6
	EvEFIAction                           = evEFIEventBase + 0x7
	EvEFIPlatformFirmwareBlob             = evEFIEventBase + 0x8
	EvEFIHandoffTables                    = evEFIEventBase + 0x9
	EvEFIPlatformFirmwareBlob2            = evEFIEventBase + 0xA
	EvEFIHandoffTables2                   = evEFIEventBase + 0xB
	EvEFIVariableBoot2                    = evEFIEventBase + 0xC
	EvEFIHCRTMEvent                       = evEFIEventBase + 0x10
	EvEFIVariableAuthority                = evEFIEventBase + 0xE0
	EvEFISPDMFirmwareBlob                 = evEFIEventBase + 0xE1
	EvEFISPDMFirmwareConfig               = evEFIEventBase + 0xE2
)

var eventTypeNames = map[uint32]string{
	EvPrebootCert:                "EV_PREBOOT_CERT",
	EvPostCode:                   "EV_POST_CODE",
	EvNoAction:                   "EV_NO_ACTION",
	EvSeparator:                  "EV_SEPARATOR",
	EvAction:                     "EV_ACTION",
	EvEventTag:                   "EV_EVENT_TAG",
	EvSCRTMContents:              "EV_S_CRTM_CONTENTS",
	EvSCRTMVersion:               "EV_S_CRTM_VERSION",
	EvCPUMicrocode:               "EV_CPU_MICROCODE",
	EvPlatformConfigFlags:        "EV_PLATFORM_CONFIG_FLAGS",
	EvTableOfDevices:             "EV_TABLE_OF_DEVICES",
	EvCompactHash:                "EV_COMPACT_HASH",
	EvIPL:                        "EV_IPL",
	EvIPLPartitionData:           "EV_IPL_PARTITION_DATA",
	EvNonhostCode:                "EV_NONHOST_CODE",
	EvNonhostConfig:              "EV_NONHOST_CONFIG",
	EvNonhostInfo:                "EV_NONHOST_INFO",
	EvOmitBootDeviceEvent:        "EV_OMIT_BOOT_DEVICE_EVENTS",
	EvEFIVariableDriverConfig:    "EV_EFI_VARIABLE_DRIVER_CONFIG",
	EvEFIVariableBoot:            "EV_EFI_VARIABLE_BOOT",
	EvEFIBootServicesApplication: "EV_EFI_BOOT_SERVICES_APPLICATION",
	EvEFIBootServicesDriver:      "EV_EFI_BOOT_SERVICES_DRIVER",
	EvEFIRuntimeServicesDriver:   "EV_EFI_RUNTIME_SERVICES_DRIVER",
	EvEFIGPTEvent:                "EV_EFI_GPT_EVENT",
	EvEFIAction:                  "EV_EFI_ACTION",
	EvEFIPlatformFirmwareBlob:    "EV_EFI_PLATFORM_FIRMWARE_BLOB",
	EvEFIHandoffTables:           "EV_EFI_HANDOFF_TABLES",
	EvEFIPlatformFirmwareBlob2:   "EV_EFI_PLATFORM_FIRMWARE_BLOB2",
	EvEFIHandoffTables2:          "EV_EFI_HANDOFF_TABLES2",
	EvEFIVariableBoot2:           "EV_EFI_VARIABLE_BOOT2",
	EvEFIHCRTMEvent:              "EV_EFI_HCRTM_EVENT",
	EvEFIVariableAuthority:       "EV_EFI_VARIABLE_AUTHORITY",
	EvEFISPDMFirmwareBlob:        "EV_EFI_SPDM_FIRMWARE_BLOB",
	EvEFISPDMFirmwareConfig:      "EV_EFI_SPDM_FIRMWARE_CONFIG",
}

// EventTypeName returns the TCG name of an event type.
func EventTypeName(t uint32) string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EV_UNKNOWN(0x%x)", t)
}

// ParseEventType reads a TCG event type name as EventTypeName writes it, or a number in Go syntax.
func ParseEventType(s string) (uint32, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range eventTypeNames {
		if n == name {
			return t, nil
		}
	}
	t, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown event type %q", s)
	}
	return uint32(t), nil
}

// UnmarshallableFromBytes is an interface for populating the object by interpreting all given
// bytes as representing the object.
type UnmarshallableFromBytes interface {
	// UnmarshalFromBytes populates the current object from the totality of the given data or errors.
	UnmarshalFromBytes(data []byte) error
}

// UnknownEvent is a catch-all for EventData with unknown signature or type.
type UnknownEvent struct {
	Data []byte
}

// UnmarshalFromBytes stores the given data is the object's representation.
func (e *UnknownEvent) UnmarshalFromBytes(data []byte) error {
	e.Data = data
	return nil
}

// UnmarshalFromBytes reads a Spec ID Event03 body that follows its signature.
func (s *SpecIDEvent) UnmarshalFromBytes(data []byte) error {
	spec, err := readSpecIDEvent(append(SpecIDEventSignature[:], data...))
	if err != nil {
		return err
	}
	*s = *spec
	return nil
}

// EV_NO_ACTION payloads are told apart by their leading signature.
var eventFactories = map[string]func() UnmarshallableFromBytes{
	hex.EncodeToString(SpecIDEventSignature[:]):       func() UnmarshallableFromBytes { return &SpecIDEvent{} },
	hex.EncodeToString(TcgSP800155Event2Signature[:]): func() UnmarshallableFromBytes { return &SP800155Event2{} },
	hex.EncodeToString(TcgSP800155Event3Signature[:]): func() UnmarshallableFromBytes { return &SP800155Event3{} },
	hex.EncodeToString(StartupLocalitySignature[:]):   func() UnmarshallableFromBytes { return &StartupLocalityEvent{} },
}

// TextEvent is EventData that is an ASCII string.
type TextEvent struct {
	Text string
}

// UnmarshalFromBytes stores data as the text, without a trailing NUL.
func (e *TextEvent) UnmarshalFromBytes(data []byte) error {
	e.Text = string(bytes.TrimRight(data, "\x00"))
	return nil
}

// UCS2Event is EventData that is a UCS-2 string, such as an S-CRTM version.
type UCS2Event struct {
	Text string
}

// UnmarshalFromBytes decodes data as little endian UCS-2.
func (e *UCS2Event) UnmarshalFromBytes(data []byte) error {
	s, err := ucs2toUTF8(data)
	if err != nil {
		return err
	}
	e.Text = s
	return nil
}

// SeparatorEvent is the EV_SEPARATOR value. 0 marks a normal separator and 0xFFFFFFFF an error.
type SeparatorEvent struct {
	Value []byte
}

// UnmarshalFromBytes stores the separator value.
func (e *SeparatorEvent) UnmarshalFromBytes(data []byte) error {
	e.Value = data
	return nil
}

// VariableDataEvent is the UEFI_VARIABLE_DATA of EV_EFI_VARIABLE_* events.
type VariableDataEvent struct {
	VariableName EfiGUID
	UnicodeName  string
	VariableData []byte
}

// UnmarshalFromBytes reads a UEFI_VARIABLE_DATA structure.
func (e *VariableDataEvent) UnmarshalFromBytes(data []byte) error {
	r := bytes.NewBuffer(data)
	var nameLength, dataLength uint64
	if err := readFields(r, []field{
		{"VariableName", &e.VariableName},
		{"UnicodeNameLength", &nameLength},
		{"VariableDataLength", &dataLength},
	}); err != nil {
		return err
	}
	if nameLength > uint64(r.Len())/2 || dataLength > uint64(r.Len())-2*nameLength {
		return fmt.Errorf("variable name length %d and data length %d exceed the %d remaining bytes",
			nameLength, dataLength, r.Len())
	}
	name := r.Next(int(2 * nameLength))
	s, err := ucs2toUTF8(name)
	if err != nil {
		return err
	}
	e.UnicodeName = s
	e.VariableData = r.Next(int(dataLength))
	if r.Len() > 0 {
		return fmt.Errorf("%d bytes remaining of VariableDataEvent. Want EOF", r.Len())
	}
	return nil
}

// Marshal writes the UEFI_VARIABLE_DATA structure.
func (e *VariableDataEvent) Marshal(w io.Writer) error {
	name, err := utf8toUCS2(e.UnicodeName)
	if err != nil {
		return err
	}
	if err := writeFields(w, []field{
		{"VariableName", &e.VariableName},
		{"UnicodeNameLength", uint64(len(name) / 2)},
		{"VariableDataLength", uint64(len(e.VariableData))},
	}); err != nil {
		return err
	}
	if _, err := w.Write(name); err != nil {
		return err
	}
	_, err = w.Write(e.VariableData)
	return err
}

// ImageLoadEvent is the EFI_IMAGE_LOAD_EVENT of EV_EFI_*_SERVICES_* events.
type ImageLoadEvent struct {
	ImageLocationInMemory uint64
	ImageLengthInMemory   uint64
	ImageLinkTimeAddress  uint64
	DevicePath            []byte
}

// UnmarshalFromBytes reads an EFI_IMAGE_LOAD_EVENT structure.
func (e *ImageLoadEvent) UnmarshalFromBytes(data []byte) error {
	r := bytes.NewBuffer(data)
	var pathLength uint64
	if err := readFields(r, []field{
		{"ImageLocationInMemory", &e.ImageLocationInMemory},
		{"ImageLengthInMemory", &e.ImageLengthInMemory},
		{"ImageLinkTimeAddress", &e.ImageLinkTimeAddress},
		{"LengthOfDevicePath", &pathLength},
	}); err != nil {
		return err
	}
	if pathLength != uint64(r.Len()) {
		return fmt.Errorf("device path length %d, but %d bytes remain", pathLength, r.Len())
	}
	e.DevicePath = r.Bytes()
	return nil
}

// FirmwareBlobEvent is UEFI_PLATFORM_FIRMWARE_BLOB, or UEFI_PLATFORM_FIRMWARE_BLOB2 when
// Description is set.
type FirmwareBlobEvent struct {
	Description string
	BlobBase    uint64
	BlobLength  uint64
}

// UnmarshalFromBytes reads the UEFI_PLATFORM_FIRMWARE_BLOB form. DecodeEventData picks the
// described form by event type.
func (e *FirmwareBlobEvent) UnmarshalFromBytes(data []byte) error {
	return e.unmarshal(data, false)
}

func (e *FirmwareBlobEvent) unmarshal(data []byte, described bool) error {
	r := bytes.NewBuffer(data)
	if described {
		var desc ByteSizedArray
		if err := littleRead(r, "BlobDescription", &desc); err != nil {
			return err
		}
		e.Description = string(desc.Data)
	}
	if err := readFields(r, []field{{"BlobBase", &e.BlobBase}, {"BlobLength", &e.BlobLength}}); err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("%d bytes remaining of FirmwareBlobEvent. Want EOF", r.Len())
	}
	return nil
}

// HandoffTable is one EFI_CONFIGURATION_TABLE entry.
type HandoffTable struct {
	VendorGUID  EfiGUID
	VendorTable uint64
}

// HandoffTablesEvent is UEFI_HANDOFF_TABLE_POINTERS, or UEFI_HANDOFF_TABLE_POINTERS2 when
// Description is set.
type HandoffTablesEvent struct {
	Description string
	Tables      []HandoffTable
}

// UnmarshalFromBytes reads the UEFI_HANDOFF_TABLE_POINTERS form.
func (e *HandoffTablesEvent) UnmarshalFromBytes(data []byte) error {
	return e.unmarshal(data, false)
}

func (e *HandoffTablesEvent) unmarshal(data []byte, described bool) error {
	r := bytes.NewBuffer(data)
	if described {
		var desc ByteSizedArray
		if err := littleRead(r, "TableDescription", &desc); err != nil {
			return err
		}
		e.Description = string(desc.Data)
	}
	var count uint64
	if err := littleRead(r, "NumberOfTables", &count); err != nil {
		return err
	}
	// 24 bytes per table.
	if count > uint64(r.Len())/24 {
		return fmt.Errorf("%d handoff tables exceed the %d remaining bytes", count, r.Len())
	}
	e.Tables = make([]HandoffTable, count)
	for i := range e.Tables {
		if err := readFields(r, []field{
			{"VendorGuid", &e.Tables[i].VendorGUID},
			{"VendorTable", &e.Tables[i].VendorTable},
		}); err != nil {
			return err
		}
	}
	if r.Len() > 0 {
		return fmt.Errorf("%d bytes remaining of HandoffTablesEvent. Want EOF", r.Len())
	}
	return nil
}

// SPDMEvent is the TCG_DEVICE_SECURITY_EVENT_DATA_HEADER of an SPDM firmware event, followed by
// the undecoded measurement block and device context.
type SPDMEvent struct {
	Signature    [EventSignatureSize]byte
	Version      uint16
	Length       uint16
	SpdmHashAlgo uint32
	DeviceType   uint32
	Rest         []byte
}

// UnmarshalFromBytes reads the device security event header.
func (e *SPDMEvent) UnmarshalFromBytes(data []byte) error {
	r := bytes.NewBuffer(data)
	if err := readFields(r, []field{
		{"Signature", &e.Signature},
		{"Version", &e.Version},
		{"Length", &e.Length},
		{"SpdmHashAlgo", &e.SpdmHashAlgo},
		{"DeviceType", &e.DeviceType},
	}); err != nil {
		return err
	}
	e.Rest = r.Bytes()
	return nil
}

func decodeNoAction(data []byte) (UnmarshallableFromBytes, error) {
	if len(data) < EventSignatureSize {
		return &UnknownEvent{Data: data}, nil
	}
	factory, ok := eventFactories[hex.EncodeToString(data[:EventSignatureSize])]
	if !ok {
		return &UnknownEvent{Data: data}, nil
	}
	result := factory()
	if err := result.UnmarshalFromBytes(data[EventSignatureSize:]); err != nil {
		return nil, err
	}
	return result, nil
}

// DecodeEventData interprets the data of an event of the given type. Types without a decoder give
// an *UnknownEvent.
func DecodeEventData(eventType uint32, data []byte) (UnmarshallableFromBytes, error) {
	var result UnmarshallableFromBytes
	switch eventType {
	case EvNoAction:
		return decodeNoAction(data)
	case EvPostCode, EvEFIAction, EvPlatformConfigFlags, EvAction, EvIPL:
		result = &TextEvent{}
	case EvSCRTMVersion:
		result = &UCS2Event{}
	case EvSeparator:
		result = &SeparatorEvent{}
	case EvEFIVariableDriverConfig, EvEFIVariableBoot, EvEFIVariableBoot2, EvEFIVariableAuthority:
		result = &VariableDataEvent{}
	case EvEFIBootServicesApplication, EvEFIBootServicesDriver, EvEFIRuntimeServicesDriver:
		result = &ImageLoadEvent{}
	case EvEFIPlatformFirmwareBlob, EvEFIPlatformFirmwareBlob2:
		blob := &FirmwareBlobEvent{}
		if err := blob.unmarshal(data, eventType == EvEFIPlatformFirmwareBlob2); err != nil {
			return nil, fmt.Errorf("%s: %w", EventTypeName(eventType), err)
		}
		return blob, nil
	case EvEFIHandoffTables, EvEFIHandoffTables2:
		tables := &HandoffTablesEvent{}
		if err := tables.unmarshal(data, eventType == EvEFIHandoffTables2); err != nil {
			return nil, fmt.Errorf("%s: %w", EventTypeName(eventType), err)
		}
		return tables, nil
	case EvEFISPDMFirmwareBlob, EvEFISPDMFirmwareConfig:
		result = &SPDMEvent{}
	default:
		result = &UnknownEvent{}
	}
	if err := result.UnmarshalFromBytes(data); err != nil {
		return nil, fmt.Errorf("%s: %w", EventTypeName(eventType), err)
	}
	return result, nil
}

// ucs2toUTF8 translates a string in UCS-2 encoding to UTF-8 by interpreting the string as UTF-16.
func ucs2toUTF8(name []byte) (string, error) {
	if len(name)%2 != 0 {
		return "", fmt.Errorf("odd length %d for a UCS-2 string", len(name))
	}
	e := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf8encoding, _, err := transform.Bytes(e.NewDecoder(), name)
	if err != nil {
		return "", fmt.Errorf("could not decode UCS-2: %v", err)
	}
	return string(bytes.TrimRight(utf8encoding, "\x00")), nil
}

func utf8toUCS2(s string) ([]byte, error) {
	e := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	result, _, err := transform.Bytes(e.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("could not encode %q as UCS-2: %v", s, err)
	}
	return result, nil
}
