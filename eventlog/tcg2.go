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
	"fmt"
	"io"
)

const (
	// RIMLocationRaw specifies that the location data is the data itself.
	RIMLocationRaw uint32 = iota
	// RIMLocationURI specifies that the location data is a URI for where to fetch the data.
	RIMLocationURI
	// RIMLocationLocal specifies that the location data is a local UEFI device path.
	RIMLocationLocal
	// RIMLocationVariable specifies that the location data is a UEFI variable name in 16-byte EFIGUID
	// followed by '\0\0'-terminated CHAR16 string of the variable name.
	RIMLocationVariable
)

var (
	// TcgSP800155Event2Signature is the signature of the platform identity event TD firmware logs as
	// EV_NO_ACTION.
	TcgSP800155Event2Signature = [EventSignatureSize]byte{
		'S', 'P', '8', '0', '0', '-', '1', '5', '5', ' ', 'E', 'v', 'e', 'n', 't', '2'}
	// TcgSP800155Event3Signature extends Event2 with reference manifest and platform certificate
	// locators.
	TcgSP800155Event3Signature = [EventSignatureSize]byte{
		'S', 'P', '8', '0', '0', '-', '1', '5', '5', ' ', 'E', 'v', 'e', 'n', 't', '3'}
	// StartupLocalitySignature marks the TCG_EfiStartupLocalityEvent.
	StartupLocalitySignature = [EventSignatureSize]byte{
		'S', 't', 'a', 'r', 't', 'u', 'p', 'L', 'o', 'c', 'a', 'l', 'i', 't', 'y', 0}
)

type field struct {
	name string
	data any
}

func readFields(r io.Reader, fields []field) error {
	for _, f := range fields {
		if err := littleRead(r, f.name, f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFields(w io.Writer, fields []field) error {
	for _, f := range fields {
		if err := littleWrite(w, f.name, f.data); err != nil {
			return err
		}
	}
	return nil
}

func readAllFields(name string, data []byte, fields []field) error {
	r := bytes.NewBuffer(data)
	if err := readFields(r, fields); err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("%d bytes remaining of %s. Want EOF", r.Len(), name)
	}
	return nil
}

// SP800155Event2 represents the TCG_Sp800_155_PlatformId_Event2 structure.
type SP800155Event2 struct {
	PlatformManufacturerID  uint32
	ReferenceManifestGUID   EfiGUID
	PlatformManufacturerStr ByteSizedArray
	PlatformModel           ByteSizedArray
	PlatformVersion         ByteSizedArray
	FirmwareManufacturerStr ByteSizedArray
	FirmwareManufacturerID  uint32
	FirmwareVersion         ByteSizedArray
}

func (evt *SP800155Event2) fields() []field {
	return []field{
		{"PlatformManufacturerID", &evt.PlatformManufacturerID},
		{"ReferenceManifestGuid", &evt.ReferenceManifestGUID},
		{"PlatformManufacturerStr", &evt.PlatformManufacturerStr},
		{"PlatformModel", &evt.PlatformModel},
		{"PlatformVersion", &evt.PlatformVersion},
		{"FirmwareManufacturerStr", &evt.FirmwareManufacturerStr},
		{"FirmwareManufacturerID", &evt.FirmwareManufacturerID},
		{"FirmwareVersion", &evt.FirmwareVersion},
	}
}

// UnmarshalFromBytes reads the event body that follows the signature.
func (evt *SP800155Event2) UnmarshalFromBytes(data []byte) error {
	return readAllFields("SP800155Event2", data, evt.fields())
}

// Marshal writes the event including its signature.
func (evt *SP800155Event2) Marshal(w io.Writer) error {
	return writeFields(w, append([]field{{"Signature", TcgSP800155Event2Signature}}, evt.fields()...))
}

// SP800155Event3 represents a TCG SP 800-155 Event3 event specified in the PC Client Platform
// Firmware Profile.
type SP800155Event3 struct {
	SP800155Event2
	RIMLocatorType          uint32
	RIMLocator              Uint32SizedArray
	PlatformCertLocatorType uint32
	PlatformCertLocator     Uint32SizedArray
}

func (evt *SP800155Event3) fields() []field {
	return append(evt.SP800155Event2.fields(),
		field{"RIMLocatorType", &evt.RIMLocatorType},
		field{"RIMLocator", &evt.RIMLocator},
		field{"PlatformCertLocatorType", &evt.PlatformCertLocatorType},
		field{"PlatformCertLocator", &evt.PlatformCertLocator},
	)
}

// UnmarshalFromBytes reads a TCG SP 800-155 Event3 event from the whole of the input slice.
func (evt *SP800155Event3) UnmarshalFromBytes(data []byte) error {
	return readAllFields("SP800155Event3", data, evt.fields())
}

// Marshal writes the event including its signature.
func (evt *SP800155Event3) Marshal(w io.Writer) error {
	return writeFields(w, append([]field{{"Signature", TcgSP800155Event3Signature}}, evt.fields()...))
}

// StartupLocalityEvent is the TCG_EfiStartupLocalityEvent body.
type StartupLocalityEvent struct {
	StartupLocality uint8
}

// UnmarshalFromBytes reads the locality that follows the signature.
func (evt *StartupLocalityEvent) UnmarshalFromBytes(data []byte) error {
	return readAllFields("StartupLocalityEvent", data, []field{{"StartupLocality", &evt.StartupLocality}})
}
