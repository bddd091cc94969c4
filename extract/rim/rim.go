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

// Package rim finds the reference integrity manifest locators that firmware records in a TD event
// log, and fetches what they point to.
package rim

import (
	"errors"
	"fmt"

	"github.com/google/go-sev-guest/verify/trust"
	"github.com/google/logger"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrLocateGetterNil is returned when a URI locator needs LocateOptions.Getter but it is nil.
var ErrLocateGetterNil = errors.New("locate getter is nil")

// LocateOptions contains options for locating data that can be local or remote.
type LocateOptions struct {
	Getter    trust.HTTPSGetter
	Variables VariableReader
}

// DefaultLocateOptions returns options that fetch over HTTPS and read the guest's efivarfs.
func DefaultLocateOptions() *LocateOptions {
	return &LocateOptions{
		Getter:    trust.DefaultHTTPSGetter(),
		Variables: &EfiVarFSReader{Root: DefaultEfiVarsRoot},
	}
}

// VariableLocator is the decoded form of a variable-type RIM locator.
type VariableLocator struct {
	GUID abi.EFIGUID
	Name string
}

// ParseVariableLocator reads an EFI_GUID followed by a NUL-terminated UCS-2 variable name.
func ParseVariableLocator(data []byte) (*VariableLocator, error) {
	// 16 for the GUID, at least one character and the terminator.
	if len(data) < abi.SizeofEFIGUID+4 {
		return nil, fmt.Errorf("%w: variable locator is too short: %d bytes", efi.ErrInvalidParameter,
			len(data))
	}
	name := data[abi.SizeofEFIGUID:]
	if len(name)%2 != 0 {
		return nil, fmt.Errorf("%w: variable name has odd length %d", efi.ErrInvalidParameter, len(name))
	}
	if name[len(name)-1] != 0 || name[len(name)-2] != 0 {
		return nil, fmt.Errorf("%w: variable name is not NUL-terminated", efi.ErrInvalidParameter)
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	utf8name, _, err := transform.Bytes(dec, name[:len(name)-2])
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode variable name: %v", efi.ErrInvalidParameter, err)
	}
	guid, err := abi.ParseEFIGUID(data[:abi.SizeofEFIGUID])
	if err != nil {
		return nil, err
	}
	return &VariableLocator{GUID: guid, Name: string(utf8name)}, nil
}

// Locate returns the data a RIM locator refers to.
func Locate(locType uint32, loc []byte, opts *LocateOptions) ([]byte, error) {
	if opts == nil {
		opts = DefaultLocateOptions()
	}
	switch locType {
	case eventlog.RIMLocationRaw:
		return loc, nil
	case eventlog.RIMLocationURI:
		if opts.Getter == nil {
			return nil, ErrLocateGetterNil
		}
		return opts.Getter.Get(string(loc))
	case eventlog.RIMLocationVariable:
		v, err := ParseVariableLocator(loc)
		if err != nil {
			return nil, err
		}
		if opts.Variables == nil {
			return nil, fmt.Errorf("%w: no variable reader for %s", efi.ErrUnsupported, v.Name)
		}
		return opts.Variables.ReadVariable(v.GUID.UUID(), v.Name)
	default:
		return nil, fmt.Errorf("%w: locator type %d", efi.ErrUnsupported, locType)
	}
}

// Events returns the SP 800-155 Event3 records of l grouped by RIM locator type. Only EV_NO_ACTION
// entries can carry them, so replay is unaffected.
func Events(l *eventlog.Log) (map[uint32][]*eventlog.SP800155Event3, error) {
	result := make(map[uint32][]*eventlog.SP800155Event3)
	it := l.Events()
	for it.Next() {
		e := it.Event()
		if e.EventType != eventlog.EvNoAction {
			continue
		}
		data, err := eventlog.DecodeEventData(e.EventType, e.Data)
		if err != nil {
			logger.V(1).Infof("Skipping EV_NO_ACTION event at offset %d: %v", e.Offset, err)
			continue
		}
		sp800155, ok := data.(*eventlog.SP800155Event3)
		if !ok {
			continue
		}
		result[sp800155.RIMLocatorType] = append(result[sp800155.RIMLocatorType], sp800155)
	}
	return result, it.Err()
}
