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

// Package tsm extends RTMRs from a Linux TD guest through the configfs-tsm rtmr interface.
package tsm

import (
	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
	"github.com/google/go-configfs-tsm/rtmr"
	"github.com/google/tdvf-measure/efi"
	"github.com/pkg/errors"
)

// Extender implements tdx.RTMRExtender over configfs-tsm.
type Extender struct {
	Client configfsi.Client
}

// IsSupported returns true if the kernel exposes configfs-tsm.
func (e *Extender) IsSupported() bool {
	if e.Client != nil {
		return true
	}
	cl, err := linuxtsm.MakeClient()
	if err != nil {
		return false
	}
	e.Client = cl
	return true
}

// ExtendRTMR extends hardware RTMR number rtmr with digest.
func (e *Extender) ExtendRTMR(digest []byte, index uint8) error {
	if e.Client == nil {
		cl, err := linuxtsm.MakeClient()
		if err != nil {
			return errors.Wrapf(efi.ErrDeviceError, "configfs-tsm unavailable: %v", err)
		}
		e.Client = cl
	}
	if err := rtmr.ExtendDigest(e.Client, int(index), digest); err != nil {
		return errors.Wrapf(efi.ErrDeviceError, "extend RTMR%d: %v", index, err)
	}
	return nil
}
