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

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/tdx"
	"github.com/spf13/cobra"
)

const allRegisters = "ALL"

// ErrAlgorithmAlreadySet is returned from a hashAlgFlag if the value has already been set.
var ErrAlgorithmAlreadySet = errors.New("hash algorithm flag has already been set")

// mrIndexFlag selects one measurement register, or every register when unset.
type mrIndexFlag struct {
	v **abi.MRIndex
}

func (f *mrIndexFlag) String() string {
	if f.v == nil || *f.v == nil {
		return allRegisters
	}
	return (*f.v).String()
}

func (f *mrIndexFlag) Set(value string) error {
	if strings.EqualFold(value, allRegisters) {
		*f.v = nil
		return nil
	}
	mr, err := abi.ParseMRIndex(value)
	if err != nil {
		return err
	}
	*f.v = &mr
	return nil
}

func addMRIndexFlag(cmd *cobra.Command, v **abi.MRIndex) {
	cmd.PersistentFlags().AddGoFlag(&flag.Flag{
		Name:     "index",
		Value:    &mrIndexFlag{v: v},
		Usage:    "Measurement register to show: MRTD, RTMR0-RTMR3, 0-4, or ALL.",
		DefValue: allRegisters,
	})
}

// hashAlgFlag is a TPM_ALG_ID given by name. Zero means every algorithm the log declares.
type hashAlgFlag struct {
	v *uint16
}

func (f *hashAlgFlag) String() string {
	if f.v == nil || *f.v == 0 {
		return allRegisters
	}
	return eventlog.AlgorithmName(*f.v)
}

func (f *hashAlgFlag) Set(value string) error {
	if *f.v != 0 {
		return ErrAlgorithmAlreadySet
	}
	if strings.EqualFold(value, allRegisters) {
		return nil
	}
	alg, ok := eventlog.AlgorithmFromName(strings.ToUpper(value))
	if !ok {
		return fmt.Errorf("unknown hash algorithm %q", value)
	}
	*f.v = alg
	return nil
}

func addHashAlgFlag(cmd *cobra.Command, v *uint16) {
	cmd.PersistentFlags().AddGoFlag(&flag.Flag{
		Name:     "hash_alg",
		Value:    &hashAlgFlag{v: v},
		Usage:    "Digest algorithm: SHA1, SHA256, SHA384, SHA512, or ALL the log declares.",
		DefValue: allRegisters,
	})
}

// measureItem is one --measure value for the simulate command.
type measureItem struct {
	MR        abi.MRIndex
	EventType uint32
	Path      string
}

// measureFlag accumulates mr:eventtype:path items.
type measureFlag struct {
	items *[]measureItem
}

func (f *measureFlag) String() string {
	if f.items == nil {
		return ""
	}
	parts := make([]string, len(*f.items))
	for i, item := range *f.items {
		parts[i] = fmt.Sprintf("%v:%s:%s", item.MR, eventlog.EventTypeName(item.EventType), item.Path)
	}
	return strings.Join(parts, ",")
}

func (f *measureFlag) Set(value string) error {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("--measure=%q, want mr:eventtype:path", value)
	}
	mr, err := abi.ParseMRIndex(parts[0])
	if err != nil {
		return err
	}
	eventType, err := eventlog.ParseEventType(parts[1])
	if err != nil {
		return err
	}
	*f.items = append(*f.items, measureItem{MR: mr, EventType: eventType, Path: parts[2]})
	return nil
}

// regionFlag accumulates start:length memory ranges in Go integer syntax.
type regionFlag struct {
	regions *[]tdx.Region
}

func (f *regionFlag) String() string {
	if f.regions == nil {
		return ""
	}
	parts := make([]string, len(*f.regions))
	for i, r := range *f.regions {
		parts[i] = fmt.Sprintf("0x%x:0x%x", uint64(r.Start), r.Length())
	}
	return strings.Join(parts, ",")
}

func (f *regionFlag) Set(value string) error {
	start, length, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("--accept=%q, want start:length", value)
	}
	s, err := strconv.ParseUint(start, 0, 64)
	if err != nil {
		return fmt.Errorf("--accept start %q: %v", start, err)
	}
	l, err := strconv.ParseUint(length, 0, 64)
	if err != nil {
		return fmt.Errorf("--accept length %q: %v", length, err)
	}
	regions, err := tdx.Cover(abi.EFIPhysicalAddress(s), l)
	if err != nil {
		return err
	}
	*f.regions = append(*f.regions, regions...)
	return nil
}
