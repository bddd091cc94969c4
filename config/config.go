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

// Package config reads TOML or YAML verification policies: where the event log and quote come
// from, which registers to check, and the values they must hold.
package config

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/ccel"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/storage/ops"
	"github.com/google/tdvf-measure/storage/storagei"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// LogSource says where to read the event log.
type LogSource struct {
	// Path is a file holding the log. It is exclusive with CCEL.
	Path string `toml:"path" yaml:"path"`
	// FinalEvents is an optional file holding the final events table.
	FinalEvents string `toml:"final_events" yaml:"final_events"`
	// CCEL reads the log through the ACPI table under SysfsRoot.
	CCEL      bool   `toml:"ccel" yaml:"ccel"`
	SysfsRoot string `toml:"sysfs_root" yaml:"sysfs_root"`
}

// QuoteSource says where to get live register values.
type QuoteSource struct {
	Path string `toml:"path" yaml:"path"`
	// Live asks configfs-tsm for a quote.
	Live bool `toml:"live" yaml:"live"`
}

// Policy is the decoded policy file.
type Policy struct {
	Log       LogSource   `toml:"log" yaml:"log"`
	Quote     QuoteSource `toml:"quote" yaml:"quote"`
	Algorithm string      `toml:"algorithm" yaml:"algorithm"`
	// Registers are names or indices as abi.ParseMRIndex reads them.
	Registers []string `toml:"registers" yaml:"registers"`
	// Expected maps register names to hex values.
	Expected map[string]string `toml:"expected" yaml:"expected"`
}

// Default returns the policy that fields missing from a file are taken from.
func Default() *Policy {
	return &Policy{
		Log:       LogSource{SysfsRoot: ccel.DefaultSysfsRoot},
		Algorithm: eventlog.AlgorithmName(eventlog.AlgSHA384),
		Registers: []string{"RTMR0", "RTMR1", "RTMR2", "RTMR3"},
	}
}

// Parse decodes a TOML policy and fills unset fields from Default. Unknown keys are errors.
func Parse(data []byte) (*Policy, error) {
	p := &Policy{}
	md, err := toml.Decode(string(data), p)
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode policy: %v", efi.ErrInvalidParameter, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown policy keys %s", efi.ErrInvalidParameter, strings.Join(keys, ", "))
	}
	return withDefaults(p)
}

// ParseYAML decodes a YAML policy with the same keys and defaults as Parse.
func ParseYAML(data []byte) (*Policy, error) {
	p := &Policy{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: could not decode policy: %v", efi.ErrInvalidParameter, err)
	}
	return withDefaults(p)
}

func withDefaults(p *Policy) (*Policy, error) {
	if err := mergo.Merge(p, Default()); err != nil {
		return nil, fmt.Errorf("could not apply policy defaults: %v", err)
	}
	return p, nil
}

// Load reads and parses a policy object. Names ending in .yaml or .yml are YAML, others TOML.
func Load(ctx context.Context, client storagei.Client, bucket, name string) (*Policy, error) {
	data, err := ops.ReadFile(ctx, client, bucket, name)
	if err != nil {
		return nil, err
	}
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	}
	return Parse(data)
}

// Resolved is a Policy with its names checked and decoded.
type Resolved struct {
	Algorithm uint16
	Registers []abi.MRIndex
	Expected  map[uint32][]byte
}

// Resolve checks the policy's algorithm, registers, and expected values.
func (p *Policy) Resolve() (*Resolved, error) {
	if p.Log.Path != "" && p.Log.CCEL {
		return nil, fmt.Errorf("%w: policy log names both a path and the CCEL table", efi.ErrInvalidParameter)
	}
	alg, ok := eventlog.AlgorithmFromName(strings.ToUpper(p.Algorithm))
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %q", efi.ErrUnsupported, p.Algorithm)
	}
	h, err := eventlog.CryptoHash(alg)
	if err != nil {
		return nil, err
	}
	r := &Resolved{Algorithm: alg, Expected: make(map[uint32][]byte)}
	for _, name := range p.Registers {
		mr, err := abi.ParseMRIndex(name)
		if err != nil {
			return nil, err
		}
		r.Registers = append(r.Registers, mr)
	}
	for name, value := range p.Expected {
		mr, err := abi.ParseMRIndex(name)
		if err != nil {
			return nil, err
		}
		digest, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("%w: expected %v value: %v", efi.ErrInvalidParameter, mr, err)
		}
		if len(digest) != h.Size() {
			return nil, fmt.Errorf("%w: expected %v value is %d bytes, want %d", efi.ErrInvalidParameter, mr,
				len(digest), h.Size())
		}
		r.Expected[uint32(mr)] = digest
	}
	slices.Sort(r.Registers)
	r.Registers = slices.Compact(r.Registers)
	return r, nil
}
