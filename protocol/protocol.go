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

// Package protocol provides the TD measurement protocol: capability reporting, event log access,
// and the hash-log-extend operation that measures data into an RTMR and records it.
package protocol

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/logger"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/measure"
	"github.com/google/tdvf-measure/tdx"
	"golang.org/x/exp/slices"
)

const (
	// SizeofCapability is the packed size of EFI_TD_BOOT_SERVICE_CAPABILITY.
	SizeofCapability = 14

	// DefaultLogAreaSize is the primary log capacity.
	DefaultLogAreaSize = 0x10000
	// DefaultFinalEventsSize is the final events table capacity.
	DefaultFinalEventsSize = 0x8000
)

// Version is an EFI_TD_VERSION.
type Version struct {
	Major uint8
	Minor uint8
}

// Capability is EFI_TD_BOOT_SERVICE_CAPABILITY.
type Capability struct {
	Size                uint8
	StructureVersion    Version
	ProtocolVersion     Version
	HashAlgorithmBitmap uint32
	SupportedEventLogs  uint32
	TDPresent           bool
}

// EventLogInfo locates the event log, as GetEventLog reports it.
type EventLogInfo struct {
	Log []byte
	// LastEntry is the offset of the last record in Log, or -1 if the log holds only its header or
	// nothing at all.
	LastEntry int
	Truncated bool
}

// Options configures a Protocol.
type Options struct {
	LogAreaSize     int
	FinalEventsSize int
	ImageHasher     ImageHasher
}

// DefaultOptions returns the sizes TD firmware reserves and an Authenticode image hasher.
func DefaultOptions() *Options {
	return &Options{
		LogAreaSize:     DefaultLogAreaSize,
		FinalEventsSize: DefaultFinalEventsSize,
		ImageHasher:     AuthenticodeHasher{},
	}
}

// Protocol is the measurement surface for one TD boot. Its methods serialize on a mutex.
type Protocol struct {
	mu    sync.Mutex
	opts  Options
	reg   *measure.Registry
	ext   *measure.Extender
	log   *LogArea
	final *finalArea
	// header is set once the log header is written.
	header *eventlog.Header
}

// New returns a Protocol that hashes with reg's algorithms and extends RTMRs through hw. A nil
// opts means DefaultOptions.
func New(reg *measure.Registry, hw tdx.RTMRExtender, opts *Options) (*Protocol, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.LogAreaSize <= 0 || opts.FinalEventsSize < 0 {
		return nil, fmt.Errorf("%w: log area size %d, final events size %d", efi.ErrInvalidParameter,
			opts.LogAreaSize, opts.FinalEventsSize)
	}
	if opts.ImageHasher == nil {
		opts.ImageHasher = AuthenticodeHasher{}
	}
	return &Protocol{
		opts: *opts,
		reg:  reg,
		ext:  measure.NewExtender(reg, hw),
		log:  newLogArea(opts.LogAreaSize),
	}, nil
}

// GetCapability reports the protocol versions, the registered hash algorithms, and whether a TD
// measurement facility is present.
func (p *Protocol) GetCapability() *Capability {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &Capability{
		Size:               SizeofCapability,
		StructureVersion:   Version{Major: 1, Minor: 1},
		ProtocolVersion:    Version{Major: 1, Minor: 1},
		SupportedEventLogs: abi.TDEventLogFormatTCG2,
		TDPresent:          !p.reg.Empty(),
	}
	for _, a := range p.reg.Algorithms() {
		if a.ID() == eventlog.AlgSHA384 {
			c.HashAlgorithmBitmap |= abi.TDBootHashAlgSHA384
		}
	}
	return c
}

// writeHeader starts the log with the Spec ID event for the registered algorithms.
func (p *Protocol) writeHeader() error {
	if p.header != nil {
		return nil
	}
	var ids []uint16
	for _, a := range p.reg.Algorithms() {
		ids = append(ids, a.ID())
	}
	var buf bytes.Buffer
	if err := eventlog.MarshalHeader(&buf, eventlog.NewSpecIDEvent(ids...)); err != nil {
		return err
	}
	if !p.log.append(buf.Bytes()) {
		return fmt.Errorf("%w: log area cannot hold its %d byte header", efi.ErrVolumeFull, buf.Len())
	}
	// The header is not an entry.
	p.log.lastEntry = -1
	h, err := eventlog.Parse(buf.Bytes(), nil)
	if err != nil {
		return err
	}
	p.header = h.Header
	return nil
}

// GetEventLog returns the log in the given format. The first call starts the final events table,
// which collects every record logged afterwards.
func (p *Protocol) GetEventLog(format uint32) (*EventLogInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if format != abi.TDEventLogFormatTCG2 {
		return nil, fmt.Errorf("%w: event log format 0x%x", efi.ErrInvalidParameter, format)
	}
	if p.final == nil {
		p.final = newFinalArea(p.opts.FinalEventsSize)
		logger.V(1).Info("final events table is active")
	}
	if !p.reg.Empty() {
		if err := p.writeHeader(); err != nil {
			logger.Warningf("event log: %v", err)
		}
	}
	return &EventLogInfo{
		Log:       slices.Clone(p.log.Bytes()),
		LastEntry: p.log.LastEntry(),
		Truncated: p.log.Truncated(),
	}, nil
}

// FinalEventsTable returns the encoded EFI_TD_FINAL_EVENTS_TABLE, or nil before GetEventLog.
func (p *Protocol) FinalEventsTable() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.final == nil {
		return nil
	}
	return slices.Clone(p.final.Bytes())
}

func (p *Protocol) digest(flags uint64, mr abi.MRIndex, data []byte) (eventlog.DigestList, error) {
	if flags&abi.TDFlagPECOFFImage == 0 {
		return p.ext.ExtendRegister(mr, data)
	}
	var digests eventlog.DigestList
	for _, a := range p.reg.Algorithms() {
		h, err := eventlog.CryptoHash(a.ID())
		if err != nil {
			return nil, err
		}
		d, err := p.opts.ImageHasher.HashImage(data, h)
		if err != nil {
			return nil, err
		}
		digests = append(digests, eventlog.TaggedDigest{AlgID: a.ID(), Digest: d})
	}
	if err := p.ext.ExtendDigests(mr, digests); err != nil {
		return nil, err
	}
	return digests, nil
}

// HashLogExtendEvent measures data into the register ev names and, unless flags has
// abi.TDFlagExtendOnly, logs ev with the digests. A log that is out of space gives
// efi.ErrVolumeFull after the register has been extended.
func (p *Protocol) HashLogExtendEvent(flags uint64, data []byte, ev *abi.TDEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg.Empty() {
		return fmt.Errorf("%w: no hash algorithm is registered", efi.ErrUnsupported)
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	digests, err := p.digest(flags, ev.Header.MRIndex, data)
	if err != nil {
		return err
	}
	if flags&abi.TDFlagExtendOnly != 0 {
		return nil
	}
	if err := p.writeHeader(); err != nil {
		return err
	}
	record := (&eventlog.Event{
		MRIndex:   uint32(ev.Header.MRIndex),
		EventType: ev.Header.EventType,
		Digests:   digests,
		Data:      ev.Event,
	}).Bytes()
	var full bool
	if !p.log.append(record) {
		logger.Warningf("event log is full, dropped %s for %v", eventlog.EventTypeName(ev.Header.EventType),
			ev.Header.MRIndex)
		full = true
	}
	if p.final != nil && !p.final.append(record) {
		logger.Warningf("final events table is full")
		full = true
	}
	if full {
		return fmt.Errorf("%w: %v was extended but its event was not logged", efi.ErrVolumeFull,
			ev.Header.MRIndex)
	}
	return nil
}

// MapPCRToMRIndex returns the TD measurement register a TPM PCR index is measured into.
func MapPCRToMRIndex(pcr uint32) (uint32, error) {
	switch {
	case pcr == 0:
		return uint32(abi.MRTD), nil
	case pcr == 1 || pcr == 7:
		return uint32(abi.RTMR0), nil
	case pcr >= 2 && pcr <= 6:
		return uint32(abi.RTMR1), nil
	case pcr >= 8 && pcr <= 15:
		return uint32(abi.RTMR2), nil
	}
	return 0, fmt.Errorf("%w: PCR %d has no measurement register", efi.ErrUnsupported, pcr)
}
