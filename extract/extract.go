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

// Package extract recovers a TD's live measurement registers from a TDX quote, either given in one
// of the common encodings or fetched from the running guest.
package extract

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	tabi "github.com/google/go-tdx-guest/abi"
	tpb "github.com/google/go-tdx-guest/proto/tdx"
	tpmpb "github.com/google/go-tpm-tools/proto/attest"
	"github.com/google/tdvf-measure/abi"
	"go.uber.org/multierr"
	"google.golang.org/protobuf/proto"
)

const (
	// RegisterSize is the size of MRTD and each RTMR.
	RegisterSize = 48
	// RTMRCount is the number of RTMRs a TD quote reports.
	RTMRCount = 4
)

var (
	// ErrOptionsNil is returned when an Options is needed but is nil.
	ErrOptionsNil = errors.New("extract options is nil")
	// ErrQuoteNil is returned when a Quote is needed but is nil.
	ErrQuoteNil = errors.New("quote is nil")
	// ErrUnknownFormat is returned when a quote cannot be decoded from any of the supported forms.
	ErrUnknownFormat = errors.New("unknown quote format")
)

// QuoteProvider provides a raw quote within a trusted execution environment.
type QuoteProvider interface {
	// IsSupported returns whether the kernel supports this implementation.
	IsSupported() bool
	// GetRawQuote returns a raw quote binding reportData.
	GetRawQuote(reportData [64]byte) ([]uint8, error)
}

// Options says where to get a quote.
type Options struct {
	// Quote is any of the supported formats. If empty, Provider is asked for a quote.
	Quote      []byte
	Provider   QuoteProvider
	ReportData [64]byte
}

// DefaultOptions returns options that fetch a quote through configfs-tsm.
func DefaultOptions() *Options {
	return &Options{Provider: &ConfigfsTsmQuoteProvider{}}
}

func usableQuote(q *tpb.QuoteV4) bool {
	return q != nil && len(q.GetTdQuoteBody().GetMrTd()) == RegisterSize
}

func decodeQuote(quote []byte) (*tpb.QuoteV4, error) {
	tpmat := &tpmpb.Attestation{}
	if err := proto.Unmarshal(quote, tpmat); err == nil && usableQuote(tpmat.GetTdxAttestation()) {
		return tpmat.GetTdxAttestation(), nil
	}
	tdx := &tpb.QuoteV4{}
	if err := proto.Unmarshal(quote, tdx); err == nil && usableQuote(tdx) {
		return tdx, nil
	}
	tdxquote, err := tabi.QuoteToProto(quote)
	if err != nil {
		return nil, err
	}
	switch tq := tdxquote.(type) {
	case *tpb.QuoteV4:
		return tq, nil
	default:
		return nil, fmt.Errorf("unknown TDX quote format %T", tdxquote)
	}
}

// TDXQuote deserializes a quote given as a go-tpm-tools Attestation, a QuoteV4 proto, or raw quote
// bytes. Each form may also be hex or base64 encoded.
func TDXQuote(quote []byte) (*tpb.QuoteV4, error) {
	if len(quote) == 0 {
		return nil, ErrQuoteNil
	}
	q, err := decodeQuote(quote)
	if err == nil {
		return q, nil
	}
	if decoded, derr := hex.DecodeString(string(bytes.TrimSpace(quote))); derr == nil {
		quote = decoded
	} else if decoded, derr := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(quote))); derr == nil {
		quote = decoded
	} else {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	if q, err = decodeQuote(quote); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return q, nil
}

// Registers returns MRTD and the RTMRs of q keyed by their abi.MRIndex.
func Registers(q *tpb.QuoteV4) (map[uint32][]byte, error) {
	body := q.GetTdQuoteBody()
	if body == nil {
		return nil, fmt.Errorf("%w: quote has no TD quote body", ErrUnknownFormat)
	}
	rtmrs := body.GetRtmrs()
	if len(rtmrs) != RTMRCount {
		return nil, fmt.Errorf("quote has %d RTMRs, want %d", len(rtmrs), RTMRCount)
	}
	result := map[uint32][]byte{uint32(abi.MRTD): body.GetMrTd()}
	for i, r := range rtmrs {
		result[uint32(abi.RTMR0)+uint32(i)] = r
	}
	for mr, v := range result {
		if len(v) != RegisterSize {
			return nil, fmt.Errorf("%v is %d bytes, want %d", abi.MRIndex(mr), len(v), RegisterSize)
		}
	}
	return result, nil
}

// Quote returns the quote opts gives or, failing that, one from opts.Provider.
func Quote(opts *Options) (*tpb.QuoteV4, error) {
	if opts == nil {
		return nil, ErrOptionsNil
	}
	var quoteErr, providerErr error
	if len(opts.Quote) > 0 {
		q, err := TDXQuote(opts.Quote)
		if err == nil {
			return q, nil
		}
		quoteErr = fmt.Errorf("given quote: %w", err)
	}
	if opts.Provider == nil || !opts.Provider.IsSupported() {
		providerErr = fmt.Errorf("no supported quote provider")
		return nil, multierr.Combine(quoteErr, providerErr)
	}
	raw, err := opts.Provider.GetRawQuote(opts.ReportData)
	if err != nil {
		return nil, multierr.Combine(quoteErr, fmt.Errorf("quote provider: %w", err))
	}
	q, err := TDXQuote(raw)
	if err != nil {
		return nil, multierr.Combine(quoteErr, fmt.Errorf("provided quote: %w", err))
	}
	return q, nil
}
