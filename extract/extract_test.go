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

package extract

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	tpb "github.com/google/go-tdx-guest/proto/tdx"
	tpmpb "github.com/google/go-tpm-tools/proto/attest"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/testing/match"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/testing/protocmp"
)

func register(b byte) []byte {
	return bytes.Repeat([]byte{b}, RegisterSize)
}

func testQuote() *tpb.QuoteV4 {
	return &tpb.QuoteV4{
		TdQuoteBody: &tpb.TDQuoteBody{
			MrTd:  register(0x10),
			Rtmrs: [][]byte{register(0x20), register(0x21), register(0x22), register(0x23)},
		},
	}
}

type fakeProvider struct {
	quote []byte
	err   error
}

func (p *fakeProvider) IsSupported() bool { return p != nil }

func (p *fakeProvider) GetRawQuote([64]byte) ([]uint8, error) {
	return p.quote, p.err
}

func TestTDXQuote(t *testing.T) {
	q := testQuote()
	qbytes, err := proto.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	attestation, err := proto.Marshal(&tpmpb.Attestation{
		TeeAttestation: &tpmpb.Attestation_TdxAttestation{TdxAttestation: q},
	})
	if err != nil {
		t.Fatal(err)
	}
	tcs := []struct {
		name    string
		quote   []byte
		wantErr string
	}{
		{name: "proto", quote: qbytes},
		{name: "attestation", quote: attestation},
		{name: "hex proto", quote: []byte(hex.EncodeToString(qbytes) + "\n")},
		{name: "base64 attestation", quote: []byte(base64.StdEncoding.EncodeToString(attestation))},
		{name: "empty", wantErr: "quote is nil"},
		{name: "garbage", quote: []byte("not a quote!"), wantErr: "unknown quote format"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TDXQuote(tc.quote)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("TDXQuote() = %v, want %q", err, tc.wantErr)
			}
			if tc.wantErr != "" {
				return
			}
			if diff := cmp.Diff(got, q, protocmp.Transform()); diff != "" {
				t.Errorf("TDXQuote() diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestRegisters(t *testing.T) {
	short := testQuote()
	short.TdQuoteBody.Rtmrs[2] = register(0x22)[:32]
	three := testQuote()
	three.TdQuoteBody.Rtmrs = three.TdQuoteBody.Rtmrs[:3]
	tcs := []struct {
		name    string
		quote   *tpb.QuoteV4
		want    map[uint32][]byte
		wantErr string
	}{
		{
			name:  "good",
			quote: testQuote(),
			want: map[uint32][]byte{
				uint32(abi.MRTD):  register(0x10),
				uint32(abi.RTMR0): register(0x20),
				uint32(abi.RTMR1): register(0x21),
				uint32(abi.RTMR2): register(0x22),
				uint32(abi.RTMR3): register(0x23),
			},
		},
		{name: "no body", quote: &tpb.QuoteV4{}, wantErr: "quote has no TD quote body"},
		{name: "three rtmrs", quote: three, wantErr: "quote has 3 RTMRs, want 4"},
		{name: "short rtmr", quote: short, wantErr: "RTMR2 is 32 bytes, want 48"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Registers(tc.quote)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("Registers() = %v, want %q", err, tc.wantErr)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("Registers() diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	q := testQuote()
	qbytes, err := proto.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	providerErr := errors.New("tdx guest device busy")
	tcs := []struct {
		name    string
		opts    *Options
		wantErr string
	}{
		{name: "given", opts: &Options{Quote: qbytes}},
		{name: "provided", opts: &Options{Provider: &fakeProvider{quote: qbytes}}},
		{name: "bad given, good provided", opts: &Options{Quote: []byte("?"), Provider: &fakeProvider{quote: qbytes}}},
		{name: "nil", wantErr: "extract options is nil"},
		{name: "no provider", opts: &Options{}, wantErr: "no supported quote provider"},
		{
			name:    "provider error",
			opts:    &Options{Quote: []byte("?"), Provider: &fakeProvider{err: providerErr}},
			wantErr: "given quote: unknown quote format",
		},
		{
			name:    "provider garbage",
			opts:    &Options{Provider: &fakeProvider{quote: []byte("nope")}},
			wantErr: "provided quote",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.opts)
			if !match.Error(err, tc.wantErr) {
				t.Fatalf("Quote() = %v, want %q", err, tc.wantErr)
			}
			if tc.wantErr != "" {
				return
			}
			if diff := cmp.Diff(got, q, protocmp.Transform()); diff != "" {
				t.Errorf("Quote() diff (-got +want):\n%s", diff)
			}
		})
	}
	if _, err := Quote(&Options{Provider: &fakeProvider{err: providerErr}}); !errors.Is(err, providerErr) {
		t.Errorf("Quote() = %v, want %v", err, providerErr)
	}
}
