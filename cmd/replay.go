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
	"fmt"

	"golang.org/x/net/context"

	tpb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/extract"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type replayCommand struct {
	src   *logSource
	quote *quoteSource
	index *abi.MRIndex
	alg   uint16
}

func (c *replayCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *replayCommand) AddFlags(cmd *cobra.Command) {
	addMRIndexFlag(cmd, &c.index)
	addHashAlgFlag(cmd, &c.alg)
}

func (c *replayCommand) PersistentPreRunE(*cobra.Command, []string) error {
	return nil
}

// replayed recomputes the selected registers. Without an index, only registers the log extends are
// given. Without an algorithm, only the log's algorithms with an available hash are given.
func replayed(l *loadedLog, index *abi.MRIndex, alg uint16) (map[uint32]eventlog.DigestList, error) {
	if index == nil && alg == 0 {
		return eventlog.ReplayAll(l.Log, l.Final)
	}
	var mrs []uint32
	if index != nil {
		mrs = []uint32{uint32(*index)}
	} else {
		all, err := eventlog.ReplayAll(l.Log, l.Final)
		if err != nil {
			return nil, err
		}
		mrs = maps.Keys(all)
		slices.Sort(mrs)
	}
	algs := []uint16{alg}
	if alg == 0 {
		algs = nil
		for _, a := range l.Log.Header.Algorithms() {
			if _, err := eventlog.CryptoHash(a); err == nil {
				algs = append(algs, a)
			}
		}
	}
	result := make(map[uint32]eventlog.DigestList, len(mrs))
	for _, mr := range mrs {
		for _, a := range algs {
			d, err := eventlog.RecomputeExpected(l.Log, l.Final, mr, a)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", mrName(mr), eventlog.AlgorithmName(a), err)
			}
			result[mr] = append(result[mr], d)
		}
	}
	return result, nil
}

// digestsOf returns the alg digest of each register that has one.
func digestsOf(values map[uint32]eventlog.DigestList, alg uint16) map[uint32][]byte {
	result := make(map[uint32][]byte, len(values))
	for mr, digests := range values {
		if d, ok := digests.Get(alg); ok {
			result[mr] = d
		}
	}
	return result
}

// compareQuote checks replayed SHA-384 RTMR values against a quote. MRTD is measured by the host
// and never appears in the replay.
func compareQuote(ctx context.Context, values map[uint32]eventlog.DigestList, q *tpb.QuoteV4) error {
	live, err := extract.Registers(q)
	if err != nil {
		return err
	}
	expected := digestsOf(values, eventlog.AlgSHA384)
	delete(expected, uint32(abi.MRTD))
	if len(expected) == 0 {
		return fmt.Errorf("replay has no SHA384 RTMR values to compare with the quote")
	}
	err = eventlog.Verify(expected, live, eventlog.AlgSHA384)
	var re *eventlog.ReplayError
	if errors.As(err, &re) {
		output.Errorf(ctx, "Quote does not match replay in %s", re.MismatchSummary(mrName))
	}
	return err
}

func (c *replayCommand) run(ctx context.Context) error {
	values, err := replayed(c.src.loaded, c.index, c.alg)
	if err != nil {
		return err
	}
	mrs := maps.Keys(values)
	slices.Sort(mrs)
	for _, mr := range mrs {
		output.Infof(ctx, "%s", mrName(mr))
		for _, d := range values[mr] {
			output.Infof(output.WithIndent(ctx), "%s: %x", eventlog.AlgorithmName(d.AlgID), d.Digest)
		}
	}
	q, err := loadQuote(ctx, c.quote.app, c.quote.src)
	if err != nil || q == nil {
		return err
	}
	if err := compareQuote(ctx, values, q); err != nil {
		return err
	}
	output.Infof(ctx, "Quote matches replay")
	return nil
}

func makeReplayCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	src := newLogSource(app)
	quote := &quoteSource{app: app}
	replay := &replayCommand{src: src, quote: quote}
	cmp := Compose(src, quote, replay)
	cmd := &cobra.Command{
		Use: "replay [flags]",
		Long: `Recomputes measurement registers from a TD event log.

With --quote or --live_quote, the replayed SHA384 RTMR values are compared against the quote's.`,
		PersistentPreRunE: cmp.PersistentPreRunE,
		RunE:              ComposeRun(cmp, replay.run),
	}
	cmd.SetContext(ctx)
	cmp.AddFlags(cmd)
	return cmd
}
