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

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/config"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/extract"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type verifyCommand struct {
	app    *AppComponents
	policy string
	// Flag values override the policy's sources when given.
	log   config.LogSource
	quote config.QuoteSource
}

func (c *verifyCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *verifyCommand) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.policy, "policy", "", "Path to a TOML or YAML verification policy.")
	addLogFlags(cmd, &c.log, "")
	addQuoteFlags(cmd, &c.quote)
}

func (c *verifyCommand) PersistentPreRunE(*cobra.Command, []string) error {
	if c.policy == "" {
		return fmt.Errorf("--policy is required")
	}
	if c.log.Path != "" && c.log.CCEL {
		return fmt.Errorf("--log and --ccel are mutually exclusive")
	}
	if c.quote.Path != "" && c.quote.Live {
		return fmt.Errorf("--quote and --live_quote are mutually exclusive")
	}
	return nil
}

// apply overrides p's sources with the flags that were given.
func (c *verifyCommand) apply(p *config.Policy) {
	if c.log.Path != "" || c.log.CCEL {
		p.Log.Path = c.log.Path
		p.Log.CCEL = c.log.CCEL
	}
	if c.log.FinalEvents != "" {
		p.Log.FinalEvents = c.log.FinalEvents
	}
	if c.log.SysfsRoot != "" {
		p.Log.SysfsRoot = c.log.SysfsRoot
	}
	if c.quote.Path != "" || c.quote.Live {
		p.Quote = c.quote
	}
}

// verifier accumulates failures. Without --keep_going the first one stops verification.
type verifier struct {
	ctx  context.Context
	errs error
}

func (v *verifier) fail(source string, err error) bool {
	var re *eventlog.ReplayError
	if errors.As(err, &re) {
		output.Errorf(v.ctx, "%s mismatch in %s", source, re.MismatchSummary(mrName))
	} else {
		output.Errorf(v.ctx, "%s: %v", source, err)
	}
	v.errs = multierr.Append(v.errs, fmt.Errorf("%s: %w", source, err))
	return output.AllowRecoverableError(v.ctx)
}

func (c *verifyCommand) run(ctx context.Context) error {
	p, err := config.Load(ctx, c.app.Storage, noBucket, c.policy)
	if err != nil {
		return err
	}
	c.apply(p)
	r, err := p.Resolve()
	if err != nil {
		return err
	}
	hasQuote := p.Quote.Path != "" || p.Quote.Live
	if len(r.Expected) == 0 && !hasQuote {
		return fmt.Errorf("policy %s has no expected values and no quote to verify against", c.policy)
	}
	if hasQuote && r.Algorithm != eventlog.AlgSHA384 {
		return fmt.Errorf("%w: a quote holds SHA384 registers, policy uses %s", efi.ErrUnsupported,
			eventlog.AlgorithmName(r.Algorithm))
	}
	l, err := loadLog(ctx, c.app, p.Log)
	if err != nil {
		return err
	}
	mrs := make(map[uint32]bool)
	for _, mr := range r.Registers {
		mrs[uint32(mr)] = true
	}
	for mr := range r.Expected {
		mrs[mr] = true
	}
	indices := maps.Keys(mrs)
	slices.Sort(indices)
	replay := make(map[uint32][]byte, len(indices))
	for _, mr := range indices {
		d, err := eventlog.RecomputeExpected(l.Log, l.Final, mr, r.Algorithm)
		if err != nil {
			return fmt.Errorf("%s: %w", mrName(mr), err)
		}
		replay[mr] = d.Digest
		output.Debugf(ctx, "%s replays to %x", mrName(mr), d.Digest)
	}
	v := &verifier{ctx: ctx}
	if len(r.Expected) > 0 {
		if err := eventlog.Verify(replay, r.Expected, r.Algorithm); err != nil && !v.fail("policy", err) {
			return v.errs
		}
	}
	if hasQuote {
		q, err := loadQuote(ctx, c.app, p.Quote)
		var live map[uint32][]byte
		if err == nil {
			live, err = extract.Registers(q)
		}
		if err == nil {
			delete(replay, uint32(abi.MRTD))
			err = eventlog.Verify(replay, live, r.Algorithm)
		}
		if err != nil && !v.fail("quote", err) {
			return v.errs
		}
	}
	if v.errs != nil {
		return v.errs
	}
	output.Infof(ctx, "Verified %d registers", len(indices))
	return nil
}

func makeVerifyCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	verify := &verifyCommand{app: app}
	cmd := &cobra.Command{
		Use: "verify --policy=FILE [flags]",
		Long: `Checks a replayed TD event log against a policy.

The policy names the log, an optional quote, the registers to replay, and expected register values.
Flags given on the command line replace the policy's log and quote sources.`,
		PersistentPreRunE: verify.PersistentPreRunE,
		RunE:              ComposeRun(verify, verify.run),
	}
	cmd.SetContext(ctx)
	verify.AddFlags(cmd)
	return cmd
}
