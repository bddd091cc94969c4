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
	"fmt"

	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/extract"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
)

const (
	formatText      = "text"
	formatTextproto = "textproto"
	formatJSON      = "json"
)

type registersCommand struct {
	quote  *quoteSource
	format string
}

func (c *registersCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *registersCommand) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.format, "format", formatText,
		"Output format: text prints each register, textproto and json print the whole TD quote body.")
}

func (c *registersCommand) PersistentPreRunE(*cobra.Command, []string) error {
	switch c.format {
	case formatText, formatTextproto, formatJSON:
	default:
		return fmt.Errorf("unknown --format %q", c.format)
	}
	// Without a file the registers come from the running TD.
	if c.quote.src.Path == "" {
		c.quote.src.Live = true
	}
	return nil
}

func (c *registersCommand) run(ctx context.Context) error {
	q, err := loadQuote(ctx, c.quote.app, c.quote.src)
	if err != nil {
		return err
	}
	switch c.format {
	case formatTextproto:
		out, err := prototext.MarshalOptions{Multiline: true}.Marshal(q.GetTdQuoteBody())
		if err != nil {
			return err
		}
		output.Infof(ctx, "%s", out)
		return nil
	case formatJSON:
		out, err := protojson.MarshalOptions{Multiline: true}.Marshal(q.GetTdQuoteBody())
		if err != nil {
			return err
		}
		output.Infof(ctx, "%s", out)
		return nil
	}
	regs, err := extract.Registers(q)
	if err != nil {
		return err
	}
	for mr := abi.MRTD; mr <= abi.MaxMRIndex; mr++ {
		output.Infof(ctx, "%s: %x", mr, regs[uint32(mr)])
	}
	return nil
}

func makeRegistersCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	quote := &quoteSource{app: app}
	registers := &registersCommand{quote: quote}
	cmp := Compose(quote, registers)
	cmd := &cobra.Command{
		Use:               "registers [flags]",
		Long:              `Prints MRTD and the RTMRs from a TDX quote, fetching one from the TD if no --quote is given.`,
		PersistentPreRunE: cmp.PersistentPreRunE,
		RunE:              ComposeRun(cmp, registers.run),
	}
	cmd.SetContext(ctx)
	cmp.AddFlags(cmd)
	return cmd
}
