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

	tpb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/ccel"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/config"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/extract"
	"github.com/google/tdvf-measure/storage/ops"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// loadedLog is an event log and the tables read alongside it.
type loadedLog struct {
	Log   *eventlog.Log
	Final *eventlog.FinalEvents
	// Table is set when the log came from the CCEL ACPI table.
	Table *ccel.Table
}

// logSource is the component for commands that read an event log.
type logSource struct {
	app    *AppComponents
	src    config.LogSource
	loaded *loadedLog
}

func newLogSource(app *AppComponents) *logSource {
	return &logSource{app: app}
}

// InitContext reads the log. The context is unchanged.
func (s *logSource) InitContext(ctx context.Context) (context.Context, error) {
	l, err := loadLog(ctx, s.app, s.src)
	if err != nil {
		return nil, err
	}
	s.loaded = l
	return ctx, nil
}

// AddFlags adds the log location flags.
func (s *logSource) AddFlags(cmd *cobra.Command) {
	addLogFlags(cmd, &s.src, s.app.SysfsRoot)
}

func addLogFlags(cmd *cobra.Command, src *config.LogSource, sysfsRoot string) {
	cmd.PersistentFlags().StringVar(&src.Path, "log", "",
		"Path to a TCG2 event log. Without it the log is read through the CCEL ACPI table.")
	cmd.PersistentFlags().StringVar(&src.FinalEvents, "final_events", "",
		"Path to an EFI_TD_FINAL_EVENTS_TABLE whose events follow the log's.")
	cmd.PersistentFlags().BoolVar(&src.CCEL, "ccel", false,
		"Read the log through the CCEL ACPI table. Conflicts with --log.")
	cmd.PersistentFlags().StringVar(&src.SysfsRoot, "sysfs_root", sysfsRoot,
		"Mount point of sysfs for reading ACPI tables.")
}

// PersistentPreRunE returns an error if the results of the parsed flags constitute an error.
func (s *logSource) PersistentPreRunE(*cobra.Command, []string) error {
	if s.src.Path != "" && s.src.CCEL {
		return fmt.Errorf("--log and --ccel are mutually exclusive")
	}
	return nil
}

func loadLog(ctx context.Context, app *AppComponents, src config.LogSource) (*loadedLog, error) {
	result := &loadedLog{}
	var data []byte
	if src.Path != "" {
		var err error
		data, err = ops.ReadFile(ctx, app.Storage, noBucket, src.Path)
		if err != nil {
			return nil, err
		}
	} else {
		table, log, err := ccel.Locate(&ccel.LocateOptions{SysfsRoot: src.SysfsRoot})
		if err != nil {
			if src.CCEL {
				return nil, err
			}
			return nil, multierr.Combine(fmt.Errorf("no --log given"), err)
		}
		output.Debugf(ctx, "Read %d byte log at 0x%x from the %s table", len(log), table.LASA,
			table.Signature)
		result.Table = table
		data = log
	}
	l, err := eventlog.Parse(data, eventlog.DefaultParseOptions())
	if err != nil {
		return nil, err
	}
	result.Log = l
	finalData, err := ops.ReadOptional(ctx, app.Storage, noBucket, src.FinalEvents)
	if err != nil {
		return nil, err
	}
	if finalData != nil {
		final, err := eventlog.ParseFinalEvents(finalData, l.Header)
		if err != nil {
			return nil, fmt.Errorf("could not read final events table: %w", err)
		}
		result.Final = final
	}
	return result, nil
}

// quoteSource is the component for commands that compare against a TDX quote.
type quoteSource struct {
	app *AppComponents
	src config.QuoteSource
}

func (s *quoteSource) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (s *quoteSource) AddFlags(cmd *cobra.Command) {
	addQuoteFlags(cmd, &s.src)
}

func addQuoteFlags(cmd *cobra.Command, src *config.QuoteSource) {
	cmd.PersistentFlags().StringVar(&src.Path, "quote", "",
		"Path to a TDX quote as raw bytes, a QuoteV4 or Attestation proto, or hex or base64 of either.")
	cmd.PersistentFlags().BoolVar(&src.Live, "live_quote", false,
		"Fetch a quote from the running TD.")
}

func (s *quoteSource) PersistentPreRunE(*cobra.Command, []string) error {
	if s.src.Path != "" && s.src.Live {
		return fmt.Errorf("--quote and --live_quote are mutually exclusive")
	}
	return nil
}

// loadQuote returns the quote src names, or nil if it names none.
func loadQuote(ctx context.Context, app *AppComponents, src config.QuoteSource) (*tpb.QuoteV4, error) {
	switch {
	case src.Path != "":
		data, err := ops.ReadFile(ctx, app.Storage, noBucket, src.Path)
		if err != nil {
			return nil, err
		}
		return extract.Quote(&extract.Options{Quote: data})
	case src.Live:
		return extract.Quote(&extract.Options{Provider: app.Quotes})
	}
	return nil, nil
}

func mrName(mr uint32) string {
	return abi.MRIndex(mr).String()
}

// writeOutput writes contents to name unless name is empty. Existing files need --overwrite.
func writeOutput(ctx context.Context, app *AppComponents, name string, contents []byte) error {
	if name == "" {
		return nil
	}
	if !output.AllowOverwrite(ctx) {
		exists, err := app.Storage.Exists(ctx, noBucket, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%q exists, use --overwrite to replace it", name)
		}
	}
	if err := ops.WriteFile(ctx, app.Storage, noBucket, name, contents); err != nil {
		return err
	}
	output.Debugf(ctx, "Wrote %d bytes to %s", len(contents), name)
	return nil
}
