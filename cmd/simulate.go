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

	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/measure"
	"github.com/google/tdvf-measure/protocol"
	"github.com/google/tdvf-measure/storage/ops"
	"github.com/google/tdvf-measure/tdx"
	"github.com/spf13/cobra"
)

type simulateCommand struct {
	app         *AppComponents
	items       []measureItem
	regions     []tdx.Region
	getLogAfter int
	pe          bool
	outLog      string
	outFinal    string
}

func (c *simulateCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *simulateCommand) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().AddGoFlag(&flag.Flag{
		Name:  "measure",
		Value: &measureFlag{items: &c.items},
		Usage: "Repeatable mr:eventtype:path to measure and log the file at path, e.g. RTMR1:EV_EFI_ACTION:cmd.txt.",
	})
	cmd.PersistentFlags().AddGoFlag(&flag.Flag{
		Name:  "accept",
		Value: &regionFlag{regions: &c.regions},
		Usage: "Repeatable start:length of guest memory to accept before measuring.",
	})
	cmd.PersistentFlags().IntVar(&c.getLogAfter, "get_log_after", -1,
		"Call GetEventLog after this many measurements. Later ones go only to the final events table.")
	cmd.PersistentFlags().BoolVar(&c.pe, "pe_images", false,
		"Hash EFI boot services and runtime driver files as PE/COFF images.")
	cmd.PersistentFlags().StringVar(&c.outLog, "out_log", "", "If set, path to write the event log.")
	cmd.PersistentFlags().StringVar(&c.outFinal, "out_final", "",
		"If set, path to write the final events table.")
}

func (c *simulateCommand) PersistentPreRunE(*cobra.Command, []string) error {
	if len(c.items) == 0 {
		return fmt.Errorf("at least one --measure is required")
	}
	if c.app.NewSimulatedTD == nil {
		return errors.New("this build has no simulated TD")
	}
	if c.getLogAfter > len(c.items) {
		return fmt.Errorf("--get_log_after=%d exceeds the %d measurements", c.getLogAfter, len(c.items))
	}
	return nil
}

func (c *simulateCommand) flagsFor(item measureItem) uint64 {
	if !c.pe {
		return 0
	}
	switch item.EventType {
	case eventlog.EvEFIBootServicesApplication, eventlog.EvEFIBootServicesDriver,
		eventlog.EvEFIRuntimeServicesDriver:
		return abi.TDFlagPECOFFImage
	}
	return 0
}

func (c *simulateCommand) accept(ctx context.Context, td SimulatedTD) error {
	info := tdx.NewGuestInfo(td)
	output.Infof(ctx, "TD with %d of %d vCPUs, shared bit 0x%x", info.VCPUs(), info.MaxVCPUs(),
		info.SharedPageMask())
	if len(c.regions) == 0 {
		return nil
	}
	acc := tdx.NewAcceptor(td)
	for _, r := range c.regions {
		if err := acc.Accept(r); err != nil {
			return fmt.Errorf("could not accept 0x%x+0x%x: %w", uint64(r.Start), r.Length(), err)
		}
	}
	output.Infof(ctx, "Accepted %d bytes, %d pages were already accepted", td.AcceptedBytes(),
		acc.Duplicates())
	return nil
}

func (c *simulateCommand) run(ctx context.Context) error {
	td := c.app.NewSimulatedTD()
	if err := c.accept(ctx, td); err != nil {
		return err
	}
	reg := measure.NewRegistry()
	if err := reg.Register(measure.SHA384); err != nil {
		return err
	}
	p, err := protocol.New(reg, td, nil)
	if err != nil {
		return err
	}
	// The written log is the one the first GetEventLog returns. Later events are only in the final
	// events table.
	var info *protocol.EventLogInfo
	getLog := func() error {
		if info != nil {
			return nil
		}
		var err error
		info, err = p.GetEventLog(abi.TDEventLogFormatTCG2)
		return err
	}
	for i, item := range c.items {
		if i == c.getLogAfter {
			if err := getLog(); err != nil {
				return err
			}
		}
		data, err := ops.ReadFile(ctx, c.app.Storage, noBucket, item.Path)
		if err != nil {
			return err
		}
		err = p.HashLogExtendEvent(c.flagsFor(item), data, abi.NewTDEvent(item.MR, item.EventType, data))
		if errors.Is(err, efi.ErrVolumeFull) {
			output.Warningf(ctx, "%v", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("could not measure %s: %w", item.Path, err)
		}
	}
	if err := getLog(); err != nil {
		return err
	}
	if info.Truncated {
		output.Warningf(ctx, "Event log is truncated")
	}
	if err := writeOutput(ctx, c.app, c.outLog, info.Log); err != nil {
		return err
	}
	if err := writeOutput(ctx, c.app, c.outFinal, p.FinalEventsTable()); err != nil {
		return err
	}
	regs := td.Registers()
	for mr := abi.RTMR0; mr <= abi.MaxMRIndex; mr++ {
		output.Infof(ctx, "%s: %x", mr, regs[uint32(mr)])
	}
	return nil
}

func makeSimulateCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	simulate := &simulateCommand{app: app}
	cmd := &cobra.Command{
		Use: "simulate --measure=mr:eventtype:path... [flags]",
		Long: `Measures files into a simulated TD the way TD firmware does, and writes the resulting event log.

The simulated TD starts with zero RTMRs. Its final register values are printed so that a replay of
the written log can be checked against them.`,
		PersistentPreRunE: simulate.PersistentPreRunE,
		RunE:              ComposeRun(simulate, simulate.run),
	}
	cmd.SetContext(ctx)
	simulate.AddFlags(cmd)
	return cmd
}
