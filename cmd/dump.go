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
	"strings"

	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/extract/rim"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type dumpCommand struct {
	app       *AppComponents
	src       *logSource
	index     *abi.MRIndex
	fetchRIMs bool
}

func (c *dumpCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *dumpCommand) AddFlags(cmd *cobra.Command) {
	addMRIndexFlag(cmd, &c.index)
	cmd.PersistentFlags().BoolVar(&c.fetchRIMs, "fetch_rims", false,
		"Fetch the reference integrity manifests that SP 800-155 events in the log point to.")
}

func (c *dumpCommand) PersistentPreRunE(*cobra.Command, []string) error {
	return nil
}

func algorithmNames(algs []uint16) string {
	names := make([]string, len(algs))
	for i, alg := range algs {
		names[i] = eventlog.AlgorithmName(alg)
	}
	return strings.Join(names, ", ")
}

// describeEventData returns a one-line summary of an event's decoded data.
func describeEventData(eventType uint32, data []byte) string {
	decoded, err := eventlog.DecodeEventData(eventType, data)
	if err != nil {
		return fmt.Sprintf("undecodable data: %v", err)
	}
	switch e := decoded.(type) {
	case *eventlog.TextEvent:
		return fmt.Sprintf("%q", e.Text)
	case *eventlog.UCS2Event:
		return fmt.Sprintf("%q", e.Text)
	case *eventlog.SeparatorEvent:
		return fmt.Sprintf("separator %x", e.Value)
	case *eventlog.VariableDataEvent:
		return fmt.Sprintf("variable %s-%s, %d bytes", e.UnicodeName, e.VariableName.UUID,
			len(e.VariableData))
	case *eventlog.ImageLoadEvent:
		return fmt.Sprintf("image at 0x%x, %d bytes", e.ImageLocationInMemory, e.ImageLengthInMemory)
	case *eventlog.FirmwareBlobEvent:
		if e.Description != "" {
			return fmt.Sprintf("firmware blob %q at 0x%x, %d bytes", e.Description, e.BlobBase, e.BlobLength)
		}
		return fmt.Sprintf("firmware blob at 0x%x, %d bytes", e.BlobBase, e.BlobLength)
	case *eventlog.HandoffTablesEvent:
		return fmt.Sprintf("%d handoff tables", len(e.Tables))
	case *eventlog.SP800155Event3:
		return fmt.Sprintf("SP 800-155 platform ID, RIM locator type %d", e.RIMLocatorType)
	case *eventlog.StartupLocalityEvent:
		return fmt.Sprintf("startup locality %d", e.StartupLocality)
	case *eventlog.SPDMEvent:
		return fmt.Sprintf("SPDM device type %d", e.DeviceType)
	case *eventlog.UnknownEvent:
		return fmt.Sprintf("%d bytes", len(e.Data))
	}
	return fmt.Sprintf("%T", decoded)
}

func (c *dumpCommand) printEvent(ctx context.Context, e *eventlog.Event) {
	output.Infof(ctx, "%s %s at 0x%x", mrName(e.MRIndex), eventlog.EventTypeName(e.EventType), e.Offset)
	ictx := output.WithIndent(ctx)
	for _, d := range e.Digests {
		output.Infof(ictx, "%s: %x", eventlog.AlgorithmName(d.AlgID), d.Digest)
	}
	output.Infof(ictx, "%s", describeEventData(e.EventType, e.Data))
}

func (c *dumpCommand) selected(e *eventlog.Event) bool {
	return c.index == nil || e.MRIndex == uint32(*c.index)
}

func (c *dumpCommand) printRIMs(ctx context.Context, l *eventlog.Log) error {
	events, err := rim.Events(l)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		output.Infof(ctx, "No RIM locators")
		return nil
	}
	types := maps.Keys(events)
	slices.Sort(types)
	for _, t := range types {
		for _, evt := range events[t] {
			data, err := rim.Locate(t, evt.RIMLocator.Data, c.app.RIMs)
			if err != nil {
				output.Warningf(ctx, "Could not fetch RIM of locator type %d: %v", t, err)
				continue
			}
			output.Infof(ctx, "RIM of locator type %d for %q: %d bytes", t,
				evt.PlatformModel.Data, len(data))
		}
	}
	return nil
}

func (c *dumpCommand) run(ctx context.Context) error {
	l := c.src.loaded
	if l.Table != nil {
		output.Infof(ctx, "%s table: %s, log at 0x%x, %d bytes", l.Table.Signature, l.Table.CCType,
			l.Table.LASA, l.Table.LAML)
	}
	output.Infof(ctx, "Log algorithms: %s", algorithmNames(l.Log.Header.Algorithms()))
	it := l.Log.Events()
	for it.Next() {
		if c.selected(it.Event()) {
			c.printEvent(ctx, it.Event())
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if l.Final != nil {
		output.Infof(ctx, "Final events: %d", len(l.Final.Events))
		for _, e := range l.Final.Events {
			if c.selected(e) {
				c.printEvent(output.WithIndent(ctx), e)
			}
		}
	}
	if c.fetchRIMs {
		return c.printRIMs(ctx, l.Log)
	}
	return nil
}

func makeDumpCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	src := newLogSource(app)
	dump := &dumpCommand{app: app, src: src}
	cmp := Compose(src, dump)
	cmd := &cobra.Command{
		Use: "dump [flags]",
		Long: `Prints the entries of a TD event log.

Each entry shows its register, event type, digests, and decoded data. Entries of the final events
table follow the log's own.`,
		PersistentPreRunE: cmp.PersistentPreRunE,
		RunE:              ComposeRun(cmp, dump.run),
	}
	cmd.SetContext(ctx)
	cmp.AddFlags(cmd)
	return cmd
}
