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

	"github.com/google/tdvf-measure/ccel"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/spf13/cobra"
)

type acpiCommand struct {
	app       *AppComponents
	sysfsRoot string
	outLog    string
}

func (c *acpiCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *acpiCommand) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.sysfsRoot, "sysfs_root", c.app.SysfsRoot,
		"Mount point of sysfs for reading ACPI tables.")
	cmd.PersistentFlags().StringVar(&c.outLog, "out_log", "",
		"If set, path to write the log area the table describes.")
}

func (c *acpiCommand) PersistentPreRunE(*cobra.Command, []string) error {
	if c.sysfsRoot == "" {
		return fmt.Errorf("--sysfs_root must not be empty")
	}
	return nil
}

func (c *acpiCommand) run(ctx context.Context) error {
	table, log, err := ccel.Locate(&ccel.LocateOptions{SysfsRoot: c.sysfsRoot})
	if err != nil {
		return err
	}
	output.Infof(ctx, "Signature: %s", table.Signature)
	output.Infof(ctx, "Revision: %d", table.Revision)
	output.Infof(ctx, "OEM: %q %q revision %d", table.OEMID, table.OEMTableID, table.OEMRevision)
	output.Infof(ctx, "Creator: %q revision %d", table.CreatorID, table.CreatorRevision)
	if table.Signature == ccel.Signature {
		output.Infof(ctx, "CC type: %s, subtype %d", table.CCType, table.CCSubType)
	}
	output.Infof(ctx, "Log area: 0x%x, minimum length %d", table.LASA, table.LAML)
	return writeOutput(ctx, c.app, c.outLog, log)
}

func makeAcpiCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	acpi := &acpiCommand{app: app}
	cmd := &cobra.Command{
		Use:               "acpi [flags]",
		Long:              `Prints the CCEL ACPI table that locates the TD event log.`,
		PersistentPreRunE: acpi.PersistentPreRunE,
		RunE:              ComposeRun(acpi, acpi.run),
	}
	cmd.SetContext(ctx)
	acpi.AddFlags(cmd)
	return cmd
}
