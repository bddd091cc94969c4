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

// Package cmd implements the tdvfmeasure command line tool for inspecting, replaying, and
// producing TD event logs.
package cmd

import (
	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/cmd/output"
	"github.com/spf13/cobra"
)

const noBucket = ""

// RunFn is a cobra RunE function.
type RunFn func(*cobra.Command, []string) error

// makeRootCmd creates an entrypoint for tdvfmeasure. Output options already in ctx0 are kept, and
// their flags bind to them.
func makeRootCmd(ctx0 context.Context, app *AppComponents) *cobra.Command {
	// Subcommands have their own PersistentPreRunE, and the global checks below must still run.
	cobra.EnableTraverseRunHooks = true
	ctx := ctx0
	flags, err := output.FromContext(ctx0)
	if err != nil {
		flags = &output.Options{}
		ctx = output.NewContext(ctx0, flags)
	}
	cmd := &cobra.Command{
		Use: "tdvfmeasure",
		Long: `Command line tool for TD measurement registers and their event log

This tool reads the event log that TD firmware keeps for MRTD and the RTMRs, replays it, and
compares the result against a TDX quote or a policy.
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.Validate(cmd); err != nil {
				return err
			}
			if app.Global == nil {
				return nil
			}
			if err := app.Global.PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			ctx, err := app.Global.InitContext(cmd.Context())
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.SetContext(ctx)
	if app.Global != nil {
		app.Global.AddFlags(cmd)
	}
	flags.AddFlags(cmd)
	return cmd
}
