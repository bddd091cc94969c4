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
	"bytes"
	"fmt"

	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/measure"
	"github.com/google/tdvf-measure/storage/ops"
	"github.com/spf13/cobra"
)

type extendCommand struct {
	app   *AppComponents
	index *abi.MRIndex
	data  string
}

func (c *extendCommand) InitContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (c *extendCommand) AddFlags(cmd *cobra.Command) {
	addMRIndexFlag(cmd, &c.index)
	cmd.PersistentFlags().StringVar(&c.data, "data", "", "Path to the data to hash and extend.")
}

func (c *extendCommand) PersistentPreRunE(*cobra.Command, []string) error {
	if c.app.Extender == nil {
		return fmt.Errorf("this build has no RTMR extender")
	}
	if c.index == nil {
		return fmt.Errorf("--index is required")
	}
	if _, err := c.index.RTMR(); err != nil {
		return err
	}
	if c.data == "" {
		return fmt.Errorf("--data is required")
	}
	return nil
}

func (c *extendCommand) run(ctx context.Context) error {
	data, err := ops.ReadFile(ctx, c.app.Storage, noBucket, c.data)
	if err != nil {
		return err
	}
	reg := measure.NewRegistry()
	if err := reg.Register(measure.SHA384); err != nil {
		return err
	}
	digests, err := measure.NewExtender(reg, c.app.Extender).HashThenExtend(*c.index, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for _, d := range digests {
		output.Infof(ctx, "Extended %s with %s %x", c.index, eventlog.AlgorithmName(d.AlgID), d.Digest)
	}
	return nil
}

func makeExtendCmd(ctx context.Context, app *AppComponents) *cobra.Command {
	extend := &extendCommand{app: app}
	cmd := &cobra.Command{
		Use:               "extend --index=RTMRn --data=FILE",
		Long:              `Hashes a file with SHA384 and extends an RTMR of the running TD with the digest.`,
		PersistentPreRunE: extend.PersistentPreRunE,
		RunE:              ComposeRun(extend, extend.run),
	}
	cmd.SetContext(ctx)
	extend.AddFlags(cmd)
	return cmd
}
