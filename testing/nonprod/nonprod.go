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


// Package nonprod builds the tdvfmeasure command tree with a simulated TD, so that simulate runs
// outside a real TD guest.
package nonprod

import (
	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/cmd"
	"github.com/google/tdvf-measure/testing/faketdx"
	"github.com/spf13/cobra"
)

var (
	// RootCmd is the cobra representation of the nonprod root command.
	RootCmd *cobra.Command
)

// App returns the default components with simulate backed by an in-memory TD.
func App() *cmd.AppComponents {
	app := cmd.DefaultAppComponents()
	app.NewSimulatedTD = func() cmd.SimulatedTD { return faketdx.New() }
	return app
}

func init() {
	RootCmd = cmd.MakeApp(context.Background(), App())
}
