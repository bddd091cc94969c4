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


// The tdvfmeasure-nonprod tool is tdvfmeasure with simulate backed by an in-memory TD.
package main

import (
	"io"
	"os"

	"github.com/google/logger"
	"github.com/google/tdvf-measure/testing/nonprod"
)

func main() {
	defer logger.Init("tdvfmeasure-nonprod", false, false, io.Discard).Close()
	if err := nonprod.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
