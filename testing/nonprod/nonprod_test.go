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


package nonprod

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/net/context"

	"github.com/google/tdvf-measure/abi"
	"github.com/google/tdvf-measure/cmd"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/google/tdvf-measure/eventlog"
	"github.com/google/tdvf-measure/testing/storage"
	"github.com/google/tdvf-measure/testing/testlog"
)

func TestSimulate(t *testing.T) {
	app := App()
	if app.NewSimulatedTD == nil {
		t.Fatal("App() has no simulated TD")
	}
	s := storage.WithInitialContents(map[string][]byte{"cmd.txt": []byte("console=ttyS0")}, "")
	app.Storage = s
	var out bytes.Buffer
	root := cmd.MakeApp(output.NewContext(context.Background(), &output.Options{Out: &out}), app)
	root.SetArgs([]string{"simulate", "--measure=RTMR2:EV_EFI_ACTION:cmd.txt", "--out_log=log.bin"})
	if err := root.Execute(); err != nil {
		t.Fatalf("simulate = %v", err)
	}
	log, ok := s.Contents("", "log.bin")
	if !ok || len(log) == 0 {
		t.Fatal("simulate did not write log.bin")
	}
	digest := sha512.Sum384([]byte("console=ttyS0"))
	rtmr2 := testlog.Fold(eventlog.AlgSHA384, digest[:])
	if want := fmt.Sprintf("%s: %x", abi.RTMR2, rtmr2); !strings.Contains(out.String(), want) {
		t.Errorf("simulate output %q does not contain %q", out.String(), want)
	}
}

func TestRootCmd(t *testing.T) {
	if RootCmd == nil {
		t.Fatal("RootCmd is nil")
	}
	if _, _, err := RootCmd.Find([]string{"simulate"}); err != nil {
		t.Errorf("RootCmd.Find(simulate) = %v", err)
	}
}
