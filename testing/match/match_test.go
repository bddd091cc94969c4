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

package match

import (
	"errors"
	"fmt"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestError(t *testing.T) {
	tcs := []struct {
		name    string
		err     error
		wantErr string
		want    bool
	}{
		{name: "nil", want: true},
		{name: "unexpected", err: errSentinel},
		{name: "missing", wantErr: "sentinel"},
		{name: "substring", err: fmt.Errorf("wrapped: %w", errSentinel), wantErr: "sentinel", want: true},
		{name: "mismatch", err: errSentinel, wantErr: "other"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := Error(tc.err, tc.wantErr); got != tc.want {
				t.Errorf("Error(%v, %q) = %v, want %v", tc.err, tc.wantErr, got, tc.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("%w: detail", errSentinel)
	if !ErrorIs(wrapped, errSentinel, "detail") {
		t.Errorf("ErrorIs(%v, sentinel, detail) = false, want true", wrapped)
	}
	if ErrorIs(errors.New("sentinel: detail"), errSentinel, "detail") {
		t.Error("ErrorIs() matched an unwrapped copy of the sentinel")
	}
	if !ErrorIs(wrapped, nil, "detail") {
		t.Errorf("ErrorIs(%v, nil, detail) = false, want true", wrapped)
	}
}
