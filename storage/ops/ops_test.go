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

package ops

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/storage/local"
	"github.com/google/tdvf-measure/storage/storagei"
	"github.com/google/tdvf-measure/testing/match"
	"github.com/google/tdvf-measure/testing/storage"
	"github.com/spf13/afero"
)

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	clients := map[string]func(t *testing.T) storagei.Client{
		"mock":  func(*testing.T) storagei.Client { return &storage.Mock{} },
		"local": func(t *testing.T) storagei.Client { return &local.StorageClient{Root: t.TempDir()} },
		"memory": func(*testing.T) storagei.Client {
			return &local.StorageClient{Root: "/td-root", Fs: afero.NewMemMapFs()}
		},
	}
	for name, mk := range clients {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			want := []byte("event log")
			if err := WriteFile(ctx, s, "td", "log.bin", want); err != nil {
				t.Fatalf("WriteFile() = %v", err)
			}
			got, err := ReadFile(ctx, s, "td", "log.bin")
			if err != nil || !bytes.Equal(got, want) {
				t.Errorf("ReadFile() = %q, %v, want %q, nil", got, err, want)
			}
			if _, err := ReadFile(ctx, s, "td", "missing.bin"); !errors.Is(err, efi.ErrNotFound) {
				t.Errorf("ReadFile(missing) = %v, want not found", err)
			}
			got, err = ReadOptional(ctx, s, "td", "missing.bin")
			if got != nil || err != nil {
				t.Errorf("ReadOptional(missing) = %v, %v, want nil, nil", got, err)
			}
			got, err = ReadOptional(ctx, s, "td", "")
			if got != nil || err != nil {
				t.Errorf("ReadOptional(\"\") = %v, %v, want nil, nil", got, err)
			}
		})
	}
}

func TestWriteFileErrors(t *testing.T) {
	ctx := context.Background()
	s := &storage.Mock{
		WriteErrs: map[string]error{"a": errors.New("read-only")},
		CloseErrs: map[string]error{"b": errors.New("disk full")},
	}
	if err := WriteFile(ctx, s, "", "a", nil); !match.Error(err, `could not open "a" for writing: read-only`) {
		t.Errorf("WriteFile(a) = %v", err)
	}
	if err := WriteFile(ctx, s, "", "b", nil); !match.Error(err, `could not close file "b": disk full`) {
		t.Errorf("WriteFile(b) = %v", err)
	}
}
