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

// Package ops provides whole-object operations on a storagei.Client.
package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/google/tdvf-measure/efi"
	"github.com/google/tdvf-measure/storage/storagei"
)

// WriteFile replaces the contents of object name in bucket.
func WriteFile(ctx context.Context, s storagei.Client, bucket, name string, contents []byte) error {
	w, err := s.Writer(ctx, bucket, name)
	if err != nil {
		return fmt.Errorf("could not open %q for writing: %w", name, err)
	}
	n, err := w.Write(contents)
	if err == nil && n != len(contents) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.Close()
		return fmt.Errorf("could not write file %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not close file %q: %w", name, err)
	}
	return nil
}

// ReadFile returns an object's contents. A missing object is efi.ErrNotFound.
func ReadFile(ctx context.Context, s storagei.Client, bucket, name string) ([]byte, error) {
	reader, err := s.Reader(ctx, bucket, name)
	if err != nil && s.IsNotExists(err) {
		return nil, fmt.Errorf("%w: file %q", efi.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", name, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// ReadOptional is ReadFile for objects that may be absent. An empty name or a missing object
// gives nil contents without error.
func ReadOptional(ctx context.Context, s storagei.Client, bucket, name string) ([]byte, error) {
	if name == "" {
		return nil, nil
	}
	ok, err := s.Exists(ctx, bucket, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ReadFile(ctx, s, bucket, name)
}
