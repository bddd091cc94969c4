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

// Package local provides a storagei.Client on local disk.
package local

import (
	"fmt"
	"golang.org/x/net/context"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/tdvf-measure/cmd/output"
	"github.com/spf13/afero"
)

const defaultPerm os.FileMode = 0755

// StorageClient stores objects as files. With an empty Root, bucket and object are joined as
// ordinary paths. Otherwise every path is confined to Root.
type StorageClient struct {
	Root string
	// Fs is the filesystem holding the files. Nil means the host's.
	Fs afero.Fs
}

func (s *StorageClient) fs() afero.Fs {
	if s.Fs == nil {
		return afero.NewOsFs()
	}
	return s.Fs
}

func (s *StorageClient) localPath(bucket, object string) (string, error) {
	p := filepath.Join(bucket, object)
	if s.Root == "" {
		return p, nil
	}
	return securejoin.SecureJoin(s.Root, p)
}

// Reader opens an object for reading.
func (s *StorageClient) Reader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	p, err := s.localPath(bucket, object)
	if err != nil {
		return nil, err
	}
	return s.fs().Open(p)
}

// Writer truncates or creates an object, and any directories above it.
func (s *StorageClient) Writer(ctx context.Context, bucket, object string) (io.WriteCloser, error) {
	p, err := s.localPath(bucket, object)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := s.fs().MkdirAll(dir, defaultPerm); err != nil {
			return nil, fmt.Errorf("could not prepare directory for %s: %w", object, err)
		}
	}
	w, err := s.fs().OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	output.Debugf(ctx, "opened writer for %s", p)
	return w, nil
}

// Exists returns whether an object exists.
func (s *StorageClient) Exists(_ context.Context, bucket, object string) (bool, error) {
	p, err := s.localPath(bucket, object)
	if err != nil {
		return false, err
	}
	_, err = s.fs().Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// IsNotExists returns whether err says an object does not exist.
func (s *StorageClient) IsNotExists(err error) bool {
	return os.IsNotExist(err)
}

// EnsureBucketExists creates the bucket directory.
func (s *StorageClient) EnsureBucketExists(_ context.Context, bucket string) error {
	p, err := s.localPath(bucket, "")
	if err != nil {
		return err
	}
	return s.fs().MkdirAll(p, defaultPerm)
}
