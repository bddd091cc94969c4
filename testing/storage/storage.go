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

// Package storage provides an in-memory storagei.Client for tests.
package storage

import (
	"bytes"
	"golang.org/x/net/context"
	"io"
	"os"
	"path"
	"sync"
)

// Mock holds objects in memory. Canned errors are keyed by "bucket/object" as path.Join gives it.
type Mock struct {
	mu      sync.Mutex
	objects map[string][]byte
	// ReadErrs and WriteErrs are returned by Reader and Writer for specific objects.
	ReadErrs  map[string]error
	WriteErrs map[string]error
	// CloseErrs are returned when closing a writer, and the write is dropped.
	CloseErrs map[string]error
	// EnsureErrs are returned by EnsureBucketExists for specific buckets.
	EnsureErrs map[string]error
	// Return this error from all operations for simple error specification.
	err error
}

func key(bucket, object string) string {
	return path.Join(bucket, object)
}

// ObjectWriter buffers an object's new contents until Close.
type ObjectWriter struct {
	m        *Mock
	key      string
	buf      bytes.Buffer
	closeErr error
}

// Write appends b to the pending contents.
func (w *ObjectWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// Close commits the contents to the Mock, or returns a canned error.
func (w *ObjectWriter) Close() error {
	if w.closeErr != nil {
		return w.closeErr
	}
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.m.objects == nil {
		w.m.objects = make(map[string][]byte)
	}
	w.m.objects[w.key] = bytes.Clone(w.buf.Bytes())
	return nil
}

// Reader returns the object's contents or os.ErrNotExist.
func (s *Mock) Reader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	k := key(bucket, object)
	if err := s.ReadErrs[k]; err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[k]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists returns whether the object has contents.
func (s *Mock) Exists(_ context.Context, bucket, object string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key(bucket, object)]
	return ok, nil
}

// Writer returns a writer whose Close replaces the object.
func (s *Mock) Writer(_ context.Context, bucket, object string) (io.WriteCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	k := key(bucket, object)
	if err := s.WriteErrs[k]; err != nil {
		return nil, err
	}
	return &ObjectWriter{m: s, key: k, closeErr: s.CloseErrs[k]}, nil
}

// IsNotExists returns whether an error returned from Mock represents the NotExists error.
func (s *Mock) IsNotExists(err error) bool {
	return os.IsNotExist(err)
}

// EnsureBucketExists returns the bucket's canned error, if any.
func (s *Mock) EnsureBucketExists(_ context.Context, bucket string) error {
	if s.err != nil {
		return s.err
	}
	return s.EnsureErrs[bucket]
}

// Contents returns an object's contents and whether it exists.
func (s *Mock) Contents(bucket, object string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key(bucket, object)]
	return data, ok
}

// WithInitialContents returns a Mock holding the given objects in one bucket.
func WithInitialContents(initialContents map[string][]byte, bucket string) *Mock {
	m := &Mock{objects: make(map[string][]byte)}
	for k, v := range initialContents {
		m.objects[key(bucket, k)] = bytes.Clone(v)
	}
	return m
}

// WithError returns a Mock whose every operation returns err.
func WithError(err error) *Mock {
	return &Mock{err: err}
}
