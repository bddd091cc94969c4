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

package protocol

import (
	"bytes"
	"crypto"
	"fmt"

	"github.com/foxboron/go-uefi/authenticode"
	"github.com/google/tdvf-measure/efi"
)

// ImageHasher computes the digest of a PE/COFF image.
type ImageHasher interface {
	HashImage(image []byte, h crypto.Hash) ([]byte, error)
}

// AuthenticodeHasher hashes images the way Secure Boot does, skipping the checksum, the
// certificate table entry, and the certificate table itself.
type AuthenticodeHasher struct{}

// HashImage returns the Authenticode digest of image.
func (AuthenticodeHasher) HashImage(image []byte, h crypto.Hash) ([]byte, error) {
	parsed, err := authenticode.Parse(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse PE/COFF image: %v", efi.ErrUnsupported, err)
	}
	return parsed.Hash(h), nil
}
