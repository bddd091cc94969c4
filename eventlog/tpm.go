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

package eventlog

import (
	"crypto"
	// Register the digests the log may name.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/tdvf-measure/efi"
)

// TPM_ALG_ID values of the digests a crypto-agile log may carry.
const (
	AlgSHA1   = uint16(tpm2.AlgSHA1)
	AlgSHA256 = uint16(tpm2.AlgSHA256)
	AlgSHA384 = uint16(tpm2.AlgSHA384)
	AlgSHA512 = uint16(tpm2.AlgSHA512)
	AlgSM3256 = uint16(0x0012) // TPM_ALG_SM3_256, absent from legacy/tpm2
)

var tpmAlgoSize = map[uint16]int{
	AlgSHA1:   crypto.SHA1.Size(),
	AlgSHA256: crypto.SHA256.Size(),
	AlgSHA384: crypto.SHA384.Size(),
	AlgSHA512: crypto.SHA512.Size(),
	AlgSM3256: 32,
}

var tpmAlgoName = map[uint16]string{
	AlgSHA1:   "SHA1",
	AlgSHA256: "SHA256",
	AlgSHA384: "SHA384",
	AlgSHA512: "SHA512",
	AlgSM3256: "SM3_256",
}

// AlgorithmName returns a readable name for a TPM_ALG_ID.
func AlgorithmName(alg uint16) string {
	if name, ok := tpmAlgoName[alg]; ok {
		return name
	}
	return fmt.Sprintf("TPM_ALG(0x%04x)", alg)
}

// AlgorithmFromName returns the TPM_ALG_ID with the given AlgorithmName.
func AlgorithmFromName(name string) (uint16, bool) {
	for alg, n := range tpmAlgoName {
		if n == name {
			return alg, true
		}
	}
	return 0, false
}

// CryptoHash returns the hash function a TPM_ALG_ID names.
func CryptoHash(alg uint16) (crypto.Hash, error) {
	h, err := tpm2.Algorithm(alg).Hash()
	if err != nil {
		return 0, fmt.Errorf("%w: algorithm %s: %v", efi.ErrUnsupported, AlgorithmName(alg), err)
	}
	if !h.Available() {
		return 0, fmt.Errorf("%w: algorithm %s has no hash implementation", efi.ErrUnsupported,
			AlgorithmName(alg))
	}
	return h, nil
}
