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

package rim

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/tdvf-measure/efi"
	"github.com/google/uuid"
)

// DefaultEfiVarsRoot is where Linux mounts efivarfs.
const DefaultEfiVarsRoot = "/sys/firmware/efi/efivars"

// VariableReader reads the contents of a UEFI variable by vendor GUID and name.
type VariableReader interface {
	ReadVariable(guid uuid.UUID, name string) ([]byte, error)
}

// EfiVarFSReader reads variables from a Linux efivarfs mount.
type EfiVarFSReader struct {
	// Root is the mount location of the efivarfs volume.
	Root string
}

// ReadVariable returns a variable's data without the 4-byte attribute header efivarfs puts in
// front of it.
func (r *EfiVarFSReader) ReadVariable(guid uuid.UUID, name string) ([]byte, error) {
	path, err := securejoin.SecureJoin(r.Root, fmt.Sprintf("%s-%s", name, guid))
	if err != nil {
		return nil, fmt.Errorf("variable name evaluated to illegal path: %v", err)
	}
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: variable %s-%s", efi.ErrNotFound, name, guid)
	}
	if err != nil {
		return nil, err
	}
	if len(contents) < 4 {
		return nil, fmt.Errorf("variable %s-%s is %d bytes, too small for its attribute header", name,
			guid, len(contents))
	}
	return contents[4:], nil
}
