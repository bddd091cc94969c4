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

package extract

import (
	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
	"github.com/google/go-configfs-tsm/report"
	"github.com/pkg/errors"
)

// ConfigfsTsmQuoteProvider gets TD quotes through the Linux configfs-tsm report interface.
type ConfigfsTsmQuoteProvider struct {
	Client configfsi.Client
}

func (qp *ConfigfsTsmQuoteProvider) client() (configfsi.Client, error) {
	if qp.Client != nil {
		return qp.Client, nil
	}
	cl, err := linuxtsm.MakeClient()
	if err != nil {
		return nil, err
	}
	qp.Client = cl
	return cl, nil
}

// IsSupported returns true if the guest exposes configfs-tsm reports.
func (qp *ConfigfsTsmQuoteProvider) IsSupported() bool {
	_, err := qp.client()
	return err == nil
}

// GetRawQuote returns the OutBlob of a configfs-tsm report over reportData.
func (qp *ConfigfsTsmQuoteProvider) GetRawQuote(reportData [64]byte) ([]uint8, error) {
	cl, err := qp.client()
	if err != nil {
		return nil, errors.Wrap(err, "configfs-tsm is unavailable")
	}
	resp, err := report.Get(cl, &report.Request{InBlob: reportData[:]})
	if err != nil {
		return nil, errors.Wrap(err, "configfs-tsm report")
	}
	return resp.OutBlob, nil
}
