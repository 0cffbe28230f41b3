// Copyright The taxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

// AcmeConfig holds the renewal policy shared by an ACME entry.
type AcmeConfig struct {
	Active       bool
	Provider     string
	RenewalDays  uint64
}

// DefaultAcmeConfig mirrors the original's serde defaults: active, 60-day
// renewal window.
func DefaultAcmeConfig() AcmeConfig {
	return AcmeConfig{Active: true, RenewalDays: 60}
}

// ExternalAccountBinding carries ACME EAB credentials for providers that
// require pre-authorization (e.g. ZeroSSL).
type ExternalAccountBinding struct {
	KeyID   string
	HmacKey []byte
}

// Acme is the persisted configuration of one ACME certificate order.
type Acme struct {
	Config        AcmeConfig
	Identifiers   []subjectname.Name
	ChallengeType string
}

// AcmeEntry pairs an Acme configuration with its identifier.
type AcmeEntry struct {
	ID   shortid.ID
	Acme Acme
}

// AcmeInfo is the read-only summary exposed to API consumers.
type AcmeInfo struct {
	ID            shortid.ID
	Config        AcmeConfig
	Identifiers   []string
	ChallengeType string
	NextRenewal   *int64
}

// AcmeRequest is the input to create a new ACME order against a
// directory URL, with optional EAB and contact addresses.
type AcmeRequest struct {
	ServerURL string
	Contacts  []string
	Eab       *ExternalAccountBinding
	Acme      Acme
}
