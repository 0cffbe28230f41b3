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
	"time"

	"github.com/taxygo/taxy/internal/subjectname"
)

// CertKind distinguishes server, client, and root certificates.
type CertKind int

const (
	CertKindServer CertKind = iota
	CertKindClient
	CertKindRoot
)

func (k CertKind) String() string {
	switch k {
	case CertKindClient:
		return "client"
	case CertKindRoot:
		return "root"
	default:
		return "server"
	}
}

// CertMetadata records provenance for certificates issued through ACME.
type CertMetadata struct {
	AcmeID    string
	CreatedAt time.Time
	IsTrusted bool
}

// CertInfo is the read-only summary of a stored certificate, as exposed
// to API consumers.
type CertInfo struct {
	ID          string
	Kind        CertKind
	Fingerprint string
	Issuer      string
	RootCert    *string
	San         []subjectname.Name
	NotAfter    time.Time
	NotBefore   time.Time
	IsCA        bool
	Metadata    *CertMetadata
}

// SelfSignedCertRequest describes a request to mint a self-signed leaf,
// optionally chained under a named CA certificate already in the store.
type SelfSignedCertRequest struct {
	San    []subjectname.Name
	CACert *string
}
