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

// Package storage persists the gateway's configuration (ports, proxies,
// certificates, ACME accounts, app config, administrator accounts) to a
// directory of TOML files and a content-addressed certificate tree, the
// same on-disk layout the control loop reloads from at startup.
package storage

import (
	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
)

// AcmeRecord is the persisted form of one ACME entry: its config plus
// an opaque, provider-serialized account credential blob (the ACME
// account JSON and its private key PEM), which this package treats as
// ciphertext-shaped data it neither parses nor validates.
type AcmeRecord struct {
	ID            string
	Identifiers   []string
	ChallengeType string
	Config        model.AcmeConfig
	AccountJSON   []byte
	AccountKeyPEM []byte
}

// Storage is the persistence boundary the control loop depends on. A
// FileStorage returns an error on read failure rather than panicking
// (LoadAppConfig also returns the defaults alongside it); the caller logs
// the error and carries on, the same tolerant-of-a-missing-file behavior
// the original file store has at startup.
type Storage interface {
	LoadAppConfig() (model.AppConfig, error)
	SaveAppConfig(model.AppConfig) error

	LoadPorts() ([]model.PortEntry, error)
	SavePorts([]model.PortEntry) error

	LoadProxies() ([]model.ProxyEntry, error)
	SaveProxies([]model.ProxyEntry) error

	LoadCerts() ([]*certstore.Cert, error)
	SaveCert(*certstore.Cert) error
	DeleteCert(id string) error

	LoadAcmeRecords() ([]AcmeRecord, error)
	SaveAcmeRecord(AcmeRecord) error
	DeleteAcmeRecord(id string) error

	LoadAccounts() ([]model.Account, error)
	SaveAccount(model.Account) error
}
