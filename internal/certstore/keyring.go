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

package certstore

import (
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// Keyring holds every certificate known to the gateway, kept sorted by
// Less so the first matching entry is always the freshest one.
type Keyring struct {
	order []string
	certs map[string]*Cert
}

// NewKeyring builds a Keyring from an initial set of certs.
func NewKeyring(certs ...*Cert) *Keyring {
	k := &Keyring{certs: make(map[string]*Cert)}
	for _, c := range certs {
		k.certs[c.ID.String()] = c
	}
	k.resort()
	return k
}

func (k *Keyring) resort() {
	k.order = k.order[:0]
	list := make([]*Cert, 0, len(k.certs))
	for _, c := range k.certs {
		list = append(list, c)
	}
	SortCerts(list)
	for _, c := range list {
		k.order = append(k.order, c.ID.String())
	}
}

// All returns every certificate, in ranked order.
func (k *Keyring) All() []*Cert {
	out := make([]*Cert, 0, len(k.order))
	for _, id := range k.order {
		out = append(out, k.certs[id])
	}
	return out
}

// Get looks up a certificate by its ShortId's textual form.
func (k *Keyring) Get(id string) (*Cert, bool) {
	c, ok := k.certs[id]
	return c, ok
}

// FindByAcme returns every certificate issued by the named ACME entry.
func (k *Keyring) FindByAcme(acmeID string) []*Cert {
	var out []*Cert
	for _, id := range k.order {
		c := k.certs[id]
		if c.Metadata != nil && c.Metadata.AcmeID == acmeID {
			out = append(out, c)
		}
	}
	return out
}

// RootCerts returns every certificate of kind Root, used to build the
// trust anchor pool for upstream TLS connections (see Resolver.RootCAs).
func (k *Keyring) RootCerts() []*Cert {
	var out []*Cert
	for _, id := range k.order {
		c := k.certs[id]
		if c.Kind == model.CertKindRoot {
			out = append(out, c)
		}
	}
	return out
}

// FindServerCert returns the best-ranked server certificate whose SAN
// list covers name, used by the TLS resolver on each handshake.
func (k *Keyring) FindServerCert(name model.SubjectNameTest) (*Cert, bool) {
	for _, id := range k.order {
		c := k.certs[id]
		if c.Kind != model.CertKindServer {
			continue
		}
		if c.HasSubjectName(name) {
			return c, true
		}
	}
	return nil, false
}

// Add inserts item, failing if an entry with the same id already exists.
func (k *Keyring) Add(item *Cert) error {
	if _, exists := k.certs[item.ID.String()]; exists {
		return taxyerr.IdAlreadyExists(item.ID.String())
	}
	k.certs[item.ID.String()] = item
	k.resort()
	return nil
}

// Delete removes the certificate with the given id.
func (k *Keyring) Delete(id string) error {
	if _, exists := k.certs[id]; !exists {
		return taxyerr.IdNotFound(id)
	}
	delete(k.certs, id)
	k.resort()
	return nil
}

// Len reports the number of certificates held.
func (k *Keyring) Len() int {
	return len(k.certs)
}
