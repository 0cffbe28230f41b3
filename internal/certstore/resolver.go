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
	"crypto/tls"
	"crypto/x509"
	"sync"

	"github.com/taxygo/taxy/internal/subjectname"
)

// Resolver picks the server certificate presented for a TLS handshake:
// the keyring's best-ranked server certificate covering the SNI name (or
// the first default name when the client sends no SNI). When default
// names are configured, an SNI name none of them matches is rejected.
type Resolver struct {
	mu           sync.RWMutex
	keyring      *Keyring
	defaultNames []subjectname.Name

	cache sync.Map // serverName -> *tls.Certificate
}

// NewResolver builds a Resolver over keyring, restricted to the given
// default server names (empty means any SNI is accepted).
func NewResolver(keyring *Keyring, defaultNames []subjectname.Name) *Resolver {
	return &Resolver{keyring: keyring, defaultNames: defaultNames}
}

// Update swaps in a fresh keyring snapshot, invalidating the cache.
func (r *Resolver) Update(keyring *Keyring) {
	r.mu.Lock()
	r.keyring = keyring
	r.mu.Unlock()
	r.cache.Range(func(key, _ any) bool {
		r.cache.Delete(key)
		return true
	})
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Resolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	serverName := hello.ServerName
	if cached, ok := r.cache.Load(serverName); ok {
		return cached.(*tls.Certificate), nil
	}

	r.mu.RLock()
	keyring := r.keyring
	names := r.defaultNames
	r.mu.RUnlock()

	if len(names) > 0 && serverName != "" {
		allowed := false
		for _, n := range names {
			if n.Test(serverName) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, errNoMatchingServerName
		}
	}

	name, err := subjectname.Parse(serverNameOrDefault(serverName, names))
	if err != nil {
		return nil, err
	}
	cert, ok := keyring.FindServerCert(name)
	if !ok {
		return nil, errNoMatchingServerName
	}
	tlsCert, err := cert.CertifiedKey()
	if err != nil {
		return nil, err
	}
	r.cache.Store(serverName, tlsCert)
	return tlsCert, nil
}

// RootCAs builds a trust anchor pool from the keyring's current root
// certificates, used by upstream TLS clients in place of the system
// pool so a locally minted CA is trusted for passthrough/proxying.
func (r *Resolver) RootCAs() *x509.CertPool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	keyring := r.keyring
	r.mu.RUnlock()

	roots := keyring.RootCerts()
	if len(roots) == 0 {
		return nil
	}
	pool := x509.NewCertPool()
	for _, c := range roots {
		certs, err := c.Certificates()
		if err != nil {
			continue
		}
		for _, leaf := range certs {
			pool.AddCert(leaf)
		}
	}
	return pool
}

func serverNameOrDefault(serverName string, names []subjectname.Name) string {
	if serverName != "" {
		return serverName
	}
	if len(names) > 0 {
		return names[0].String()
	}
	return ""
}

var errNoMatchingServerName = &noCertError{}

type noCertError struct{}

func (*noCertError) Error() string { return "no certificate matches server name" }
