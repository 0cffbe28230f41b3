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

package control

import (
	"archive/tar"
	"bytes"
	"context"
	"time"

	"github.com/taxygo/taxy/internal/acme"
	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/events"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// SetBroadcastEvents is a no-op kept for parity with the admin API's
// connect/disconnect lifecycle: Subscribe/the returned cancel func
// already gate whether Publish does anything, so there is nothing
// separate to toggle here.
func (s *State) SetBroadcastEvents(bool) error { return nil }

// These methods run only on the control loop goroutine; reach them
// through Call. Each method that changes ports, proxies, or certificates
// reconciles the listener pool before returning so a reply never races a
// stale bind; SetAppConfig and the ACME entry methods do not reconcile.

// Ports returns a copy of the configured port list.
func (s *State) Ports() ([]model.PortEntry, error) {
	out := make([]model.PortEntry, len(s.ports))
	copy(out, s.ports)
	return out, nil
}

// PortStatuses reports the listener pool's observed state per port.
func (s *State) PortStatuses() (map[shortid.ID]model.PortStatus, error) {
	return s.pool.Status(), nil
}

// SetPort inserts or replaces the port with the given id.
func (s *State) SetPort(ctx context.Context, id shortid.ID, port model.Port) (model.PortEntry, error) {
	if id.Empty() {
		id = shortid.New()
	}
	entry := model.PortEntry{ID: id, Port: port}

	replaced := false
	for i, pe := range s.ports {
		if pe.ID == id {
			s.ports[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.ports = append(s.ports, entry)
	}

	if err := s.storage.SavePorts(s.ports); err != nil {
		return model.PortEntry{}, err
	}
	s.reconcile(ctx)
	return entry, nil
}

// DeletePort removes the port with the given id.
func (s *State) DeletePort(ctx context.Context, id shortid.ID) error {
	idx := -1
	for i, pe := range s.ports {
		if pe.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return taxyerr.IdNotFound(id.String())
	}
	s.ports = append(s.ports[:idx], s.ports[idx+1:]...)
	if err := s.storage.SavePorts(s.ports); err != nil {
		return err
	}
	s.reconcile(ctx)
	return nil
}

// ResetPort drains every in-flight connection on the given port without
// closing its listening socket or touching its configuration, so
// clients reconnect against the same bind address.
func (s *State) ResetPort(id shortid.ID) error {
	found := false
	for _, pe := range s.ports {
		if pe.ID == id {
			found = true
			break
		}
	}
	if !found {
		return taxyerr.IdNotFound(id.String())
	}
	if !s.pool.Reset(id) {
		return taxyerr.IdNotFound(id.String())
	}
	return nil
}

// Proxies returns a copy of the configured proxy list.
func (s *State) Proxies() ([]model.ProxyEntry, error) {
	out := make([]model.ProxyEntry, len(s.proxies))
	copy(out, s.proxies)
	return out, nil
}

// SetProxy inserts or replaces the proxy with the given id.
func (s *State) SetProxy(ctx context.Context, id shortid.ID, proxy model.Proxy) (model.ProxyEntry, error) {
	if id.Empty() {
		id = shortid.New()
	}
	entry := model.ProxyEntry{ID: id, Proxy: proxy}

	replaced := false
	for i, pe := range s.proxies {
		if pe.ID == id {
			s.proxies[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.proxies = append(s.proxies, entry)
	}

	if err := s.storage.SaveProxies(s.proxies); err != nil {
		return model.ProxyEntry{}, err
	}
	s.reconcile(ctx)
	return entry, nil
}

// DeleteProxy removes the proxy with the given id.
func (s *State) DeleteProxy(ctx context.Context, id shortid.ID) error {
	idx := -1
	for i, pe := range s.proxies {
		if pe.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return taxyerr.IdNotFound(id.String())
	}
	s.proxies = append(s.proxies[:idx], s.proxies[idx+1:]...)
	if err := s.storage.SaveProxies(s.proxies); err != nil {
		return err
	}
	s.reconcile(ctx)
	return nil
}

// Certs returns the Info summary of every certificate in the keyring.
func (s *State) Certs() ([]model.CertInfo, error) {
	certs := s.keyring.All()
	out := make([]model.CertInfo, len(certs))
	for i, c := range certs {
		out[i] = c.Info()
	}
	return out, nil
}

// AddCert uploads a PEM-encoded certificate chain and optional key into
// the keyring.
func (s *State) AddCert(ctx context.Context, kind model.CertKind, pemChain, pemKey []byte) (model.CertInfo, error) {
	cert, err := certstore.NewCert(kind, pemChain, pemKey)
	if err != nil {
		return model.CertInfo{}, err
	}
	if err := s.keyring.Add(cert); err != nil {
		return model.CertInfo{}, err
	}
	if err := s.storage.SaveCert(cert); err != nil {
		return model.CertInfo{}, err
	}
	s.reconcile(ctx)
	s.events.Publish(events.CertsUpdated())
	return cert.Info(), nil
}

// DeleteCert removes a certificate by id.
func (s *State) DeleteCert(ctx context.Context, id string) error {
	if err := s.keyring.Delete(id); err != nil {
		return err
	}
	if err := s.storage.DeleteCert(id); err != nil {
		return err
	}
	s.reconcile(ctx)
	s.events.Publish(events.CertsUpdated())
	return nil
}

// DownloadCert packages a certificate's chain and, when present, its
// private key into a tar archive (cert.pem, key.pem) for export.
func (s *State) DownloadCert(id string) ([]byte, error) {
	cert, ok := s.keyring.Get(id)
	if !ok {
		return nil, taxyerr.IdNotFound(id)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeTarFile(tw, "cert.pem", cert.PemChain); err != nil {
		return nil, err
	}
	if len(cert.PemKey) > 0 {
		if err := writeTarFile(tw, "key.pem", cert.PemKey); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0o600,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// AcmeEntries reports the wire-level summary of every ACME entry,
// resolving each against the newest certificate it has issued so far.
func (s *State) AcmeEntries() ([]model.AcmeInfo, error) {
	out := make([]model.AcmeInfo, 0, len(s.acmes))
	for _, entry := range s.acmes {
		var latest time.Time
		for _, c := range s.keyring.FindByAcme(entry.ID.String()) {
			if c.NotBefore.After(latest) {
				latest = c.NotBefore
			}
		}
		out = append(out, entry.Info(latest))
	}
	return out, nil
}

// AddAcmeEntry registers a new ACME account and persists it.
func (s *State) AddAcmeEntry(ctx context.Context, req model.AcmeRequest) (model.AcmeInfo, error) {
	id := shortid.New()
	entry, err := acme.NewEntry(ctx, s.logger, id, req)
	if err != nil {
		return model.AcmeInfo{}, err
	}

	rec, err := persistAcmeEntry(entry)
	if err != nil {
		return model.AcmeInfo{}, err
	}
	if err := s.storage.SaveAcmeRecord(rec); err != nil {
		return model.AcmeInfo{}, err
	}

	s.acmes[entry.ID] = entry
	s.events.Publish(events.AcmeUpdated())
	return entry.Info(time.Time{}), nil
}

// DeleteAcmeEntry removes an ACME entry's account and renewal policy,
// leaving previously issued certificates in place.
func (s *State) DeleteAcmeEntry(id shortid.ID) error {
	if _, ok := s.acmes[id]; !ok {
		return taxyerr.IdNotFound(id.String())
	}
	delete(s.acmes, id)
	if err := s.storage.DeleteAcmeRecord(id.String()); err != nil {
		return err
	}
	s.events.Publish(events.AcmeUpdated())
	return nil
}

// AppConfig returns the current app configuration.
func (s *State) AppConfig() (model.AppConfig, error) {
	return s.config, nil
}

// SetAppConfig replaces the app configuration and persists it.
func (s *State) SetAppConfig(cfg model.AppConfig) (model.AppConfig, error) {
	s.config = cfg
	if err := s.storage.SaveAppConfig(cfg); err != nil {
		return model.AppConfig{}, err
	}
	s.events.Publish(events.AppConfigUpdated(s.config, events.SourceApi))
	return s.config, nil
}
