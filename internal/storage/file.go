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

package storage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

// FileStorage persists state under a single directory:
//
//	config.toml     AppConfig
//	ports.toml      id -> Port, one TOML table per entry
//	proxies.toml    id -> Proxy
//	acme.toml       id -> AcmeRecord
//	accounts.toml   username -> Account
//	certs/<kind>/<id>/cert.pem, key.pem
type FileStorage struct {
	dir string
}

// NewFileStorage returns a FileStorage rooted at dir. The directory is
// created on first write, not on construction.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (s *FileStorage) path(elem ...string) string {
	return filepath.Join(append([]string{s.dir}, elem...)...)
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = toml.Decode(string(data), v)
	return err
}

func encodeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// --- app config ---

type appConfigDTO struct {
	BackgroundTaskIntervalSecs int64  `toml:"background_task_interval_secs"`
	HttpChallengeAddr          string `toml:"http_challenge_addr"`
}

func (s *FileStorage) LoadAppConfig() (model.AppConfig, error) {
	var dto appConfigDTO
	if err := decodeFile(s.path("config.toml"), &dto); err != nil {
		return model.DefaultAppConfig(), err
	}
	cfg := model.DefaultAppConfig()
	if dto.BackgroundTaskIntervalSecs > 0 {
		cfg.BackgroundTaskInterval = time.Duration(dto.BackgroundTaskIntervalSecs) * time.Second
	}
	if dto.HttpChallengeAddr != "" {
		addr, err := multiaddr.Parse(dto.HttpChallengeAddr)
		if err != nil {
			return cfg, err
		}
		cfg.HttpChallengeAddr = addr
	}
	return cfg, nil
}

func (s *FileStorage) SaveAppConfig(cfg model.AppConfig) error {
	dto := appConfigDTO{
		BackgroundTaskIntervalSecs: int64(cfg.BackgroundTaskInterval.Seconds()),
		HttpChallengeAddr:          cfg.HttpChallengeAddr.String(),
	}
	return encodeFile(s.path("config.toml"), dto)
}

// --- ports ---

type tlsTerminationDTO struct {
	ServerNames []string `toml:"server_names"`
}

type portDTO struct {
	Active         bool               `toml:"active"`
	Name           string             `toml:"name,omitempty"`
	Listen         string             `toml:"listen"`
	TlsTermination *tlsTerminationDTO `toml:"tls_termination,omitempty"`
}

func (s *FileStorage) LoadPorts() ([]model.PortEntry, error) {
	var table map[string]portDTO
	if err := decodeFile(s.path("ports.toml"), &table); err != nil {
		return nil, err
	}
	var entries []model.PortEntry
	for idStr, dto := range table {
		id, err := shortid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		listen, err := multiaddr.Parse(dto.Listen)
		if err != nil {
			return nil, err
		}
		port := model.Port{Active: dto.Active, Name: dto.Name, Listen: listen}
		if dto.TlsTermination != nil {
			port.Opts.TlsTermination = &model.TlsTermination{ServerNames: dto.TlsTermination.ServerNames}
		}
		entries = append(entries, model.PortEntry{ID: id, Port: port})
	}
	return entries, nil
}

func (s *FileStorage) SavePorts(entries []model.PortEntry) error {
	table := make(map[string]portDTO, len(entries))
	for _, e := range entries {
		dto := portDTO{Active: e.Port.Active, Name: e.Port.Name, Listen: e.Port.Listen.String()}
		if e.Port.Opts.TlsTermination != nil {
			dto.TlsTermination = &tlsTerminationDTO{ServerNames: e.Port.Opts.TlsTermination.ServerNames}
		}
		table[e.ID.String()] = dto
	}
	return encodeFile(s.path("ports.toml"), table)
}

// --- proxies ---

type upstreamServerDTO struct {
	Addr string `toml:"addr"`
}

type serverDTO struct {
	URL string `toml:"url"`
}

type routeDTO struct {
	Path    string      `toml:"path"`
	Servers []serverDTO `toml:"servers"`
}

type proxyDTO struct {
	Active          bool                `toml:"active"`
	Name            string              `toml:"name,omitempty"`
	Ports           []string            `toml:"ports"`
	Protocol        string              `toml:"protocol"`
	UpstreamServers []upstreamServerDTO `toml:"upstream_servers,omitempty"`
	Vhosts          []string            `toml:"vhosts,omitempty"`
	Routes          []routeDTO          `toml:"routes,omitempty"`
}

func (s *FileStorage) LoadProxies() ([]model.ProxyEntry, error) {
	var table map[string]proxyDTO
	if err := decodeFile(s.path("proxies.toml"), &table); err != nil {
		return nil, err
	}
	var entries []model.ProxyEntry
	for idStr, dto := range table {
		id, err := shortid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		proxy := model.Proxy{Active: dto.Active, Name: dto.Name}
		for _, p := range dto.Ports {
			pid, err := shortid.Parse(p)
			if err != nil {
				return nil, err
			}
			proxy.Ports = append(proxy.Ports, pid)
		}
		switch dto.Protocol {
		case "tcp":
			proxy.Protocol = model.ProxyProtocolTCP
			for _, us := range dto.UpstreamServers {
				addr, err := multiaddr.Parse(us.Addr)
				if err != nil {
					return nil, err
				}
				proxy.Tcp.UpstreamServers = append(proxy.Tcp.UpstreamServers, model.UpstreamServer{Addr: addr})
			}
		default:
			proxy.Protocol = model.ProxyProtocolHTTP
			for _, v := range dto.Vhosts {
				name, err := subjectname.Parse(v)
				if err != nil {
					return nil, err
				}
				proxy.Http.Vhosts = append(proxy.Http.Vhosts, name)
			}
			for _, r := range dto.Routes {
				route := model.Route{Path: r.Path}
				for _, srv := range r.Servers {
					u, err := url.Parse(srv.URL)
					if err != nil {
						return nil, err
					}
					route.Servers = append(route.Servers, model.Server{URL: u})
				}
				proxy.Http.Routes = append(proxy.Http.Routes, route)
			}
		}
		entries = append(entries, model.ProxyEntry{ID: id, Proxy: proxy})
	}
	return entries, nil
}

func (s *FileStorage) SaveProxies(entries []model.ProxyEntry) error {
	table := make(map[string]proxyDTO, len(entries))
	for _, e := range entries {
		dto := proxyDTO{Active: e.Proxy.Active, Name: e.Proxy.Name}
		for _, p := range e.Proxy.Ports {
			dto.Ports = append(dto.Ports, p.String())
		}
		switch e.Proxy.Protocol {
		case model.ProxyProtocolTCP:
			dto.Protocol = "tcp"
			for _, us := range e.Proxy.Tcp.UpstreamServers {
				dto.UpstreamServers = append(dto.UpstreamServers, upstreamServerDTO{Addr: us.Addr.String()})
			}
		default:
			dto.Protocol = "http"
			for _, v := range e.Proxy.Http.Vhosts {
				dto.Vhosts = append(dto.Vhosts, v.String())
			}
			for _, r := range e.Proxy.Http.Routes {
				rt := routeDTO{Path: r.Path}
				for _, srv := range r.Servers {
					rt.Servers = append(rt.Servers, serverDTO{URL: srv.URL.String()})
				}
				dto.Routes = append(dto.Routes, rt)
			}
		}
		table[e.ID.String()] = dto
	}
	return encodeFile(s.path("proxies.toml"), table)
}

// --- certs ---

func (s *FileStorage) certDir(kind model.CertKind, id string) string {
	return s.path("certs", kind.String(), id)
}

func (s *FileStorage) SaveCert(cert *certstore.Cert) error {
	dir := s.certDir(cert.Kind, cert.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "cert.pem"), cert.PemChain, 0o644); err != nil {
		return err
	}
	if len(cert.PemKey) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "key.pem"), cert.PemKey, 0o600); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStorage) DeleteCert(id string) error {
	for _, kind := range []model.CertKind{model.CertKindServer, model.CertKindRoot, model.CertKindClient} {
		dir := s.certDir(kind, id)
		if _, err := os.Stat(dir); err == nil {
			return os.RemoveAll(dir)
		}
	}
	return nil
}

func (s *FileStorage) LoadCerts() ([]*certstore.Cert, error) {
	var certs []*certstore.Cert
	for _, kind := range []model.CertKind{model.CertKindServer, model.CertKindRoot, model.CertKindClient} {
		root := s.path("certs", kind.String())
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			chain, err := os.ReadFile(filepath.Join(dir, "cert.pem"))
			if err != nil {
				continue
			}
			key, _ := os.ReadFile(filepath.Join(dir, "key.pem"))
			cert, err := certstore.NewCert(kind, chain, key)
			if err != nil {
				continue
			}
			certs = append(certs, cert)
		}
	}
	return certs, nil
}

// --- acme ---

type acmeDTO struct {
	Active        bool     `toml:"active"`
	Provider      string   `toml:"provider,omitempty"`
	RenewalDays   uint64   `toml:"renewal_days"`
	Identifiers   []string `toml:"identifiers"`
	ChallengeType string   `toml:"challenge_type"`
	AccountJSON   string   `toml:"account_json"`
	AccountKeyPEM string   `toml:"account_key_pem"`
}

func (s *FileStorage) LoadAcmeRecords() ([]AcmeRecord, error) {
	var table map[string]acmeDTO
	if err := decodeFile(s.path("acme.toml"), &table); err != nil {
		return nil, err
	}
	var records []AcmeRecord
	for id, dto := range table {
		accountJSON, err := base64.StdEncoding.DecodeString(dto.AccountJSON)
		if err != nil {
			return nil, fmt.Errorf("acme %s: %w", id, err)
		}
		accountKey, err := base64.StdEncoding.DecodeString(dto.AccountKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("acme %s: %w", id, err)
		}
		records = append(records, AcmeRecord{
			ID:            id,
			Identifiers:   dto.Identifiers,
			ChallengeType: dto.ChallengeType,
			Config:        model.AcmeConfig{Active: dto.Active, Provider: dto.Provider, RenewalDays: dto.RenewalDays},
			AccountJSON:   accountJSON,
			AccountKeyPEM: accountKey,
		})
	}
	return records, nil
}

func (s *FileStorage) SaveAcmeRecord(rec AcmeRecord) error {
	var table map[string]acmeDTO
	_ = decodeFile(s.path("acme.toml"), &table)
	if table == nil {
		table = make(map[string]acmeDTO)
	}
	table[rec.ID] = acmeDTO{
		Active:        rec.Config.Active,
		Provider:      rec.Config.Provider,
		RenewalDays:   rec.Config.RenewalDays,
		Identifiers:   rec.Identifiers,
		ChallengeType: rec.ChallengeType,
		AccountJSON:   base64.StdEncoding.EncodeToString(rec.AccountJSON),
		AccountKeyPEM: base64.StdEncoding.EncodeToString(rec.AccountKeyPEM),
	}
	return encodeFile(s.path("acme.toml"), table)
}

func (s *FileStorage) DeleteAcmeRecord(id string) error {
	var table map[string]acmeDTO
	if err := decodeFile(s.path("acme.toml"), &table); err != nil {
		return nil
	}
	delete(table, id)
	return encodeFile(s.path("acme.toml"), table)
}

// --- accounts ---

type accountDTO struct {
	PasswordHash string `toml:"password_hash"`
	TotpSecret   string `toml:"totp_secret,omitempty"`
}

func (s *FileStorage) LoadAccounts() ([]model.Account, error) {
	var table map[string]accountDTO
	if err := decodeFile(s.path("accounts.toml"), &table); err != nil {
		return nil, err
	}
	var accounts []model.Account
	for username, dto := range table {
		acc := model.Account{Username: username, PasswordHash: dto.PasswordHash}
		if dto.TotpSecret != "" {
			secret, err := base64.StdEncoding.DecodeString(dto.TotpSecret)
			if err != nil {
				return nil, err
			}
			acc.TotpSecret = secret
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (s *FileStorage) SaveAccount(account model.Account) error {
	var table map[string]accountDTO
	_ = decodeFile(s.path("accounts.toml"), &table)
	if table == nil {
		table = make(map[string]accountDTO)
	}
	dto := accountDTO{PasswordHash: account.PasswordHash}
	if len(account.TotpSecret) > 0 {
		dto.TotpSecret = base64.StdEncoding.EncodeToString(account.TotpSecret)
	}
	table[account.Username] = dto
	return encodeFile(s.path("accounts.toml"), table)
}

var _ Storage = (*FileStorage)(nil)
