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

// Package control runs the gateway's single-writer control loop: every
// mutation to ports, proxies, certificates, and ACME entries is applied
// by one goroutine processing a command queue, so the listener pool and
// certificate keyring are never read mid-update.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/acme"
	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/events"
	"github.com/taxygo/taxy/internal/listenerpool"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/storage"
	"github.com/taxygo/taxy/internal/subjectname"
)

// command is a unit of work run on the control loop goroutine. fn's
// result is sent on reply once fn has been applied.
type command struct {
	fn    func(*State) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

// State is every piece of gateway configuration the control loop owns.
// Only the loop goroutine may touch it directly; every other caller
// goes through Call.
type State struct {
	logger  *zap.Logger
	storage storage.Storage

	config  model.AppConfig
	ports   []model.PortEntry
	proxies []model.ProxyEntry
	keyring *certstore.Keyring
	acmes   map[shortid.ID]*acme.Entry

	resolver *certstore.Resolver
	pool     *listenerpool.Pool
	events   *events.Broadcaster

	challengeMu   sync.Mutex
	httpChallenge map[string]string
	portStatus    map[shortid.ID]model.PortStatus

	commands chan command
}

// Subscribe registers a new event listener, used by the admin API's
// server-sent-events stream. The returned cancel func must be called
// exactly once when the stream disconnects.
func (s *State) Subscribe() (<-chan events.Event, func()) {
	return s.events.Subscribe()
}

// New loads persisted state and constructs a control loop ready to Run.
func New(store storage.Storage, logger *zap.Logger) (*State, error) {
	cfg, err := store.LoadAppConfig()
	if err != nil {
		cfg = model.DefaultAppConfig()
	}
	ports, err := store.LoadPorts()
	if err != nil {
		logger.Warn("failed to load ports", zap.Error(err))
	}
	proxies, err := store.LoadProxies()
	if err != nil {
		logger.Warn("failed to load proxies", zap.Error(err))
	}
	certs, err := store.LoadCerts()
	if err != nil {
		logger.Warn("failed to load certs", zap.Error(err))
	}
	records, err := store.LoadAcmeRecords()
	if err != nil {
		logger.Warn("failed to load acme records", zap.Error(err))
	}

	keyring := certstore.NewKeyring(certs...)
	acmes := make(map[shortid.ID]*acme.Entry, len(records))
	for _, rec := range records {
		entry, err := rehydrateAcmeEntry(rec)
		if err != nil {
			logger.Warn("failed to rehydrate acme entry", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		acmes[entry.ID] = entry
	}

	s := &State{
		logger:        logger,
		storage:       store,
		config:        cfg,
		ports:         ports,
		proxies:       proxies,
		keyring:       keyring,
		acmes:         acmes,
		resolver:      certstore.NewResolver(keyring, nil),
		pool:          listenerpool.New(logger),
		events:        events.NewBroadcaster(logger),
		httpChallenge: make(map[string]string),
		portStatus:    make(map[shortid.ID]model.PortStatus),
		commands:      make(chan command, 32),
	}
	return s, nil
}

// Run drives the control loop until ctx is cancelled, reconciling the
// listener pool on startup and running the background tasks (renewal
// and expired-cert removal) on every tick of the configured background
// interval. A Shutdown event is broadcast, and every subscriber stream
// closed, once the loop exits.
func (s *State) Run(ctx context.Context) {
	s.events.Publish(events.AppConfigUpdated(s.config, events.SourceFile))
	s.reconcile(ctx)
	defer s.events.Close()

	ticker := time.NewTicker(s.config.BackgroundTaskInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			value, err := cmd.fn(s)
			cmd.reply <- result{value: value, err: err}
		case <-ticker.C:
			s.runBackgroundTasks(ctx)
		}
	}
}

// Call enqueues fn to run on the control loop goroutine and blocks for
// its result, the same request/reply shape the original's type-erased
// RpcMethod dispatch has, expressed here as a plain closure since Go
// functions are already first-class values.
func Call[T any](ctx context.Context, s *State, fn func(*State) (T, error)) (T, error) {
	reply := make(chan result, 1)
	cmd := command{
		fn: func(s *State) (any, error) {
			return fn(s)
		},
		reply: reply,
	}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		if r.err != nil {
			var zero T
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// reconcile rebinds the listener pool to the current port/proxy set,
// refreshes the TLS resolver's keyring snapshot, and folds the pending
// ACME HTTP-01 challenge set into the pool's desired listeners: the
// reserved challenge address is only bound when a challenge is actually
// pending and no configured port already covers it.
func (s *State) reconcile(ctx context.Context) {
	s.resolver.Update(s.keyring)
	s.challengeMu.Lock()
	active := len(s.httpChallenge) > 0
	s.challengeMu.Unlock()
	s.pool.Update(ctx, s.ports, s.proxies, s.resolver, s.config.HttpChallengeAddr, active, s.lookupChallenge)

	s.events.Publish(events.PortTableUpdated(append([]model.PortEntry(nil), s.ports...)))
	s.publishPortStatusChanges()
}

// publishPortStatusChanges diffs the pool's freshly reconciled status
// snapshot against the last one observed, broadcasting PortStatusUpdated
// only for ports whose observed state actually changed.
func (s *State) publishPortStatusChanges() {
	current := s.pool.Status()
	for id, status := range current {
		if prev, ok := s.portStatus[id]; !ok || !samePortState(prev.State, status.State) {
			s.events.Publish(events.PortStatusUpdated(id, status))
		}
	}
	s.portStatus = current
}

func samePortState(a, b model.PortState) bool {
	if a.Socket != b.Socket {
		return false
	}
	if (a.Tls == nil) != (b.Tls == nil) {
		return false
	}
	return a.Tls == nil || *a.Tls == *b.Tls
}

// lookupChallenge answers a proxy.ChallengeLookup, letting both the
// reserved challenge listener and any user-owned port covering the same
// address serve currently published ACME key authorizations.
func (s *State) lookupChallenge(token string) (string, bool) {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()
	keyAuth, ok := s.httpChallenge[token]
	return keyAuth, ok
}

func (s *State) publishChallenges(ctx context.Context, tokens map[string]string) {
	s.challengeMu.Lock()
	for token, keyAuth := range tokens {
		s.httpChallenge[token] = keyAuth
	}
	s.challengeMu.Unlock()
	s.reconcile(ctx)
}

func (s *State) clearChallenges(ctx context.Context, tokens map[string]string) {
	s.challengeMu.Lock()
	for token := range tokens {
		delete(s.httpChallenge, token)
	}
	s.challengeMu.Unlock()
	s.reconcile(ctx)
}

func (s *State) runBackgroundTasks(ctx context.Context) {
	s.renewDueCertificates(ctx)
	s.removeExpiredCerts()
}

// renewDueCertificates starts an ACME order for every entry whose newest
// certificate is past its renewal window (or has none yet).
func (s *State) renewDueCertificates(ctx context.Context) {
	for id, entry := range s.acmes {
		due := true
		if certs := s.keyring.FindByAcme(id.String()); len(certs) > 0 {
			latest := certs[0].NotBefore
			for _, c := range certs {
				if c.NotBefore.After(latest) {
					latest = c.NotBefore
				}
			}
			info := entry.Info(latest)
			due = info.NextRenewal != nil && time.Now().Unix() >= *info.NextRenewal
		}
		if !due {
			continue
		}

		order, err := acme.NewOrder(entry, s.logger)
		if err != nil {
			s.logger.Error("failed to build acme order", zap.String("id", id.String()), zap.Error(err))
			continue
		}
		order.OnPresent = func(token, keyAuth string) {
			s.publishChallenges(ctx, map[string]string{token: keyAuth})
		}
		order.OnCleanup = func(token string) {
			s.clearChallenges(ctx, map[string]string{token: ""})
		}
		pemChain, pemKey, err := order.Obtain(ctx)
		if err != nil {
			s.logger.Error("acme order failed", zap.String("id", id.String()), zap.Error(err))
			continue
		}

		meta := model.CertMetadata{AcmeID: id.String(), CreatedAt: time.Now()}
		pemChain = append([]byte(certstore.EncodeMetadataComment(meta)), pemChain...)
		cert, err := certstore.NewCert(model.CertKindServer, pemChain, pemKey)
		if err != nil {
			s.logger.Error("failed to parse issued certificate", zap.Error(err))
			continue
		}
		if err := s.keyring.Add(cert); err != nil {
			s.logger.Error("failed to add issued certificate", zap.Error(err))
			continue
		}
		if err := s.storage.SaveCert(cert); err != nil {
			s.logger.Error("failed to persist issued certificate", zap.Error(err))
		}
		s.resolver.Update(s.keyring)
		s.events.Publish(events.CertsUpdated())
	}
}

// removeExpiredCerts drops every ACME-issued certificate past its
// NotAfter, always keeping at least one certificate per ACME entry so a renewal
// failure never leaves a name completely uncovered.
func (s *State) removeExpiredCerts() {
	now := time.Now()
	for id := range s.acmes {
		certs := s.keyring.FindByAcme(id.String())
		if len(certs) == 0 {
			continue
		}
		var expired []string
		for _, c := range certs {
			if c.NotAfter.Before(now) {
				expired = append(expired, c.ID.String())
			}
		}
		if len(expired) >= len(certs) {
			expired = expired[:len(expired)-1]
		}
		for _, certID := range expired {
			if err := s.keyring.Delete(certID); err != nil {
				continue
			}
			if err := s.storage.DeleteCert(certID); err != nil {
				s.logger.Warn("failed to delete expired cert", zap.String("id", certID), zap.Error(err))
			}
		}
		if len(expired) > 0 {
			s.resolver.Update(s.keyring)
			s.events.Publish(events.CertsUpdated())
		}
	}
}

// rehydrateAcmeEntry reconstructs an acme.Entry from its persisted
// record: the account JSON round-trips through acme.Account directly
// (its PrivateKey field is excluded from JSON), with the key restored
// separately from its PEM encoding.
func rehydrateAcmeEntry(rec storage.AcmeRecord) (*acme.Entry, error) {
	id, err := shortid.Parse(rec.ID)
	if err != nil {
		return nil, err
	}

	entry := &acme.Entry{ID: id}
	if err := json.Unmarshal(rec.AccountJSON, &entry.Account); err != nil {
		return nil, fmt.Errorf("decoding acme account: %w", err)
	}

	key, err := certstore.ParsePrivateKeyPEM(rec.AccountKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("decoding acme account key: %w", err)
	}
	entry.Key = key
	entry.Account.PrivateKey = key

	entry.Acme.Config = rec.Config
	entry.Acme.ChallengeType = rec.ChallengeType
	for _, s := range rec.Identifiers {
		name, err := subjectname.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("decoding identifier %q: %w", s, err)
		}
		entry.Acme.Identifiers = append(entry.Acme.Identifiers, name)
	}
	return entry, nil
}

// persistAcmeEntry serializes entry back into the opaque storage.AcmeRecord
// shape, the inverse of rehydrateAcmeEntry.
func persistAcmeEntry(entry *acme.Entry) (storage.AcmeRecord, error) {
	accountJSON, err := json.Marshal(entry.Account)
	if err != nil {
		return storage.AcmeRecord{}, fmt.Errorf("encoding acme account: %w", err)
	}
	keyPEM, err := certstore.EncodePrivateKeyPEM(entry.Key)
	if err != nil {
		return storage.AcmeRecord{}, fmt.Errorf("encoding acme account key: %w", err)
	}

	identifiers := make([]string, len(entry.Acme.Identifiers))
	for i, name := range entry.Acme.Identifiers {
		identifiers[i] = name.String()
	}

	return storage.AcmeRecord{
		ID:            entry.ID.String(),
		Identifiers:   identifiers,
		ChallengeType: entry.Acme.ChallengeType,
		Config:        entry.Acme.Config,
		AccountJSON:   accountJSON,
		AccountKeyPEM: keyPEM,
	}, nil
}
