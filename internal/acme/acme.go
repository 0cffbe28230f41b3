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

// Package acme drives certificate issuance through the ACME protocol:
// one persisted account per AcmeEntry, one in-flight Order per renewal
// attempt, resolved through an HTTP-01 challenge table the listener
// pool's challenge port serves out of.
package acme

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/mholt/acmez/v3"
	"github.com/mholt/acmez/v3/acme"
	"go.step.sm/crypto/keyutil"
	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// HttpChallengeTimeout bounds how long a single order waits for its
// HTTP-01 challenges to be validated before giving up.
const HttpChallengeTimeout = 180 * time.Second

// Entry is a persisted ACME account bound to a renewal policy.
type Entry struct {
	ID        shortid.ID
	ServerURL string
	Acme      model.Acme
	Account   acme.Account
	Key       crypto.Signer
}

// Info converts to the wire-level summary, resolving the next renewal
// time against the certificates this entry has already produced.
func (e *Entry) Info(lastIssued time.Time) model.AcmeInfo {
	info := model.AcmeInfo{
		ID:            e.ID,
		Config:        e.Acme.Config,
		ChallengeType: e.Acme.ChallengeType,
	}
	for _, id := range e.Acme.Identifiers {
		info.Identifiers = append(info.Identifiers, id.String())
	}
	if !lastIssued.IsZero() {
		next := lastIssued.Add(time.Duration(e.Acme.Config.RenewalDays) * 24 * time.Hour)
		secs := next.Unix()
		info.NextRenewal = &secs
	}
	return info
}

// NewEntry registers a new ACME account with the directory named in req
// and returns the persisted Entry.
func NewEntry(ctx context.Context, logger *zap.Logger, id shortid.ID, req model.AcmeRequest) (*Entry, error) {
	key, err := keyutil.GenerateDefaultSigner()
	if err != nil {
		return nil, taxyerr.AcmeAccountCreationFailed()
	}

	client := &acmez.Client{
		Directory: req.ServerURL,
		Logger:    logger,
	}

	account := acme.Account{
		Contact:              req.Contacts,
		TermsOfServiceAgreed: true,
		PrivateKey:           key,
	}
	if req.Eab != nil {
		account.ExternalAccountBinding = &acme.EAB{
			KeyID:  req.Eab.KeyID,
			MACKey: req.Eab.HmacKey,
		}
	}

	created, err := client.NewAccount(ctx, account)
	if err != nil {
		logger.Error("acme account creation failed", zap.Error(err))
		return nil, taxyerr.AcmeAccountCreationFailed()
	}
	created.PrivateKey = key

	return &Entry{ID: id, ServerURL: req.ServerURL, Acme: req.Acme, Account: created, Key: key}, nil
}

// Order is one in-flight certificate request against an Entry.
type Order struct {
	id            shortid.ID
	logger        *zap.Logger
	client        *acmez.Client
	account       acme.Account
	identifiers   []acme.Identifier
	challengeType string

	mu            sync.Mutex
	httpTokens    map[string]string // token -> key authorization

	// OnPresent and OnCleanup, when set, are invoked as each challenge
	// token is published and retired, so a caller can mirror them into
	// a listener-wide challenge table instead of polling HttpChallenges.
	OnPresent func(token, keyAuth string)
	OnCleanup func(token string)
}

// HttpChallenges returns a copy of the token -> key-authorization table
// this order currently has published.
func (o *Order) HttpChallenges() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.httpTokens))
	for k, v := range o.httpTokens {
		out[k] = v
	}
	return out
}

// httpSolver implements acmez.Solver by publishing key authorizations
// into the Order's shared token table for the listener pool to serve.
type httpSolver struct {
	order *Order
}

func (s *httpSolver) Present(ctx context.Context, chal acme.Challenge) error {
	s.order.mu.Lock()
	if s.order.httpTokens == nil {
		s.order.httpTokens = make(map[string]string)
	}
	s.order.httpTokens[chal.Token] = chal.KeyAuthorization
	onPresent := s.order.OnPresent
	s.order.mu.Unlock()
	if onPresent != nil {
		onPresent(chal.Token, chal.KeyAuthorization)
	}
	return nil
}

func (s *httpSolver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	s.order.mu.Lock()
	delete(s.order.httpTokens, chal.Token)
	onCleanup := s.order.OnCleanup
	s.order.mu.Unlock()
	if onCleanup != nil {
		onCleanup(chal.Token)
	}
	return nil
}

// NewOrder builds an Order for entry, ready to be driven by Obtain.
func NewOrder(entry *Entry, logger *zap.Logger) (*Order, error) {
	if entry.Acme.ChallengeType != "http-01" {
		return nil, fmt.Errorf("unsupported challenge type: %s", entry.Acme.ChallengeType)
	}

	var identifiers []acme.Identifier
	for _, name := range entry.Acme.Identifiers {
		if name.Kind != subjectname.KindDNSName {
			continue
		}
		identifiers = append(identifiers, acme.Identifier{Type: "dns", Value: name.DNS})
	}
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("no dns identifiers configured")
	}

	order := &Order{
		id:            entry.ID,
		logger:        logger,
		account:       entry.Account,
		identifiers:   identifiers,
		challengeType: entry.Acme.ChallengeType,
	}

	order.client = &acmez.Client{
		Directory: entry.ServerURL,
		Logger:    logger,
		ChallengeSolvers: map[string]acmez.Solver{
			acme.ChallengeTypeHTTP01: &httpSolver{order: order},
		},
	}

	return order, nil
}

// Obtain drives the order through authorization, challenge solving, and
// finalization, bounded by HttpChallengeTimeout, and returns the issued
// certificate chain PEM plus the private key PEM it was signed with.
func (o *Order) Obtain(ctx context.Context) (pemChain []byte, pemKey []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, HttpChallengeTimeout)
	defer cancel()

	key, err := keyutil.GenerateDefaultSigner()
	if err != nil {
		return nil, nil, fmt.Errorf("generating certificate key: %w", err)
	}

	names := make([]string, len(o.identifiers))
	for i, id := range o.identifiers {
		names[i] = id.Value
	}

	csrTemplate := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: names[0]},
		DNSNames: names,
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, csrTemplate, key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating csr: %w", err)
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing csr: %w", err)
	}

	certs, err := o.client.ObtainCertificateUsingCSR(ctx, o.account, csr)
	if err != nil {
		return nil, nil, fmt.Errorf("obtaining certificate: %w", err)
	}
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("no certificate chains returned")
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling certificate key: %w", err)
	}
	pemKey = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	return certs[0].ChainPEM, pemKey, nil
}
