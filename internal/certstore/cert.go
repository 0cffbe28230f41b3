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

// Package certstore parses, mints, and ranks X.509 certificates for the
// gateway's TLS termination and ACME subsystems.
package certstore

import (
	"bufio"
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.step.sm/crypto/keyutil"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// Cert is a parsed, content-addressed certificate held in a Keyring.
// Its id is derived from the leaf certificate's SHA-256 digest, so
// re-uploading identical material always resolves to the same entry.
type Cert struct {
	ID          shortid.ID
	Kind        model.CertKind
	Key         crypto.Signer
	PemChain    []byte
	PemKey      []byte
	Fingerprint string
	Issuer      string
	RootCert    *string
	San         []subjectname.Name
	NotAfter    time.Time
	NotBefore   time.Time
	IsCA        bool
	Metadata    *model.CertMetadata
}

// Info converts to the wire-level summary type.
func (c *Cert) Info() model.CertInfo {
	return model.CertInfo{
		ID:          c.ID.String(),
		Kind:        c.Kind,
		Fingerprint: c.Fingerprint,
		Issuer:      c.Issuer,
		RootCert:    c.RootCert,
		San:         c.San,
		NotAfter:    c.NotAfter,
		NotBefore:   c.NotBefore,
		IsCA:        c.IsCA,
		Metadata:    c.Metadata,
	}
}

// IsValid reports whether the certificate's validity window contains now.
func (c *Cert) IsValid() bool {
	now := time.Now()
	return !now.Before(c.NotBefore) && !now.After(c.NotAfter)
}

// HasSubjectName reports whether name is covered by one of the
// certificate's SAN entries (wildcard entries match a single label).
func (c *Cert) HasSubjectName(name subjectname.Name) bool {
	for _, san := range c.San {
		if san.Kind != name.Kind {
			continue
		}
		switch san.Kind {
		case subjectname.KindIPAddress:
			if san.IP.Equal(name.IP) {
				return true
			}
		default:
			if san.Test(name.String()) || name.Test(san.String()) {
				return true
			}
		}
	}
	return false
}

// CertifiedKey builds a tls.Certificate ready for use as a TLS server
// certificate, requiring the private key to be present.
func (c *Cert) CertifiedKey() (*tls.Certificate, error) {
	if c.Key == nil {
		return nil, taxyerr.FailedToReadPrivateKey()
	}
	chain, err := c.Certificates()
	if err != nil {
		return nil, err
	}
	raw := make([][]byte, len(chain))
	for i, cert := range chain {
		raw[i] = cert.Raw
	}
	return &tls.Certificate{
		Certificate: raw,
		PrivateKey:  c.Key,
		Leaf:        chain[0],
	}, nil
}

// Certificates decodes the PEM chain into parsed x509 certificates.
func (c *Cert) Certificates() ([]*x509.Certificate, error) {
	return parsePEMChain(c.PemChain)
}

// NewCert parses a PEM certificate chain (and optional private key) into
// a content-addressed Cert. An optional "# key=value&..." comment line
// at the top of the chain carries CertMetadata, the same way an ACME
// order stamps its issuing entry id onto the cert it produced.
func NewCert(kind model.CertKind, pemChain []byte, pemKey []byte) (*Cert, error) {
	metadata := parseMetadataComment(pemChain)

	var key crypto.Signer
	if len(pemKey) > 0 {
		block, _ := pem.Decode(pemKey)
		if block == nil {
			return nil, taxyerr.FailedToReadPrivateKey()
		}
		parsed, err := parsePrivateKey(block.Bytes)
		if err != nil {
			return nil, taxyerr.FailedToReadPrivateKey()
		}
		signer, ok := parsed.(crypto.Signer)
		if !ok {
			return nil, taxyerr.FailedToReadPrivateKey()
		}
		key = signer
	}

	chain, err := parsePEMChain(pemChain)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, taxyerr.FailedToReadCertificate()
	}
	leaf := chain[0]

	digest := sha256.Sum256(leaf.Raw)
	id := shortid.FromDigest(digest[:7])
	fingerprint := hex.EncodeToString(digest[:])

	var san []subjectname.Name
	for _, name := range leaf.DNSNames {
		if n, err := subjectname.Parse(name); err == nil {
			san = append(san, n)
		}
	}
	for _, ip := range leaf.IPAddresses {
		san = append(san, subjectname.Name{Kind: subjectname.KindIPAddress, IP: ip})
	}

	var rootCert *string
	if len(chain) > 1 {
		s := chain[len(chain)-1].Subject.String()
		rootCert = &s
	}

	return &Cert{
		ID:          id,
		Kind:        kind,
		Key:         key,
		PemChain:    pemChain,
		PemKey:      pemKey,
		Fingerprint: fingerprint,
		Issuer:      leaf.Issuer.String(),
		RootCert:    rootCert,
		San:         san,
		NotAfter:    leaf.NotAfter,
		NotBefore:   leaf.NotBefore,
		IsCA:        leaf.IsCA,
		Metadata:    metadata,
	}, nil
}

// NewCA mints a self-signed root certificate used to sign locally
// generated server certificates.
func NewCA() (*Cert, error) {
	signer, err := keyutil.GenerateDefaultSigner()
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "taxy CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	pemChain := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	pemKey, err := encodePrivateKey(signer)
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	return NewCert(model.CertKindRoot, pemChain, pemKey)
}

// NewSelfSigned mints a leaf certificate for the given subject names,
// signed by ca.
func NewSelfSigned(san []subjectname.Name, ca *Cert) (*Cert, error) {
	if ca.Key == nil {
		return nil, taxyerr.FailedToReadPrivateKey()
	}
	caCerts, err := ca.Certificates()
	if err != nil {
		return nil, err
	}
	signer, err := keyutil.GenerateDefaultSigner()
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}

	commonName := "taxy cert"
	if len(san) > 0 {
		commonName = san[0].String()
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, name := range san {
		switch name.Kind {
		case subjectname.KindIPAddress:
			tmpl.IPAddresses = append(tmpl.IPAddresses, name.IP)
		default:
			tmpl.DNSNames = append(tmpl.DNSNames, name.DNS)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCerts[0], signer.Public(), ca.Key)
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}

	var buf bytes.Buffer
	buf.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	buf.Write(ca.PemChain)

	pemKey, err := encodePrivateKey(signer)
	if err != nil {
		return nil, taxyerr.FailedToGenerateSelfSignedCertificate()
	}
	return NewCert(model.CertKindServer, buf.Bytes(), pemKey)
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

// Less orders certificates the way the store ranks candidates when
// selecting which one to present for a given SNI: most recently issued
// first (later not_before wins), then the one that expires sooner
// (earlier not_after wins), then fingerprint order as a final tiebreaker.
func Less(a, b *Cert) bool {
	if !a.NotBefore.Equal(b.NotBefore) {
		return a.NotBefore.After(b.NotBefore)
	}
	if !a.NotAfter.Equal(b.NotAfter) {
		return a.NotAfter.Before(b.NotAfter)
	}
	return a.Fingerprint < b.Fingerprint
}

// SortCerts orders a slice of certs using Less, stably.
func SortCerts(certs []*Cert) {
	sort.SliceStable(certs, func(i, j int) bool {
		return Less(certs[i], certs[j])
	})
}

func parsePEMChain(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, taxyerr.FailedToReadCertificate()
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, taxyerr.FailedToReadPrivateKey()
}

func encodePrivateKey(signer crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a single PEM-encoded private key, accepting
// the same PKCS8/EC/PKCS1 forms as a certificate's own key material.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, taxyerr.FailedToReadPrivateKey()
	}
	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, taxyerr.FailedToReadPrivateKey()
	}
	return signer, nil
}

// EncodePrivateKeyPEM is the exported form of encodePrivateKey, used by
// callers outside this package that need to persist a signer's key
// alongside opaque account material (e.g. an ACME account credential).
func EncodePrivateKeyPEM(signer crypto.Signer) ([]byte, error) {
	return encodePrivateKey(signer)
}

// parseMetadataComment reads an optional leading "# k=v&k=v" comment
// line and decodes it as CertMetadata, mirroring the query-string-style
// annotation an ACME order stamps onto the cert material it produces.
func parseMetadataComment(pemChain []byte) *model.CertMetadata {
	scanner := bufio.NewScanner(bytes.NewReader(pemChain))
	if !scanner.Scan() {
		return nil
	}
	line := strings.TrimSpace(scanner.Text())
	line = strings.TrimLeft(line, "# \t")
	if line == "" {
		return nil
	}
	values, err := url.ParseQuery(line)
	if err != nil {
		return nil
	}
	acmeID := values.Get("acme_id")
	if acmeID == "" {
		return nil
	}
	meta := &model.CertMetadata{AcmeID: acmeID}
	if createdAt := values.Get("created_at"); createdAt != "" {
		if secs, err := strconv.ParseInt(createdAt, 10, 64); err == nil {
			meta.CreatedAt = time.Unix(secs, 0).UTC()
		}
	}
	meta.IsTrusted = values.Get("is_trusted") == "true"
	return meta
}

// EncodeMetadataComment renders CertMetadata as the leading comment line
// prepended to a cert's PEM chain before it is persisted.
func EncodeMetadataComment(meta model.CertMetadata) string {
	values := url.Values{}
	values.Set("acme_id", meta.AcmeID)
	values.Set("created_at", strconv.FormatInt(meta.CreatedAt.Unix(), 10))
	if meta.IsTrusted {
		values.Set("is_trusted", "true")
	}
	return "# " + values.Encode() + "\n"
}
