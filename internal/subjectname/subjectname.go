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

// Package subjectname implements the subject name matcher used for TLS
// SAN entries and HTTP virtual-host routing: exact DNS names, single
// leftmost-label wildcards, and literal IP addresses.
package subjectname

import (
	"net"
	"strings"

	"github.com/taxygo/taxy/internal/taxyerr"
)

// Kind distinguishes the three subject name forms.
type Kind int

const (
	KindDNSName Kind = iota
	KindWildcardDNSName
	KindIPAddress
)

// Name is a parsed subject name.
type Name struct {
	Kind Kind
	DNS  string // for KindDNSName / KindWildcardDNSName: the full name, lowercased
	IP   net.IP // for KindIPAddress
}

// Parse reads a subject name from its textual form. A leading "*." marks
// a wildcard that matches exactly one leftmost label.
func Parse(s string) (Name, error) {
	if ip := net.ParseIP(s); ip != nil {
		return Name{Kind: KindIPAddress, IP: ip}, nil
	}
	lower := strings.ToLower(s)
	if lower == "" {
		return Name{}, taxyerr.InvalidSubjectName(s)
	}
	if strings.HasPrefix(lower, "*.") {
		if len(lower) <= 2 {
			return Name{}, taxyerr.InvalidSubjectName(s)
		}
		return Name{Kind: KindWildcardDNSName, DNS: lower}, nil
	}
	return Name{Kind: KindDNSName, DNS: lower}, nil
}

// String renders the canonical textual form.
func (n Name) String() string {
	switch n.Kind {
	case KindIPAddress:
		return n.IP.String()
	default:
		return n.DNS
	}
}

// Test reports whether n matches the given host name or IP literal,
// exactly for DNS/IP names, and for a single leftmost label for wildcards.
func (n Name) Test(host string) bool {
	switch n.Kind {
	case KindIPAddress:
		ip := net.ParseIP(host)
		return ip != nil && ip.Equal(n.IP)
	case KindDNSName:
		return strings.EqualFold(n.DNS, host)
	case KindWildcardDNSName:
		host = strings.ToLower(host)
		suffix := n.DNS[1:] // ".example.com"
		if !strings.HasSuffix(host, suffix) {
			return false
		}
		label := strings.TrimSuffix(host, suffix)
		return label != "" && !strings.Contains(label, ".")
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
