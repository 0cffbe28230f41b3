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

// Package multiaddr implements the composable network address format
// used to describe listen and upstream addresses: an ordered sequence
// of protocol components such as /ip4/127.0.0.1/tcp/8080/tls.
package multiaddr

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/taxygo/taxy/internal/taxyerr"
)

// ProtoKind identifies one component of a Multiaddr.
type ProtoKind int

const (
	ProtoDNS ProtoKind = iota
	ProtoIP
	ProtoTCP
	ProtoUDP
	ProtoTLS
	ProtoHTTP
	ProtoQUIC
)

// Component is a single protocol segment of a Multiaddr.
type Component struct {
	Kind ProtoKind
	Str  string // DNS host, or HTTP path
	IP   net.IP
	Port uint16
}

// Multiaddr is an ordered sequence of protocol components.
type Multiaddr struct {
	protocols []Component
}

func (m Multiaddr) IsTLS() bool  { return m.has(ProtoTLS) }
func (m Multiaddr) IsHTTP() bool { return m.has(ProtoHTTP) }
func (m Multiaddr) IsUDP() bool  { return m.has(ProtoUDP) }
func (m Multiaddr) IsQUIC() bool { return m.has(ProtoQUIC) }

func (m Multiaddr) has(kind ProtoKind) bool {
	for _, p := range m.protocols {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// SocketAddr derives the dial/listen address, joining IPAddr and Port.
func (m Multiaddr) SocketAddr() (*net.TCPAddr, error) {
	ip, err := m.IPAddr()
	if err != nil {
		return nil, err
	}
	port, err := m.Port()
	if err != nil {
		return nil, err
	}
	return &net.TCPAddr{IP: ip, Port: int(port)}, nil
}

// IPAddr returns the first ip4/ip6 component.
func (m Multiaddr) IPAddr() (net.IP, error) {
	for _, p := range m.protocols {
		if p.Kind == ProtoIP {
			return p.IP, nil
		}
	}
	return nil, taxyerr.InvalidMultiaddr(m.String())
}

// Port returns the first tcp/udp port component.
func (m Multiaddr) Port() (uint16, error) {
	for _, p := range m.protocols {
		if p.Kind == ProtoTCP || p.Kind == ProtoUDP {
			return p.Port, nil
		}
	}
	return 0, taxyerr.InvalidMultiaddr(m.String())
}

// Host returns the DNS host or, failing that, the textual IP address.
func (m Multiaddr) Host() (string, error) {
	for _, p := range m.protocols {
		switch p.Kind {
		case ProtoDNS:
			return p.Str, nil
		case ProtoIP:
			return p.IP.String(), nil
		}
	}
	return "", taxyerr.InvalidMultiaddr(m.String())
}

// Path returns the HTTP path component, or "/" if none is present.
func (m Multiaddr) Path() string {
	for _, p := range m.protocols {
		if p.Kind == ProtoHTTP {
			if p.Str == "" {
				return "/"
			}
			return p.Str
		}
	}
	return "/"
}

// ProtocolName renders a human label for the protocol combination, used
// in status output (e.g. "HTTPS", "TCP over TLS").
func (m Multiaddr) ProtocolName() string {
	switch {
	case !m.IsHTTP() && m.IsQUIC():
		return "QUIC"
	case m.IsHTTP() && m.IsQUIC():
		return "HTTP over QUIC"
	case m.IsUDP():
		return "UDP"
	case m.IsHTTP() && m.IsTLS():
		return "HTTPS"
	case m.IsHTTP():
		return "HTTP"
	case m.IsTLS():
		return "TCP over TLS"
	default:
		return "TCP"
	}
}

// Parse decodes the canonical textual form of a Multiaddr.
func Parse(s string) (Multiaddr, error) {
	var m Multiaddr
	rest := strings.TrimPrefix(s, "/")
	for rest != "" {
		proto, next, _ := strings.Cut(rest, "/")
		switch proto {
		case "dns":
			host, tail, _ := strings.Cut(next, "/")
			m.protocols = append(m.protocols, Component{Kind: ProtoDNS, Str: host})
			rest = tail
		case "ip4", "ip6":
			addrStr, tail, _ := strings.Cut(next, "/")
			ip := net.ParseIP(addrStr)
			if ip == nil {
				return Multiaddr{}, taxyerr.InvalidMultiaddr(s)
			}
			m.protocols = append(m.protocols, Component{Kind: ProtoIP, IP: ip})
			rest = tail
		case "tcp", "udp":
			portStr, tail, _ := strings.Cut(next, "/")
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return Multiaddr{}, taxyerr.InvalidMultiaddr(s)
			}
			kind := ProtoTCP
			if proto == "udp" {
				kind = ProtoUDP
			}
			m.protocols = append(m.protocols, Component{Kind: kind, Port: uint16(port)})
			rest = tail
		case "tls":
			m.protocols = append(m.protocols, Component{Kind: ProtoTLS})
			rest = next
		case "quic":
			m.protocols = append(m.protocols, Component{Kind: ProtoQUIC})
			rest = next
		case "http":
			m.protocols = append(m.protocols, Component{Kind: ProtoHTTP, Str: "/" + next})
			rest = ""
		case "https":
			m.protocols = append(m.protocols, Component{Kind: ProtoTLS})
			m.protocols = append(m.protocols, Component{Kind: ProtoHTTP, Str: "/" + next})
			rest = ""
		default:
			_, rest, _ = strings.Cut(next, "")
			rest = next
		}
	}
	return m, nil
}

// String renders the canonical textual form.
func (m Multiaddr) String() string {
	var b strings.Builder
	for _, p := range m.protocols {
		switch p.Kind {
		case ProtoDNS:
			fmt.Fprintf(&b, "/dns/%s", p.Str)
		case ProtoIP:
			if p.IP.To4() != nil {
				fmt.Fprintf(&b, "/ip4/%s", p.IP.String())
			} else {
				fmt.Fprintf(&b, "/ip6/%s", p.IP.String())
			}
		case ProtoTCP:
			fmt.Fprintf(&b, "/tcp/%d", p.Port)
		case ProtoUDP:
			fmt.Fprintf(&b, "/udp/%d", p.Port)
		case ProtoTLS:
			b.WriteString("/tls")
		case ProtoHTTP:
			path := p.Str
			if path == "/" || path == "" {
				path = ""
			}
			fmt.Fprintf(&b, "/http%s", path)
		case ProtoQUIC:
			b.WriteString("/quic")
		}
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (m Multiaddr) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Multiaddr) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
