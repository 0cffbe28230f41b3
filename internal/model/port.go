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

// Package model defines the persisted and wire data model shared by
// every subsystem: ports, proxies, certificates, ACME entries, and the
// application/account configuration that surrounds them.
package model

import (
	"time"

	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

// SocketState reports the observed state of a listening socket.
type SocketState int

const (
	SocketUnknown SocketState = iota
	SocketListening
	SocketInactive
	SocketAddressAlreadyInUse
	SocketPermissionDenied
	SocketAddressNotAvailable
	SocketError
)

func (s SocketState) String() string {
	switch s {
	case SocketListening:
		return "listening"
	case SocketInactive:
		return "inactive"
	case SocketAddressAlreadyInUse:
		return "address_already_in_use"
	case SocketPermissionDenied:
		return "permission_denied"
	case SocketAddressNotAvailable:
		return "address_not_available"
	case SocketError:
		return "error"
	default:
		return "unknown"
	}
}

// TlsState reports whether a port's TLS termination is serving traffic.
type TlsState int

const (
	TlsUnknown TlsState = iota
	TlsActive
	TlsNoValidCertificate
	TlsConfigurationFailed
)

func (s TlsState) String() string {
	switch s {
	case TlsActive:
		return "active"
	case TlsNoValidCertificate:
		return "no_valid_certificate"
	case TlsConfigurationFailed:
		return "configuration_failed"
	default:
		return "unknown"
	}
}

// PortState is the live status of one listener.
type PortState struct {
	Socket SocketState
	Tls    *TlsState
}

// PortStatus adds lifecycle metadata to PortState.
type PortStatus struct {
	State       PortState
	StartedAt   *time.Time
	EphemeralID *shortid.ID
}

// UpstreamServer is a single dial target for a TCP proxy.
type UpstreamServer struct {
	Addr multiaddr.Multiaddr
}

// TlsTermination configures SNI-based certificate selection for a port.
type TlsTermination struct {
	ServerNames []string
}

// PortOptions holds the optional per-port configuration.
type PortOptions struct {
	TlsTermination *TlsTermination

	// TrustUpstreamHeaders, when true, retains an already-present
	// Forwarded/X-Forwarded-For directive chain instead of stripping it;
	// the port's own hop is always appended regardless.
	TrustUpstreamHeaders bool
}

// Port is the persisted configuration of one listener.
type Port struct {
	Active bool
	Name   string
	Listen multiaddr.Multiaddr
	Opts   PortOptions
}

// PortEntry pairs a Port with its identifier.
type PortEntry struct {
	ID   shortid.ID
	Port Port
}

// NetworkAddr is one address assigned to a network interface, used for
// diagnostics (listing bindable addresses).
type NetworkAddr struct {
	IP   string
	Mask string
}

// NetworkInterface describes a host network interface for diagnostics.
type NetworkInterface struct {
	Name  string
	Addrs []NetworkAddr
	Mac   string
}

// SubjectNameTest is a convenience alias used where SAN matching is
// performed against subject names parsed elsewhere.
type SubjectNameTest = subjectname.Name
