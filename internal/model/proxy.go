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

package model

import (
	"net/url"

	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

// ProxyProtocol distinguishes the two supported proxy kinds.
type ProxyProtocol int

const (
	ProxyProtocolTCP ProxyProtocol = iota
	ProxyProtocolHTTP
)

// TcpProxy forwards raw TCP connections to one of its upstream servers
// (round-robin).
type TcpProxy struct {
	UpstreamServers []UpstreamServer
}

// Server is one route target.
type Server struct {
	URL *url.URL
}

// Route maps a path prefix to a set of upstream servers. HttpsRedirect
// opts this route into a 301 upgrade to the paired HTTPS port when it is
// matched over plaintext.
type Route struct {
	Path          string
	Servers       []Server
	HttpsRedirect bool
}

// HttpProxy serves one or more virtual hosts, routing requests by path.
type HttpProxy struct {
	Vhosts []subjectname.Name
	Routes []Route
}

// Proxy is the persisted configuration of one proxy entry, bound to one
// or more ports.
type Proxy struct {
	Active   bool
	Name     string
	Ports    []shortid.ID
	Protocol ProxyProtocol
	Tcp      TcpProxy
	Http     HttpProxy
}

// ProxyEntry pairs a Proxy with its identifier.
type ProxyEntry struct {
	ID    shortid.ID
	Proxy Proxy
}
