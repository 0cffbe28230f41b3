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

// Package proxy implements the data-plane connection handling for one
// listening port: raw TCP forwarding with optional TLS termination or
// passthrough, and HTTP reverse proxying with virtual-host and path
// routing.
package proxy

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// upstream is one dial target a TcpContext round-robins across.
type upstream struct {
	network string
	addr    string
	tls     bool
}

// TcpContext forwards raw TCP connections accepted on one port to a
// rotating set of upstream servers, optionally terminating or passing
// through TLS at the edge.
type TcpContext struct {
	Listen      model.Port
	tlsConfig   *tls.Config
	upstreamTls *tls.Config
	upstreams   []upstream
	counter     uint64
	logger      *zap.Logger
}

// NewTcpContext builds a TCP port context from the port's listen address
// and the upstream servers of every TCP proxy bound to it. The upstream
// client TLS config's trust anchors are the resolver's current root
// certs, rebuilt every time this constructor runs so a rotated local CA
// takes effect without requiring the listening socket to be rebound.
func NewTcpContext(entry model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, logger *zap.Logger) (*TcpContext, error) {
	ctx := &TcpContext{Listen: entry.Port, logger: logger, upstreamTls: &tls.Config{RootCAs: resolver.RootCAs()}}

	if entry.Port.Opts.TlsTermination != nil {
		ctx.tlsConfig = &tls.Config{GetCertificate: resolver.GetCertificate}
	} else if entry.Port.Listen.IsTLS() {
		return nil, taxyerr.TlsTerminationConfigMissing()
	}

	for _, pe := range proxies {
		if pe.Proxy.Protocol != model.ProxyProtocolTCP || !boundTo(pe.Proxy.Ports, entry.ID) {
			continue
		}
		for _, server := range pe.Proxy.Tcp.UpstreamServers {
			network := "tcp"
			if server.Addr.IsUDP() {
				network = "udp"
			}
			host, err := server.Addr.Host()
			if err != nil {
				return nil, err
			}
			port, err := server.Addr.Port()
			if err != nil {
				return nil, err
			}
			ctx.upstreams = append(ctx.upstreams, upstream{
				network: network,
				addr:    net.JoinHostPort(host, strconv.Itoa(int(port))),
				tls:     server.Addr.IsTLS(),
			})
		}
	}
	return ctx, nil
}

func boundTo(ports []shortid.ID, id shortid.ID) bool {
	for _, p := range ports {
		if p == id {
			return true
		}
	}
	return false
}

func (c *TcpContext) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if len(c.upstreams) == 0 {
		return
	}

	var front io.ReadWriteCloser = conn
	if c.tlsConfig != nil {
		tlsConn := tls.Server(conn, c.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			c.logger.Debug("tls handshake failed", zap.Error(err))
			return
		}
		front = tlsConn
	}

	up := c.upstreams[atomic.AddUint64(&c.counter, 1)%uint64(len(c.upstreams))]

	var dialer net.Dialer
	var back io.ReadWriteCloser
	if up.tls {
		backConn, err := dialer.DialContext(ctx, up.network, up.addr)
		if err != nil {
			c.logger.Debug("dial upstream failed", zap.String("addr", up.addr), zap.Error(err))
			return
		}
		clientConfig := c.upstreamTls.Clone()
		clientConfig.ServerName = hostOnly(up.addr)
		tlsBack := tls.Client(backConn, clientConfig)
		if err := tlsBack.HandshakeContext(ctx); err != nil {
			c.logger.Debug("upstream tls handshake failed", zap.Error(err))
			backConn.Close()
			return
		}
		back = tlsBack
	} else {
		backConn, err := dialer.DialContext(ctx, up.network, up.addr)
		if err != nil {
			c.logger.Debug("dial upstream failed", zap.String("addr", up.addr), zap.Error(err))
			return
		}
		back = backConn
	}
	defer back.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(back, front)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(front, back)
		done <- struct{}{}
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
