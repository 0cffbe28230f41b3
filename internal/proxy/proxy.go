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

package proxy

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
)

// Context is whatever a listener pool needs to drive one accepted
// connection to completion: a TcpContext for raw TCP/TLS ports, or an
// HttpContext (served behind an *http.Server) for HTTP/HTTPS ports.
type Context interface {
	// PortListen returns the configured listen address, for status
	// reporting.
	PortListen() model.Port
}

func (c *TcpContext) PortListen() model.Port  { return c.Listen }
func (c *HttpContext) PortListen() model.Port { return c.Listen }

// New builds the proxy.Context appropriate for entry's listen address:
// an HttpContext when the port carries an http component, a TcpContext
// otherwise. ports is the full port table, used by the HTTP context to
// find a paired HTTPS port for upgrade redirects, and challenges looks
// up a currently published ACME HTTP-01 key authorization by token.
func New(entry model.PortEntry, ports []model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, challenges ChallengeLookup, logger *zap.Logger) (Context, error) {
	if entry.Port.Listen.IsHTTP() {
		return NewHttpContext(entry, ports, proxies, resolver, challenges, logger), nil
	}
	return NewTcpContext(entry, proxies, resolver, logger)
}

// TcpHolder lets the listener pool swap in a freshly configured
// TcpContext (new upstreams, new trust anchors) without tearing down
// the accept loop or the listening socket itself: each accepted
// connection loads the context current at that moment.
type TcpHolder struct {
	ptr         atomic.Pointer[TcpContext]
	connContext func(context.Context) context.Context
}

// NewTcpHolder wraps an initial TcpContext.
func NewTcpHolder(tc *TcpContext) *TcpHolder {
	h := &TcpHolder{connContext: func(ctx context.Context) context.Context { return ctx }}
	h.ptr.Store(tc)
	return h
}

// Store atomically swaps in a reconfigured TcpContext.
func (h *TcpHolder) Store(tc *TcpContext) { h.ptr.Store(tc) }

// SetConnContext installs the function used to derive each accepted
// connection's context from Serve's parent context, letting the
// listener pool fold in its per-port stop-notifier without this package
// knowing anything about it.
func (h *TcpHolder) SetConnContext(fn func(context.Context) context.Context) {
	h.connContext = fn
}

// Serve accepts connections on ln until ctx is cancelled, dispatching
// each to the TcpContext current at accept time.
func (h *TcpHolder) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		connCtx := h.connContext(ctx)
		go h.ptr.Load().handle(connCtx, conn)
	}
}

// HttpHolder is the HTTP analogue of TcpHolder: an http.Handler that
// always dispatches to the most recently configured HttpContext.
type HttpHolder struct {
	ptr atomic.Pointer[HttpContext]
}

// NewHttpHolder wraps an initial HttpContext.
func NewHttpHolder(hc *HttpContext) *HttpHolder {
	h := &HttpHolder{}
	h.ptr.Store(hc)
	return h
}

// Store atomically swaps in a reconfigured HttpContext.
func (h *HttpHolder) Store(hc *HttpContext) { h.ptr.Store(hc) }

// Load returns the HttpContext current at the time of the call, used by
// the peek listener to read the port's live TLS config on each Accept.
func (h *HttpHolder) Load() *HttpContext { return h.ptr.Load() }

// ServeHTTP implements http.Handler.
func (h *HttpHolder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ptr.Load().ServeHTTP(w, r)
}
