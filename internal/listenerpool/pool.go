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

// Package listenerpool reconciles the set of configured ports against
// the set of open listening sockets: binding newly added ports, closing
// removed or changed ones, rebuilding the live proxy.Context of every
// still-desired port on every reconcile pass, and leaving the listening
// socket itself alone unless the bind address actually changed, so
// in-flight connections survive an unrelated config change.
package listenerpool

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/proxy"
	"github.com/taxygo/taxy/internal/shortid"
)

// entry is one tracked listening socket. tcp/http hold the live holder
// for the port's current proxy.Context, swapped in place by Update on
// every reconcile so proxy/cert changes take effect without rebinding
// the socket; stop triggers a fresh per-port connection drain without
// tearing the listener down, used by ResetPort.
type entry struct {
	addr   string
	ln     net.Listener
	cancel context.CancelFunc
	tcp    *proxy.TcpHolder
	http   *proxy.HttpHolder
	stop   func()
	state  model.SocketState
	tls    *model.TlsState
	since  time.Time
}

// Pool owns the live listening sockets for every active port.
type Pool struct {
	mu          sync.Mutex
	entries     map[shortid.ID]*entry
	challengeID shortid.ID
	logger      *zap.Logger
}

func New(logger *zap.Logger) *Pool {
	return &Pool{
		entries:     make(map[shortid.ID]*entry),
		challengeID: shortid.New(),
		logger:      logger,
	}
}

// Status reports the observed state of every tracked port.
func (p *Pool) Status() map[shortid.ID]model.PortStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[shortid.ID]model.PortStatus, len(p.entries))
	for id, e := range p.entries {
		startedAt := e.since
		out[id] = model.PortStatus{
			State:     model.PortState{Socket: e.state, Tls: e.tls},
			StartedAt: &startedAt,
		}
	}
	return out
}

// Reset drains every connection currently being served on port id
// without closing its listening socket, used by the ResetPort RPC.
func (p *Pool) Reset(id shortid.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok || e.stop == nil {
		return false
	}
	e.stop()
	return true
}

// Update reconciles the listener pool against the current port table.
// Every active port gets its proxy.Context rebuilt via proxy.New and
// pushed live through its holder, whether or not anything changed; the
// underlying socket is only closed and rebound when the port's address
// changed or the port is no longer desired. When challengeActive is set
// and no configured port already covers challengeAddr, a synthetic
// reserved entry is added to the desired set so pending ACME HTTP-01
// challenges always have somewhere to be answered.
func (p *Pool) Update(ctx context.Context, ports []model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, challengeAddr multiaddr.Multiaddr, challengeActive bool, challenges proxy.ChallengeLookup) {
	p.mu.Lock()
	defer p.mu.Unlock()

	desired := make(map[shortid.ID]model.PortEntry, len(ports)+1)
	for _, pe := range ports {
		if pe.Port.Active {
			desired[pe.ID] = pe
		}
	}

	if challengeActive {
		target := challengeAddr.String()
		covered := false
		for _, pe := range desired {
			if addrString(pe.Port) == target {
				covered = true
				break
			}
		}
		if !covered {
			desired[p.challengeID] = model.PortEntry{
				ID: p.challengeID,
				Port: model.Port{
					Active: true,
					Name:   "acme-http-challenge",
					Listen: challengeAddr,
				},
			}
		}
	}

	allPorts := make([]model.PortEntry, 0, len(desired))
	for _, pe := range desired {
		allPorts = append(allPorts, pe)
	}

	for id, e := range p.entries {
		pe, ok := desired[id]
		if ok && addrString(pe.Port) == e.addr && e.ln != nil {
			continue
		}
		if e.cancel != nil {
			e.cancel()
		}
		if e.ln != nil {
			e.ln.Close()
		}
		delete(p.entries, id)
	}

	for id, pe := range desired {
		if e, ok := p.entries[id]; ok {
			p.rebuild(e, pe, allPorts, proxies, resolver, challenges)
			continue
		}
		p.entries[id] = p.bind(ctx, pe, allPorts, proxies, resolver, challenges)
	}
}

// rebuild reconfigures an already-bound port in place: a fresh
// proxy.Context is built from the current config and stored into the
// entry's holder, leaving the listening socket and accept loop running.
func (p *Pool) rebuild(e *entry, pe model.PortEntry, ports []model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, challenges proxy.ChallengeLookup) {
	pctx, err := proxy.New(pe, ports, proxies, resolver, challenges, p.logger)
	if err != nil {
		p.logger.Error("failed to reconfigure port", zap.String("addr", e.addr), zap.Error(err))
		e.state = model.SocketError
		return
	}

	switch c := pctx.(type) {
	case *proxy.TcpContext:
		if e.tcp != nil {
			e.tcp.Store(c)
		}
	case *proxy.HttpContext:
		if e.http != nil {
			e.http.Store(c)
		}
	}

	e.state = model.SocketListening
	e.tls = nil
	if pe.Port.Opts.TlsTermination != nil {
		active := model.TlsActive
		e.tls = &active
	}
}

func (p *Pool) bind(ctx context.Context, pe model.PortEntry, ports []model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, challenges proxy.ChallengeLookup) *entry {
	addr := addrString(pe.Port)
	sockAddr, err := pe.Port.Listen.SocketAddr()
	if err != nil {
		return &entry{addr: addr, state: model.SocketError, since: time.Now()}
	}

	ln, err := net.Listen("tcp", sockAddr.String())
	if err != nil {
		p.logger.Error("failed to listen", zap.String("addr", addr), zap.Error(err))
		return &entry{addr: addr, state: classifyListenError(err), since: time.Now()}
	}

	pctx, err := proxy.New(pe, ports, proxies, resolver, challenges, p.logger)
	if err != nil {
		ln.Close()
		p.logger.Error("failed to configure port", zap.String("addr", addr), zap.Error(err))
		return &entry{addr: addr, state: model.SocketError, since: time.Now()}
	}

	serveCtx, cancel := context.WithCancel(ctx)
	notifier := newStopNotifier()
	e := &entry{addr: addr, ln: ln, cancel: cancel, stop: notifier.notify, state: model.SocketListening, since: time.Now()}
	if pe.Port.Opts.TlsTermination != nil {
		active := model.TlsActive
		e.tls = &active
	}

	switch c := pctx.(type) {
	case *proxy.TcpContext:
		holder := proxy.NewTcpHolder(c)
		holder.SetConnContext(func(parent context.Context) context.Context {
			return deriveStopContext(parent, notifier)
		})
		e.tcp = holder
		go func() {
			if err := holder.Serve(serveCtx, ln); err != nil {
				p.logger.Debug("tcp listener stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	case *proxy.HttpContext:
		holder := proxy.NewHttpHolder(c)
		e.http = holder
		go serveHTTP(serveCtx, ln, holder, notifier, p.logger)
	}
	return e
}

// serveHTTP drives one HTTP(S) listener. The peek listener inspects each
// new connection's first byte against the holder's live TLS config so
// plaintext and TLS clients can share a single bound socket, and
// h2c.NewHandler lets prior-knowledge HTTP/2 work over the plaintext
// path while http2.ConfigureServer enables ALPN-negotiated HTTP/2 over
// the TLS path.
func serveHTTP(ctx context.Context, ln net.Listener, holder *proxy.HttpHolder, notifier *stopNotifier, logger *zap.Logger) {
	server := &http.Server{
		Handler: h2c.NewHandler(holder, &http2.Server{}),
		ConnContext: func(parent context.Context, _ net.Conn) context.Context {
			return deriveStopContext(parent, notifier)
		},
	}
	if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
		logger.Error("failed to configure http2", zap.Error(err))
	}

	peekLn := proxy.NewPeekListener(ln, holder)

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	if err := server.Serve(peekLn); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		logger.Debug("http listener stopped", zap.Error(err))
	}
}

func addrString(port model.Port) string {
	return port.Listen.String()
}

func classifyListenError(err error) model.SocketState {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, os.ErrPermission) {
			return model.SocketPermissionDenied
		}
		if errors.Is(opErr.Err, syscall.EADDRINUSE) {
			return model.SocketAddressAlreadyInUse
		}
		if errors.Is(opErr.Err, syscall.EADDRNOTAVAIL) {
			return model.SocketAddressNotAvailable
		}
	}
	return model.SocketError
}
