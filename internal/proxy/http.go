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
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

// ChallengeLookup resolves a pending ACME HTTP-01 token to its key
// authorization, backed by the control loop's shared challenge table. It
// returns false once the challenge has been cleared or was never issued.
type ChallengeLookup func(token string) (string, bool)

const challengePrefix = "/.well-known/acme-challenge/"

// route pairs a vhost/path filter with the reverse proxy handler serving
// it. Matching is segment-by-segment, not prefix-based: a filter "/foo"
// never matches a request for "/foobar".
type route struct {
	vhosts        []subjectname.Name
	segments      []string
	servers       []*url.URL
	counter       uint64
	httpsRedirect bool
}

// match tests host and path against the filter, returning the remaining
// path segments (joined back into a leading-slash path) on success.
func (r *route) match(host, path string) (string, bool) {
	if !matchesAny(r.vhosts, host) {
		return "", false
	}
	segments := splitSegments(path)
	if len(segments) < len(r.segments) {
		return "", false
	}
	for i, want := range r.segments {
		if segments[i] != want {
			return "", false
		}
	}
	return "/" + strings.Join(segments[len(r.segments):], "/"), true
}

func splitSegments(p string) []string {
	raw := strings.Split(p, "/")
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// HttpContext is an http.Handler serving the flat, insertion-ordered set
// of routes contributed by every HTTP proxy bound to this port. It also
// answers ACME HTTP-01 challenges and enforces the HTTPS peek trick,
// domain-fronting rejection, HTTPS-upgrade redirects, Alt-Svc rewriting,
// and brotli compression described by the data-plane spec.
type HttpContext struct {
	Listen               model.Port
	TlsConfig            *tls.Config
	port                 uint16
	routes               []*route
	reverse              *httputil.ReverseProxy
	challenges           ChallengeLookup
	trustUpstreamHeaders bool

	httpsPort uint16
	hasHttps  bool
	altSvc    string

	logger *zap.Logger
}

// NewHttpContext builds an HTTP port context from every HTTP proxy bound
// to entry's port id. ports is the full port table, used to find a
// paired HTTPS port (by IP family, falling back to the first one) for
// Alt-Svc advertisement and plaintext-to-HTTPS upgrade redirects.
// challenges, when non-nil, is consulted for every request under
// /.well-known/acme-challenge/ before normal routing runs.
func NewHttpContext(entry model.PortEntry, ports []model.PortEntry, proxies []model.ProxyEntry, resolver *certstore.Resolver, challenges ChallengeLookup, logger *zap.Logger) *HttpContext {
	ctx := &HttpContext{
		Listen:               entry.Port,
		challenges:           challenges,
		trustUpstreamHeaders: entry.Port.Opts.TrustUpstreamHeaders,
		logger:               logger,
	}

	if port, err := entry.Port.Listen.Port(); err == nil {
		ctx.port = port
	}

	if entry.Port.Opts.TlsTermination != nil {
		ctx.TlsConfig = &tls.Config{
			GetCertificate: resolver.GetCertificate,
			NextProtos:     []string{"h2", "http/1.1"},
		}
	}

	httpsPort, hasHttps, quicPort, hasQuic := pairedPorts(entry, ports, proxies)
	ctx.httpsPort, ctx.hasHttps = httpsPort, hasHttps
	ctx.altSvc = buildAltSvc(httpsPort, hasHttps, quicPort, hasQuic)

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: resolver.RootCAs()},
	}
	ctx.reverse = &httputil.ReverseProxy{
		Director:       func(*http.Request) {},
		Transport:      transport,
		ModifyResponse: ctx.modifyResponse,
	}

	for _, pe := range proxies {
		if pe.Proxy.Protocol != model.ProxyProtocolHTTP || !boundTo(pe.Proxy.Ports, entry.ID) {
			continue
		}
		for _, r := range pe.Proxy.Http.Routes {
			rt := &route{
				vhosts:        pe.Proxy.Http.Vhosts,
				segments:      splitSegments(r.Path),
				httpsRedirect: r.HttpsRedirect,
			}
			for _, s := range r.Servers {
				rt.servers = append(rt.servers, s.URL)
			}
			ctx.routes = append(ctx.routes, rt)
		}
	}
	return ctx
}

// pairedPorts finds the HTTPS- and QUIC-terminating ports, proxied and
// active, that should be advertised/redirected to alongside self: prefer
// one in the same IP family as self, else the first one encountered.
func pairedPorts(self model.PortEntry, ports []model.PortEntry, proxies []model.ProxyEntry) (httpsPort uint16, hasHttps bool, quicPort uint16, hasQuic bool) {
	selfIP, err := self.Port.Listen.IPAddr()
	selfIsIPv4 := err == nil && selfIP.To4() != nil

	var httpsCandidates, quicCandidates []model.PortEntry
	for _, pe := range ports {
		if !pe.Port.Active || !proxiedTo(proxies, pe.ID) {
			continue
		}
		if pe.Port.Listen.IsHTTP() && pe.Port.Listen.IsTLS() {
			httpsCandidates = append(httpsCandidates, pe)
		}
		if pe.Port.Listen.IsQUIC() {
			quicCandidates = append(quicCandidates, pe)
		}
	}
	if pe, ok := pickByFamily(httpsCandidates, selfIsIPv4); ok {
		if port, err := pe.Port.Listen.Port(); err == nil {
			httpsPort, hasHttps = port, true
		}
	}
	if pe, ok := pickByFamily(quicCandidates, selfIsIPv4); ok {
		if port, err := pe.Port.Listen.Port(); err == nil {
			quicPort, hasQuic = port, true
		}
	}
	return
}

func proxiedTo(proxies []model.ProxyEntry, id shortid.ID) bool {
	for _, pe := range proxies {
		if boundTo(pe.Proxy.Ports, id) {
			return true
		}
	}
	return false
}

func pickByFamily(candidates []model.PortEntry, ipv4 bool) (model.PortEntry, bool) {
	for _, pe := range candidates {
		ip, err := pe.Port.Listen.IPAddr()
		if err != nil {
			continue
		}
		if (ip.To4() != nil) == ipv4 {
			return pe, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return model.PortEntry{}, false
}

func buildAltSvc(httpsPort uint16, hasHttps bool, quicPort uint16, hasQuic bool) string {
	switch {
	case hasHttps && hasQuic:
		return fmt.Sprintf(`h2=":%d", h3=":%d", h3-25=":%d"`, httpsPort, quicPort, quicPort)
	case hasHttps:
		return fmt.Sprintf(`h2=":%d"`, httpsPort)
	case hasQuic:
		return fmt.Sprintf(`h3=":%d", h3-25=":%d"`, quicPort, quicPort)
	default:
		return ""
	}
}

// ServeHTTP implements http.Handler.
func (c *HttpContext) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.challenges != nil {
		if token, ok := strings.CutPrefix(r.URL.Path, challengePrefix); ok {
			if keyAuth, found := c.challenges(token); found {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(keyAuth))
				return
			}
			http.NotFound(w, r)
			return
		}
	}

	headerHost := splitHost(r.Host)
	var sni string
	if r.TLS != nil {
		sni = r.TLS.ServerName
	}

	if c.TlsConfig != nil && r.TLS == nil && c.port != 80 {
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
		return
	}

	if sni != "" && headerHost != "" && !strings.EqualFold(sni, headerHost) {
		http.Error(w, "domain fronting detected", http.StatusBadGateway)
		return
	}

	host := headerHost
	if host == "" {
		host = sni
	}
	if host == "" {
		host = r.URL.Host
	}

	rt, remaining, ok := c.bestRoute(host, r.URL.Path)
	if !ok {
		http.Error(w, "no route found", http.StatusNotFound)
		return
	}

	forwardedProto := "http"
	if r.TLS != nil {
		forwardedProto = "https"
	}

	if forwardedProto == "http" && rt.httpsRedirect && c.hasHttps && headerHost != "" {
		target := fmt.Sprintf("https://%s%s", net.JoinHostPort(headerHost, strconv.Itoa(int(c.httpsPort))), r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	if len(rt.servers) == 0 {
		http.Error(w, "no upstream servers configured", http.StatusBadGateway)
		return
	}
	server := rt.servers[atomic.AddUint64(&rt.counter, 1)%uint64(len(rt.servers))]
	target := joinURL(server, remaining, r.URL.RawQuery)
	r.URL = target
	r.Host = target.Host

	remoteIP := splitHost(r.RemoteAddr)
	preProcessHeaders(r.Header, remoteIP, headerHost, forwardedProto, c.trustUpstreamHeaders)
	postProcessHeaders(r.Header)

	c.reverse.ServeHTTP(w, r)
}

func (c *HttpContext) bestRoute(host, path string) (*route, string, bool) {
	for _, rt := range c.routes {
		if remaining, ok := rt.match(host, path); ok {
			return rt, remaining, true
		}
	}
	return nil, "", false
}

func (c *HttpContext) modifyResponse(resp *http.Response) error {
	resp.Header.Del("Alt-Svc")
	if c.altSvc != "" {
		resp.Header.Set("Alt-Svc", c.altSvc)
	}
	if shouldCompress(resp) {
		resp.Header.Del("Content-Length")
		resp.Header.Set("Content-Encoding", "br")
		resp.Body = newBrotliReader(resp.Body)
	}
	return nil
}

var compressedMediaPrefixes = []string{
	"image/", "video/", "audio/",
	"application/zip", "application/gzip", "application/x-brotli", "application/octet-stream",
}

func shouldCompress(resp *http.Response) bool {
	if resp.Request == nil || resp.Request.ProtoMajor < 2 {
		return false
	}
	if !strings.Contains(resp.Request.Header.Get("Accept-Encoding"), "br") {
		return false
	}
	if resp.Header.Get("Content-Encoding") != "" {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	for _, prefix := range compressedMediaPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return false
		}
	}
	return true
}

// newBrotliReader streams body through a brotli encoder via a pipe, so
// the response is compressed as it is forwarded rather than buffered in
// full first.
func newBrotliReader(body io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	bw := brotli.NewWriter(pw)
	go func() {
		_, err := io.Copy(bw, body)
		if cerr := bw.Close(); err == nil {
			err = cerr
		}
		body.Close()
		pw.CloseWithError(err)
	}()
	return pr
}

func joinURL(base *url.URL, remainingPath, rawQuery string) *url.URL {
	u := *base
	u.Path = joinPath(u.Path, remainingPath)
	switch {
	case rawQuery == "":
	case u.RawQuery == "":
		u.RawQuery = rawQuery
	default:
		u.RawQuery = u.RawQuery + "&" + rawQuery
	}
	return &u
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func splitHost(hostport string) string {
	if hostport == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

func matchesAny(names []subjectname.Name, host string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n.Test(host) {
			return true
		}
	}
	return false
}

// preProcessHeaders implements the §4.9 forwarding-header rewrite: the
// upstream's own Forwarded/X-Forwarded-For chain is either stripped
// (default) or retained and extended, depending on trustUpstream, and a
// combined Forwarded header plus the individual X-Forwarded-* headers
// are (re)synthesized.
func preProcessHeaders(h http.Header, remoteIP, headerHost, forwardedProto string, trustUpstream bool) {
	var forwardedFor []string
	var forwarded []string

	if trustUpstream {
		forwardedFor = parseCommaList(h.Get("X-Forwarded-For"))
		forwarded = parseCommaList(h.Get("Forwarded"))
	}
	h.Del("Forwarded")
	h.Del("X-Forwarded-For")
	h.Del("X-Real-Ip")

	if len(forwarded) == 0 {
		for _, ip := range forwardedFor {
			forwarded = append(forwarded, forwardedForDirective(ip))
		}
	}
	forwarded = append(forwarded, forwardedForDirective(remoteIP))
	if headerHost != "" {
		forwarded = append(forwarded, "host="+headerHost)
	}
	forwarded = append(forwarded, "proto="+forwardedProto)
	h.Set("Forwarded", strings.Join(forwarded, ", "))

	xff := append(append([]string{}, forwardedFor...), remoteIP)
	h.Set("X-Forwarded-For", strings.Join(xff, ", "))

	h.Set("X-Forwarded-Proto", forwardedProto)
	if headerHost != "" {
		h.Set("X-Forwarded-Host", headerHost)
	}
}

func postProcessHeaders(h http.Header) {
	h.Set("Via", "taxy")
}

func parseCommaList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func forwardedForDirective(addr string) string {
	if strings.Contains(addr, ":") {
		return fmt.Sprintf(`for="[%s]"`, addr)
	}
	return "for=" + addr
}

// peekConn wraps an accepted connection so the first byte can be
// inspected without consuming it: Read replays the peeked byte before
// falling through to the underlying connection.
type peekConn struct {
	net.Conn
	first byte
	used  bool
}

func newPeekConn(c net.Conn) (*peekConn, error) {
	var b [1]byte
	if _, err := io.ReadFull(c, b[:]); err != nil {
		return nil, err
	}
	return &peekConn{Conn: c, first: b[0]}, nil
}

func (c *peekConn) Read(p []byte) (int, error) {
	if !c.used {
		c.used = true
		if len(p) == 0 {
			return 0, nil
		}
		p[0] = c.first
		if len(p) == 1 {
			return 1, nil
		}
		n, err := c.Conn.Read(p[1:])
		return n + 1, err
	}
	return c.Conn.Read(p)
}

// peekListener implements the HTTPS peek trick: the first byte of every
// accepted connection decides whether it is wrapped as a TLS server
// connection or passed through as plaintext, so a single http.Server can
// serve a mix of TLS and plaintext dials on the same HTTPS-terminating
// port (the plaintext case is caught by HttpContext.ServeHTTP and
// answered with a 308 upgrade redirect). The TLS config is read from the
// holder on every Accept, so toggling TLS termination on or off takes
// effect without rebinding the listener.
type peekListener struct {
	net.Listener
	holder *HttpHolder
}

// NewPeekListener wraps ln so every accepted connection is sniffed for a
// leading TLS record before being handed to an http.Server.
func NewPeekListener(ln net.Listener, holder *HttpHolder) net.Listener {
	return &peekListener{Listener: ln, holder: holder}
}

func (l *peekListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	pc, err := newPeekConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	tlsConfig := l.holder.Load().TlsConfig
	if pc.first == 0x16 && tlsConfig != nil {
		return tls.Server(pc, tlsConfig), nil
	}
	return pc, nil
}
