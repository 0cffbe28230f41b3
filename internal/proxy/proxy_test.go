package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

func TestNewTcpContextCollectsUpstreams(t *testing.T) {
	portID, _ := shortid.Parse("port1")
	listen, _ := multiaddr.Parse("/ip4/0.0.0.0/tcp/9000")
	upstreamAddr, _ := multiaddr.Parse("/ip4/127.0.0.1/tcp/9001")

	entry := model.PortEntry{ID: portID, Port: model.Port{Listen: listen}}
	proxies := []model.ProxyEntry{
		{Proxy: model.Proxy{
			Ports:    []shortid.ID{portID},
			Protocol: model.ProxyProtocolTCP,
			Tcp:      model.TcpProxy{UpstreamServers: []model.UpstreamServer{{Addr: upstreamAddr}}},
		}},
	}

	ctx, err := NewTcpContext(entry, proxies, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.upstreams) != 1 {
		t.Fatalf("expected 1 upstream, got %d", len(ctx.upstreams))
	}
	if ctx.upstreams[0].addr != "127.0.0.1:9001" {
		t.Fatalf("unexpected upstream addr %q", ctx.upstreams[0].addr)
	}
}

func TestNewTcpContextRequiresTlsTermination(t *testing.T) {
	portID, _ := shortid.Parse("port1")
	listen, _ := multiaddr.Parse("/ip4/0.0.0.0/tcp/9443/tls")
	entry := model.PortEntry{ID: portID, Port: model.Port{Listen: listen}}

	if _, err := NewTcpContext(entry, nil, nil, zap.NewNop()); err == nil {
		t.Fatal("expected missing tls termination config error")
	}
}

func TestHttpContextRoutesByVhostAndPath(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer backend.Close()
	backendURL, _ := url.Parse(backend.URL)

	portID, _ := shortid.Parse("port1")
	listen, _ := multiaddr.Parse("/ip4/0.0.0.0/tcp/8080/http")
	name, _ := subjectname.Parse("example.com")

	entry := model.PortEntry{ID: portID, Port: model.Port{Listen: listen}}
	proxies := []model.ProxyEntry{
		{Proxy: model.Proxy{
			Ports:    []shortid.ID{portID},
			Protocol: model.ProxyProtocolHTTP,
			Http: model.HttpProxy{
				Vhosts: []subjectname.Name{name},
				Routes: []model.Route{
					{Path: "/api", Servers: []model.Server{{URL: backendURL}}},
				},
			},
		}},
	}

	ports := []model.PortEntry{entry}
	ctx := NewHttpContext(entry, ports, proxies, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/widgets", nil)
	rec := httptest.NewRecorder()
	ctx.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "/widgets" {
		t.Fatalf("unexpected proxied path %q", rec.Body.String())
	}
}

func TestHttpContextUnknownHostNotFound(t *testing.T) {
	portID, _ := shortid.Parse("port1")
	listen, _ := multiaddr.Parse("/ip4/0.0.0.0/tcp/8080/http")
	name, _ := subjectname.Parse("example.com")

	entry := model.PortEntry{ID: portID, Port: model.Port{Listen: listen}}
	proxies := []model.ProxyEntry{
		{Proxy: model.Proxy{
			Ports:    []shortid.ID{portID},
			Protocol: model.ProxyProtocolHTTP,
			Http:     model.HttpProxy{Vhosts: []subjectname.Name{name}},
		}},
	}
	ports := []model.PortEntry{entry}
	ctx := NewHttpContext(entry, ports, proxies, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "http://other.example.com/", nil)
	rec := httptest.NewRecorder()
	ctx.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
