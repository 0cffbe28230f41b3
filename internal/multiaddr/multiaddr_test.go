package multiaddr

import "testing"

func TestParseTCP(t *testing.T) {
	m, err := Parse("/ip4/0.0.0.0/tcp/8080")
	if err != nil {
		t.Fatal(err)
	}
	if m.IsTLS() || m.IsHTTP() {
		t.Fatalf("expected plain tcp")
	}
	addr, err := m.SocketAddr()
	if err != nil {
		t.Fatal(err)
	}
	if addr.Port != 8080 {
		t.Fatalf("got port %d", addr.Port)
	}
	if m.ProtocolName() != "TCP" {
		t.Fatalf("got %q", m.ProtocolName())
	}
}

func TestParseHTTPS(t *testing.T) {
	m, err := Parse("/ip4/0.0.0.0/tcp/443/tls/http")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsTLS() || !m.IsHTTP() {
		t.Fatalf("expected tls+http")
	}
	if m.ProtocolName() != "HTTPS" {
		t.Fatalf("got %q", m.ProtocolName())
	}
	if m.Path() != "/" {
		t.Fatalf("expected default path, got %q", m.Path())
	}
}

func TestParseDNS(t *testing.T) {
	m, err := Parse("/dns/example.com/tcp/443/tls/http")
	if err != nil {
		t.Fatal(err)
	}
	host, err := m.Host()
	if err != nil {
		t.Fatal(err)
	}
	if host != "example.com" {
		t.Fatalf("got %q", host)
	}
}

func TestRoundTripString(t *testing.T) {
	cases := []string{
		"/ip4/127.0.0.1/tcp/8080",
		"/dns/example.com/tcp/443/tls/http",
		"/ip6/::1/tcp/80",
	}
	for _, c := range cases {
		m, err := Parse(c)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if got := m.String(); got != c {
			t.Fatalf("round trip: got %q want %q", got, c)
		}
	}
}

func TestInvalidMultiaddr(t *testing.T) {
	_, err := Parse("/ip4/not-an-ip/tcp/80")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestQUIC(t *testing.T) {
	m, err := Parse("/ip4/0.0.0.0/udp/443/quic/http")
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsQUIC() || !m.IsUDP() || !m.IsHTTP() {
		t.Fatalf("expected quic+udp+http")
	}
	if m.ProtocolName() != "HTTP over QUIC" {
		t.Fatalf("got %q", m.ProtocolName())
	}
}
