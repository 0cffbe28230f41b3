package subjectname

import "testing"

func TestParseExact(t *testing.T) {
	n, err := Parse("Example.COM")
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != KindDNSName {
		t.Fatalf("expected dns name")
	}
	if !n.Test("example.com") {
		t.Fatalf("expected match")
	}
	if n.Test("www.example.com") {
		t.Fatalf("expected no match on subdomain")
	}
}

func TestParseWildcard(t *testing.T) {
	n, err := Parse("*.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != KindWildcardDNSName {
		t.Fatalf("expected wildcard")
	}
	if !n.Test("www.example.com") {
		t.Fatalf("expected match on single label")
	}
	if n.Test("a.b.example.com") {
		t.Fatalf("expected no match across multiple labels")
	}
	if n.Test("example.com") {
		t.Fatalf("expected no match on bare domain")
	}
}

func TestParseIP(t *testing.T) {
	n, err := Parse("192.168.1.1")
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != KindIPAddress {
		t.Fatalf("expected ip address")
	}
	if !n.Test("192.168.1.1") {
		t.Fatalf("expected match")
	}
	if n.Test("192.168.1.2") {
		t.Fatalf("expected no match")
	}
}

func TestInvalidWildcard(t *testing.T) {
	if _, err := Parse("*."); err == nil {
		t.Fatal("expected error")
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{"example.com", "*.example.com", "10.0.0.1"}
	for _, c := range cases {
		n, err := Parse(c)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if n.String() != c {
			t.Fatalf("got %q want %q", n.String(), c)
		}
	}
}
