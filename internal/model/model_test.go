package model

import "testing"

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	if cfg.BackgroundTaskInterval.Hours() != 1 {
		t.Fatalf("expected 1h interval, got %v", cfg.BackgroundTaskInterval)
	}
	port, err := cfg.HttpChallengeAddr.Port()
	if err != nil {
		t.Fatal(err)
	}
	if port != 80 {
		t.Fatalf("expected port 80, got %d", port)
	}
}

func TestDefaultAcmeConfig(t *testing.T) {
	cfg := DefaultAcmeConfig()
	if !cfg.Active {
		t.Fatal("expected active by default")
	}
	if cfg.RenewalDays != 60 {
		t.Fatalf("expected 60 day renewal window, got %d", cfg.RenewalDays)
	}
}

func TestCertKindString(t *testing.T) {
	cases := map[CertKind]string{
		CertKindServer: "server",
		CertKindClient: "client",
		CertKindRoot:   "root",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}
