package acme

import (
	"context"
	"testing"
	"time"

	"github.com/mholt/acmez/v3/acme"
	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/subjectname"
)

func TestEntryInfoNextRenewal(t *testing.T) {
	name, _ := subjectname.Parse("example.com")
	entry := &Entry{
		ID: shortid.ID{},
		Acme: model.Acme{
			Config:        model.AcmeConfig{Active: true, RenewalDays: 60},
			Identifiers:   []subjectname.Name{name},
			ChallengeType: "http-01",
		},
	}

	info := entry.Info(time.Time{})
	if info.NextRenewal != nil {
		t.Fatal("expected no renewal time without prior issuance")
	}

	issued := time.Now().Add(-10 * 24 * time.Hour)
	info = entry.Info(issued)
	if info.NextRenewal == nil {
		t.Fatal("expected a renewal time")
	}
	want := issued.Add(60 * 24 * time.Hour).Unix()
	if *info.NextRenewal != want {
		t.Fatalf("got %d want %d", *info.NextRenewal, want)
	}
}

func TestNewOrderRejectsUnsupportedChallenge(t *testing.T) {
	name, _ := subjectname.Parse("example.com")
	entry := &Entry{
		Acme: model.Acme{
			Identifiers:   []subjectname.Name{name},
			ChallengeType: "dns-01",
		},
	}
	if _, err := NewOrder(entry, zap.NewNop()); err == nil {
		t.Fatal("expected unsupported challenge type error")
	}
}

func TestNewOrderRejectsNoIdentifiers(t *testing.T) {
	ip, _ := subjectname.Parse("127.0.0.1")
	entry := &Entry{
		Acme: model.Acme{
			Identifiers:   []subjectname.Name{ip},
			ChallengeType: "http-01",
		},
	}
	if _, err := NewOrder(entry, zap.NewNop()); err == nil {
		t.Fatal("expected error when no dns identifiers present")
	}
}

func TestHttpSolverPresentCleanUp(t *testing.T) {
	name, _ := subjectname.Parse("example.com")
	entry := &Entry{
		Acme: model.Acme{
			Identifiers:   []subjectname.Name{name},
			ChallengeType: "http-01",
		},
	}
	order, err := NewOrder(entry, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	solver := &httpSolver{order: order}
	chal := acme.Challenge{Token: "tok123", KeyAuthorization: "key-auth-value"}
	ctx := context.Background()
	if err := solver.Present(ctx, chal); err != nil {
		t.Fatal(err)
	}
	tokens := order.HttpChallenges()
	if tokens["tok123"] != "key-auth-value" {
		t.Fatalf("expected token to be published, got %v", tokens)
	}
	if err := solver.CleanUp(ctx, chal); err != nil {
		t.Fatal(err)
	}
	if len(order.HttpChallenges()) != 0 {
		t.Fatal("expected token removed after cleanup")
	}
}
