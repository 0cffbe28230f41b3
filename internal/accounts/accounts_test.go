package accounts

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/taxygo/taxy/internal/storage"
	"github.com/taxygo/taxy/internal/taxyerr"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := hashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if !verifyPassword(hash, "correct horse battery staple") {
		t.Fatal("expected password to verify")
	}
	if verifyPassword(hash, "wrong password") {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestAddAccountAndVerifyLoginNoTotp(t *testing.T) {
	store := storage.NewFileStorage(t.TempDir())
	m := NewManager(store)

	if _, _, err := m.AddAccount("admin", "hunter22", false); err != nil {
		t.Fatal(err)
	}

	result, err := m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodPassword, Password: "hunter22"})
	if err != nil {
		t.Fatal(err)
	}
	if result != LoginSuccess {
		t.Fatalf("expected success, got %v", result)
	}

	if _, err := m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodPassword, Password: "wrong"}); err == nil {
		t.Fatal("expected invalid credentials error")
	}
}

func TestAddAccountWithTotpRequiresSecondFactor(t *testing.T) {
	store := storage.NewFileStorage(t.TempDir())
	m := NewManager(store)

	_, secret, err := m.AddAccount("admin", "hunter22", true)
	if err != nil {
		t.Fatal(err)
	}
	if secret == "" {
		t.Fatal("expected a totp secret to be returned")
	}

	result, err := m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodPassword, Password: "hunter22"})
	if err != nil {
		t.Fatal(err)
	}
	if result != LoginTotpRequired {
		t.Fatalf("expected totp required, got %v", result)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	result, err = m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodTotp, Token: code})
	if err != nil {
		t.Fatal(err)
	}
	if result != LoginSuccess {
		t.Fatalf("expected success, got %v", result)
	}
}

func TestVerifyLoginUnknownUser(t *testing.T) {
	store := storage.NewFileStorage(t.TempDir())
	m := NewManager(store)
	if _, err := m.VerifyLogin(LoginRequest{Username: "ghost", Method: LoginMethodPassword, Password: "x"}); !taxyerr.Is(err, taxyerr.KindInvalidLoginCredentials) {
		t.Fatalf("expected invalid login credentials, got %v", err)
	}
}

func TestVerifyLoginRateLimited(t *testing.T) {
	store := storage.NewFileStorage(t.TempDir())
	m := NewManager(store)
	if _, _, err := m.AddAccount("admin", "hunter22", false); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < rateLimitBurst; i++ {
		if _, err := m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodPassword, Password: "wrong"}); err == nil {
			t.Fatal("expected invalid credentials error")
		}
	}
	if _, err := m.VerifyLogin(LoginRequest{Username: "admin", Method: LoginMethodPassword, Password: "hunter22"}); !taxyerr.Is(err, taxyerr.KindTooManyLoginAttempts) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
