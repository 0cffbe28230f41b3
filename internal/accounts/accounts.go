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

// Package accounts manages administrator credentials: argon2id password
// hashing, optional TOTP second factor, and per-identity login rate
// limiting, backed by the storage.Storage persistence boundary.
package accounts

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/storage"
	"github.com/taxygo/taxy/internal/taxyerr"
)

// Argon2id parameters. Matches the OWASP-recommended baseline.
const (
	argon2Time    = 1
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// LoginMethod distinguishes the first factor from the TOTP second factor.
type LoginMethod int

const (
	LoginMethodPassword LoginMethod = iota
	LoginMethodTotp
)

// LoginRequest is the credential offered by an admin session attempt.
type LoginRequest struct {
	Username string
	Method   LoginMethod
	Password string
	Token    string
}

// LoginResult reports whether the login succeeded outright or needs a
// second TOTP factor before a session is granted.
type LoginResult int

const (
	LoginFailed LoginResult = iota
	LoginSuccess
	LoginTotpRequired
)

// rateLimit bounds login attempts per username to one every few seconds
// with a small burst, so brute-forcing a password is throttled without
// locking a legitimate user out entirely.
const (
	rateLimitEvery = 5 * time.Second
	rateLimitBurst = 5
)

// Manager hashes and verifies administrator credentials against a
// storage.Storage backend and throttles repeated login attempts per
// username, successful or not.
type Manager struct {
	store storage.Storage

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewManager(store storage.Storage) *Manager {
	return &Manager{
		store:    store,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (m *Manager) limiterFor(username string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[username]
	if !ok {
		l = rate.NewLimiter(rate.Every(rateLimitEvery), rateLimitBurst)
		m.limiters[username] = l
	}
	return l
}

// AddAccount hashes password, optionally provisions a TOTP secret, and
// persists the resulting account. The raw base32 TOTP secret is returned
// once so the caller can render a setup QR code; it is not stored in the
// clear anywhere else.
func (m *Manager) AddAccount(username, password string, withTotp bool) (model.Account, string, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return model.Account{}, "", taxyerr.FailedToCreateAccount()
	}

	acc := model.Account{Username: username, PasswordHash: hash}
	var secret string
	if withTotp {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "taxy",
			AccountName: username,
		})
		if err != nil {
			return model.Account{}, "", taxyerr.FailedToCreateAccount()
		}
		secret = key.Secret()
		acc.TotpSecret = []byte(secret)
	}

	if err := m.store.SaveAccount(acc); err != nil {
		return model.Account{}, "", taxyerr.FailedToCreateAccount()
	}
	return acc, secret, nil
}

// VerifyLogin checks a login attempt against the stored account,
// enforcing a per-username rate limit before any password comparison.
func (m *Manager) VerifyLogin(req LoginRequest) (LoginResult, error) {
	if !m.limiterFor(req.Username).Allow() {
		return LoginFailed, taxyerr.TooManyLoginAttempts()
	}

	accounts, err := m.store.LoadAccounts()
	if err != nil {
		return LoginFailed, taxyerr.InvalidLoginCredentials()
	}
	acc, ok := findAccount(accounts, req.Username)
	if !ok {
		return LoginFailed, taxyerr.InvalidLoginCredentials()
	}

	switch req.Method {
	case LoginMethodPassword:
		if !verifyPassword(acc.PasswordHash, req.Password) {
			return LoginFailed, taxyerr.InvalidLoginCredentials()
		}
		if len(acc.TotpSecret) > 0 {
			return LoginTotpRequired, nil
		}
		return LoginSuccess, nil
	case LoginMethodTotp:
		if len(acc.TotpSecret) == 0 {
			return LoginFailed, taxyerr.InvalidLoginCredentials()
		}
		if !totp.Validate(req.Token, string(acc.TotpSecret)) {
			return LoginFailed, taxyerr.InvalidLoginCredentials()
		}
		return LoginSuccess, nil
	default:
		return LoginFailed, taxyerr.InvalidLoginCredentials()
	}
}

func findAccount(accounts []model.Account, username string) (model.Account, bool) {
	for _, a := range accounts {
		if a.Username == username {
			return a, true
		}
	}
	return model.Account{}, false
}

// hashPassword returns a PHC-formatted argon2id hash:
// $argon2id$v=19$m=19456,t=1,p=1$salt$hash
func hashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyPassword(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return false
	}
	memory, err := strconv.ParseUint(strings.TrimPrefix(params[0], "m="), 10, 32)
	if err != nil {
		return false
	}
	iter, err := strconv.ParseUint(strings.TrimPrefix(params[1], "t="), 10, 32)
	if err != nil {
		return false
	}
	threads, err := strconv.ParseUint(strings.TrimPrefix(params[2], "p="), 10, 8)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, uint32(iter), uint32(memory), uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
