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

package adminapi

import (
	"net/http"
	"time"

	"github.com/taxygo/taxy/internal/accounts"
	"github.com/taxygo/taxy/internal/taxyerr"
)

const sessionCookieName = "token"

// sessionExpiry bounds how long an issued session token remains valid
// for requests; sessionStore.verify also sweeps tokens older than it.
const sessionExpiry = 24 * time.Hour

type loginRequestBody struct {
	Username string `json:"username"`
	Method   string `json:"method"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type loginResponseBody struct {
	Status string `json:"status"`
}

// handleLogin verifies credentials and, on success, sets a session
// cookie the auth middleware checks on every subsequent request.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, taxyerr.InvalidLoginCredentials())
		return
	}

	method := accounts.LoginMethodPassword
	if body.Method == "totp" {
		method = accounts.LoginMethodTotp
	}

	result, err := a.accounts.VerifyLogin(accounts.LoginRequest{
		Username: body.Username,
		Method:   method,
		Password: body.Password,
		Token:    body.Token,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	switch result {
	case accounts.LoginSuccess:
		token, err := a.sessions.newToken()
		if err != nil {
			writeError(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
		writeJSON(w, http.StatusOK, loginResponseBody{Status: "ok"})
	case accounts.LoginTotpRequired:
		writeJSON(w, http.StatusOK, loginResponseBody{Status: "totp_required"})
	default:
		writeError(w, taxyerr.InvalidLoginCredentials())
	}
}

// handleLogout clears the caller's session, same semantics regardless
// of whether the cookie was already invalid.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		a.sessions.remove(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, loginResponseBody{Status: "ok"})
}

// requireSession rejects any request without a live session cookie.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !a.sessions.verify(cookie.Value, sessionExpiry) {
			writeError(w, taxyerr.Unauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}
