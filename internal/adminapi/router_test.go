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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/accounts"
	"github.com/taxygo/taxy/internal/control"
	"github.com/taxygo/taxy/internal/storage"
)

func newTestAPI(t *testing.T) (http.Handler, *accounts.Manager) {
	t.Helper()
	store := storage.NewFileStorage(t.TempDir())
	state, err := control.New(store, zap.NewNop())
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go state.Run(ctx)

	mgr := accounts.NewManager(store)
	return NewRouter(state, mgr, zap.NewNop()), mgr
}

func TestListPortsRequiresSession(t *testing.T) {
	handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ports/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestLoginThenListPorts(t *testing.T) {
	handler, mgr := newTestAPI(t)
	if _, _, err := mgr.AddAccount("admin", "hunter2", false); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	body, _ := json.Marshal(loginRequestBody{Username: "admin", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/ports/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing ports, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler, mgr := newTestAPI(t)
	if _, _, err := mgr.AddAccount("admin", "hunter2", false); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	body, _ := json.Marshal(loginRequestBody{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestSessionStoreVerifyAndRemove(t *testing.T) {
	s := newSessionStore()
	token, err := s.newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	if !s.verify(token, time.Hour) {
		t.Fatal("expected a fresh token to verify")
	}
	s.remove(token)
	if s.verify(token, time.Hour) {
		t.Fatal("expected a removed token to fail verification")
	}
}
