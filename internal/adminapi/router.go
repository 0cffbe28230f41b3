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

// Package adminapi exposes the gateway's configuration surface as a
// chi-routed JSON API: session-cookie login in front of port, proxy,
// certificate, and ACME CRUD, every mutation dispatched through the
// control package's single-writer command queue.
package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/accounts"
	"github.com/taxygo/taxy/internal/control"
)

// API holds the dependencies every handler needs.
type API struct {
	state    *control.State
	accounts *accounts.Manager
	sessions *sessionStore
	logger   *zap.Logger
}

// NewRouter builds the admin HTTP API bound to state and accounts.
func NewRouter(state *control.State, accountMgr *accounts.Manager, logger *zap.Logger) http.Handler {
	a := &API{
		state:    state,
		accounts: accountMgr,
		sessions: newSessionStore(),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapRequestLogger(logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Get("/logout", a.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(a.requireSession)

			r.Route("/ports", func(r chi.Router) {
				r.Get("/", a.listPorts)
				r.Post("/", a.createPort)
				r.Get("/{id}", a.getPort)
				r.Put("/{id}", a.putPort)
				r.Delete("/{id}", a.deletePort)
				r.Get("/{id}/status", a.getPortStatus)
				r.Post("/{id}/reset", a.resetPort)
			})

			r.Route("/proxies", func(r chi.Router) {
				r.Get("/", a.listProxies)
				r.Post("/", a.createProxy)
				r.Get("/{id}", a.getProxy)
				r.Put("/{id}", a.putProxy)
				r.Delete("/{id}", a.deleteProxy)
			})

			r.Route("/certs", func(r chi.Router) {
				r.Get("/", a.listCerts)
				r.Post("/", a.uploadCert)
				r.Delete("/{id}", a.deleteCert)
				r.Get("/{id}/download", a.downloadCert)
			})

			r.Route("/acme", func(r chi.Router) {
				r.Get("/", a.listAcme)
				r.Post("/", a.createAcme)
				r.Delete("/{id}", a.deleteAcme)
			})

			r.Route("/config", func(r chi.Router) {
				r.Get("/", a.getAppConfig)
				r.Put("/", a.putAppConfig)
			})

			r.Get("/events", a.streamEvents)
		})
	})

	return r
}

func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("admin api request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
			)
		})
	}
}
