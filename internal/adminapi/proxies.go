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

	"github.com/go-chi/chi/v5"

	"github.com/taxygo/taxy/internal/control"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/taxyerr"
)

func (a *API) listProxies(w http.ResponseWriter, r *http.Request) {
	proxies, err := control.Call(r.Context(), a.state, (*control.State).Proxies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proxies)
}

func (a *API) getProxy(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	proxies, err := control.Call(r.Context(), a.state, (*control.State).Proxies)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, pe := range proxies {
		if pe.ID == id {
			writeJSON(w, http.StatusOK, pe)
			return
		}
	}
	writeError(w, taxyerr.IdNotFound(id.String()))
}

func (a *API) createProxy(w http.ResponseWriter, r *http.Request) {
	var proxy model.Proxy
	if err := decodeJSON(r, &proxy); err != nil {
		writeError(w, taxyerr.InvalidServerAddress(""))
		return
	}
	entry, err := control.Call(r.Context(), a.state, func(s *control.State) (model.ProxyEntry, error) {
		return s.SetProxy(r.Context(), shortid.ID{}, proxy)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) putProxy(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var proxy model.Proxy
	if err := decodeJSON(r, &proxy); err != nil {
		writeError(w, taxyerr.InvalidServerAddress(""))
		return
	}
	entry, err := control.Call(r.Context(), a.state, func(s *control.State) (model.ProxyEntry, error) {
		return s.SetProxy(r.Context(), id, proxy)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) deleteProxy(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_, err = control.Call(r.Context(), a.state, func(s *control.State) (struct{}, error) {
		return struct{}{}, s.DeleteProxy(r.Context(), id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
