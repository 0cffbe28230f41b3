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

func (a *API) listPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := control.Call(r.Context(), a.state, (*control.State).Ports)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

func (a *API) getPort(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ports, err := control.Call(r.Context(), a.state, (*control.State).Ports)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, pe := range ports {
		if pe.ID == id {
			writeJSON(w, http.StatusOK, pe)
			return
		}
	}
	writeError(w, taxyerr.IdNotFound(id.String()))
}

func (a *API) getPortStatus(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	statuses, err := control.Call(r.Context(), a.state, (*control.State).PortStatuses)
	if err != nil {
		writeError(w, err)
		return
	}
	status, ok := statuses[id]
	if !ok {
		writeError(w, taxyerr.IdNotFound(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) createPort(w http.ResponseWriter, r *http.Request) {
	var port model.Port
	if err := decodeJSON(r, &port); err != nil {
		writeError(w, taxyerr.InvalidListeningAddress(""))
		return
	}
	entry, err := control.Call(r.Context(), a.state, func(s *control.State) (model.PortEntry, error) {
		return s.SetPort(r.Context(), shortid.ID{}, port)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) putPort(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var port model.Port
	if err := decodeJSON(r, &port); err != nil {
		writeError(w, taxyerr.InvalidListeningAddress(""))
		return
	}
	entry, err := control.Call(r.Context(), a.state, func(s *control.State) (model.PortEntry, error) {
		return s.SetPort(r.Context(), id, port)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) resetPort(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_, err = control.Call(r.Context(), a.state, func(s *control.State) (struct{}, error) {
		return struct{}{}, s.ResetPort(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deletePort(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_, err = control.Call(r.Context(), a.state, func(s *control.State) (struct{}, error) {
		return struct{}{}, s.DeletePort(r.Context(), id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
