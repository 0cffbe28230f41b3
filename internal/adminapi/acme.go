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

func (a *API) listAcme(w http.ResponseWriter, r *http.Request) {
	entries, err := control.Call(r.Context(), a.state, (*control.State).AcmeEntries)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) createAcme(w http.ResponseWriter, r *http.Request) {
	var req model.AcmeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, taxyerr.AcmeAccountCreationFailed())
		return
	}
	info, err := control.Call(r.Context(), a.state, func(s *control.State) (model.AcmeInfo, error) {
		return s.AddAcmeEntry(r.Context(), req)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *API) deleteAcme(w http.ResponseWriter, r *http.Request) {
	id, err := shortid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_, err = control.Call(r.Context(), a.state, func(s *control.State) (struct{}, error) {
		return struct{}{}, s.DeleteAcmeEntry(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
