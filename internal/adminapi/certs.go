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
	"github.com/taxygo/taxy/internal/taxyerr"
)

func (a *API) listCerts(w http.ResponseWriter, r *http.Request) {
	certs, err := control.Call(r.Context(), a.state, (*control.State).Certs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

type uploadCertBody struct {
	Kind     model.CertKind `json:"kind"`
	PemChain string         `json:"pem_chain"`
	PemKey   string         `json:"pem_key"`
}

func (a *API) uploadCert(w http.ResponseWriter, r *http.Request) {
	var body uploadCertBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, taxyerr.FailedToReadCertificate())
		return
	}
	info, err := control.Call(r.Context(), a.state, func(s *control.State) (model.CertInfo, error) {
		return s.AddCert(r.Context(), body.Kind, []byte(body.PemChain), []byte(body.PemKey))
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *API) downloadCert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tarball, err := control.Call(r.Context(), a.state, func(s *control.State) ([]byte, error) {
		return s.DownloadCert(id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.tar"`)
	w.Write(tarball)
}

func (a *API) deleteCert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := control.Call(r.Context(), a.state, func(s *control.State) (struct{}, error) {
		return struct{}{}, s.DeleteCert(r.Context(), id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
