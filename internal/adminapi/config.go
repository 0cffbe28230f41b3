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

	"github.com/taxygo/taxy/internal/control"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/taxyerr"
)

func (a *API) getAppConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := control.Call(r.Context(), a.state, (*control.State).AppConfig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) putAppConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.AppConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, taxyerr.InvalidMultiaddr(""))
		return
	}
	updated, err := control.Call(r.Context(), a.state, func(s *control.State) (model.AppConfig, error) {
		return s.SetAppConfig(cfg)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
