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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taxygo/taxy/internal/taxyerr"
)

// errorMessage is the wire shape of every non-2xx admin API response.
type errorMessage struct {
	Message string `json:"message"`
}

// statusFor maps the fixed taxyerr taxonomy onto HTTP status codes, the
// same classification the admin API's error rejection handler applies.
func statusFor(err error) int {
	var te *taxyerr.Error
	if !errors.As(err, &te) {
		return http.StatusInternalServerError
	}
	switch te.Kind {
	case taxyerr.KindIdNotFound:
		return http.StatusNotFound
	case taxyerr.KindIdAlreadyExists:
		return http.StatusConflict
	case taxyerr.KindUnauthorized, taxyerr.KindInvalidLoginCredentials:
		return http.StatusUnauthorized
	case taxyerr.KindTooManyLoginAttempts:
		return http.StatusTooManyRequests
	case taxyerr.KindInvalidListeningAddress,
		taxyerr.KindInvalidServerAddress,
		taxyerr.KindInvalidSubjectName,
		taxyerr.KindInvalidMultiaddr,
		taxyerr.KindTlsTerminationConfigMissing,
		taxyerr.KindInvalidShortId:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorMessage{Message: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
