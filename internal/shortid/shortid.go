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

// Package shortid implements the 8-byte resource identifier used for
// ports, proxies, certificates, and ACME entries.
package shortid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/taxygo/taxy/internal/taxyerr"
)

// ID is a fixed-width 8-byte identifier. It is displayed either as ASCII
// (when the first byte is non-zero) or as hex of the last 7 bytes (when
// the first byte is zero), and parses back from either form.
type ID [8]byte

// Empty reports whether the id is the zero value.
func (id ID) Empty() bool {
	return id == ID{}
}

// FromDigest builds an ID from the first 7 bytes of a longer digest
// (e.g. a SHA-256 hash), matching the content-addressed cert id scheme.
func FromDigest(digest []byte) ID {
	var id ID
	n := copy(id[1:], digest)
	_ = n
	return id
}

// New generates a random id, the hex-rendered form used for ports,
// proxies, and ACME entries created through the admin API rather than
// derived from content like a certificate's digest.
func New() ID {
	var id ID
	_, _ = rand.Read(id[1:])
	return id
}

// String renders the id as ASCII (trimmed of trailing NULs) when the
// first byte is non-zero, or as lowercase hex of bytes [1:] otherwise.
func (id ID) String() string {
	if id[0] == 0 {
		return hex.EncodeToString(id[1:])
	}
	end := 0
	for i, b := range id {
		if b != 0 {
			end = i + 1
		}
	}
	return string(id[:end])
}

// Parse accepts either the 14-char hex form (first byte implicitly zero)
// or an up-to-8-char ASCII form.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) == 14 {
		var buf [7]byte
		if _, err := hex.Decode(buf[:], []byte(s)); err == nil {
			copy(id[1:], buf[:])
			return id, nil
		}
	}
	lower := strings.ToLower(s)
	if !isASCII(lower) || len(lower) > 8 {
		return id, taxyerr.InvalidShortId(s)
	}
	copy(id[:], lower)
	return id, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler so ID can be used
// directly as a TOML/JSON map key or scalar value.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Less implements the byte-wise ordering used to keep ID collections
// stable and comparable.
func Less(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
