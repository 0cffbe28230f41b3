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

package model

import (
	"time"

	"github.com/taxygo/taxy/internal/multiaddr"
)

// AppConfig is the process-wide configuration, persisted as config.toml.
type AppConfig struct {
	BackgroundTaskInterval time.Duration
	HttpChallengeAddr      multiaddr.Multiaddr
}

// DefaultAppConfig returns the configuration used when config.toml is
// absent: an hourly background sweep and a challenge listener bound to
// all interfaces on port 80.
func DefaultAppConfig() AppConfig {
	addr, _ := multiaddr.Parse("/ip4/0.0.0.0/tcp/80")
	return AppConfig{
		BackgroundTaskInterval: time.Hour,
		HttpChallengeAddr:      addr,
	}
}

// Account is one administrator credential, persisted as accounts.toml.
type Account struct {
	Username     string
	PasswordHash string
	TotpSecret   []byte
}
