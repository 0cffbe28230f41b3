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

// Package events implements the control loop's broadcast channel: every
// state mutation fans out a typed Event to every subscriber (normally
// the admin API's server-sent-events stream), each stamped with a
// random trace id for cross-referencing against logs.
package events

import (
	"github.com/google/uuid"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/shortid"
)

// Kind discriminates the variant carried by an Event, mirroring a
// tagged union despite Go's lack of sum types.
type Kind string

const (
	KindAppConfigUpdated  Kind = "app_config_updated"
	KindPortTableUpdated  Kind = "port_table_updated"
	KindPortStatusUpdated Kind = "port_status_updated"
	KindCertsUpdated      Kind = "certs_updated"
	KindAcmeUpdated       Kind = "acme_updated"
	KindShutdown          Kind = "shutdown"
)

// Source distinguishes an app config change applied from the on-disk
// file at startup from one applied through the admin API.
type Source string

const (
	SourceFile Source = "file"
	SourceApi  Source = "api"
)

// Event is the wire shape broadcast to every subscriber. Only the
// fields relevant to Kind are populated.
type Event struct {
	TraceID uuid.UUID `json:"trace_id"`
	Kind    Kind      `json:"kind"`

	AppConfig *model.AppConfig `json:"app_config,omitempty"`
	Source    Source           `json:"source,omitempty"`

	Ports []model.PortEntry `json:"ports,omitempty"`

	PortID     *shortid.ID      `json:"port_id,omitempty"`
	PortStatus *model.PortStatus `json:"port_status,omitempty"`
}

func AppConfigUpdated(cfg model.AppConfig, source Source) Event {
	return Event{TraceID: uuid.New(), Kind: KindAppConfigUpdated, AppConfig: &cfg, Source: source}
}

func PortTableUpdated(entries []model.PortEntry) Event {
	return Event{TraceID: uuid.New(), Kind: KindPortTableUpdated, Ports: entries}
}

func PortStatusUpdated(id shortid.ID, status model.PortStatus) Event {
	return Event{TraceID: uuid.New(), Kind: KindPortStatusUpdated, PortID: &id, PortStatus: &status}
}

func CertsUpdated() Event {
	return Event{TraceID: uuid.New(), Kind: KindCertsUpdated}
}

func AcmeUpdated() Event {
	return Event{TraceID: uuid.New(), Kind: KindAcmeUpdated}
}

func Shutdown() Event {
	return Event{TraceID: uuid.New(), Kind: KindShutdown}
}
