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

package control

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taxygo/taxy/internal/certstore"
	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/multiaddr"
	"github.com/taxygo/taxy/internal/shortid"
	"github.com/taxygo/taxy/internal/storage"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	store := storage.NewFileStorage(t.TempDir())
	s, err := New(store, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewLoadsDefaultAppConfig(t *testing.T) {
	s := newTestState(t)
	if s.config.BackgroundTaskInterval != time.Hour {
		t.Fatalf("expected default hourly interval, got %v", s.config.BackgroundTaskInterval)
	}
}

func TestCallRunsOnLoopGoroutine(t *testing.T) {
	s := newTestState(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	addr, _ := multiaddr.Parse("/ip4/127.0.0.1/tcp/0")
	entry, err := Call(ctx, s, func(st *State) (model.PortEntry, error) {
		return st.SetPort(ctx, shortid.ID{}, model.Port{Active: true, Name: "web", Listen: addr})
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if entry.ID.Empty() {
		t.Fatal("expected a generated port id")
	}

	ports, err := Call(ctx, s, (*State).Ports)
	if err != nil {
		t.Fatalf("Call Ports: %v", err)
	}
	if len(ports) != 1 || ports[0].ID != entry.ID {
		t.Fatalf("expected the port to be stored, got %#v", ports)
	}
}

func TestRemoveExpiredCertsKeepsAtLeastOne(t *testing.T) {
	s := newTestState(t)

	ca, err := certstore.NewCA()
	if err != nil {
		t.Fatalf("NewCA: %v", err)
	}
	ca.Metadata = &model.CertMetadata{AcmeID: "acme1"}
	ca.NotAfter = time.Now().Add(-time.Hour)
	if err := s.keyring.Add(ca); err != nil {
		t.Fatalf("Add: %v", err)
	}

	id, _ := shortid.Parse("acme1")
	s.acmes[id] = nil

	s.removeExpiredCerts()

	if s.keyring.Len() != 1 {
		t.Fatalf("expected the sole expired cert to be kept, got %d certs", s.keyring.Len())
	}
}

func TestDeletePortUnknownID(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	if err := s.DeletePort(ctx, shortid.New()); err == nil {
		t.Fatal("expected an error deleting an unknown port")
	}
}
