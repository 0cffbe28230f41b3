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

package events

import (
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer bounds how far one subscriber may lag before events
// are dropped for it rather than blocking every other subscriber (and
// the control loop itself) on a slow reader.
const subscriberBuffer = 32

// Broadcaster fans a stream of Events out to every active subscriber.
// Publishing is a no-op while no subscriber is connected, matching the
// rule that broadcast only runs when at least one listener exists.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *zap.Logger
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event), logger: logger}
}

// Subscribe registers a new listener and returns its event channel plus
// an unsubscribe function that must be called exactly once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Active reports whether any subscriber is currently connected.
func (b *Broadcaster) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) > 0
}

// Publish fans ev out to every subscriber. A subscriber whose buffer is
// full is skipped rather than blocked; the drop is logged and otherwise
// ignored, mirroring the tolerated Lagged(n) signal of a broadcast
// channel.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event subscriber lagged, dropping event",
				zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Close publishes a terminal Shutdown event and closes every
// subscriber's channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- Shutdown():
		default:
		}
		close(ch)
	}
	b.subs = make(map[int]chan Event)
}
