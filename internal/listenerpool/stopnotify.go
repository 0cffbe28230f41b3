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

package listenerpool

import (
	"context"
	"sync"
)

// stopNotifier is a rearmable broadcast signal, one per bound port. notify
// closes the channel current connections are waiting on and swaps in a
// fresh one, so every connection accepted before the call observes
// closure while connections accepted afterward see an open channel. This
// mirrors Tokio's Notify::notify_waiters and drives connection draining
// on ResetPort without tearing down the listening socket.
type stopNotifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newStopNotifier() *stopNotifier {
	return &stopNotifier{ch: make(chan struct{})}
}

func (n *stopNotifier) current() chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// notify drains every connection accepted so far, leaving the listener
// itself open for new ones.
func (n *stopNotifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// deriveStopContext returns a context cancelled either when parent is
// cancelled or when the notifier's channel, as of this call, closes.
// Snapshotting n.current() at call time is what lets a later notify
// leave freshly accepted connections alone.
func deriveStopContext(parent context.Context, n *stopNotifier) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := n.current()
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
