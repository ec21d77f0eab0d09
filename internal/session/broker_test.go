// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// fakeBroker models the slice of broker behaviour the probe depends on:
// round-robin load balancing across a shared-subscription group, and
// queuing of QoS 1 messages for members whose persistent session is
// currently offline. Delivery is synchronous, keeping tests deterministic.
type fakeBroker struct {
	mu          sync.Mutex
	conns       map[string]*fakeConn
	queues      map[string][]core.Inbound
	members     []string
	known       map[string]bool
	rr          int
	failConnect map[string]bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		conns:       make(map[string]*fakeConn),
		queues:      make(map[string][]core.Inbound),
		known:       make(map[string]bool),
		failConnect: make(map[string]bool),
	}
}

func (b *fakeBroker) dialer() core.Dialer { return &fakeDialer{b: b} }

// publish load-balances one message to the next group member, queuing it
// when that member is offline.
func (b *fakeBroker) publish(payload []byte) {
	b.mu.Lock()
	if len(b.members) == 0 {
		b.mu.Unlock()
		return
	}
	member := b.members[b.rr%len(b.members)]
	b.rr++

	in := core.Inbound{Topic: "test/shared/messages", Payload: payload, QoS: 1}
	if c, ok := b.conns[member]; ok && c.isSubscribed() {
		handler := c.onMessage
		b.mu.Unlock()
		handler(in)
		return
	}
	b.queues[member] = append(b.queues[member], in)
	b.mu.Unlock()
}

func (b *fakeBroker) publishEnvelopes(t *testing.T, start, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := core.NewMessage("test-publisher", uint64(start+i))
		payload, err := msg.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		b.publish(payload)
	}
}

type fakeDialer struct {
	b *fakeBroker
}

func (d *fakeDialer) Dial(ctx context.Context, clientID string, onMessage func(core.Inbound)) (core.Conn, error) {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failConnect[clientID] {
		return nil, errors.New("connection refused")
	}

	c := &fakeConn{
		b:              b,
		clientID:       clientID,
		onMessage:      onMessage,
		sessionPresent: b.known[clientID],
	}
	b.known[clientID] = true
	b.conns[clientID] = c
	return c, nil
}

type fakeConn struct {
	b              *fakeBroker
	clientID       string
	onMessage      func(core.Inbound)
	sessionPresent bool

	mu          sync.Mutex
	subscribed  bool
	disconnects int
}

func (c *fakeConn) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

func (c *fakeConn) Subscribe(ctx context.Context, filter string, qos byte) error {
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()

	b := c.b
	b.mu.Lock()
	found := false
	for _, m := range b.members {
		if m == c.clientID {
			found = true
			break
		}
	}
	if !found {
		b.members = append(b.members, c.clientID)
	}
	queued := b.queues[c.clientID]
	delete(b.queues, c.clientID)
	b.mu.Unlock()

	// Queued share of the persistent session is replayed on resume.
	for _, in := range queued {
		in.Dup = true
		c.onMessage(in)
	}
	return nil
}

func (c *fakeConn) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	c.b.publish(payload)
	return nil
}

func (c *fakeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.subscribed = false
	c.disconnects++
	c.mu.Unlock()

	c.b.mu.Lock()
	delete(c.b.conns, c.clientID)
	c.b.mu.Unlock()
	return nil
}

func (c *fakeConn) SessionPresent() bool { return c.sessionPresent }

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}
