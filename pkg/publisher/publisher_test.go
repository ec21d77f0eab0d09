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

package publisher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

type capturingConn struct {
	mu          sync.Mutex
	published   []core.Message
	topics      []string
	disconnects int
	publishErr  error
}

func (c *capturingConn) Subscribe(ctx context.Context, filter string, qos byte) error { return nil }

func (c *capturingConn) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	msg, err := core.DecodeMessage(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.published = append(c.published, msg)
	c.topics = append(c.topics, topic)
	c.mu.Unlock()
	return nil
}

func (c *capturingConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

func (c *capturingConn) SessionPresent() bool { return false }

type capturingDialer struct {
	conn    *capturingConn
	dialErr error
}

func (d *capturingDialer) Dial(ctx context.Context, clientID string, onMessage func(core.Inbound)) (core.Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.conn, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPublisher(conn *capturingConn) *Publisher {
	return New("message-queuing-test-publisher", "test/shared/messages", &capturingDialer{conn: conn}, testLogger())
}

func TestPublishSequences(t *testing.T) {
	conn := &capturingConn{}
	p := newTestPublisher(conn)
	ctx := context.Background()

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Publish(ctx); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	if p.Count() != 3 {
		t.Fatalf("expected count 3, got %d", p.Count())
	}
	for i, msg := range conn.published {
		if msg.Sequence != uint64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, msg.Sequence)
		}
		if msg.Sender != "message-queuing-test-publisher" {
			t.Fatalf("unexpected sender %s", msg.Sender)
		}
		if msg.MessageID == "" {
			t.Fatal("missing message id")
		}
		if conn.topics[i] != "test/shared/messages" {
			t.Fatalf("unexpected topic %s", conn.topics[i])
		}
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	p := newTestPublisher(&capturingConn{})

	_, err := p.Publish(context.Background())
	if !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	p := New("pub", "t", &capturingDialer{dialErr: errors.New("tls handshake failed")}, testLogger())

	err := p.Connect(context.Background())
	if !errors.Is(err, core.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestFailedPublishDoesNotAdvanceSequence(t *testing.T) {
	conn := &capturingConn{publishErr: errors.New("broker unavailable")}
	p := newTestPublisher(conn)
	ctx := context.Background()

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := p.Publish(ctx); err == nil {
		t.Fatal("expected publish error")
	}
	if p.Count() != 0 {
		t.Fatalf("expected count 0 after failed publish, got %d", p.Count())
	}
}

func TestRunPublishesMax(t *testing.T) {
	conn := &capturingConn{}
	p := newTestPublisher(conn)
	ctx := context.Background()

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := p.Run(ctx, time.Millisecond, 5); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Count() != 5 {
		t.Fatalf("expected 5 published, got %d", p.Count())
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	conn := &capturingConn{}
	p := newTestPublisher(conn)
	ctx := context.Background()

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := p.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := p.Disconnect(ctx); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if conn.disconnects != 1 {
		t.Fatalf("expected 1 transport disconnect, got %d", conn.disconnects)
	}
}
