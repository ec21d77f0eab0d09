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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// Publisher is the sequential QoS 1 sender driving the queuing test. It
// is deliberately simple: one connection, one message at a time, each
// publish acknowledged before the next.
type Publisher struct {
	clientID string
	topic    string
	dialer   core.Dialer
	logger   *slog.Logger

	mu    sync.Mutex
	conn  core.Conn
	count uint64
}

func New(clientID, topic string, dialer core.Dialer, logger *slog.Logger) *Publisher {
	return &Publisher{
		clientID: clientID,
		topic:    topic,
		dialer:   dialer,
		logger:   logger,
	}
}

func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := p.dialer.Dial(ctx, p.clientID, func(core.Inbound) {})
	if err != nil {
		return fmt.Errorf("%w: publisher: %v", core.ErrConnect, err)
	}
	p.conn = conn
	p.logger.Info("publisher connected",
		"client_id", p.clientID,
		"session_present", conn.SessionPresent(),
	)
	return nil
}

// Publish sends one envelope and blocks until the broker acknowledges.
func (p *Publisher) Publish(ctx context.Context) (core.Message, error) {
	p.mu.Lock()
	conn := p.conn
	seq := p.count + 1
	p.mu.Unlock()

	if conn == nil {
		return core.Message{}, fmt.Errorf("%w: publisher", core.ErrNotConnected)
	}

	msg := core.NewMessage(p.clientID, seq)
	payload, err := msg.Encode()
	if err != nil {
		return core.Message{}, err
	}
	if err := conn.Publish(ctx, p.topic, payload, 1); err != nil {
		return core.Message{}, fmt.Errorf("publish message %s: %w", msg.MessageID, err)
	}

	p.mu.Lock()
	p.count = seq
	p.mu.Unlock()

	p.logger.Info("message published",
		"message_id", msg.MessageID,
		"sequence", msg.Sequence,
		"topic", p.topic,
	)
	return msg, nil
}

// Run publishes max messages, one every interval, stopping early when the
// context is cancelled or the connection is gone.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, max int) error {
	p.logger.Info("continuous publishing started", "interval", interval, "max", max)

	for i := 0; i < max; i++ {
		if _, err := p.Publish(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	p.logger.Info("continuous publishing finished", "published", p.Count())
	return nil
}

func (p *Publisher) Count() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Disconnect closes the connection. Idempotent.
func (p *Publisher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("publisher disconnect: %w", err)
	}
	p.logger.Info("publisher disconnected", "client_id", p.clientID)
	return nil
}
