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
	"fmt"
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/ledger"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// Session is one member of the shared-subscription group. Identity
// (clientID) is fixed at creation and survives every disconnect cycle, so
// the broker resumes the persistent session and replays queued messages.
// State transitions happen only through Connect/Subscribe/Disconnect;
// other components never write state directly.
type Session struct {
	id          string
	clientID    string
	filter      string
	dialer      core.Dialer
	ledger      *ledger.Ledger
	deliveryLog *logging.DeliveryLogger
	logger      *slog.Logger

	mu    sync.Mutex
	state core.SessionState
	conn  core.Conn
}

func New(
	id string,
	clientID string,
	filter string,
	dialer core.Dialer,
	led *ledger.Ledger,
	deliveryLog *logging.DeliveryLogger,
	logger *slog.Logger,
) *Session {
	return &Session{
		id:          id,
		clientID:    clientID,
		filter:      filter,
		dialer:      dialer,
		ledger:      led,
		deliveryLog: deliveryLog,
		logger:      logger,
		state:       core.StateDisconnected,
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) ClientID() string { return s.clientID }

func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the transport and blocks until the broker
// acknowledges, or the context expires. Only legal from the disconnected
// state; on failure the session drops back to disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != core.StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session=%s state=%s", core.ErrConnect, s.id, state)
	}
	s.state = core.StateConnecting
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.clientID, s.handleInbound)
	if err != nil {
		s.mu.Lock()
		s.state = core.StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("%w: session=%s: %v", core.ErrConnect, s.id, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = core.StateConnected
	s.mu.Unlock()

	s.logger.Info("session connected",
		"session_id", s.id,
		"client_id", s.clientID,
		"session_present", conn.SessionPresent(),
	)
	return nil
}

// Subscribe issues the shared-subscription filter at QoS 1. Only legal
// once connected; re-subscribing while already subscribed is an error, a
// disconnect must happen in between.
func (s *Session) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state != core.StateConnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session=%s state=%s", core.ErrSubscribe, s.id, state)
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Subscribe(ctx, s.filter, 1); err != nil {
		return fmt.Errorf("%w: session=%s: %v", core.ErrSubscribe, s.id, err)
	}

	s.mu.Lock()
	// Disconnect may have raced the suback; only promote from connected.
	if s.state == core.StateConnected {
		s.state = core.StateSubscribed
	}
	s.mu.Unlock()

	s.logger.Info("session subscribed",
		"session_id", s.id,
		"filter", s.filter,
	)
	return nil
}

// Disconnect tears down the transport but keeps the session identity so
// the next Connect resumes the broker-side state. Idempotent.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == core.StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.state = core.StateDisconnected
	s.mu.Unlock()

	s.ledger.SessionDown(s.id)

	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			s.logger.Warn("disconnect error", "session_id", s.id, "error", err)
		}
	}
	s.logger.Info("session disconnected", "session_id", s.id, "client_id", s.clientID)
	return nil
}

// handleInbound is pushed by the transport for every QoS 1 publish on the
// shared filter. At-least-once delivery means duplicates are possible
// after reconnects; the ledger classifies them.
func (s *Session) handleInbound(in core.Inbound) {
	msg, err := core.DecodeMessage(in.Payload)
	if err != nil {
		s.logger.Warn("undecodable message dropped",
			"session_id", s.id,
			"topic", in.Topic,
			"error", err,
		)
		return
	}

	class := s.ledger.Record(s.id, msg.MessageID)
	if s.deliveryLog != nil {
		s.deliveryLog.Log(s.id, s.clientID, msg, class)
	}
	if class == core.DeliveryAnomaly {
		s.logger.Error("duplicate delivery without intervening disconnect",
			"session_id", s.id,
			"message_id", msg.MessageID,
			"sequence", msg.Sequence,
		)
	}
}
