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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/ledger"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// ReportSink receives periodic snapshots for offline analysis. Publishing
// is best effort; sink failures never interrupt the run.
type ReportSink interface {
	Publish(ctx context.Context, snap core.Snapshot) error
}

// Manager owns the subscriber pool: it drives startup to the point where
// every session is subscribed, serves consistent status snapshots, and
// performs ordered, idempotent shutdown.
type Manager struct {
	sessions       []*Session
	ledger         *ledger.Ledger
	logger         *slog.Logger
	sink           ReportSink
	startupTimeout time.Duration
	stagger        time.Duration
	shutdownOnce   sync.Once
}

type ManagerConfig struct {
	NumSessions    int
	ClientIDPrefix string
	SharedFilter   string
	StartupTimeout time.Duration
	ConnectStagger time.Duration
}

func NewManager(
	cfg ManagerConfig,
	dialer core.Dialer,
	led *ledger.Ledger,
	deliveryLog *logging.DeliveryLogger,
	logger *slog.Logger,
	sink ReportSink,
) *Manager {
	sessions := make([]*Session, 0, cfg.NumSessions)
	for i := 1; i <= cfg.NumSessions; i++ {
		sessions = append(sessions, New(
			core.SubscriberID(i),
			core.SubscriberClientID(cfg.ClientIDPrefix, i),
			cfg.SharedFilter,
			dialer,
			led,
			deliveryLog,
			logger,
		))
	}
	return &Manager{
		sessions:       sessions,
		ledger:         led,
		logger:         logger,
		sink:           sink,
		startupTimeout: cfg.StartupTimeout,
		stagger:        cfg.ConnectStagger,
	}
}

// Start connects and subscribes every session concurrently, with a small
// stagger between connection attempts, and blocks until all of them reach
// the subscribed state. Any failure within the startup timeout fails the
// whole run.
func (m *Manager) Start(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(ctx, m.startupTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(m.sessions))

	for i, s := range m.sessions {
		wg.Add(1)
		go func(ordinal int, s *Session) {
			defer wg.Done()
			if m.stagger > 0 && ordinal > 0 {
				select {
				case <-time.After(time.Duration(ordinal) * m.stagger):
				case <-startCtx.Done():
					errCh <- fmt.Errorf("session=%s: %v", s.ID(), startCtx.Err())
					return
				}
			}
			if err := s.Connect(startCtx); err != nil {
				errCh <- err
				return
			}
			if err := s.Subscribe(startCtx); err != nil {
				errCh <- err
				return
			}
		}(i, s)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d sessions not subscribed: %v",
			core.ErrStartup, len(errs), len(m.sessions), errors.Join(errs...))
	}

	m.logger.Info("all sessions subscribed", "count", len(m.sessions))
	return nil
}

// Sessions exposes the pool to the disconnect simulator. The simulator
// only calls public session operations, it never owns session state.
func (m *Manager) Sessions() []*Session {
	return m.sessions
}

func (m *Manager) Session(id string) (*Session, error) {
	for _, s := range m.sessions {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: id=%s", core.ErrSessionNotFound, id)
}

// Status assembles a point-in-time snapshot from the ledger plus live
// session states. A returned ErrLedgerInvariant means the accounting is
// broken and the run must abort.
func (m *Manager) Status() (core.Snapshot, error) {
	counts, total, redeliveries, anomalies, err := m.ledger.Totals()

	snap := core.Snapshot{
		TakenAt:      time.Now().UTC(),
		Total:        total,
		Redeliveries: redeliveries,
		Anomalies:    anomalies,
	}
	for _, s := range m.sessions {
		state := s.State()
		if state != core.StateSubscribed && state != core.StateConnected {
			snap.Disconnected++
		}
		snap.Sessions = append(snap.Sessions, core.SessionReport{
			ID:       s.ID(),
			ClientID: s.ClientID(),
			State:    state.String(),
			Received: counts[s.ID()],
		})
	}
	return snap, err
}

// RunReporter logs a snapshot every interval until the context is done.
// It returns early, with the error, when the ledger invariant breaks.
func (m *Manager) RunReporter(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := m.Status()
			if err != nil {
				m.dump(snap)
				return err
			}
			m.Report(snap)
			if m.sink != nil {
				if err := m.sink.Publish(ctx, snap); err != nil && ctx.Err() == nil {
					m.logger.Warn("report sink publish failed", "error", err)
				}
			}
		}
	}
}

// Report logs one snapshot in the per-session-then-summary shape the
// original harness printed.
func (m *Manager) Report(snap core.Snapshot) {
	for _, sr := range snap.Sessions {
		m.logger.Info("session status",
			"session_id", sr.ID,
			"state", sr.State,
			"received", sr.Received,
		)
	}
	m.logger.Info("run status",
		"total_received", snap.Total,
		"redeliveries", snap.Redeliveries,
		"anomalies", snap.Anomalies,
		"sessions_disconnected", snap.Disconnected,
	)
	if snap.Disconnected > 0 {
		m.logger.Info("queued messages will be redelivered when disconnected sessions resume",
			"sessions_disconnected", snap.Disconnected,
		)
	}
}

// dump emits the full diagnostic state for a fatal accounting failure.
func (m *Manager) dump(snap core.Snapshot) {
	m.logger.Error("accounting invariant violated, dumping state",
		"total", snap.Total,
		"redeliveries", snap.Redeliveries,
		"anomalies", snap.Anomalies,
	)
	for _, sr := range snap.Sessions {
		m.logger.Error("ledger entry",
			"session_id", sr.ID,
			"client_id", sr.ClientID,
			"state", sr.State,
			"received", sr.Received,
		)
	}
}

// Shutdown disconnects every session regardless of its current state.
// Safe to call more than once; only the first call has any effect.
func (m *Manager) Shutdown(ctx context.Context) {
	m.shutdownOnce.Do(func() {
		m.logger.Info("shutting down sessions", "count", len(m.sessions))
		for _, s := range m.sessions {
			_ = s.Disconnect(ctx)
		}
	})
}
