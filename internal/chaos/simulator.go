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

package chaos

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// Target is the slice of a session the simulator is allowed to touch.
// It never mutates session state directly, only calls the public ops.
type Target interface {
	ID() string
	State() core.SessionState
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Policy selects which sessions get perturbed and how long the dwell
// (time spent subscribed between cycles) and outage windows run.
type Policy struct {
	Targets   []string // empty selects every session
	DwellMin  time.Duration
	DwellMax  time.Duration
	OutageMin time.Duration
	OutageMax time.Duration
}

const reconnectBackoffCap = 30 * time.Second

// Simulator forces targeted sessions through disconnect/reconnect cycles
// on independent per-session schedules, so the pool exhibits realistic
// partial availability. Randomness and sleeping are injectable, letting
// tests run the schedule on virtual time.
type Simulator struct {
	targets []Target
	policy  Policy
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep waits for d or until ctx is done; returns false on ctx done.
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(targets []Target, policy Policy, seed int64, logger *slog.Logger) *Simulator {
	selected := targets
	if len(policy.Targets) > 0 {
		wanted := make(map[string]bool, len(policy.Targets))
		for _, id := range policy.Targets {
			wanted[id] = true
		}
		selected = nil
		for _, t := range targets {
			if wanted[t.ID()] {
				selected = append(selected, t)
			}
		}
	}
	return &Simulator{
		targets: selected,
		policy:  policy,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)),
		sleep:   realSleep,
	}
}

// Run drives one perturbation loop per target and blocks until the
// context is cancelled. A failing target never stalls the others.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("disconnect simulation started", "targets", len(s.targets))

	var wg sync.WaitGroup
	for _, t := range s.targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			s.perturb(ctx, t)
		}(t)
	}
	wg.Wait()

	s.logger.Info("disconnect simulation stopped")
}

func (s *Simulator) perturb(ctx context.Context, t Target) {
	for {
		if !s.sleep(ctx, s.interval(s.policy.DwellMin, s.policy.DwellMax)) {
			return
		}
		if t.State() != core.StateSubscribed {
			continue
		}

		outage := s.interval(s.policy.OutageMin, s.policy.OutageMax)
		s.logger.Info("simulating disconnect",
			"session_id", t.ID(),
			"outage", outage,
		)
		_ = t.Disconnect(ctx)

		if !s.sleep(ctx, outage) {
			return
		}
		if !s.reconnect(ctx, t) {
			return
		}
	}
}

// reconnect retries until the session is subscribed again or the context
// is done. Backoff grows per attempt and is capped; failures are logged
// and never propagate.
func (s *Simulator) reconnect(ctx context.Context, t Target) bool {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		err := t.Connect(ctx)
		if err == nil {
			err = t.Subscribe(ctx)
			if err == nil {
				s.logger.Info("session resumed",
					"session_id", t.ID(),
					"attempts", attempt,
				)
				return true
			}
			// Half-open connection is useless to the group; drop it
			// before the next attempt.
			_ = t.Disconnect(ctx)
		}
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("reconnect failed, will retry",
			"session_id", t.ID(),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !s.sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > reconnectBackoffCap {
			backoff = reconnectBackoffCap
		}
	}
}

func (s *Simulator) interval(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func realSleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
