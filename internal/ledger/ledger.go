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

package ledger

import (
	"fmt"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

type delivery struct {
	sessionID string
	epoch     uint64
}

// Ledger is the single shared accounting structure of a run. All mutation
// goes through one mutex so that total == sum(per-session) holds at every
// observable point, no matter how many sessions deliver concurrently.
// Counts are monotone and never reset mid-run.
type Ledger struct {
	mu           sync.Mutex
	perSession   map[string]uint64
	total        uint64
	seen         map[string]delivery
	epochs       map[string]uint64
	redeliveries uint64
	anomalies    uint64
	policy       core.DuplicatePolicy
}

func New(policy core.DuplicatePolicy) *Ledger {
	return &Ledger{
		perSession: make(map[string]uint64),
		seen:       make(map[string]delivery),
		epochs:     make(map[string]uint64),
		policy:     policy,
	}
}

// Record accounts one inbound message for a session and classifies it.
// A repeat of a message id is a redelivery when the original receiver
// recorded a disconnect in between (the broker requeued the message for
// the persistent session, possibly handing it to another group member);
// a repeat while the original receiver stayed connected is a genuine
// anomaly.
func (l *Ledger) Record(sessionID, messageID string) core.Classification {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.perSession[sessionID]++
	l.total++

	prev, ok := l.seen[messageID]
	if !ok {
		l.seen[messageID] = delivery{sessionID: sessionID, epoch: l.epochs[sessionID]}
		return core.DeliveryFirst
	}

	// A repeat is only legitimate across a reconnect boundary: either the
	// same session resumed, or the broker rerouted to another member after
	// the original target went down. A repeat while the original receiver
	// stayed connected is always an anomaly.
	if prev.epoch == l.epochs[prev.sessionID] {
		l.anomalies++
		return core.DeliveryAnomaly
	}

	l.seen[messageID] = delivery{sessionID: sessionID, epoch: l.epochs[sessionID]}
	if l.policy == core.DuplicatesAnomaly {
		l.anomalies++
		return core.DeliveryAnomaly
	}
	l.redeliveries++
	return core.DeliveryRedelivery
}

// SessionDown marks a disconnect for the session, so later repeats of
// messages it already saw are classified as post-reconnect redelivery.
func (l *Ledger) SessionDown(sessionID string) {
	l.mu.Lock()
	l.epochs[sessionID]++
	l.mu.Unlock()
}

// Count returns the recorded deliveries for one session.
func (l *Ledger) Count(sessionID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perSession[sessionID]
}

// Totals returns a point-in-time copy of the per-session counts together
// with the running total, redelivery and anomaly counters. The returned
// error reports a broken total/sum invariant, which means a bug in the
// ledger itself and must abort the run.
func (l *Ledger) Totals() (map[string]uint64, uint64, uint64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]uint64, len(l.perSession))
	var sum uint64
	for id, n := range l.perSession {
		counts[id] = n
		sum += n
	}
	if sum != l.total {
		return counts, l.total, l.redeliveries, l.anomalies,
			fmt.Errorf("%w: total=%d sum=%d", core.ErrLedgerInvariant, l.total, sum)
	}
	return counts, l.total, l.redeliveries, l.anomalies, nil
}
