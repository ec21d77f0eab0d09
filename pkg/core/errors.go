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

package core

import "errors"

var (
	// ErrConnect covers transport, auth and duplicate-clientID failures
	// while establishing a broker connection.
	ErrConnect = errors.New("connect failed")

	// ErrSubscribe is returned when the broker rejects the subscription
	// filter, or when a subscribe is attempted from an illegal state.
	ErrSubscribe = errors.New("subscribe failed")

	// ErrNotConnected is returned for operations that require an open
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrStartup means one or more sessions failed to reach the
	// subscribed state within the startup timeout. Fatal to the run.
	ErrStartup = errors.New("startup failed")

	// ErrLedgerInvariant means the ledger total diverged from the sum of
	// per-session counts. Indicates a bug in the probe itself; fatal.
	ErrLedgerInvariant = errors.New("ledger invariant violated")

	// ErrSessionNotFound is returned when an operation names a session
	// id outside the managed pool.
	ErrSessionNotFound = errors.New("session not found")
)
