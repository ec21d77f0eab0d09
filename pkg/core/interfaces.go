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

import "context"

// Dialer opens one broker connection for a fixed client identity. Inbound
// publishes are pushed to onMessage from the transport's own goroutine;
// the handler must tolerate duplicates and must not block for long.
type Dialer interface {
	Dial(ctx context.Context, clientID string, onMessage func(Inbound)) (Conn, error)
}

// Conn is a single established broker connection. Dial returns only after
// the broker acknowledged the connection, so a Conn starts out usable.
type Conn interface {
	// Subscribe issues the given filter at the given QoS and blocks until
	// the broker acknowledges or the context is done.
	Subscribe(ctx context.Context, filter string, qos byte) error

	// Publish sends one message and, at QoS 1, blocks until the broker
	// acknowledges it.
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error

	// Disconnect closes the transport. The broker-side session survives
	// when the connection was opened with a persistent session.
	Disconnect(ctx context.Context) error

	// SessionPresent reports whether the broker resumed an existing
	// session in its CONNACK.
	SessionPresent() bool
}
