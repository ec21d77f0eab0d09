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

package logging

import (
	"log/slog"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

type DeliveryLogger struct {
	logger *slog.Logger
}

func NewDeliveryLogger(logger *slog.Logger) *DeliveryLogger {
	return &DeliveryLogger{logger: logger}
}

func (d *DeliveryLogger) Log(sessionID, clientID string, msg core.Message, class core.Classification) {
	d.logger.Info("delivery",
		"session_id", sessionID,
		"client_id", clientID,
		"message_id", msg.MessageID,
		"sequence", msg.Sequence,
		"sender", msg.Sender,
		"classification", class.String(),
		"sent_at", msg.Timestamp,
	)
}
