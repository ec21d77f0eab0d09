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

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

// Kafka forwards run snapshots to a Kafka topic so delivery accounting
// can be analysed after the run. All snapshots of one run share a key.
type Kafka struct {
	writer *kafka.Writer
	runID  string
	logger *slog.Logger
}

func NewKafka(brokers []string, topic, runID string, logger *slog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	logger.Info("report sink enabled",
		"brokers", strings.Join(brokers, ","),
		"topic", topic,
		"run_id", runID,
	)
	return &Kafka{writer: writer, runID: runID, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, snap core.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(k.runID),
		Value: value,
	}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
