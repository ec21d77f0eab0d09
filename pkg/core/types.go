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

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Classification describes how the ledger categorised one delivery.
type Classification int

const (
	DeliveryFirst Classification = iota
	DeliveryRedelivery
	DeliveryAnomaly
)

func (c Classification) String() string {
	switch c {
	case DeliveryFirst:
		return "first"
	case DeliveryRedelivery:
		return "redelivery"
	case DeliveryAnomaly:
		return "duplicate_anomaly"
	default:
		return "unknown"
	}
}

// DuplicatePolicy controls how a repeat delivery following a reconnect is
// classified. QoS 1 permits redelivery after a persistent session resumes,
// so the default treats those as expected; strict mode flags them too.
type DuplicatePolicy int

const (
	DuplicatesExpected DuplicatePolicy = iota
	DuplicatesAnomaly
)

// SensorData is the fixed payload body carried by every test message.
type SensorData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Status      string  `json:"status"`
}

// Message is the QoS 1 envelope exchanged between publisher and subscribers.
type Message struct {
	MessageID string     `json:"message_id"`
	Timestamp time.Time  `json:"timestamp"`
	Sender    string     `json:"sender"`
	Sequence  uint64     `json:"sequence"`
	Data      SensorData `json:"data"`
}

func NewMessage(sender string, sequence uint64) Message {
	return Message{
		MessageID: uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Sequence:  sequence,
		Data:      SensorData{Temperature: 25.5, Humidity: 60.0, Status: "normal"},
	}
}

func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func DecodeMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.MessageID == "" {
		return Message{}, fmt.Errorf("decode message: missing message_id")
	}
	return m, nil
}

// Inbound is one publish pushed up by the transport layer.
type Inbound struct {
	Topic   string
	Payload []byte
	QoS     byte
	Dup     bool
}

// SessionReport is the per-session slice of a Snapshot.
type SessionReport struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	State    string `json:"state"`
	Received uint64 `json:"received"`
}

// Snapshot is a consistent point-in-time view of the run, safe to hold
// after the ledger has moved on.
type Snapshot struct {
	TakenAt      time.Time       `json:"taken_at"`
	Sessions     []SessionReport `json:"sessions"`
	Total        uint64          `json:"total"`
	Redeliveries uint64          `json:"redeliveries"`
	Anomalies    uint64          `json:"anomalies"`
	Disconnected int             `json:"disconnected"`
}
