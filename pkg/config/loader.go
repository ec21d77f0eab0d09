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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Broker          BrokerConfig    `yaml:"broker"`
	ClientIDPrefix  string          `yaml:"client_id_prefix"`
	TopicPrefix     string          `yaml:"topic_prefix"`
	SharedGroup     string          `yaml:"shared_group"`
	NumSubscribers  int             `yaml:"num_subscribers"`
	StartupTimeout  Duration        `yaml:"startup_timeout"`
	ConnectStagger  Duration        `yaml:"connect_stagger"`
	ReportInterval  Duration        `yaml:"report_interval"`
	DuplicatePolicy string          `yaml:"duplicate_policy"`
	Simulator       SimulatorConfig `yaml:"simulator"`
	Publisher       PublisherConfig `yaml:"publisher"`
	ReportSink      SinkConfig      `yaml:"report_sink"`
}

type BrokerConfig struct {
	Endpoint             string `yaml:"endpoint"`
	Transport            string `yaml:"transport"`
	RootCA               string `yaml:"root_ca"`
	Cert                 string `yaml:"cert"`
	Key                  string `yaml:"key"`
	KeepAliveSeconds     uint16 `yaml:"keep_alive_seconds"`
	SessionExpirySeconds uint32 `yaml:"session_expiry_seconds"`
}

type SimulatorConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Targets   []string `yaml:"targets"`
	DwellMin  Duration `yaml:"dwell_min"`
	DwellMax  Duration `yaml:"dwell_max"`
	OutageMin Duration `yaml:"outage_min"`
	OutageMax Duration `yaml:"outage_max"`
}

type PublisherConfig struct {
	Interval    Duration `yaml:"interval"`
	MaxMessages int      `yaml:"max_messages"`
}

type SinkConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Transport == "" {
		c.Broker.Transport = "tcp"
	}
	if c.Broker.KeepAliveSeconds == 0 {
		c.Broker.KeepAliveSeconds = 30
	}
	if c.Broker.SessionExpirySeconds == 0 {
		c.Broker.SessionExpirySeconds = 3600
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "message-queuing-test"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "test/shared"
	}
	if c.SharedGroup == "" {
		c.SharedGroup = "message-queuing-group"
	}
	if c.NumSubscribers == 0 {
		c.NumSubscribers = 3
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = Duration(30 * time.Second)
	}
	if c.ConnectStagger == 0 {
		c.ConnectStagger = Duration(time.Second)
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = Duration(10 * time.Second)
	}
	if c.DuplicatePolicy == "" {
		c.DuplicatePolicy = "expected"
	}
	if c.Simulator.DwellMin == 0 {
		c.Simulator.DwellMin = Duration(5 * time.Second)
	}
	if c.Simulator.DwellMax == 0 {
		c.Simulator.DwellMax = Duration(15 * time.Second)
	}
	if c.Simulator.OutageMin == 0 {
		c.Simulator.OutageMin = Duration(8 * time.Second)
	}
	if c.Simulator.OutageMax == 0 {
		c.Simulator.OutageMax = Duration(20 * time.Second)
	}
	if c.Publisher.Interval == 0 {
		c.Publisher.Interval = Duration(time.Second)
	}
	if c.Publisher.MaxMessages == 0 {
		c.Publisher.MaxMessages = 20
	}
	if c.ReportSink.Topic == "" {
		c.ReportSink.Topic = "queuing-probe-reports"
	}
}

func (c *Config) Validate() error {
	if c.Broker.Endpoint == "" {
		return fmt.Errorf("broker.endpoint is required")
	}
	switch c.Broker.Transport {
	case "tcp", "websocket":
	default:
		return fmt.Errorf("broker.transport must be tcp or websocket, got %q", c.Broker.Transport)
	}
	if c.NumSubscribers < 1 {
		return fmt.Errorf("num_subscribers must be at least 1, got %d", c.NumSubscribers)
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive")
	}
	if c.Simulator.DwellMin > c.Simulator.DwellMax {
		return fmt.Errorf("simulator.dwell_min exceeds dwell_max")
	}
	if c.Simulator.OutageMin > c.Simulator.OutageMax {
		return fmt.Errorf("simulator.outage_min exceeds outage_max")
	}
	switch c.DuplicatePolicy {
	case "expected", "anomaly":
	default:
		return fmt.Errorf("duplicate_policy must be expected or anomaly, got %q", c.DuplicatePolicy)
	}
	if c.Broker.Cert != "" || c.Broker.Key != "" || c.Broker.RootCA != "" {
		for _, path := range []string{c.Broker.RootCA, c.Broker.Cert, c.Broker.Key} {
			if path == "" {
				return fmt.Errorf("broker mTLS requires root_ca, cert and key together")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("certificate file: %w", err)
			}
		}
	}
	return nil
}

// SharedTopic is the filter every subscriber session issues; the broker
// load-balances each publish across the group's members.
func (c *Config) SharedTopic() string {
	return fmt.Sprintf("$share/%s/%s/messages", c.SharedGroup, c.TopicPrefix)
}

// PublishTopic is the concrete topic the publisher sends on.
func (c *Config) PublishTopic() string {
	return c.TopicPrefix + "/messages"
}

func ParseDuplicatePolicy(s string) core.DuplicatePolicy {
	if s == "anomaly" {
		return core.DuplicatesAnomaly
	}
	return core.DuplicatesExpected
}
