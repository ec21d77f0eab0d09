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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `
broker:
  endpoint: tls://example.iot.ap-northeast-1.amazonaws.com:8883
  transport: tcp
client_id_prefix: queue-probe
topic_prefix: probe/shared
shared_group: probe-group
num_subscribers: 5
startup_timeout: 45s
report_interval: 3s
simulator:
  enabled: true
  targets: ["02", "03"]
  dwell_min: 2s
  dwell_max: 4s
publisher:
  interval: 500ms
  max_messages: 40
report_sink:
  brokers: ["localhost:9092"]
  topic: probe-reports
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NumSubscribers != 5 {
		t.Fatalf("expected 5 subscribers, got %d", cfg.NumSubscribers)
	}
	if cfg.StartupTimeout.Std() != 45*time.Second {
		t.Fatalf("expected 45s startup timeout, got %s", cfg.StartupTimeout.Std())
	}
	if cfg.Publisher.Interval.Std() != 500*time.Millisecond {
		t.Fatalf("expected 500ms interval, got %s", cfg.Publisher.Interval.Std())
	}
	if !cfg.Simulator.Enabled || len(cfg.Simulator.Targets) != 2 {
		t.Fatalf("simulator config not parsed: %+v", cfg.Simulator)
	}
	if len(cfg.ReportSink.Brokers) != 1 || cfg.ReportSink.Topic != "probe-reports" {
		t.Fatalf("report sink config not parsed: %+v", cfg.ReportSink)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "broker:\n  endpoint: tls://broker:8883\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientIDPrefix != "message-queuing-test" {
		t.Fatalf("expected default prefix, got %s", cfg.ClientIDPrefix)
	}
	if cfg.TopicPrefix != "test/shared" {
		t.Fatalf("expected default topic prefix, got %s", cfg.TopicPrefix)
	}
	if cfg.SharedGroup != "message-queuing-group" {
		t.Fatalf("expected default group, got %s", cfg.SharedGroup)
	}
	if cfg.NumSubscribers != 3 {
		t.Fatalf("expected 3 subscribers, got %d", cfg.NumSubscribers)
	}
	if cfg.Broker.KeepAliveSeconds != 30 {
		t.Fatalf("expected 30s keep alive, got %d", cfg.Broker.KeepAliveSeconds)
	}
	if cfg.Simulator.DwellMin.Std() != 5*time.Second || cfg.Simulator.OutageMax.Std() != 20*time.Second {
		t.Fatalf("simulator defaults not applied: %+v", cfg.Simulator)
	}
	if cfg.Publisher.MaxMessages != 20 {
		t.Fatalf("expected 20 max messages, got %d", cfg.Publisher.MaxMessages)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTopicHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "broker:\n  endpoint: tls://broker:8883\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.SharedTopic(); got != "$share/message-queuing-group/test/shared/messages" {
		t.Fatalf("unexpected shared topic: %s", got)
	}
	if got := cfg.PublishTopic(); got != "test/shared/messages" {
		t.Fatalf("unexpected publish topic: %s", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Broker: BrokerConfig{Endpoint: "tls://broker:8883"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing endpoint", func(c *Config) { c.Broker.Endpoint = "" }, true},
		{"bad transport", func(c *Config) { c.Broker.Transport = "carrier-pigeon" }, true},
		{"zero subscribers", func(c *Config) { c.NumSubscribers = -1 }, true},
		{"inverted dwell range", func(c *Config) { c.Simulator.DwellMin = c.Simulator.DwellMax * 2 }, true},
		{"inverted outage range", func(c *Config) { c.Simulator.OutageMin = c.Simulator.OutageMax * 2 }, true},
		{"bad duplicate policy", func(c *Config) { c.DuplicatePolicy = "maybe" }, true},
		{"cert without key", func(c *Config) { c.Broker.Cert = "/tmp/missing.crt" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateCertFilesExist(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]string{}
	for _, name := range []string{"ca.pem", "cert.pem", "key.pem"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("pem"), 0600); err != nil {
			t.Fatalf("write: %v", err)
		}
		paths[name] = p
	}

	cfg := &Config{Broker: BrokerConfig{
		Endpoint: "tls://broker:8883",
		RootCA:   paths["ca.pem"],
		Cert:     paths["cert.pem"],
		Key:      paths["key.pem"],
	}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid mTLS config: %v", err)
	}

	os.Remove(paths["key.pem"])
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	if ParseDuplicatePolicy("anomaly") != core.DuplicatesAnomaly {
		t.Fatal("expected anomaly policy")
	}
	if ParseDuplicatePolicy("expected") != core.DuplicatesExpected {
		t.Fatal("expected lenient policy")
	}
	if ParseDuplicatePolicy("") != core.DuplicatesExpected {
		t.Fatal("expected default lenient policy")
	}
}
