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

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/mqtt"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/publisher"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/etc/queuing-probe/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "path", configPath, "error", err)
		os.Exit(1)
	}

	dialer, err := mqtt.NewDialer(mqtt.Options{
		Endpoint:      cfg.Broker.Endpoint,
		Transport:     cfg.Broker.Transport,
		RootCA:        cfg.Broker.RootCA,
		Cert:          cfg.Broker.Cert,
		Key:           cfg.Broker.Key,
		KeepAlive:     cfg.Broker.KeepAliveSeconds,
		SessionExpiry: cfg.Broker.SessionExpirySeconds,
		Logger:        logger.With("component", "mqtt"),
	})
	if err != nil {
		logger.Error("failed to build dialer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub := publisher.New(
		core.PublisherClientID(cfg.ClientIDPrefix),
		cfg.PublishTopic(),
		dialer,
		logger,
	)

	if err := pub.Connect(ctx); err != nil {
		logger.Error("publisher connect failed", "error", err)
		os.Exit(1)
	}

	runErr := pub.Run(ctx, cfg.Publisher.Interval.Std(), cfg.Publisher.MaxMessages)

	// Leave the acknowledged messages a moment to fan out before closing.
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pub.Disconnect(disconnectCtx); err != nil {
		logger.Warn("publisher disconnect failed", "error", err)
	}

	logger.Info("publish summary", "published", pub.Count(), "max", cfg.Publisher.MaxMessages)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("publishing stopped early", "error", runErr)
		os.Exit(1)
	}
}
