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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/chaos"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/ledger"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/internal/sink"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/mqtt"
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

	led := ledger.New(config.ParseDuplicatePolicy(cfg.DuplicatePolicy))
	deliveryLog := logging.NewDeliveryLogger(logger.With("component", "delivery"))

	var kafkaSink *sink.Kafka
	var reportSink session.ReportSink
	if len(cfg.ReportSink.Brokers) > 0 {
		kafkaSink = sink.NewKafka(
			cfg.ReportSink.Brokers,
			cfg.ReportSink.Topic,
			uuid.New().String(),
			logger.With("component", "sink"),
		)
		reportSink = kafkaSink
	}

	mgr := session.NewManager(session.ManagerConfig{
		NumSessions:    cfg.NumSubscribers,
		ClientIDPrefix: cfg.ClientIDPrefix,
		SharedFilter:   cfg.SharedTopic(),
		StartupTimeout: cfg.StartupTimeout.Std(),
		ConnectStagger: cfg.ConnectStagger.Std(),
	}, dialer, led, deliveryLog, logger, reportSink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		logger.Error("startup failed", "error", err)
		finish(mgr, kafkaSink, logger, 1)
	}

	fatal := make(chan error, 1)
	go func() {
		if err := mgr.RunReporter(ctx, cfg.ReportInterval.Std()); err != nil {
			fatal <- err
		}
	}()

	if cfg.Simulator.Enabled {
		sessions := mgr.Sessions()
		targets := make([]chaos.Target, 0, len(sessions))
		for _, s := range sessions {
			targets = append(targets, s)
		}
		sim := chaos.New(targets, chaos.Policy{
			Targets:   cfg.Simulator.Targets,
			DwellMin:  cfg.Simulator.DwellMin.Std(),
			DwellMax:  cfg.Simulator.DwellMax.Std(),
			OutageMin: cfg.Simulator.OutageMin.Std(),
			OutageMax: cfg.Simulator.OutageMax.Std(),
		}, time.Now().UnixNano(), logger.With("component", "simulator"))
		go sim.Run(ctx)
	}

	logger.Info("queuing probe started",
		"config", configPath,
		"subscribers", cfg.NumSubscribers,
		"filter", cfg.SharedTopic(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		logger.Info("interrupt received, shutting down")
	case err := <-fatal:
		logger.Error("fatal accounting failure", "error", err)
		exitCode = 1
	}
	cancel()

	finish(mgr, kafkaSink, logger, exitCode)
}

// finish performs the ordered shutdown and emits the final report; always
// exits the process.
func finish(mgr *session.Manager, kafkaSink *sink.Kafka, logger *slog.Logger, exitCode int) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mgr.Shutdown(shutdownCtx)

	snap, err := mgr.Status()
	logger.Info("final report")
	mgr.Report(snap)
	if err != nil {
		logger.Error("final accounting check failed", "error", err)
		exitCode = 1
	}

	if kafkaSink != nil {
		_ = kafkaSink.Publish(shutdownCtx, snap)
		if err := kafkaSink.Close(); err != nil {
			logger.Warn("report sink close failed", "error", err)
		}
	}

	logger.Info("queuing probe stopped")
	os.Exit(exitCode)
}
