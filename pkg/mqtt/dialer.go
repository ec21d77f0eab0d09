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

package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/gateway/gateway-runtime/queuing-probe/pkg/core"
)

type Options struct {
	Endpoint      string
	Transport     string // "tcp" or "websocket"
	RootCA        string
	Cert          string
	Key           string
	KeepAlive     uint16
	SessionExpiry uint32
	Logger        *slog.Logger
}

// Dialer opens broker connections over mTLS with a persistent session.
// Every connection opened for the same client id resumes the broker-side
// session state, which is what lets the broker queue QoS 1 messages while
// the client is away.
type Dialer struct {
	opts   Options
	tlsCfg *tls.Config
	logger *slog.Logger
}

func NewDialer(opts Options) (*Dialer, error) {
	d := &Dialer{opts: opts, logger: opts.Logger}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if opts.Cert != "" {
		cert, err := tls.LoadX509KeyPair(opts.Cert, opts.Key)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		caPEM, err := os.ReadFile(opts.RootCA)
		if err != nil {
			return nil, fmt.Errorf("read root CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("root CA %s contains no certificates", opts.RootCA)
		}
		d.tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		}
	}
	return d, nil
}

func (d *Dialer) Dial(ctx context.Context, clientID string, onMessage func(core.Inbound)) (core.Conn, error) {
	serverURL, err := url.Parse(d.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid broker endpoint: %w", err)
	}

	c := &conn{
		clientID:  clientID,
		router:    paho.NewStandardRouter(),
		onMessage: onMessage,
		logger:    d.logger,
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		TlsCfg:                        d.tlsCfg,
		KeepAlive:                     d.opts.KeepAlive,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         d.opts.SessionExpiry,
		ConnectTimeout:                10 * time.Second,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			c.sessionPresent.Store(connAck.SessionPresent)
			d.logger.Info("connection up",
				"client_id", clientID,
				"session_present", connAck.SessionPresent,
			)
			if !connAck.SessionPresent {
				go c.resubscribe()
			}
		},
		OnConnectError: func(err error) {
			d.logger.Warn("connect attempt failed", "client_id", clientID, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			Router:   c.router,
		},
	}

	if d.opts.Transport == "websocket" {
		cfg.WebSocketCfg = &autopaho.WebSocketConfig{
			Dialer: func(_ *url.URL, tlsCfg *tls.Config) *websocket.Dialer {
				return &websocket.Dialer{
					TLSClientConfig:  tlsCfg,
					HandshakeTimeout: 10 * time.Second,
					Subprotocols:     []string{"mqtt"},
				}
			},
		}
	}

	// The connection outlives the dial context; its lifetime ends with an
	// explicit Disconnect.
	cm, err := autopaho.NewConnection(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("new connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		_ = cm.Disconnect(context.Background())
		return nil, fmt.Errorf("await connection: %w", err)
	}
	c.cm = cm
	return c, nil
}

type conn struct {
	clientID       string
	cm             *autopaho.ConnectionManager
	router         *paho.StandardRouter
	onMessage      func(core.Inbound)
	logger         *slog.Logger
	sessionPresent atomic.Bool

	mu   sync.Mutex
	subs []paho.SubscribeOptions
}

func (c *conn) Subscribe(ctx context.Context, filter string, qos byte) error {
	c.router.RegisterHandler(routeFilter(filter), func(p *paho.Publish) {
		c.onMessage(core.Inbound{
			Topic:   p.Topic,
			Payload: p.Payload,
			QoS:     p.QoS,
			Dup:     p.Duplicate,
		})
	})

	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: qos},
		},
	})
	if err != nil {
		c.router.UnregisterHandler(routeFilter(filter))
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, paho.SubscribeOptions{Topic: filter, QoS: qos})
	c.mu.Unlock()
	return nil
}

// resubscribe re-issues known filters after the broker came back without
// session state (autopaho reconnected underneath us mid-run).
func (c *conn) resubscribe() {
	c.mu.Lock()
	subs := make([]paho.SubscribeOptions, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	if len(subs) == 0 || c.cm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		c.logger.Error("resubscribe failed", "client_id", c.clientID, "error", err)
	}
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *conn) Disconnect(ctx context.Context) error {
	if err := c.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (c *conn) SessionPresent() bool {
	return c.sessionPresent.Load()
}

// routeFilter maps a shared-subscription filter to the topic space actual
// publishes arrive on: the broker delivers on the concrete topic, without
// the $share/{group}/ prefix.
func routeFilter(filter string) string {
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		if _, topic, found := strings.Cut(rest, "/"); found {
			return topic
		}
	}
	return filter
}
