// Package telemetry publishes session lifecycle events to an MQTT broker
// for external dashboards. Entirely optional; the session layer works the
// same with it disabled.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/config"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/events"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/util"
)

// MQTT topics.
const (
	TopicSessionEvents = "session/events"
	TopicSessionStatus = "session/status"
)

// Publisher mirrors lifecycle events onto MQTT topics.
type Publisher struct {
	cfg    config.MQTTConfig
	bus    *events.Bus
	client mqtt.Client

	// Metadata included in every message.
	metadata map[string]any
}

// NewPublisher creates an MQTT publisher. Returns an error when telemetry
// is disabled in the configuration.
func NewPublisher(cfg config.MQTTConfig, bus *events.Bus) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT telemetry is disabled")
	}

	sysInfo := util.GetSystemInfo()
	p := &Publisher{
		cfg: cfg,
		bus: bus,
		metadata: map[string]any{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"cpu_model": sysInfo.CPUModel,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("smashnet-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		if cfg.CAFile != "" {
			ca, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("load MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(ca)
			tlsConfig.RootCAs = pool
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

// Start connects to the broker, mirrors lifecycle events until the context
// is cancelled, then disconnects.
func (p *Publisher) Start(ctx context.Context) error {
	log.Info().
		Str("broker", p.cfg.BrokerURL).
		Int("port", p.cfg.Port).
		Msg("connecting to MQTT broker")

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	p.bus.Subscribe("telemetry.lifecycle", p.onLifecycleEvent)

	<-ctx.Done()

	p.bus.Unsubscribe("telemetry.lifecycle")
	p.publish(TopicSessionStatus, map[string]any{"event": "shutdown"})
	p.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

func (p *Publisher) onLifecycleEvent(ev events.Event) {
	p.publish(TopicSessionEvents, map[string]any{
		"event":   string(ev.Type),
		"peer_id": ev.PeerID,
	})
}

// publish sends a JSON message to an MQTT topic.
func (p *Publisher) publish(topic string, payload any) {
	if !p.client.IsConnected() {
		return
	}

	msg := make(map[string]any, len(p.metadata)+2)
	for k, v := range p.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := p.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}
