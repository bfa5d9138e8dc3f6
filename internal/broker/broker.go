// Package broker mirrors the live telemetry stream to an MQTT broker so
// fleet dashboards and other subscribers can follow the vehicle without
// polling the HTTP API.
package broker

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 3 * time.Second
	retryInterval  = 5 * time.Second
	// Milliseconds paho waits for in-flight messages on disconnect.
	disconnectQuiesce = 500
)

// Publisher forwards snapshots and alerts to an MQTT broker. It satisfies
// store.Sink. Publish failures are counted and logged here, never returned;
// a flaky broker must not stall the simulation loop.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
}

// New connects to the broker. When the broker is unreachable the client
// keeps retrying in the background and New still succeeds; only malformed
// options fail construction.
func New(cfg config.Broker) (*Publisher, error) {
	errFactory := errors.New()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info().Str("url", cfg.URL).Msg("Connected to MQTT broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
		})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if token.WaitTimeout(connectTimeout) {
		if err := token.Error(); err != nil {
			client.Disconnect(0)

			return nil, errFactory.Wrap(errors.ErrInitBroker, err)
		}
	} else {
		logger.Warn().
			Str("url", cfg.URL).
			Msg("MQTT broker not reachable yet, retrying in background")
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		qos:         byte(cfg.QoS),
	}, nil
}

func (p *Publisher) SaveSnapshot(_ context.Context, snapshot vehicle.Snapshot) error {
	p.publish(p.topicPrefix+"/telemetry", snapshot)

	return nil
}

func (p *Publisher) SaveAlert(_ context.Context, alert vehicle.Alert) error {
	p.publish(p.topicPrefix+"/alerts", alert)

	return nil
}

// publish drops the message when the broker is offline rather than queueing.
func (p *Publisher) publish(topic string, v any) {
	if !p.client.IsConnectionOpen() {
		metrics.BrokerFailures.Inc()
		logger.Debug().Str("topic", topic).Msg("MQTT broker offline, dropping message")

		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		metrics.BrokerFailures.Inc()
		logger.Error().Str("topic", topic).Err(err).Msg("Failed to marshal MQTT payload")

		return
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.BrokerFailures.Inc()
		logger.Warn().Str("topic", topic).Msg("MQTT publish timed out")

		return
	}
	if err := token.Error(); err != nil {
		metrics.BrokerFailures.Inc()
		logger.Warn().Str("topic", topic).Err(err).Msg("MQTT publish failed")

		return
	}

	metrics.BrokerPublished.Inc()
}

// Close waits briefly for in-flight publishes and disconnects.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
	logger.Debug().Msg("MQTT publisher disconnected")
}
