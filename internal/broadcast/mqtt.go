// Package broadcast holds optional secondary fan-out sinks for the
// hub's broadcast fabric. The hub's primary transport is the
// WebSocket connection set; a sink here mirrors the same frames to
// an external system without the hub depending on it directly.
package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
)

// topicPrefix namespaces every mirrored frame under one broker
// subtree.
const topicPrefix = "geotracker/sessions"

const maxConnectAttempts = 3

// MQTTSink mirrors hub broadcasts onto an MQTT broker. It implements
// hub.Broadcaster's Mirror method without importing the hub package,
// keeping the dependency one-directional.
type MQTTSink struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger
}

// NewMQTTSink builds and connects an MQTTSink. Connection uses a
// bounded retry with linear backoff; a failure to connect after
// maxConnectAttempts is returned to the caller, who decides whether a
// degraded mirror-less startup is acceptable.
func NewMQTTSink(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()

	brokerURI := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	if cfg.TLSEnabled {
		brokerURI = fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)
	}
	opts.AddBroker(brokerURI)
	opts.SetClientID(fmt.Sprintf("geotracker-mirror-%d", time.Now().UnixNano()))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectionTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.RetryInterval)

	client := mqtt.NewClient(opts)

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		token := client.Connect()
		token.Wait()
		if token.Error() == nil {
			lastErr = nil
			break
		}
		lastErr = token.Error()
		logger.Warn("mqtt mirror connect attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		time.Sleep(cfg.RetryInterval * time.Duration(attempt))
	}
	if lastErr != nil {
		return nil, fmt.Errorf("connecting to mqtt broker after %d attempts: %w", maxConnectAttempts, lastErr)
	}

	return &MQTTSink{client: client, qos: byte(cfg.QoS), logger: logger}, nil
}

// Mirror publishes v to geotracker/sessions/<sessionID>/<frameType>.
// Publish failures are logged and swallowed: the mirror is a
// secondary leg and must never affect the WebSocket broadcast path.
func (m *MQTTSink) Mirror(sessionID, frameType string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("mqtt mirror marshal failed", zap.String("sessionId", sessionID), zap.Error(err))
		return
	}

	topic := fmt.Sprintf("%s/%s/%s", topicPrefix, sessionID, frameType)
	token := m.client.Publish(topic, m.qos, false, payload)
	go func() {
		token.Wait()
		if token.Error() != nil {
			m.logger.Warn("mqtt mirror publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

// Close disconnects from the broker, waiting up to 250 ms for
// in-flight publishes to drain.
func (m *MQTTSink) Close() {
	m.client.Disconnect(250)
}
