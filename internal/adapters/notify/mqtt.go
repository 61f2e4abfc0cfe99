package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/okian/posture/pkg/logger"
)

const (
	connectTimeout       = 5 * time.Second
	publishTimeout       = 2 * time.Second
	disconnectQuiesceMs  = 250
	connectRetryInterval = 2 * time.Second
	maxReconnectInterval = 30 * time.Second
)

// DialMQTT connects to broker ("host:port" or a full URL) with automatic
// reconnects.
func DialMQTT(ctx context.Context, broker, clientID string, l logger.Logger) (mqtt.Client, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.OnConnect = func(mqtt.Client) {
		l.Info(ctx, "mqtt connection established", logger.String("broker", broker), logger.String("client_id", clientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.Warn(ctx, "mqtt connection lost, will auto-reconnect", logger.String("broker", broker), logger.Error(err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: connect to %s timed out", ErrNotConnected, broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", ErrNotConnected, broker, err)
	}
	return client, nil
}

// MQTTNotifier publishes events as JSON to <topic>/<session id>.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger logger.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewMQTTNotifier publishes through an already connected client.
func NewMQTTNotifier(client mqtt.Client, topic string, l logger.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		qos:    1,
		logger: l,
	}
}

// Notify implements Notifier. The publish is acknowledged asynchronously so
// a slow broker never stalls the caller.
func (n *MQTTNotifier) Notify(ctx context.Context, e Event) error {
	if !n.client.IsConnectionOpen() {
		n.failed.Add(1)
		return ErrNotConnected
	}
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e)
	if err != nil {
		n.failed.Add(1)
		return fmt.Errorf("%w: encode event: %w", ErrPublish, err)
	}

	topic := n.topic + "/" + e.SessionID
	token := n.client.Publish(topic, n.qos, false, payload)
	go n.await(context.WithoutCancel(ctx), topic, token)
	return nil
}

func (n *MQTTNotifier) await(ctx context.Context, topic string, token mqtt.Token) {
	if !token.WaitTimeout(publishTimeout) {
		n.failed.Add(1)
		n.logger.Warn(ctx, "mqtt publish timed out", logger.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		n.failed.Add(1)
		n.logger.Warn(ctx, "mqtt publish failed", logger.String("topic", topic), logger.Error(err))
		return
	}
	n.published.Add(1)
}

// Name implements Notifier.
func (n *MQTTNotifier) Name() string { return "mqtt" }

// Stats returns publish counters.
func (n *MQTTNotifier) Stats() (published, failed uint64) {
	return n.published.Load(), n.failed.Load()
}

// Close disconnects the client.
func (n *MQTTNotifier) Close() error {
	if n.client.IsConnected() {
		n.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}
