package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	DEFAULT_CLIENT_ID_PREFIX = "healthrec"
	// paho caps client ids at 23 bytes for MQTT 3.1 brokers
	maxClientIdLength = 23
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URI)
	opts.SetClientID(clientId(cfg.MQTT.ClientIdPrefix))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetCleanSession(cfg.MQTT.Clean)
	opts.SetConnectTimeout(cfg.MQTT.ConnectTimeout())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(cfg.MQTT.ReconnectPeriod())
	opts.SetMaxReconnectInterval(cfg.MQTT.ReconnectPeriod())
	// reconnection is handled by paho, the session only cares about the first connect
	opts.SetConnectRetry(false)
	return opts
}

func clientId(prefix string) string {
	if prefix == "" {
		prefix = DEFAULT_CLIENT_ID_PREFIX
	}
	id := fmt.Sprintf("%s_%s", prefix, uuid.NewString())
	if len(id) > maxClientIdLength {
		id = id[:maxClientIdLength]
	}
	return id
}

// NewBrokerLinkProvider returns a factory creating one fresh client per session.
func NewBrokerLinkProvider(cfg *config.Config) port.BrokerLinkProvider {
	return func(events port.LinkEvents) port.BrokerLink {
		return CreateMQTTClient(OptsFromConfig(cfg), events)
	}
}

func CreateMQTTClient(opts *mqtt.ClientOptions, events port.LinkEvents) *MQTTClient {
	c := &MQTTClient{events: events}
	opts.OnConnect = func(_ mqtt.Client) {
		c.onConnect()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if c.events.ConnectionLost != nil {
			c.events.ConnectionLost(err)
		}
	}
	c.client = mqtt.NewClient(opts)
	return c
}

// MQTTClient adapts a paho client to port.BrokerLink.
type MQTTClient struct {
	client    mqtt.Client
	events    port.LinkEvents
	connected atomic.Bool
}

// onConnect runs for the first connect and for every automatic reconnect.
// paho does not restore subscriptions on a clean session, so only the
// reconnects are reported.
func (c *MQTTClient) onConnect() {
	if !c.connected.CompareAndSwap(false, true) {
		if c.events.Reconnected != nil {
			c.events.Reconnected()
		}
	}
}

var _ port.BrokerLink = (*MQTTClient)(nil)

func (c *MQTTClient) Publish(topic string, payload []byte, qos byte, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, false, payload)
	awaitToken(token, "publish", continuation, timeout)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler port.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	awaitToken(token, "subscribe", continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	awaitToken(token, "unsubscribe", continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	awaitToken(token, "connect", continuation, timeout)
}

func (c *MQTTClient) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}

func awaitToken(token mqtt.Token, op string, continuation func(error), timeout time.Duration) {
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(fmt.Errorf("MQTT %s timed out", op))
		} else if err := token.Error(); err != nil {
			continuation(err)
		} else {
			continuation(nil)
		}
	}()
}
