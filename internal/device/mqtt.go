package device

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
)

// ErrMQTTConnect is returned when the broker cannot be reached at startup.
var ErrMQTTConnect = errors.New("mqtt: connection failed")

const defaultConnectTimeout = 10 * time.Second

// MQTTOptions configures MQTTNotifier.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	DeviceID    string
}

// Topic returns the command topic for the configured device.
func (o MQTTOptions) Topic() string {
	prefix := o.TopicPrefix
	if prefix == "" {
		prefix = "lampd"
	}
	return fmt.Sprintf("%s/%s/set", prefix, o.DeviceID)
}

// MQTTNotifier mirrors colors to a broker as "r,g,b" at QoS 0.
type MQTTNotifier struct {
	client pahomqtt.Client
	topic  string
}

// ConnectMQTT connects to the broker. The paho client reconnects on its own
// after the first successful connection.
func ConnectMQTT(opts MQTTOptions) (*MQTTNotifier, error) {
	co := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(defaultConnectTimeout).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	client := pahomqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	return newMQTTNotifier(client, opts.Topic()), nil
}

func newMQTTNotifier(client pahomqtt.Client, topic string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic}
}

// Notify publishes without waiting for the token.
func (n *MQTTNotifier) Notify(c color.Color) {
	if !n.client.IsConnectionOpen() {
		log.Debug().Str("topic", n.topic).Msg("MQTT not connected, dropping color")
		return
	}
	n.client.Publish(n.topic, 0, false, c.Decimal())
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
