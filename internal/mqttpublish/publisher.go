// Package mqttpublish republishes vehicle telemetry to an MQTT broker so
// that fleet-monitoring tooling outside the websocket façade can subscribe
// without speaking the broadcast envelope's websocket framing. It implements
// broadcast.Sink and is wired in as an additional sink alongside the
// websocket hub; it is a no-op when no broker URL is configured.
package mqttpublish

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mavgcs/gcs-core/internal/config"
	"github.com/mavgcs/gcs-core/internal/logging"
)

// Publisher republishes broadcast.Sink payloads under
// "<prefix>/<vehicle_id>", with a last-will-and-testament status topic at
// "<prefix>/status" carrying "online"/"offline".
type Publisher struct {
	log    *logging.Logger
	cfg    config.MQTTConfig
	client pahomqtt.Client
}

// New constructs a Publisher. Call Start to connect; Send is a no-op until
// the client reports connected.
func New(cfg config.MQTTConfig, log *logging.Logger) *Publisher {
	return &Publisher{log: log, cfg: cfg}
}

func (p *Publisher) statusTopic() string {
	return fmt.Sprintf("%s/status", p.cfg.TopicPrefix)
}

// Start connects to the broker with auto-reconnect and an LWT that marks
// this publisher offline if the connection drops uncleanly. Returns once
// the initial connect attempt resolves; reconnection after that happens in
// the background.
func (p *Publisher) Start() error {
	if p.cfg.BrokerURL == "" {
		p.log.Infof("mqtt publisher disabled, no broker url configured")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.statusTopic(), "offline", 1, true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.log.Infof("mqtt connected to %s", p.cfg.BrokerURL)
		token := c.Publish(p.statusTopic(), 1, true, "online")
		go token.Wait()
	})
	opts.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		p.log.Warnf("mqtt connection lost: %v", err)
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Send implements broadcast.Sink. Publishing is fire-and-forget: the caller
// (the broadcast engine's fan-out goroutine) never blocks on broker
// round-trips.
func (p *Publisher) Send(vehicleID string, payload []byte) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	topic := fmt.Sprintf("%s/%s", p.cfg.TopicPrefix, vehicleID)
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Warnf("mqtt publish to %s failed: %v", topic, err)
		}
	}()
}

// Stop publishes a clean offline status and disconnects.
func (p *Publisher) Stop() {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(p.statusTopic(), 1, true, "offline")
	token.WaitTimeout(2 * time.Second)
	p.client.Disconnect(1000)
}
