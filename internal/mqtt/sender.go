package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/mission"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Sender publishes operator commands to a running line and waits for the
// acknowledgement.
type Sender struct {
	client mqtt.Client
	topic  string
	logger *logrus.Logger
}

func NewSender(cfg *config.Config, logger *logrus.Logger) (*Sender, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID + "-send")
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	return &Sender{
		client: mqtt.NewClient(opts),
		topic:  cfg.MQTT.Topics.Commands,
		logger: logger,
	}, nil
}

func (s *Sender) Connect() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (s *Sender) Disconnect() {
	s.client.Disconnect(250)
}

// Send publishes cmd and blocks until the line acknowledges it or ctx ends.
func (s *Sender) Send(ctx context.Context, cmd mission.Command) (CommandAck, error) {
	acks := make(chan CommandAck, 1)
	ackTopic := s.topic + "/ack"

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var ack CommandAck
		if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
			s.logger.Warnf("Ignoring malformed ack: %v", err)
			return
		}
		if ack.Command != cmd.String() {
			return
		}
		select {
		case acks <- ack:
		default:
		}
	}
	if token := s.client.Subscribe(ackTopic, 1, handler); token.Wait() && token.Error() != nil {
		return CommandAck{}, fmt.Errorf("failed to subscribe to %s: %w", ackTopic, token.Error())
	}
	defer s.client.Unsubscribe(ackTopic)

	payload, err := json.Marshal(cmd)
	if err != nil {
		return CommandAck{}, fmt.Errorf("failed to encode command: %w", err)
	}
	if token := s.client.Publish(s.topic, 1, false, payload); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return CommandAck{}, fmt.Errorf("failed to publish command: %w", token.Error())
	}
	s.logger.Debugf("Published %s on %s", cmd, s.topic)

	select {
	case ack := <-acks:
		return ack, nil
	case <-ctx.Done():
		return CommandAck{}, fmt.Errorf("no ack for %s: %w", cmd, ctx.Err())
	}
}
