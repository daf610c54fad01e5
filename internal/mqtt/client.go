package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/mission"
	"mixer-line/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// CommandSubmitter applies operator commands to the running mission.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd mission.Command) error
}

type Client struct {
	client mqtt.Client
	config *config.Config
	logger *logrus.Logger

	submitter     CommandSubmitter
	submitTimeout time.Duration
}

// CommandAck is published on <commands topic>/ack after each command.
type CommandAck struct {
	Command   string    `json:"command"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClient(cfg *config.Config, submitter CommandSubmitter, logger *logrus.Logger) (*Client, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}

	c := &Client{
		config:        cfg,
		logger:        logger,
		submitter:     submitter,
		submitTimeout: 5 * time.Second,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	return c, nil
}

func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker...")

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("Connected to MQTT broker")
	return nil
}

func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker...")
	c.client.Disconnect(250)
}

// PublishSnapshot sends the snapshot as retained JSON on the telemetry topic.
func (c *Client) PublishSnapshot(s models.Snapshot) {
	if !c.client.IsConnectionOpen() {
		return
	}

	payload, err := json.Marshal(s)
	if err != nil {
		c.logger.Errorf("Failed to encode snapshot: %v", err)
		return
	}

	token := c.client.Publish(c.config.MQTT.Topics.Telemetry, 0, true, payload)
	go func() {
		if token.WaitTimeout(2*time.Second) && token.Error() != nil {
			c.logger.Errorf("Failed to publish telemetry: %v", token.Error())
		}
	}()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected, subscribing to topics...")

	topic := c.config.MQTT.Topics.Commands
	if topic == "" {
		return
	}
	if token := client.Subscribe(topic, 1, c.handleCommandMessage); token.Wait() && token.Error() != nil {
		c.logger.Errorf("Failed to subscribe to command topic: %v", token.Error())
	} else {
		c.logger.Infof("Subscribed to command topic: %s", topic)
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) handleCommandMessage(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debugf("Received command message: %s", string(msg.Payload()))

	ack := c.applyCommand(msg.Payload())

	payload, err := json.Marshal(ack)
	if err != nil {
		c.logger.Errorf("Failed to encode command ack: %v", err)
		return
	}
	client.Publish(msg.Topic()+"/ack", 0, false, payload)
}

func (c *Client) applyCommand(payload []byte) CommandAck {
	ack := CommandAck{Timestamp: time.Now()}

	cmd, err := mission.ParseCommand(payload)
	if err != nil {
		c.logger.Errorf("Failed to parse command: %v", err)
		ack.Command = string(payload)
		ack.Error = err.Error()
		return ack
	}
	ack.Command = cmd.String()

	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()

	if err := c.submitter.Submit(ctx, cmd); err != nil {
		c.logger.Warnf("MQTT command %s failed: %v", cmd, err)
		ack.Error = err.Error()
		return ack
	}

	c.logger.Infof("MQTT command applied: %s", cmd)
	ack.OK = true
	return ack
}
