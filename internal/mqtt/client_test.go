package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/mission"
	"mixer-line/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	mutex     sync.Mutex
	published []published
}

func (f *fakeClient) IsConnectionOpen() bool { return true }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.published = append(f.published, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingSubmitter struct {
	commands []mission.Command
	err      error
}

func (r *recordingSubmitter) Submit(_ context.Context, cmd mission.Command) error {
	r.commands = append(r.commands, cmd)
	return r.err
}

func newTestClient(submitter CommandSubmitter) (*Client, *fakeClient) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := &config.Config{MQTT: config.MQTTConfig{
		Broker: "tcp://localhost:1883",
		Topics: config.Topics{Telemetry: "mixer/telemetry", Commands: "mixer/commands"},
	}}
	fake := &fakeClient{}
	return &Client{
		client:        fake,
		config:        cfg,
		logger:        logger,
		submitter:     submitter,
		submitTimeout: time.Second,
	}, fake
}

func TestNewClient_RequiresBroker(t *testing.T) {
	_, err := NewClient(&config.Config{}, &recordingSubmitter{}, logrus.New())
	assert.Error(t, err)
}

func TestClient_PublishSnapshot(t *testing.T) {
	client, fake := newTestClient(&recordingSubmitter{})

	client.PublishSnapshot(models.Snapshot{
		Phase:         models.PhaseRunning,
		MixerActive:   true,
		CurrentVolume: 1234.5,
	})

	require.Len(t, fake.published, 1)
	assert.Equal(t, "mixer/telemetry", fake.published[0].topic)
	assert.True(t, fake.published[0].retained)

	var decoded models.Snapshot
	require.NoError(t, json.Unmarshal(fake.published[0].payload, &decoded))
	assert.Equal(t, models.PhaseRunning, decoded.Phase)
	assert.True(t, decoded.MixerActive)
	assert.Equal(t, 1234.5, decoded.CurrentVolume)
}

func TestClient_HandleCommandMessage(t *testing.T) {
	submitter := &recordingSubmitter{}
	client, fake := newTestClient(submitter)

	client.handleCommandMessage(fake, fakeMessage{
		topic:   "mixer/commands",
		payload: []byte(`{"command":"set_output_flow","value":40}`),
	})

	require.Len(t, submitter.commands, 1)
	assert.Equal(t, mission.Command{Kind: mission.CommandSetOutputFlow, Value: 40}, submitter.commands[0])

	require.Len(t, fake.published, 1)
	assert.Equal(t, "mixer/commands/ack", fake.published[0].topic)

	var ack CommandAck
	require.NoError(t, json.Unmarshal(fake.published[0].payload, &ack))
	assert.True(t, ack.OK)
	assert.Equal(t, "set_output_flow 40", ack.Command)
}

func TestClient_HandleCommandMessageRejected(t *testing.T) {
	submitter := &recordingSubmitter{err: mission.ErrFlowLocked}
	client, fake := newTestClient(submitter)

	client.handleCommandMessage(fake, fakeMessage{topic: "mixer/commands", payload: []byte("set_output_flow 40")})
	client.handleCommandMessage(fake, fakeMessage{topic: "mixer/commands", payload: []byte("fly away")})

	assert.Len(t, submitter.commands, 1)
	require.Len(t, fake.published, 2)

	var ack CommandAck
	require.NoError(t, json.Unmarshal(fake.published[0].payload, &ack))
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "not adjustable")

	require.NoError(t, json.Unmarshal(fake.published[1].payload, &ack))
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "unknown command")
}
