package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xychain/xy-e2e/internal/scenario"
)

// MQTTConfig points the publisher at a broker.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
}

// DefaultTopic receives run summaries when none is configured.
const DefaultTopic = "xy-e2e/runs"

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTClient is the part of the paho client the publisher uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Summary is the message published for each run.
type Summary struct {
	RunID    string                  `json:"run_id"`
	Started  time.Time               `json:"started"`
	Duration string                  `json:"duration"`
	Passed   bool                    `json:"passed"`
	Counts   map[scenario.Status]int `json:"counts"`
	Results  []scenario.Result       `json:"results"`
}

// NewSummary condenses a run.
func NewSummary(run *scenario.Run) Summary {
	return Summary{
		RunID:    run.ID,
		Started:  run.Started,
		Duration: run.Duration.Round(time.Millisecond).String(),
		Passed:   run.Passed(),
		Counts:   run.Counts(),
		Results:  run.Results,
	}
}

// Publisher sends run summaries to an MQTT topic.
type Publisher struct {
	cfg           MQTTConfig
	clientID      string
	logger        *slog.Logger
	client        MQTTClient
	clientFactory func(opts *mqtt.ClientOptions) MQTTClient
}

// NewPublisher creates a publisher backed by paho.
func NewPublisher(cfg MQTTConfig, logger *slog.Logger) *Publisher {
	return NewPublisherWithClient(cfg, logger, func(opts *mqtt.ClientOptions) MQTTClient {
		return mqtt.NewClient(opts)
	})
}

// NewPublisherWithClient creates a publisher with a custom client factory.
func NewPublisherWithClient(cfg MQTTConfig, logger *slog.Logger, factory func(*mqtt.ClientOptions) MQTTClient) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Publisher{
		cfg:           cfg,
		clientID:      fmt.Sprintf("xy-e2e-%d", time.Now().Unix()),
		logger:        logger.With("component", "mqtt"),
		clientFactory: factory,
	}
}

// Connect dials the broker.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.clientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = p.clientFactory(opts)

	p.logger.Info("connecting to mqtt broker", "broker", brokerURL)
	token := p.client.Connect()
	if err := wait(ctx, token, connectTimeout); err != nil {
		return fmt.Errorf("connect to mqtt: %w", err)
	}
	return nil
}

// Record publishes a summary of run with QoS 1.
func (p *Publisher) Record(ctx context.Context, run *scenario.Run) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(NewSummary(run))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, 1, false, payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("run published", "topic", p.cfg.Topic, "run_id", run.ID, "size", len(payload))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("timeout after %s", timeout)
	}
	return token.Error()
}
