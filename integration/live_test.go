//go:build integration

// Package integration runs the harness against a real XY chain node and an
// MQTT broker.
//
// Prerequisites:
//   - an XY chain dev node on ws://127.0.0.1:9944 (XY_E2E_ENDPOINT overrides)
//   - optionally Mosquitto on localhost:1883 (MQTT_BROKER and MQTT_PORT override)
//
// Tests skip when what they need is not reachable.
//
// Run with: go test -v -tags=integration -timeout=10m ./integration/...
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xychain/xy-e2e/internal/report"
	"github.com/xychain/xy-e2e/internal/scenario"
	"github.com/xychain/xy-e2e/internal/xychain"
)

func nodeConfig() xychain.Config {
	cfg := xychain.DefaultConfig()
	if e := os.Getenv("XY_E2E_ENDPOINT"); e != "" {
		cfg.Endpoint = e
	}
	return cfg
}

func mqttBroker() string {
	if b := os.Getenv("MQTT_BROKER"); b != "" {
		return b
	}
	return "localhost"
}

func mqttPort() int {
	if p := os.Getenv("MQTT_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil {
			return port
		}
	}
	return 1883
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// connect dials the node and skips the test when it is not running.
func connect(t *testing.T) *xychain.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := xychain.Connect(ctx, nodeConfig(), testLogger())
	var connErr *xychain.ConnectionError
	if errors.As(err, &connErr) && connErr.Op == "dial" {
		t.Skipf("node not available (%v), skipping integration test", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNodeReady(t *testing.T) {
	conn := connect(t)
	ctx := context.Background()

	health, err := conn.Health(ctx)
	require.NoError(t, err)
	assert.False(t, health.IsSyncing)

	assert.NotZero(t, conn.GenesisHash())
	assert.NotZero(t, conn.RuntimeVersion().SpecVersion)

	fee, err := conn.PodFee()
	require.NoError(t, err)
	assert.Positive(t, fee.Sign())
}

func TestAllScenariosPass(t *testing.T) {
	connect(t)

	accounts, err := scenario.DevAccounts(nodeConfig().SS58Prefix)
	require.NoError(t, err)
	dial := func(ctx context.Context) (scenario.Chain, error) {
		conn, err := xychain.Connect(ctx, nodeConfig(), testLogger())
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	runner := scenario.NewRunner(dial, accounts, scenario.Options{OutputDir: t.TempDir()}, testLogger())

	run, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	for _, res := range run.Results {
		assert.Equal(t, scenario.StatusPass, res.Status, "%s: %s", res.Scenario, res.Error)
	}
}

func TestRunSummaryOverMQTT(t *testing.T) {
	cfg := report.MQTTConfig{Broker: mqttBroker(), Port: mqttPort(), Topic: fmt.Sprintf("xy-e2e/test/%d", time.Now().UnixNano())}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(fmt.Sprintf("xy-e2e-sub-%d", time.Now().UnixNano()))
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(5 * time.Second)
	sub := mqtt.NewClient(opts)
	token := sub.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Skipf("MQTT broker not available (%v), skipping integration test", token.Error())
	}
	defer sub.Disconnect(250)

	received := make(chan []byte, 1)
	token = sub.Subscribe(cfg.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		received <- msg.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	pub := report.NewPublisher(cfg, testLogger())
	require.NoError(t, pub.Connect(context.Background()))
	defer pub.Close()

	run := &scenario.Run{
		ID:       "integration-run",
		Started:  time.Now().UTC(),
		Duration: 3 * time.Second,
		Results:  []scenario.Result{{RunID: "integration-run", Scenario: "nft-pod", Status: scenario.StatusPass}},
	}
	require.NoError(t, pub.Record(context.Background(), run))

	select {
	case payload := <-received:
		var summary report.Summary
		require.NoError(t, json.Unmarshal(payload, &summary))
		assert.Equal(t, "integration-run", summary.RunID)
		assert.True(t, summary.Passed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run summary")
	}
}
