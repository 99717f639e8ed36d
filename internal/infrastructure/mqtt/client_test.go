package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Keekuk/notesnook/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration for a local test broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "notesnook-test",
		},
		QoS:         1,
		TopicPrefix: "notesnook-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()

	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() {
		client.Close() //nolint:errcheck // Test cleanup
	})
	return client
}

// =============================================================================
// Topic and payload tests (no broker)
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", Topics{Prefix: "nn"}.SystemStatus(), "nn/system/status"},
		{"database state", Topics{Prefix: "nn"}.DatabaseState(), "nn/database/state"},
		{"note event", Topics{Prefix: "nn"}.NoteEvent(NoteCreated), "nn/notes/created"},
		{"all note events", Topics{Prefix: "nn"}.AllNoteEvents(), "nn/notes/+"},
		{"all topics", Topics{Prefix: "nn"}.AllTopics(), "nn/#"},
		{"default prefix", Topics{}.SystemStatus(), "notesnook/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	var online StatusMessage
	if err := json.Unmarshal(buildOnlinePayload("notesnookd"), &online); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if online.Status != StatusOnline || online.ClientID != "notesnookd" || online.Reason != "" {
		t.Errorf("online payload = %+v", online)
	}
	if _, err := time.Parse(time.RFC3339, online.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339", online.Timestamp)
	}

	var offline StatusMessage
	if err := json.Unmarshal(buildOfflinePayload("notesnookd", "graceful_shutdown"), &offline); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if offline.Status != StatusOffline || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", offline)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "notes"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "notesnook-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "notes" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with clean session")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain broker")
	}
}

func TestBrokerURL_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL() = %q", got)
	}
	if opts := buildClientOptions(cfg); opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS MinVersion = %x, want %x", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "nn"}, "notesnookd")

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = enabled:%v retained:%v qos:%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "nn/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

// =============================================================================
// Disconnected client tests (no broker)
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "nn/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "nn/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "nn/x", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDatabaseState_RemembersPayload(t *testing.T) {
	c := &Client{cfg: testConfig()}

	err := c.PublishDatabaseState("ready", "/data/notes.db", []string{"fts5-html"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishDatabaseState() error = %v, want ErrNotConnected", err)
	}

	var msg DatabaseStateMessage
	if err := json.Unmarshal(c.lastState, &msg); err != nil {
		t.Fatalf("remembered state is not JSON: %v", err)
	}
	if msg.State != "ready" || len(msg.Extensions) != 1 {
		t.Errorf("remembered state = %+v", msg)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Broker tests (skipped without a local Mosquitto)
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestPublishEvents(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.PublishDatabaseState("open", "/tmp/notes.db", nil); err != nil {
		t.Errorf("PublishDatabaseState() error = %v", err)
	}
	if err := client.PublishNoteEvent(NoteCreated, "note-1", "Groceries"); err != nil {
		t.Errorf("PublishNoteEvent() error = %v", err)
	}
}

func TestOnDisconnectCallback(t *testing.T) {
	client := connectOrSkip(t)

	called := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		called <- err
	})

	client.handleDisconnect(errors.New("simulated"))

	select {
	case err := <-called:
		if err == nil || err.Error() != "simulated" {
			t.Errorf("callback error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not invoked")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
