package mqtt

import (
	"errors"
	"testing"

	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "enocean-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			payload: []byte("x"),
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid QoS",
			topic:   "enocean/hall-temp/state",
			payload: []byte("x"),
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "not connected",
			topic:   "enocean/hall-temp/state",
			payload: []byte("x"),
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if err == nil {
				t.Fatal("Publish() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{cfg: testConfig(), subscriptions: map[string]subscription{}}
	handler := func(topic string, payload []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}

	if err := client.Subscribe("enocean/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(bad QoS) error = %v, want ErrInvalidQoS", err)
	}

	if err := client.Subscribe("enocean/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}

	if err := client.Subscribe("enocean/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := &Client{subscriptions: map[string]subscription{}}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}

	client.subscriptions["enocean/teachin/set"] = subscription{topic: "enocean/teachin/set", qos: 1}

	if !client.HasSubscription("enocean/teachin/set") {
		t.Error("HasSubscription() = false, want true")
	}

	if client.HasSubscription("enocean/hall-temp/set") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		name     string
		build    func() string
		expected string
	}{
		{
			name:     "DeviceState",
			build:    func() string { return Topics{}.DeviceState("hall-temp") },
			expected: "enocean/hall-temp/state",
		},
		{
			name:     "DeviceSet",
			build:    func() string { return Topics{}.DeviceSet("hall-temp") },
			expected: "enocean/hall-temp/set",
		},
		{
			name:     "TeachInStatus",
			build:    func() string { return Topics{}.TeachInStatus() },
			expected: "enocean/teachin/status",
		},
		{
			name:     "TeachInSet",
			build:    func() string { return Topics{}.TeachInSet() },
			expected: "enocean/teachin/set",
		},
		{
			name:     "SystemStatus",
			build:    func() string { return Topics{}.SystemStatus() },
			expected: "enocean/system/status",
		},
		{
			name:     "AllDeviceSets",
			build:    func() string { return Topics{}.AllDeviceSets() },
			expected: "enocean/+/set",
		},
		{
			name:     "AllDeviceStates",
			build:    func() string { return Topics{}.AllDeviceStates() },
			expected: "enocean/+/state",
		},
		{
			name:     "AllTopics",
			build:    func() string { return Topics{}.AllTopics() },
			expected: "enocean/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build(); got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}
