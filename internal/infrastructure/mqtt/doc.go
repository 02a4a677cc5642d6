// Package mqtt provides MQTT client connectivity for EnOcean Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// EnOcean Core publishes decoded device state and teach-in session
// snapshots over MQTT, and accepts typed-value commands and teach-in
// actions from UI clients on the corresponding set topics.
//
//	EnOcean Core ↔ MQTT Broker ↔ UI / Home Assistant
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to teach-in commands
//	err = client.Subscribe(mqtt.Topics{}.TeachInSet(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleTeachInCommand(payload)
//	    })
//
//	// Publish decoded state
//	topic := mqtt.Topics{}.DeviceState("hall-temp")
//	client.Publish(topic, stateJSON, 1, true)
package mqtt
