// Package mqtt provides MQTT client connectivity for the Gray Serial Bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge optionally mirrors serial device traffic onto an MQTT broker so
// other home-automation services can consume device state and send commands
// without speaking the bridge's WebSocket protocol.
//
//	Serial Device ↔ Bridge ↔ MQTT Broker ↔ Other Services
//
// Device messages are republished to graybridge/state/{topic}, link status to
// graybridge/link (retained), and commands arriving on graybridge/command/+
// are forwarded to the device.
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
//   - Reconnect: Exponential backoff per Reconnect config
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device commands
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Mirror a device message
//	topic := mqtt.Topics{}.State("temp")
//	client.Publish(topic, []byte("23.5"), 1, false)
package mqtt
