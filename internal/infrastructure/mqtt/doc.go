// Package mqtt provides the MQTT connection used as a broadcast backplane
// between valuecore nodes.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after reconnect
//   - Per-connection presence with a Last Will for crash detection
//
// # Architecture
//
// Each node opens two connections, one for publishing socket broadcasts and
// one for receiving them. The broker fans messages out to every node:
//
//	node A (pub) → broker → node A (sub), node B (sub), ...
//
// Broker URLs use mqtt:// or mqtts://; tcp:// and ssl:// are accepted as
// paho spells them.
//
// # Security Considerations
//
//   - Use mqtts:// outside local development
//   - Credentials come from VALUECORE_BROKER_USERNAME/PASSWORD
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	opts := mqtt.OptionsFromConfig(cfg.Realtime, "valuecore-pub")
//	client, err := mqtt.Connect(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{Prefix: cfg.Realtime.TopicPrefix}.Broadcast()
//	err = client.Subscribe(ctx, topic, 1, func(_ string, payload []byte) error {
//	    return handle(payload)
//	})
package mqtt
