package mqtt

import "fmt"

// DefaultTopicPrefix roots every topic when no prefix is configured.
const DefaultTopicPrefix = "valuecore"

// Topics builds the MQTT topics used by valuecore nodes.
//
//	topics := mqtt.Topics{Prefix: "valuecore"}
//	topics.Broadcast()          // "valuecore/socket/broadcast"
//	topics.NodeStatus("node-1") // "valuecore/nodes/node-1/status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Broadcast returns the topic carrying socket broadcast envelopes between nodes.
func (t Topics) Broadcast() string {
	return fmt.Sprintf("%s/socket/broadcast", t.prefix())
}

// NodeStatus returns the retained presence topic for one connection.
func (t Topics) NodeStatus(clientID string) string {
	return fmt.Sprintf("%s/nodes/%s/status", t.prefix(), clientID)
}

// AllNodeStatus returns a wildcard matching every node's presence topic.
func (t Topics) AllNodeStatus() string {
	return fmt.Sprintf("%s/nodes/+/status", t.prefix())
}
