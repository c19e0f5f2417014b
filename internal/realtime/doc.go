// Package realtime is the socket layer: a websocket server with rooms and
// named events, whose broadcasts are fanned out across valuecore nodes.
//
// # Architecture
//
// Every broadcast goes through the server's Adapter:
//
//	Server.Broadcast → Adapter.Broadcast → local sockets
//	                                     → Backplane.Publish → other nodes
//
// LocalAdapter delivers within this process only. BrokerAdapter also
// publishes each Envelope to a Backplane and re-delivers envelopes that
// other nodes published. Envelopes carry the origin node's ID so a node
// never delivers its own broadcast twice.
//
// Backplanes are chosen by broker URL scheme:
//   - mqtt://, mqtts://, tcp://, ssl:// use MQTT (paho)
//   - nats:// uses core NATS through Watermill
//   - mem://name uses an in-process Watermill GoChannel shared by name
//
// Each backplane holds two connections, one publishing and one subscribing,
// established concurrently.
//
// # Wire protocol
//
// Client to server:
//
//	{"type":"event","event":"values:subscribe","data":{...},"id":"1"}
//	{"type":"ping","id":"2"}
//
// Server to client:
//
//	{"type":"event","event":"value:created","data":{...}}
//	{"type":"ack","id":"1","data":{...}}
//	{"type":"pong","id":"2"}
//	{"type":"error","id":"1","data":{"message":"..."}}
package realtime
