package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/nerrad567/valuecore/internal/realtime"
)

// Socket events and rooms for value changes.
const (
	eventValueCreated = "value:created"
	eventValueUpdated = "value:updated"
	eventValueDeleted = "value:deleted"

	eventValuesSubscribe   = "values:subscribe"
	eventValuesUnsubscribe = "values:unsubscribe"

	roomValues = "values"
)

// registerSocketEvents installs the built-in socket event handlers.
func (s *Server) registerSocketEvents() {
	s.sockets.On(eventValuesSubscribe, func(_ context.Context, sock *realtime.Socket, _ json.RawMessage) (any, error) {
		sock.Join(roomValues)
		return map[string]string{"room": roomValues}, nil
	})
	s.sockets.On(eventValuesUnsubscribe, func(_ context.Context, sock *realtime.Socket, _ json.RawMessage) (any, error) {
		sock.Leave(roomValues)
		return map[string]string{"room": roomValues}, nil
	})
}

// broadcastValue notifies sockets in the values room on every node.
// A backplane failure is logged; the HTTP request has already succeeded.
func (s *Server) broadcastValue(ctx context.Context, event string, data any) {
	if err := s.sockets.Broadcast(ctx, event, data, realtime.To(roomValues)); err != nil {
		s.logger.Warn("value broadcast failed", "event", event, "error", err)
	}
}

// connectRealtime builds the fan-out adapter.
//
// When the broker cannot be reached the outcome depends on
// realtime.require_broker: if set, startup fails with ErrBrokerRequired;
// otherwise the failure is logged and broadcasts stay local to this process.
func (s *Server) connectRealtime(ctx context.Context) (realtime.Adapter, error) {
	rt := s.cfg.Realtime
	nodeID := s.sockets.NodeID()

	adapter, err := s.dialAdapter(ctx, nodeID)
	if err == nil {
		s.logger.Info("realtime broker connected", "broker", redactURL(rt.BrokerURL), "node_id", nodeID)
		return adapter, nil
	}

	if rt.RequireBroker {
		return nil, fmt.Errorf("%w: %w", ErrBrokerRequired, err)
	}
	s.logger.Error("realtime broker unavailable, broadcasts are local to this node",
		"broker", redactURL(rt.BrokerURL),
		"error", err,
	)
	return realtime.NewLocalAdapter(s.sockets), nil
}

func (s *Server) dialAdapter(ctx context.Context, nodeID string) (realtime.Adapter, error) {
	bp, err := s.dial(ctx, s.cfg.Realtime, nodeID, s.logger)
	if err != nil {
		return nil, err
	}
	return realtime.NewBrokerAdapter(ctx, s.sockets, nodeID, bp, s.logger, s.rtMetrics)
}

// redactURL hides any password in a broker URL before logging it.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
