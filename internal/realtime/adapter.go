package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
)

// Fan-out modes reported by adapters.
const (
	ModeLocal  = "local"
	ModeBroker = "broker"
)

// Adapter distributes broadcast envelopes.
type Adapter interface {
	Broadcast(ctx context.Context, env Envelope) error
	Close() error
	// Mode is ModeLocal or ModeBroker.
	Mode() string
	// Connected reports backplane connectivity; false for local adapters.
	Connected() bool
}

// Deliverer queues an envelope to the sockets connected to this process.
// *Server implements it.
type Deliverer interface {
	DeliverLocal(env Envelope) int
}

// LocalAdapter delivers broadcasts to this process only.
type LocalAdapter struct {
	target Deliverer
}

// NewLocalAdapter returns an adapter delivering to target.
func NewLocalAdapter(target Deliverer) *LocalAdapter {
	return &LocalAdapter{target: target}
}

// Broadcast delivers env locally.
func (a *LocalAdapter) Broadcast(_ context.Context, env Envelope) error {
	a.target.DeliverLocal(env)
	return nil
}

// Close is a no-op.
func (a *LocalAdapter) Close() error { return nil }

// Mode returns ModeLocal.
func (a *LocalAdapter) Mode() string { return ModeLocal }

// Connected returns false.
func (a *LocalAdapter) Connected() bool { return false }

// BrokerAdapter delivers broadcasts locally and through a Backplane to
// every other node.
//
// Envelopes whose UID equals this node's ID are skipped on receipt: they
// were already delivered locally when broadcast.
type BrokerAdapter struct {
	nodeID    string
	target    Deliverer
	backplane Backplane
	logger    *logging.Logger
	metrics   *Metrics

	closeOnce sync.Once
	closeErr  error
}

// NewBrokerAdapter subscribes to bp and returns the ready adapter. The
// adapter owns bp from then on; if subscribing fails bp is closed.
func NewBrokerAdapter(ctx context.Context, target Deliverer, nodeID string, bp Backplane, logger *logging.Logger, metrics *Metrics) (*BrokerAdapter, error) {
	a := &BrokerAdapter{
		nodeID:    nodeID,
		target:    target,
		backplane: bp,
		logger:    logger.With("component", "realtime.broker"),
		metrics:   metrics,
	}
	if err := bp.Subscribe(ctx, a.receive); err != nil {
		bp.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to backplane: %w", err)
	}
	return a, nil
}

// Broadcast delivers env locally, then publishes it for other nodes.
// A publish failure is returned after local delivery has happened.
func (a *BrokerAdapter) Broadcast(ctx context.Context, env Envelope) error {
	a.target.DeliverLocal(env)

	payload, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := a.backplane.Publish(ctx, payload); err != nil {
		a.metrics.backplaneError("publish")
		return fmt.Errorf("publishing broadcast %q: %w", env.Event, err)
	}
	return nil
}

// receive handles one payload from the backplane.
func (a *BrokerAdapter) receive(payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		a.metrics.backplaneError("decode")
		a.logger.Warn("dropping malformed broadcast envelope", "error", err)
		return
	}
	if env.UID == a.nodeID {
		return
	}
	a.target.DeliverLocal(env)
}

// Close closes the backplane.
func (a *BrokerAdapter) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.backplane.Close()
	})
	return a.closeErr
}

// Mode returns ModeBroker.
func (a *BrokerAdapter) Mode() string { return ModeBroker }

// Connected reports whether both backplane connections are up.
func (a *BrokerAdapter) Connected() bool {
	return a.backplane.Connected()
}
