package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
)

// Backplane carries encoded envelopes between nodes over a
// publisher and a subscriber connection.
type Backplane interface {
	// Publish sends payload to every subscribed node, this one included.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers fn for every received payload. ctx bounds the
	// subscribe call only; delivery continues until Close.
	Subscribe(ctx context.Context, fn func(payload []byte)) error
	// Connected reports whether both connections are up.
	Connected() bool
	Close() error
}

// defaultConnectTimeout bounds DialBackplane when the config leaves it unset.
const defaultConnectTimeout = 10 * time.Second

// DialBackplane opens the publisher and subscriber connections for
// cfg.BrokerURL, bounded by cfg.ConnectTimeout.
//
// Connection identities are derived from cfg.ClientID and nodeID so two
// nodes sharing a config never collide on the broker.
func DialBackplane(ctx context.Context, cfg config.RealtimeConfig, nodeID string, logger *logging.Logger) (Backplane, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedBroker, err)
	}

	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseID := clientIdentity(cfg.ClientID, nodeID)

	switch strings.ToLower(u.Scheme) {
	case "mqtt", "mqtts", "tcp", "ssl":
		return dialMQTT(ctx, cfg, baseID, logger)
	case "nats":
		return dialNATS(ctx, cfg, baseID, timeout, logger)
	case "mem":
		return dialMemory(u.Host, cfg.TopicPrefix, logger), nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedBroker, u.Scheme)
	}
}

// clientIdentity returns "<clientID>-<first 8 chars of nodeID>".
func clientIdentity(clientID, nodeID string) string {
	if clientID == "" {
		clientID = "valuecore"
	}
	short := nodeID
	if len(short) > 8 {
		short = short[:8]
	}
	return clientID + "-" + short
}
