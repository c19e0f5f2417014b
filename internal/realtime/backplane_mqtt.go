package realtime

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
	"github.com/nerrad567/valuecore/internal/infrastructure/mqtt"
)

// mqttBackplane publishes on one MQTT connection and subscribes on another.
type mqttBackplane struct {
	pub   *mqtt.Client
	sub   *mqtt.Client
	topic string
	qos   byte

	closeOnce sync.Once
}

// dialMQTT connects the publisher and subscriber concurrently. If either
// fails the other is closed.
func dialMQTT(ctx context.Context, cfg config.RealtimeConfig, baseID string, logger *logging.Logger) (*mqttBackplane, error) {
	pubOpts := mqtt.OptionsFromConfig(cfg, baseID+"-pub")
	subOpts := pubOpts.WithClientID(baseID + "-sub")

	var pub, sub *mqtt.Client
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := mqtt.Connect(gctx, pubOpts)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		pub = c
		return nil
	})
	g.Go(func() error {
		c, err := mqtt.Connect(gctx, subOpts)
		if err != nil {
			return fmt.Errorf("subscriber: %w", err)
		}
		sub = c
		return nil
	})

	if err := g.Wait(); err != nil {
		pub.Close() //nolint:errcheck // Nil-safe; best effort cleanup
		sub.Close() //nolint:errcheck // Nil-safe; best effort cleanup
		return nil, fmt.Errorf("%w: %w", ErrBackplaneConnect, err)
	}

	mlog := logger.With("component", "realtime.mqtt")
	pub.SetLogger(mlog)
	sub.SetLogger(mlog)

	return &mqttBackplane{
		pub:   pub,
		sub:   sub,
		topic: mqtt.Topics{Prefix: cfg.TopicPrefix}.Broadcast(),
		qos:   byte(cfg.QoS), //nolint:gosec // Validated 0-2 by config
	}, nil
}

func (b *mqttBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.pub.Publish(ctx, b.topic, payload, b.qos, false)
}

func (b *mqttBackplane) Subscribe(ctx context.Context, fn func([]byte)) error {
	return b.sub.Subscribe(ctx, b.topic, b.qos, func(_ string, payload []byte) error {
		fn(payload)
		return nil
	})
}

func (b *mqttBackplane) Connected() bool {
	return b.pub.IsConnected() && b.sub.IsConnected()
}

func (b *mqttBackplane) Close() error {
	b.closeOnce.Do(func() {
		if b.sub.IsConnected() {
			b.sub.Unsubscribe(b.topic) //nolint:errcheck // Disconnect follows
		}
		b.sub.Close() //nolint:errcheck // Always nil
		b.pub.Close() //nolint:errcheck // Always nil
	})
	return nil
}
