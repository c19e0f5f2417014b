package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
)

// watermillBackplane adapts a Watermill publisher/subscriber pair.
type watermillBackplane struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     *logging.Logger

	// pubUp and subUp track connection state reported by the transport.
	pubUp *atomic.Bool
	subUp *atomic.Bool

	// ctx scopes the subscription; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	release   func() error
}

func newWatermillBackplane(pub message.Publisher, sub message.Subscriber, topic string, logger *logging.Logger) *watermillBackplane {
	ctx, cancel := context.WithCancel(context.Background())
	up := func() *atomic.Bool {
		b := &atomic.Bool{}
		b.Store(true)
		return b
	}
	return &watermillBackplane{
		publisher:  pub,
		subscriber: sub,
		topic:      topic,
		logger:     logger,
		pubUp:      up(),
		subUp:      up(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *watermillBackplane) Publish(ctx context.Context, payload []byte) error {
	if b.ctx.Err() != nil {
		return ErrBackplaneClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("watermill publish: %w", err)
	}
	return nil
}

func (b *watermillBackplane) Subscribe(ctx context.Context, fn func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	messages, err := b.subscriber.Subscribe(b.ctx, b.topic)
	if err != nil {
		return fmt.Errorf("watermill subscribe: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.handle(msg, fn)
		}
	}()
	return nil
}

// handle runs fn and always acks; a redelivered broadcast would only
// repeat the same failure.
func (b *watermillBackplane) handle(msg *message.Message, fn func([]byte)) {
	defer msg.Ack()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("backplane handler panic recovered", "panic", r)
		}
	}()
	fn(msg.Payload)
}

func (b *watermillBackplane) Connected() bool {
	return b.ctx.Err() == nil && b.pubUp.Load() && b.subUp.Load()
}

func (b *watermillBackplane) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		if b.release != nil {
			b.closeErr = b.release()
		} else {
			pubErr := b.publisher.Close()
			subErr := b.subscriber.Close()
			if pubErr != nil {
				b.closeErr = pubErr
			} else {
				b.closeErr = subErr
			}
		}
		b.wg.Wait()
	})
	return b.closeErr
}

// natsSubject turns a topic prefix into a dot-separated NATS subject.
// MQTT-style slashes in the prefix become dots.
func natsSubject(prefix string) string {
	if prefix == "" {
		prefix = "valuecore"
	}
	return strings.ReplaceAll(strings.Trim(prefix, "/"), "/", ".") + ".socket.broadcast"
}

// natsOptions returns connection options for one side of the pair. Connection
// state changes are mirrored into up.
func natsOptions(cfg config.RealtimeConfig, name string, timeout time.Duration, up *atomic.Bool, logger *logging.Logger) []natsgo.Option {
	opts := []natsgo.Option{
		natsgo.Name(name),
		natsgo.Timeout(timeout),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			up.Store(false)
			logger.Warn("NATS connection lost", "name", name, "error", err)
		}),
		natsgo.ReconnectHandler(func(_ *natsgo.Conn) {
			up.Store(true)
			logger.Info("NATS reconnected", "name", name)
		}),
	}
	if cfg.Reconnect.InitialDelay > 0 {
		opts = append(opts, natsgo.ReconnectWait(time.Duration(cfg.Reconnect.InitialDelay)*time.Second))
	}
	if cfg.Username != "" {
		opts = append(opts, natsgo.UserInfo(cfg.Username, cfg.Password))
	}
	return opts
}

// dialNATS connects a Watermill NATS publisher and subscriber concurrently
// over core NATS (JetStream disabled). No queue group is used, so every
// node receives every broadcast.
func dialNATS(ctx context.Context, cfg config.RealtimeConfig, baseID string, timeout time.Duration, logger *logging.Logger) (*watermillBackplane, error) {
	nlog := logger.With("component", "realtime.nats")
	wlog := watermill.NewSlogLogger(nlog.Logger)
	marshaler := &wmnats.NATSMarshaler{}
	jetStream := wmnats.JetStreamConfig{Disabled: true}

	pubUp, subUp := &atomic.Bool{}, &atomic.Bool{}

	var pub *wmnats.Publisher
	var sub *wmnats.Subscriber
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := wmnats.NewPublisher(wmnats.PublisherConfig{
			URL:         cfg.BrokerURL,
			NatsOptions: natsOptions(cfg, baseID+"-pub", timeout, pubUp, nlog),
			Marshaler:   marshaler,
			JetStream:   jetStream,
		}, wlog)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		pub = p
		return gctx.Err()
	})
	g.Go(func() error {
		s, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
			URL:         cfg.BrokerURL,
			NatsOptions: natsOptions(cfg, baseID+"-sub", timeout, subUp, nlog),
			Unmarshaler: marshaler,
			JetStream:   jetStream,
		}, wlog)
		if err != nil {
			return fmt.Errorf("subscriber: %w", err)
		}
		sub = s
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		if pub != nil {
			pub.Close() //nolint:errcheck // Best effort cleanup on error path
		}
		if sub != nil {
			sub.Close() //nolint:errcheck // Best effort cleanup on error path
		}
		return nil, fmt.Errorf("%w: %w", ErrBackplaneConnect, err)
	}

	b := newWatermillBackplane(pub, sub, natsSubject(cfg.TopicPrefix), nlog)
	b.pubUp, b.subUp = pubUp, subUp
	pubUp.Store(true)
	subUp.Store(true)
	return b, nil
}

// memoryBrokers holds the in-process GoChannels shared by mem:// URL host.
var memoryBrokers = struct {
	sync.Mutex
	byName map[string]*memoryBroker
}{byName: make(map[string]*memoryBroker)}

type memoryBroker struct {
	pubsub *gochannel.GoChannel
	refs   int
}

// dialMemory returns a backplane on the GoChannel named name, creating it
// on first use. Backplanes dialled with the same name within one process
// see each other's broadcasts; the channel is closed with its last user.
func dialMemory(name, prefix string, logger *logging.Logger) *watermillBackplane {
	mlog := logger.With("component", "realtime.mem")

	memoryBrokers.Lock()
	mb, ok := memoryBrokers.byName[name]
	if !ok {
		mb = &memoryBroker{
			pubsub: gochannel.NewGoChannel(gochannel.Config{
				OutputChannelBuffer: sendBufferSize,
			}, watermill.NewSlogLogger(mlog.Logger)),
		}
		memoryBrokers.byName[name] = mb
	}
	mb.refs++
	memoryBrokers.Unlock()

	b := newWatermillBackplane(mb.pubsub, mb.pubsub, natsSubject(prefix), mlog)
	b.release = func() error {
		memoryBrokers.Lock()
		defer memoryBrokers.Unlock()
		mb.refs--
		if mb.refs > 0 {
			return nil
		}
		delete(memoryBrokers.byName, name)
		return mb.pubsub.Close()
	}
	return b
}
