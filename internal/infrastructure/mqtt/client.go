package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is one broker connection. The realtime backplane holds two of them,
// a publisher and a subscriber, each with its own client ID.
//
// Subscriptions made through Subscribe are remembered and replayed after paho
// reconnects. A retained presence message is published on every connect and
// the Last Will marks the node offline if the connection drops.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	opts   Options

	online   atomic.Bool
	connects atomic.Int32

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	logMu  sync.RWMutex
	logger Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho calls handlers from its own
// goroutines; a returned error is logged and the message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for CONNACK, bounded by ctx and
// opts.ConnectTimeout. The first attempt is not retried; once connected,
// paho reconnects on its own with the configured backoff.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	pahoOpts, err := buildClientOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	configureLWT(pahoOpts, opts)

	c := &Client{
		opts:          opts,
		subscriptions: make(map[string]subscription),
	}
	pahoOpts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.client = pahomqtt.NewClient(pahoOpts)
	if err := waitToken(ctx, c.client.Connect(), opts.connectTimeout()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, opts.ClientID, err)
	}

	// The paho OnConnect handler runs asynchronously.
	c.online.Store(true)
	return c, nil
}

func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) onConnect() {
	c.online.Store(true)
	reconnect := c.connects.Add(1) > 1

	c.subMu.RLock()
	for topic, sub := range c.subscriptions {
		// A failure here shows up as the next connection-lost event.
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	restored := len(c.subscriptions)
	c.subMu.RUnlock()

	c.publishPresence("online", "")

	if log := c.log(); log != nil && reconnect {
		log.Info("MQTT reconnected", "client_id", c.opts.ClientID, "subscriptions", restored)
	}
}

func (c *Client) onConnectionLost(err error) {
	c.online.Store(false)
	if log := c.log(); log != nil {
		log.Warn("MQTT connection lost", "client_id", c.opts.ClientID, "error", err)
	}
}

// publishPresence sends a retained status message for this connection.
// Returns nil when presence is disabled.
func (c *Client) publishPresence(status, reason string) pahomqtt.Token {
	if c.opts.TopicPrefix == "" {
		return nil
	}
	topic := Topics{Prefix: c.opts.TopicPrefix}.NodeStatus(c.opts.ClientID)
	return c.client.Publish(topic, c.opts.QoS, true, presencePayload(c.opts.ClientID, status, reason))
}

// ClientID returns the identity presented to the broker.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.client.IsConnected()
}

// HealthCheck returns ErrNotConnected while the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes an orderly offline status, which unlike the Last Will
// carries reason "graceful_shutdown", then disconnects. Nil-safe.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		if token := c.publishPresence("offline", "graceful_shutdown"); token != nil {
			token.WaitTimeout(defaultPublishTimeout)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// SetLogger installs the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one bad
// message cannot kill paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.log(); log != nil {
					log.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.log(); log != nil {
				log.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
