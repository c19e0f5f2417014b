package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when Options.ConnectTimeout is zero.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes a single broker connection.
type Options struct {
	// BrokerURL is mqtt://, mqtts://, tcp:// or ssl://.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// QoS is used for presence messages. Publish and Subscribe take their own.
	QoS byte

	ConnectTimeout        time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	// TopicPrefix roots the presence topic. Empty disables presence
	// messages and the Last Will.
	TopicPrefix string
}

// OptionsFromConfig builds Options from the realtime section, using
// clientID in place of cfg.ClientID.
func OptionsFromConfig(cfg config.RealtimeConfig, clientID string) Options {
	return Options{
		BrokerURL:             cfg.BrokerURL,
		ClientID:              clientID,
		Username:              cfg.Username,
		Password:              cfg.Password,
		QoS:                   byte(cfg.QoS), //nolint:gosec // Validated 0-2 by config
		ConnectTimeout:        time.Duration(cfg.ConnectTimeout) * time.Second,
		ReconnectInitialDelay: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		ReconnectMaxDelay:     time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
		TopicPrefix:           cfg.TopicPrefix,
	}
}

// WithClientID returns a copy of o with a different client identity.
// Two connections to the same broker must not share a client ID.
func (o Options) WithClientID(clientID string) Options {
	o.ClientID = clientID
	return o
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return o.ConnectTimeout
}

// pahoBrokerURL translates mqtt:// and mqtts:// into the tcp:// and ssl://
// schemes paho dials.
func pahoBrokerURL(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parsing broker url: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("broker url %q has no host", raw)
	}

	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		return "tcp://" + u.Host, false, nil
	case "mqtts", "ssl":
		return "ssl://" + u.Host, true, nil
	default:
		return "", false, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL (tcp:// or ssl://)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff once connected
//   - TLS configuration for ssl://
//   - Clean session mode
//
// The initial connect is not retried so that an unreachable broker is
// reported to the caller instead of hanging until the timeout.
func buildClientOptions(o Options) (*pahomqtt.ClientOptions, error) {
	broker, secure, err := pahoBrokerURL(o.BrokerURL)
	if err != nil {
		return nil, err
	}
	if o.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if o.ReconnectInitialDelay > 0 {
		opts.SetConnectRetryInterval(o.ReconnectInitialDelay)
	}
	if o.ReconnectMaxDelay > 0 {
		opts.SetMaxReconnectInterval(o.ReconnectMaxDelay)
	}

	opts.SetConnectTimeout(o.connectTimeout())
	opts.SetKeepAlive(defaultKeepAlive)

	if secure {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts, nil
}

// configureLWT sets up Last Will and Testament on the node presence topic.
//
// The broker publishes it if this connection drops without a clean
// disconnect, so other nodes can see which peers have gone away.
//
// QoS: 1, Retained: true
func configureLWT(opts *pahomqtt.ClientOptions, o Options) {
	if o.TopicPrefix == "" {
		return
	}
	opts.SetWill(
		Topics{Prefix: o.TopicPrefix}.NodeStatus(o.ClientID),
		presencePayload(o.ClientID, "offline", "unexpected_disconnect"),
		1,
		true,
	)
}

// presencePayload builds the JSON body for node presence messages.
func presencePayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}
