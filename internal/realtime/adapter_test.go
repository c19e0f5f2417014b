package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
)

// recordingDeliverer captures envelopes delivered locally.
type recordingDeliverer struct {
	mu   sync.Mutex
	envs []Envelope
}

func (d *recordingDeliverer) DeliverLocal(env Envelope) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.envs = append(d.envs, env)
	return 1
}

func (d *recordingDeliverer) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.envs))
	for _, e := range d.envs {
		out = append(out, e.Event)
	}
	return out
}

// fakeBackplane loops published payloads back to its subscriber.
type fakeBackplane struct {
	publishErr   error
	subscribeErr error

	mu        sync.Mutex
	fn        func([]byte)
	published [][]byte
	closed    int
}

func (b *fakeBackplane) Publish(_ context.Context, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	b.published = append(b.published, payload)
	fn := b.fn
	b.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
	return nil
}

func (b *fakeBackplane) Subscribe(_ context.Context, fn func([]byte)) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	b.fn = fn
	b.mu.Unlock()
	return nil
}

func (b *fakeBackplane) Connected() bool { return true }

func (b *fakeBackplane) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return nil
}

func (b *fakeBackplane) inject(payload []byte) {
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	fn(payload)
}

func TestBrokerAdapter_SkipsOwnEnvelopes(t *testing.T) {
	target := &recordingDeliverer{}
	bp := &fakeBackplane{}
	a, err := NewBrokerAdapter(context.Background(), target, "node-a", bp, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("NewBrokerAdapter() error = %v", err)
	}

	// The loopback copy of our own broadcast must not be delivered twice.
	if err := a.Broadcast(context.Background(), Envelope{UID: "node-a", Event: "mine"}); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if got := target.events(); len(got) != 1 || got[0] != "mine" {
		t.Errorf("delivered = %v, want [mine]", got)
	}

	remote, _ := encodeEnvelope(Envelope{UID: "node-b", Event: "theirs"}) //nolint:errcheck // Static envelope
	bp.inject(remote)
	if got := target.events(); len(got) != 2 || got[1] != "theirs" {
		t.Errorf("delivered = %v, want [mine theirs]", got)
	}

	if a.Mode() != ModeBroker || !a.Connected() {
		t.Errorf("Mode() = %s Connected() = %v", a.Mode(), a.Connected())
	}
	a.Close() //nolint:errcheck // Test
	a.Close() //nolint:errcheck // Test
	if bp.closed != 1 {
		t.Errorf("backplane closed %d times, want 1", bp.closed)
	}
}

func TestBrokerAdapter_MalformedEnvelope(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	target := &recordingDeliverer{}
	bp := &fakeBackplane{}
	if _, err := NewBrokerAdapter(context.Background(), target, "node-a", bp, logging.Discard(), metrics); err != nil {
		t.Fatalf("NewBrokerAdapter() error = %v", err)
	}

	bp.inject([]byte("not json"))
	bp.inject([]byte(`{"event":"no-uid"}`))

	if got := target.events(); len(got) != 0 {
		t.Errorf("delivered = %v, want none", got)
	}
	if got := testutil.ToFloat64(metrics.backplaneErrors.WithLabelValues("decode")); got != 2 {
		t.Errorf("decode errors = %v, want 2", got)
	}
}

func TestBrokerAdapter_PublishFailureStillDeliversLocally(t *testing.T) {
	target := &recordingDeliverer{}
	bp := &fakeBackplane{publishErr: errors.New("broker gone")}
	a, err := NewBrokerAdapter(context.Background(), target, "node-a", bp, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("NewBrokerAdapter() error = %v", err)
	}

	err = a.Broadcast(context.Background(), Envelope{UID: "node-a", Event: "value:created"})
	if err == nil {
		t.Fatal("Broadcast() should return the publish error")
	}
	if got := target.events(); len(got) != 1 {
		t.Errorf("delivered = %v, want local delivery despite publish error", got)
	}
}

func TestBrokerAdapter_SubscribeFailureClosesBackplane(t *testing.T) {
	bp := &fakeBackplane{subscribeErr: errors.New("denied")}
	_, err := NewBrokerAdapter(context.Background(), &recordingDeliverer{}, "node-a", bp, logging.Discard(), nil)
	if err == nil {
		t.Fatal("NewBrokerAdapter() should fail")
	}
	if bp.closed != 1 {
		t.Errorf("backplane closed %d times, want 1", bp.closed)
	}
}

func TestDialBackplane_Unsupported(t *testing.T) {
	for _, raw := range []string{"redis://localhost:6379", "://nope"} {
		_, err := DialBackplane(context.Background(), config.RealtimeConfig{BrokerURL: raw}, "node", logging.Discard())
		if !errors.Is(err, ErrUnsupportedBroker) {
			t.Errorf("DialBackplane(%q) error = %v, want ErrUnsupportedBroker", raw, err)
		}
	}
}

func TestDialBackplane_MQTTRefused(t *testing.T) {
	cfg := config.RealtimeConfig{BrokerURL: "mqtt://127.0.0.1:1", ConnectTimeout: 2}
	start := time.Now()
	if _, err := DialBackplane(context.Background(), cfg, "node", logging.Discard()); err == nil {
		t.Fatal("DialBackplane() to a closed port should fail")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("DialBackplane() did not respect the connect timeout")
	}
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		clientID, nodeID, want string
	}{
		{"api", "0123456789abcdef", "api-01234567"},
		{"", "abc", "valuecore-abc"},
	}
	for _, tt := range tests {
		if got := clientIdentity(tt.clientID, tt.nodeID); got != tt.want {
			t.Errorf("clientIdentity(%q, %q) = %q, want %q", tt.clientID, tt.nodeID, got, tt.want)
		}
	}
}

func TestNatsSubject(t *testing.T) {
	if got := natsSubject(""); got != "valuecore.socket.broadcast" {
		t.Errorf("natsSubject(\"\") = %q", got)
	}
	if got := natsSubject("erm/prod"); got != "erm.prod.socket.broadcast" {
		t.Errorf("natsSubject(erm/prod) = %q", got)
	}
}

// TestFanout_TwoNodes runs two servers over one in-process broker and
// checks every socket sees each broadcast exactly once.
func TestFanout_TwoNodes(t *testing.T) {
	ctx := context.Background()
	cfg := config.RealtimeConfig{BrokerURL: "mem://fanout-two-nodes", ClientID: "test", TopicPrefix: "test"}

	node := func() (*Server, *websocket.Conn) {
		srv, ts := testServer(t)
		bp, err := DialBackplane(ctx, cfg, srv.NodeID(), logging.Discard())
		if err != nil {
			t.Fatalf("DialBackplane() error = %v", err)
		}
		adapter, err := NewBrokerAdapter(ctx, srv, srv.NodeID(), bp, logging.Discard(), nil)
		if err != nil {
			t.Fatalf("NewBrokerAdapter() error = %v", err)
		}
		srv.SetAdapter(adapter)
		return srv, dial(t, ts, nil)
	}

	a, clientA := node()
	b, clientB := node()
	waitFor(t, func() bool { return a.SocketCount() == 1 && b.SocketCount() == 1 })

	if a.FanoutMode() != ModeBroker || !a.BrokerConnected() {
		t.Fatalf("node A mode = %s connected = %v", a.FanoutMode(), a.BrokerConnected())
	}

	join(t, clientB, "values")

	data := json.RawMessage(`{"value":1}`)
	if err := a.Broadcast(ctx, "value:created", data, To("values")); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if msg := read(t, clientB); msg.Event != "value:created" || string(msg.Data) != `{"value":1}` {
		t.Errorf("node B client got %+v", msg)
	}

	// Node A's client is not in the room, so its next frame is the global one.
	if err := b.Broadcast(ctx, "hello", nil); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if msg := read(t, clientA); msg.Event != "hello" {
		t.Errorf("node A client got %+v, want hello first", msg)
	}
	if msg := read(t, clientB); msg.Event != "hello" {
		t.Errorf("node B client got %+v", msg)
	}
	// Exactly once on each node. Silence checks leave the connection
	// unreadable, so they go last.
	expectSilence(t, clientA, 150*time.Millisecond)
	expectSilence(t, clientB, 200*time.Millisecond)
}
