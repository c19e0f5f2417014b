package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestSocket_Emit(t *testing.T) {
	srv, ts := testServer(t)
	srv.On("whoami", func(_ context.Context, s *Socket, _ json.RawMessage) (any, error) {
		return nil, s.Emit("identity", map[string]string{"id": s.ID()})
	})

	ids := make(chan string, 1)
	srv.OnConnect(func(s *Socket) { ids <- s.ID() })
	conn := dial(t, ts, nil)
	id := <-ids

	send(t, conn, Message{Type: TypeEvent, Event: "whoami", ID: "w1"})
	msg := read(t, conn)
	if msg.Type != TypeEvent || msg.Event != "identity" {
		t.Fatalf("emit frame = %+v", msg)
	}
	var got map[string]string
	if err := json.Unmarshal(msg.Data, &got); err != nil || got["id"] != id {
		t.Errorf("emit data = %s, want id %s", msg.Data, id)
	}
	if ack := read(t, conn); ack.Type != TypeAck || ack.ID != "w1" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestSocket_EmitUnencodable(t *testing.T) {
	srv, _ := testServer(t)
	sock := newSocket(srv, nil)
	if err := sock.Emit("bad", make(chan int)); err == nil {
		t.Error("Emit() with unencodable data should fail")
	}
}

// TestSocket_SendAfterShutdown races sends against shutdown. Run with -race.
func TestSocket_SendAfterShutdown(t *testing.T) {
	srv, _ := testServer(t)
	sock := newSocket(srv, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sock.trySend([]byte(`{}`))
			}
		}()
	}
	time.Sleep(time.Millisecond)
	sock.shutdown()
	sock.shutdown()
	wg.Wait()

	if sock.Context().Err() == nil {
		t.Error("socket context should be cancelled after shutdown")
	}
	sock.trySend([]byte(`{}`))

	// The channel is closed and holds at most the buffered frames.
	n := 0
	for range sock.send {
		n++
	}
	if n > sendBufferSize {
		t.Errorf("drained %d frames, buffer is %d", n, sendBufferSize)
	}
}
