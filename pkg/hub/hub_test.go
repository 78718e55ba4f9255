package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type fakeMessage struct {
	kind int
	data []byte
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	written   chan fakeMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan fakeMessage, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.written <- fakeMessage{kind: kind, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(time.Millisecond)
	}
	return h, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, conn *fakeConn) fakeMessage {
	t.Helper()
	select {
	case m := <-conn.written:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message written")
		return fakeMessage{}
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"result": "red"}); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*fakeConn{a, b} {
		m := receive(t, conn)
		if m.kind != websocket.TextMessage {
			t.Errorf("kind = %d, want text", m.kind)
		}
		if string(m.data) != `{"result":"red"}` {
			t.Errorf("data = %s", m.data)
		}
	}

	h.BroadcastBinary([]byte{0xff, 0xd8})
	if m := receive(t, a); m.kind != websocket.BinaryMessage || len(m.data) != 2 {
		t.Errorf("binary message = %+v", m)
	}

	waitFor(t, func() bool { return h.Stats().Broadcast == 2 })
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, conn).Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client did not stop")
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, func() bool { return !h.IsRunning() })

	if m := receive(t, conn); m.kind != websocket.CloseMessage {
		t.Errorf("kind = %d, want close", m.kind)
	}
	if h.ClientCount() != 0 {
		t.Errorf("clients = %d after stop", h.ClientCount())
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			h.BroadcastBinary([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
	if got := h.Stats().Dropped; got != 300-256 {
		t.Errorf("dropped = %d, want %d", got, 300-256)
	}
}
