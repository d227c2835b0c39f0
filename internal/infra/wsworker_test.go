package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	url            string
	subscribeCalls int32
	frameCalls     int32
	frameErr       error
}

func (h *recordingHandler) Name() string { return "test/feed" }
func (h *recordingHandler) URL() string  { return h.url }
func (h *recordingHandler) Subscribe(ctx context.Context, w FrameWriter) error {
	atomic.AddInt32(&h.subscribeCalls, 1)
	return nil
}
func (h *recordingHandler) HandleFrame(ctx context.Context, frame []byte) error {
	atomic.AddInt32(&h.frameCalls, 1)
	return h.frameErr
}

func newWSServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		fn(conn)
	}))
}

func wsURL(httpURL string) string {
	return strings.Replace(httpURL, "http://", "ws://", 1)
}

func TestFeedWorkerStreamsFrames(t *testing.T) {
	server := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	h := &recordingHandler{url: wsURL(server.URL)}
	worker := NewFeedWorker(h)
	worker.ReadTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	worker.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	worker.Stop()

	if atomic.LoadInt32(&h.subscribeCalls) == 0 {
		t.Error("Subscribe was not called")
	}
	if atomic.LoadInt32(&h.frameCalls) == 0 {
		t.Error("HandleFrame was not called")
	}
}

func TestFeedWorkerFrameErrorDoesNotDisconnect(t *testing.T) {
	server := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	h := &recordingHandler{url: wsURL(server.URL), frameErr: context.DeadlineExceeded}
	worker := NewFeedWorker(h)
	worker.ReadTimeout = 500 * time.Millisecond

	ctx := context.Background()
	worker.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	worker.Stop()

	// Both frames reached the handler on the same connection: one
	// subscribe call, two frame calls.
	if got := atomic.LoadInt32(&h.subscribeCalls); got != 1 {
		t.Errorf("expected a single connection, got %d subscribes", got)
	}
	if got := atomic.LoadInt32(&h.frameCalls); got != 2 {
		t.Errorf("expected 2 frames delivered, got %d", got)
	}
}

func TestFeedWorkerGracefulStop(t *testing.T) {
	hold := make(chan struct{})
	server := newWSServer(t, func(conn *websocket.Conn) {
		<-hold
	})
	defer server.Close()
	defer close(hold)

	h := &recordingHandler{url: wsURL(server.URL)}
	worker := NewFeedWorker(h)

	worker.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop did not return within timeout")
	}
}

func TestFeedWorkerWrite(t *testing.T) {
	received := make(chan []byte, 1)
	server := newWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	h := &recordingHandler{url: wsURL(server.URL)}
	worker := NewFeedWorker(h)

	worker.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	msg := []byte(`{"event":"subscribe"}`)
	if err := worker.Write(websocket.TextMessage, msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(msg) {
			t.Errorf("server received %q, want %q", got, msg)
		}
	case <-time.After(time.Second):
		t.Error("server did not receive the message")
	}

	worker.Stop()
}

func TestFeedWorkerWriteNotConnected(t *testing.T) {
	h := &recordingHandler{url: "ws://127.0.0.1:1"}
	worker := NewFeedWorker(h)
	if err := worker.Write(websocket.TextMessage, []byte("x")); err == nil {
		t.Error("Write on a disconnected worker should fail")
	}
}
