package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"twap_go/internal/book"
	"twap_go/internal/domain"
)

const writeTimeout = 5 * time.Second

// Subscriber receives periodic order-book snapshots. A Send error marks
// the subscriber dead and it is pruned on the next broadcast.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// snapshotPayload is the broadcast envelope.
type snapshotPayload struct {
	OrderBook map[string]domain.OrderBookEntry `json:"order_book"`
}

// Hub fans the shared book state out to websocket subscribers on a
// fixed cadence. Subscribers that fail a write are dropped; the book is
// the source of truth, so a dropped client just reconnects.
type Hub struct {
	books    *book.State
	interval time.Duration
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]Subscriber
}

func New(books *book.State, interval time.Duration) *Hub {
	return &Hub{
		books:    books,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[string]Subscriber),
	}
}

// Attach registers a subscriber for future broadcasts.
func (h *Hub) Attach(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.ID()] = s
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run broadcasts until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcastOnce()
		}
	}
}

// broadcastOnce sends one identical snapshot to every subscriber and
// prunes the ones whose connection failed.
func (h *Hub) broadcastOnce() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(snapshotPayload{OrderBook: h.books.Snapshot()})
	if err != nil {
		slog.Error("snapshot marshal failed", slog.Any("error", err))
		return
	}

	var dead []string
	for _, s := range subs {
		if err := s.Send(payload); err != nil {
			slog.Debug("dropping subscriber",
				slog.String("id", s.ID()),
				slog.Any("error", err))
			s.Close()
			dead = append(dead, s.ID())
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, id := range dead {
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		s.Close()
		delete(h.subs, id)
	}
}

// ServeWS upgrades an HTTP request and attaches the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	h.AttachConn(conn)
}

// AttachConn wraps a raw websocket connection as a subscriber. Reads
// are drained in the background so client close frames are noticed.
func (h *Hub) AttachConn(conn *websocket.Conn) {
	s := &wsSubscriber{id: uuid.NewString(), conn: conn}
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	h.Attach(s)
	slog.Info("subscriber attached", slog.String("id", s.id))
}

type wsSubscriber struct {
	id     string
	conn   *websocket.Conn
	sendMu sync.Mutex
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}
