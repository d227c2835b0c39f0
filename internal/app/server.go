package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"twap_go/internal/domain"
	"twap_go/internal/hub"
	"twap_go/internal/klines"
	"twap_go/internal/orders"
	"twap_go/internal/registry"
	"twap_go/internal/twap"
)

// submitBody is the wire form of an order submission. Durations arrive
// in whole seconds.
type submitBody struct {
	TokenID       string  `json:"token_id"`
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	OrderType     string  `json:"order_type"`
	ExecutionTime int     `json:"execution_time"`
	Interval      int     `json:"interval"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server is the HTTP surface over the engine, store, registry, klines
// service, and broadcast hub.
type Server struct {
	engine   *twap.Engine
	store    *orders.Store
	registry *registry.Registry
	klines   *klines.Service
	hub      *hub.Hub
}

func NewServer(engine *twap.Engine, store *orders.Store, reg *registry.Registry, kl *klines.Service, h *hub.Hub) *Server {
	return &Server{engine: engine, store: store, registry: reg, klines: kl, hub: h}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", s.handleSubmit)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{token}", s.handleOrderStatus)
	mux.HandleFunc("GET /api/exchanges", s.handleExchanges)
	mux.HandleFunc("GET /api/symbols/{exchange}", s.handleSymbols)
	mux.HandleFunc("POST /api/symbols/{exchange}/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/klines/{exchange}/{symbol}", s.handleKlines)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return mux
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	req := domain.SubmitRequest{
		TokenID:       body.TokenID,
		Exchange:      body.Exchange,
		Symbol:        body.Symbol,
		Quantity:      body.Quantity,
		LimitPrice:    body.Price,
		Side:          domain.Side(body.OrderType),
		ExecutionTime: time.Duration(body.ExecutionTime) * time.Second,
		Interval:      time.Duration(body.Interval) * time.Second,
	}

	order, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.Get(r.PathValue("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := orders.ListFilter{
		Exchange: q.Get("exchange"),
		Symbol:   q.Get("symbol"),
		Side:     domain.Side(q.Get("side")),
		Status:   domain.Status(q.Get("status")),
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.store.List(filter)})
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": s.registry.Exchanges()})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	stream, query, err := s.registry.ListSymbols(r.Context(), r.PathValue("exchange"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols":       stream,
		"query_symbols": query,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	exchange := r.PathValue("exchange")
	if err := s.registry.Refresh(r.Context(), exchange); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": exchange})
}

func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval := q.Get("interval")
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	ks, err := s.klines.Get(r.Context(), r.PathValue("exchange"), r.PathValue("symbol"), interval, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"klines": ks})
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownExchange), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateToken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNoMarketData):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", slog.Any("error", err))
	}
}
