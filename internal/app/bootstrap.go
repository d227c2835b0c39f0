package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"twap_go/internal/book"
	"twap_go/internal/feed"
	"twap_go/internal/hub"
	"twap_go/internal/infra"
	"twap_go/internal/infra/binance"
	"twap_go/internal/infra/kraken"
	"twap_go/internal/klines"
	"twap_go/internal/orders"
	"twap_go/internal/registry"
	"twap_go/internal/storage"
	"twap_go/internal/twap"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config   *infra.Config
	Books    *book.State
	Registry *registry.Registry
	Feeds    *feed.Manager
	Hub      *hub.Hub
	Store    *orders.Store
	Journal  *storage.Journal
	Engine   *twap.Engine
	Klines   *klines.Service
	Server   *Server
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires every component. Nothing
// starts running yet; Run owns the lifecycle.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping TWAP engine...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))

	binanceClient := binance.NewClient(cfg.Exchanges.Binance.RestURL)
	krakenClient := kraken.NewClient(cfg.Exchanges.Kraken.RestURL)
	b.Registry = registry.New(binanceClient, krakenClient)

	b.Books = book.New()
	b.Feeds = feed.NewManager(feed.Endpoints{
		BinanceWSURL: cfg.Exchanges.Binance.WSURL,
		KrakenWSURL:  cfg.Exchanges.Kraken.WSURL,
	}, b.Books)

	if cfg.Journal.Path != "" {
		journal, err := storage.NewJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("✅ Order journal ready (WAL-mode)", slog.String("path", cfg.Journal.Path))
	}

	b.Store = orders.NewStore()
	engineCfg := twap.Config{
		AcceptTimeout: time.Duration(cfg.Engine.AcceptTimeoutSec) * time.Second,
		PollInterval:  time.Duration(cfg.Engine.PollIntervalMS) * time.Millisecond,
	}
	var recorder twap.Recorder
	if b.Journal != nil {
		recorder = b.Journal
	}
	b.Engine = twap.NewEngine(engineCfg, b.Registry, b.Feeds, b.Books, b.Store, recorder)

	b.Klines = klines.NewService(b.Registry, b.Feeds, binanceClient, krakenClient)
	b.Hub = hub.New(b.Books, time.Duration(cfg.Hub.BroadcastIntervalMS)*time.Millisecond)
	b.Server = NewServer(b.Engine, b.Store, b.Registry, b.Klines, b.Hub)

	slog.Info("✅ Components wired",
		slog.String("addr", cfg.Server.Addr),
		slog.Any("exchanges", b.Registry.Exchanges()))
	return nil
}

// Run starts the broadcast hub and HTTP server and blocks until ctx is
// cancelled, then shuts everything down in dependency order.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Engine.Start(ctx)
	go b.Hub.Run(ctx)

	httpServer := &http.Server{
		Addr:    b.Config.Server.Addr,
		Handler: b.Server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("✨ HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", slog.Any("error", err))
	}

	// Schedules were cancelled with ctx; wait for them to unwind before
	// tearing down feeds and the journal they may still touch.
	b.Engine.Wait()
	b.Feeds.Close()
	if b.Journal != nil {
		b.Journal.Close()
	}

	slog.Info("✅ Shutdown complete")
	return nil
}
