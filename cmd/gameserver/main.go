// gameserver serves the game HTTP API, the websocket event stream and the
// cascade watcher.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/bomberhub/internal/config"
	"github.com/jacentio/bomberhub/internal/game"
	"github.com/jacentio/bomberhub/internal/httpapi"
	"github.com/jacentio/bomberhub/internal/realtime"
	"github.com/jacentio/bomberhub/store"
	"github.com/jacentio/bomberhub/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gameserver stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	client, err := store.Init(ctx, cfg.Store(logger), cfg.Opener())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Reset(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()
	client.SetRegistry(game.Relationships())

	hub := realtime.NewHub(logger)
	service := game.NewService(client, hub, game.Config{
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	router := httpapi.NewRouter(httpapi.NewHandler(service, logger), httpapi.Options{
		CORSOrigin: cfg.CORSOrigin,
		Realtime:   hub.Handler(),
		Metrics:    cfg.MetricsAddr == "",
	})

	g, ctx := errgroup.WithContext(ctx)
	serve(ctx, g, logger, &http.Server{Addr: cfg.HTTPAddr, Handler: router})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		serve(ctx, g, logger, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	if cfg.Cascade {
		handler := stream.NewHandler(client, logger)
		g.Go(func() error {
			return handler.Run(ctx)
		})
	}

	return g.Wait()
}

// serve runs srv in g and shuts it down when ctx is done.
func serve(ctx context.Context, g *errgroup.Group, logger *slog.Logger, srv *http.Server) {
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
