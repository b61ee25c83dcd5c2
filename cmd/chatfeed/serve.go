package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/feedstream"
	"github.com/go-go-golems/chatfeed/pkg/persistence/feedstore"
	"github.com/go-go-golems/chatfeed/pkg/responders"
	"github.com/go-go-golems/chatfeed/pkg/webfeed"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides config")
	return cmd
}

func runServe(ctx context.Context, cfg Config) error {
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("store close error")
		}
	}()

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("backend close error")
		}
	}()

	registry := responders.NewDefaultRegistry()
	buildCallback := func(feedID string) (feed.Callback, string, error) {
		cb, err := registry.Build(cfg.Responder.Kind, cfg.ResponderParams())
		if err != nil {
			return nil, "", err
		}
		return cb, cfg.Responder.Kind, nil
	}

	fm, err := webfeed.NewFeedManager(webfeed.ManagerConfig{
		BaseCtx:       ctx,
		Backend:       backend,
		Store:         store,
		BuildCallback: buildCallback,
		FeedOptions:   cfg.FeedOptions(),
		ReplayLimit:   cfg.ReplayLimit,
		WSIdleTimeout: time.Duration(cfg.WSIdleTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	fm.SetEvictionConfig(
		time.Duration(cfg.Eviction.IdleSeconds)*time.Second,
		time.Duration(cfg.Eviction.IntervalSeconds)*time.Second,
	)

	svc, err := webfeed.NewService(webfeed.ServiceConfig{BaseCtx: ctx, Manager: fm})
	if err != nil {
		return err
	}

	srv, err := webfeed.NewServer(ctx, webfeed.ServerConfig{
		Addr:    cfg.Addr,
		Service: svc,
		Manager: fm,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("addr", cfg.Addr).
		Str("store", cfg.Store.Driver).
		Str("responder", cfg.Responder.Kind).
		Bool("redis", cfg.Redis.Enabled).
		Msg("feed server configured")
	return srv.Run(ctx)
}

func buildStore(cfg Config) (feedstore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "sqlite":
		dsn, err := feedstore.SQLiteDSNForFile(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return feedstore.NewSQLiteStore(dsn)
	default:
		return feedstore.NewInMemoryStore(cfg.Store.MaxMessagesPerFeed), nil
	}
}

func buildBackend(cfg Config) (feedstream.Backend, error) {
	if cfg.Redis.Enabled {
		return feedstream.NewRedisBackend(cfg.Redis)
	}
	return feedstream.NewMemoryBackend(), nil
}
