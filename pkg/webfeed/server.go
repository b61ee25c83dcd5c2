package webfeed

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Server drives the HTTP server and feed manager lifecycle. Routes are the
// package's own API surface; applications can mount extra handlers on the mux
// before calling Run.
type Server struct {
	baseCtx context.Context
	svc     *Service
	fm      *FeedManager
	mux     *http.ServeMux
	httpSrv *http.Server
}

type ServerConfig struct {
	Addr     string
	Service  *Service
	Manager  *FeedManager
	Upgrader websocket.Upgrader
}

func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if cfg.Service == nil {
		return nil, errors.New("service is nil")
	}
	if cfg.Manager == nil {
		return nil, errors.New("manager is nil")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.Handle("/api/send", NewSendHandler(cfg.Service))
	mux.Handle("/api/stream", NewStreamHandler(cfg.Service))
	mux.Handle("/api/respond", NewRespondHandler(cfg.Service))
	mux.Handle("/api/undo", NewUndoHandler(cfg.Service))
	mux.Handle("/api/clear", NewClearHandler(cfg.Service))
	mux.Handle("/api/snapshot", NewSnapshotHandler(cfg.Service))
	mux.Handle("/api/feeds", NewFeedsHandler(cfg.Service))
	mux.Handle("/ws", NewWSHandler(cfg.Service, cfg.Upgrader))

	return &Server{
		baseCtx: ctx,
		svc:     cfg.Service,
		fm:      cfg.Manager,
		mux:     mux,
		httpSrv: &http.Server{Addr: addr, Handler: mux},
	}, nil
}

func (s *Server) Mux() *http.ServeMux {
	if s == nil {
		return nil
	}
	return s.mux
}

func (s *Server) HTTPServer() *http.Server {
	if s == nil {
		return nil
	}
	return s.httpSrv
}

func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.svc == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	s.fm.StartEvictionLoop(srvCtx)

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownBase := context.WithoutCancel(ctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownBase, 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.fm.Shutdown()
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting feed server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
