package relay

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

	"github.com/go-go-golems/threadrelay/pkg/auth"
	"github.com/go-go-golems/threadrelay/pkg/stream"
)

type ServerConfig struct {
	Addr     string
	Verifier auth.Verifier
	Router   *Router
	Backend  stream.Backend
}

// Server accepts websocket clients and feeds verified frames to the router.
type Server struct {
	baseCtx  context.Context
	verifier auth.Verifier
	router   *Router
	backend  stream.Backend
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("verifier is nil")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is nil")
	}
	if cfg.Backend == nil {
		return nil, errors.New("stream backend is nil")
	}
	s := &Server{
		baseCtx:  ctx,
		verifier: cfg.Verifier,
		router:   cfg.Router,
		backend:  cfg.Backend,
		upgrader: websocket.Upgrader{
			// The widget is embedded on third-party pages; ownership checks
			// happen per frame via the identity token, not via origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler exposes the HTTP mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("websocket upgrade failed")
		return
	}
	client := NewClient(conn, s.backend.Publisher())
	wsLog := log.With().Str("component", "server").Str("client_id", client.ID).Str("remote", conn.RemoteAddr().String()).Logger()
	if err := client.startReader(s.baseCtx, s.backend); err != nil {
		wsLog.Error().Err(err).Msg("starting client reader failed")
		_ = conn.Close()
		return
	}
	wsLog.Info().Msg("client connected")

	defer func() {
		s.router.Disconnect(client)
		client.close()
		wsLog.Info().Msg("client disconnected")
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsLog.Debug().Err(err).Msg("ws read loop end")
			return
		}
		env, err := parseEnvelope(data)
		if err != nil {
			wsLog.Warn().Err(err).Msg("malformed envelope")
			client.Send(errorFrame("An error occurred."))
			continue
		}
		// Every frame is re-verified; no result is cached.
		ownerID, err := s.verifier.Verify(s.baseCtx, env.Token)
		if err != nil {
			wsLog.Warn().Err(err).Msg("token verification failed")
			client.Send(errorFrame("An error occurred."))
			continue
		}
		s.router.Handle(s.baseCtx, client, env.Message, ownerID)
	}
}

// Run serves until ctx is cancelled or an interrupt arrives, then shuts the
// HTTP server and stream backend down gracefully.
func (s *Server) Run(ctx context.Context) error {
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if err := s.backend.Close(); err != nil {
			log.Error().Err(err).Msg("stream backend close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting relay server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		srvCancel()
		return nil
	})

	return eg.Wait()
}
