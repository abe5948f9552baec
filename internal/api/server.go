// Package api serves read-only engine state over HTTP and streams committed
// events over a websocket.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/engine"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Reader is the query surface of the engine.
type Reader interface {
	TokenInfo(id types.AssetID) (tokenpool.View, error)
	Tokens() []tokenpool.View
	ReservationPool(id types.AssetID) (reservation.View, error)
	Holding(id types.AssetID, addr types.Address) (tokenpool.Certificate, error)
	Holders(id types.AssetID) ([]tokenpool.Certificate, error)
	Quote(id types.AssetID, side types.Side, amount uint64) (engine.Quote, error)
	ConfigSnapshot() exchange.Snapshot
	Stats() registry.Stats
}

var _ Reader = (*engine.Engine)(nil)

// Config holds the HTTP server settings.
type Config struct {
	Listen            string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the HTTP front of a running engine.
type Server struct {
	cfg    Config
	engine Reader
	store  storage.Storage
	stream *Stream
	logger *zap.Logger
	srv    *http.Server
}

// New builds the router. store and stream are optional; their routes answer
// 503 when absent.
func New(cfg Config, eng Reader, store storage.Storage, stream *Stream, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		store:  store,
		stream: stream,
		logger: logger.Named("api"),
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.routes())

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/config", s.config).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	v1.HandleFunc("/tokens", s.tokens).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}", s.token).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}/holders", s.holders).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}/holders/{address}", s.holding).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{asset}/quote", s.quote).Methods(http.MethodGet)
	v1.HandleFunc("/reservations/{asset}", s.reservation).Methods(http.MethodGet)
	v1.HandleFunc("/trades", s.trades).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.events).Methods(http.MethodGet)
	return r
}

// Handler exposes the full handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("API listening", zap.String("addr", l.Addr().String()))
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds cfg.Listen and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops the server, closing open event streams first.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	err := s.srv.Shutdown(ctx)
	// If shutdown times out, make sure the server is still closed.
	_ = s.srv.Close()
	return err
}
