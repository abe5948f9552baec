package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/engine"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("not available on this server")
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, types.ErrUnknownSide):
		status = http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrTokenNotFound),
		errors.Is(err, registry.ErrReservationNotFound),
		errors.Is(err, tokenpool.ErrNoHolding),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	default:
		kind := engine.Classify(err)
		if kind == engine.KindInvariant {
			status = http.StatusUnprocessableEntity
		}
		if kind != engine.KindUnknown {
			body.Kind = kind.String()
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, body)
}

func assetParam(r *http.Request) types.AssetID {
	return types.AssetID(mux.Vars(r)["asset"])
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) config(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ConfigSnapshot())
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) tokens(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Tokens())
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.TokenInfo(assetParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) holders(w http.ResponseWriter, r *http.Request) {
	certs, err := s.engine.Holders(assetParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, certs)
}

func (s *Server) holding(w http.ResponseWriter, r *http.Request) {
	cert, err := s.engine.Holding(assetParam(r), types.Address(mux.Vars(r)["address"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cert)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side, err := types.ParseSide(q.Get("side"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: amount: %v", errBadRequest, err))
		return
	}

	quote, err := s.engine.Quote(assetParam(r), side, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) reservation(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.ReservationPool(assetParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) trades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, fmt.Errorf("trade history: %w", errUnavailable))
		return
	}
	filter, err := tradeFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	trades, err := s.store.ListTrades(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func tradeFilter(r *http.Request) (storage.TradeFilter, error) {
	q := r.URL.Query()
	f := storage.TradeFilter{
		Asset:  q.Get("asset"),
		Trader: q.Get("trader"),
		Limit:  defaultPageSize,
	}

	if raw := q.Get("side"); raw != "" {
		side, err := types.ParseSide(raw)
		if err != nil {
			return f, err
		}
		f.Side = string(side)
	}

	var err error
	if f.From, err = timeParam(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = timeParam(q.Get("to")); err != nil {
		return f, err
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("%w: limit %q", errBadRequest, raw)
		}
		f.Limit = min(n, maxPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: offset %q", errBadRequest, raw)
		}
		f.Offset = n
	}
	return f, nil
}

func timeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", errBadRequest, raw)
	}
	return t, nil
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.writeError(w, fmt.Errorf("event stream: %w", errUnavailable))
		return
	}
	s.stream.ServeHTTP(w, r)
}
