// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/launchpad/internal/reservation"
	"github.com/rovshanmuradov/launchpad/internal/tokenpool"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var (
	ErrTokenExists         = errors.New("token already exists for asset")
	ErrTokenNotFound       = errors.New("token not found")
	ErrReservationExists   = errors.New("reservation pool already exists for asset")
	ErrReservationNotFound = errors.New("reservation pool not found")
)

// Registry maps asset ids to launched tokens and reservation pools. An asset
// id is registered as a token at most once; launched reservation pools stay
// in the registry for lookups.
//
// Registry is not safe for concurrent use. The engine serializes access.
type Registry struct {
	tokens       map[types.AssetID]*tokenpool.Pool
	reservations map[types.AssetID]*reservation.Pool
	launchOrder  []types.AssetID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tokens:       make(map[types.AssetID]*tokenpool.Pool),
		reservations: make(map[types.AssetID]*reservation.Pool),
	}
}

// HasToken reports whether a token was ever launched for the asset.
func (r *Registry) HasToken(id types.AssetID) bool {
	_, ok := r.tokens[id]
	return ok
}

// Token returns the token pool of an asset.
func (r *Registry) Token(id types.AssetID) (*tokenpool.Pool, error) {
	p, ok := r.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	return p, nil
}

// RegisterToken adds a launched token.
func (r *Registry) RegisterToken(p *tokenpool.Pool) error {
	id := p.Info().Asset.ID
	if _, ok := r.tokens[id]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, id)
	}
	r.tokens[id] = p
	r.launchOrder = append(r.launchOrder, id)
	return nil
}

// Reservation returns the reservation pool of an asset.
func (r *Registry) Reservation(id types.AssetID) (*reservation.Pool, error) {
	p, ok := r.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	return p, nil
}

// RegisterReservation adds a reservation pool.
func (r *Registry) RegisterReservation(p *reservation.Pool) error {
	id := p.Asset().ID
	if _, ok := r.reservations[id]; ok {
		return fmt.Errorf("%w: %s", ErrReservationExists, id)
	}
	r.reservations[id] = p
	return nil
}

// Tokens returns views of every token in launch order.
func (r *Registry) Tokens() []tokenpool.View {
	out := make([]tokenpool.View, 0, len(r.launchOrder))
	for _, id := range r.launchOrder {
		out = append(out, r.tokens[id].View())
	}
	return out
}

// Stats summarises the registry.
type Stats struct {
	Tokens       int `json:"tokens"`
	Reservations int `json:"reservations"`
	Launched     int `json:"launched_reservations"`
}

// Stats counts tokens and reservation pools.
func (r *Registry) Stats() Stats {
	s := Stats{Tokens: len(r.tokens), Reservations: len(r.reservations)}
	for _, p := range r.reservations {
		if p.Launched() {
			s.Launched++
		}
	}
	return s
}
