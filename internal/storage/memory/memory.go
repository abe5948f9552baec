// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
)

// Storage keeps indexed rows in process memory. It backs the simulator and
// runs with storage disabled.
type Storage struct {
	mu       sync.RWMutex
	nextID   uint
	events   []*models.EventRecord
	byID     map[string]*models.EventRecord
	trades   []*models.TradeRecord
	launches map[string]*models.LaunchRecord
}

var _ storage.Storage = (*Storage)(nil)

// New returns an empty store.
func New() *Storage {
	return &Storage{
		byID:     make(map[string]*models.EventRecord),
		launches: make(map[string]*models.LaunchRecord),
	}
}

func (s *Storage) SaveBatch(ctx context.Context, b storage.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Event == nil {
		return fmt.Errorf("batch without event record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[b.Event.EventID]; ok {
		return nil
	}
	if b.Launch != nil {
		if _, ok := s.launches[b.Launch.Asset]; ok {
			return fmt.Errorf("save launch: duplicate asset %s", b.Launch.Asset)
		}
	}

	ev := *b.Event
	ev.ID = s.id()
	s.events = append(s.events, &ev)
	s.byID[ev.EventID] = &ev

	if b.Trade != nil {
		tr := *b.Trade
		tr.ID = s.id()
		s.trades = append(s.trades, &tr)
	}
	if b.Launch != nil {
		l := *b.Launch
		l.ID = s.id()
		s.launches[l.Asset] = &l
	}
	return nil
}

func (s *Storage) GetEvent(_ context.Context, eventID string) (*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Storage) ListEvents(_ context.Context, asset string, limit, offset int) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, rec := range s.events {
		if asset != "" && rec.Asset != asset {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return page(out, limit, offset), nil
}

func (s *Storage) ListTrades(_ context.Context, f storage.TradeFilter) ([]*models.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TradeRecord
	for _, rec := range s.trades {
		if !f.Match(rec) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (s *Storage) GetLaunch(_ context.Context, asset string) (*models.LaunchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.launches[asset]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Storage) RunMigrations() error { return nil }

func (s *Storage) Close() error { return nil }

func (s *Storage) id() uint {
	s.nextID++
	return s.nextID
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
