// internal/social/directory.go
package social

import (
	"context"
	"fmt"
	"sync"

	smath "github.com/ava-labs/avalanchego/utils/math"

	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// Directory is an in-memory implementation of every collaborator interface.
// It backs the scenario runner and the tests.
type Directory struct {
	mu       sync.RWMutex
	posts    map[types.AssetID]Post
	profiles map[types.AssetID]Profile
	blocks   map[types.Address]map[types.Address]struct{}
	treasury map[string]uint64
}

var (
	_ BlockList = (*Directory)(nil)
	_ Treasury  = (*Directory)(nil)
	_ Posts     = (*Directory)(nil)
	_ Profiles  = (*Directory)(nil)
)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		posts:    make(map[types.AssetID]Post),
		profiles: make(map[types.AssetID]Profile),
		blocks:   make(map[types.Address]map[types.Address]struct{}),
		treasury: make(map[string]uint64),
	}
}

// PutPost adds or replaces a post.
func (d *Directory) PutPost(p Post) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posts[p.ID] = p
}

// PutProfile adds or replaces a profile.
func (d *Directory) PutProfile(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

// Block records that blocker has blocked blocked.
func (d *Directory) Block(blocker, blocked types.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.blocks[blocker]
	if !ok {
		set = make(map[types.Address]struct{})
		d.blocks[blocker] = set
	}
	set[blocked] = struct{}{}
}

// Unblock removes a block entry.
func (d *Directory) Unblock(blocker, blocked types.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.blocks[blocker], blocked)
}

func (d *Directory) IsBlocked(_ context.Context, blocker, blocked types.Address) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.blocks[blocker][blocked]
	return ok, nil
}

// CanAddToTreasury fails when the deposit would overflow the treasury.
func (d *Directory) CanAddToTreasury(_ context.Context, platform string, value uint64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, err := smath.Add(d.treasury[platform], value); err != nil {
		return fmt.Errorf("treasury %s: %w", platform, err)
	}
	return nil
}

func (d *Directory) AddToTreasury(_ context.Context, platform string, coin *currency.Coin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sum, err := smath.Add(d.treasury[platform], coin.Value())
	if err != nil {
		return fmt.Errorf("treasury %s: %w", platform, err)
	}
	d.treasury[platform] = sum
	_ = coin.Take()
	return nil
}

// TreasuryBalance returns the fees collected for a platform.
func (d *Directory) TreasuryBalance(platform string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.treasury[platform]
}

func (d *Directory) Post(_ context.Context, id types.AssetID) (Post, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.posts[id]
	if !ok {
		return Post{}, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return p, nil
}

func (d *Directory) Profile(_ context.Context, id types.AssetID) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}
