// Package service implements the business logic composing the stores,
// the transition catalog and the reference facade.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/domain/user"
	"github.com/tracklane/trackd/internal/port/cache"
	"github.com/tracklane/trackd/internal/port/database"
)

// Catalog serves the transition lookup backed by a lazy, read-mostly
// cache. Entries are built on first use and never invalidated;
// transitions are rarely-changing configuration and a process restart
// picks up new rows.
type Catalog struct {
	store database.TransitionStore
	cache cache.Cache
	ttl   time.Duration
}

// NewCatalog creates a Catalog. A zero ttl caches without expiry.
func NewCatalog(store database.TransitionStore, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{store: store, cache: c, ttl: ttl}
}

func catalogKey(role user.Role, initialState uuid.UUID) string {
	return fmt.Sprintf("transitions:%s:%s", role, initialState)
}

// TransitionsFor returns all transitions a role may execute from the
// given state. An empty slice is a valid, cacheable answer.
func (c *Catalog) TransitionsFor(ctx context.Context, role user.Role, initialState uuid.UUID) ([]task.Transition, error) {
	key := catalogKey(role, initialState)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var transitions []task.Transition
		if err := json.Unmarshal(data, &transitions); err == nil {
			return transitions, nil
		}
	}

	transitions, err := c.store.ListTransitions(ctx, role, initialState)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if data, err := json.Marshal(transitions); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return transitions, nil
}

// Transition resolves one (role, initial, final) move from the catalog.
func (c *Catalog) Transition(ctx context.Context, role user.Role, initialState, finalState uuid.UUID) (*task.Transition, error) {
	transitions, err := c.TransitionsFor(ctx, role, initialState)
	if err != nil {
		return nil, err
	}
	for _, tr := range transitions {
		if tr.FinalState == finalState {
			return &tr, nil
		}
	}
	return nil, fmt.Errorf("transition %s -> %s for %s: %w", initialState, finalState, role, domain.ErrNotFound)
}
