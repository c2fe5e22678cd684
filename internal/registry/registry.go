// Package registry holds the resolver's orders in memory, keyed by order hash.
//
// The registry is the only shared mutable state in the resolver. Every read
// returns a clone and every write goes through Put or Update, so callers never
// hold a pointer into the map. An optional Store receives a copy of each write
// so non-terminal orders can be resumed after a restart.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// Store persists order records. *storage.Storage implements it.
type Store interface {
	SaveOrder(rec *swap.OrderRecord) error
	ListActiveOrders() ([]*swap.OrderRecord, error)
}

// Registry is a concurrency-safe map of order records.
type Registry struct {
	mu     sync.RWMutex
	orders map[order.Hash]*swap.OrderRecord

	store Store
	log   *logging.Logger
	now   func() time.Time

	// cleanup loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a registry. store may be nil for a memory-only registry.
func New(store Store) *Registry {
	return &Registry{
		orders: make(map[order.Hash]*swap.OrderRecord),
		store:  store,
		log:    logging.GetDefault().Component("registry"),
		now:    time.Now,
	}
}

// Load restores non-terminal orders from the store. Orders already in memory
// are left untouched. It returns the number of orders loaded.
func (r *Registry) Load(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	recs, err := r.store.ListActiveOrders()
	if err != nil {
		return 0, fmt.Errorf("failed to load orders: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, rec := range recs {
		if _, exists := r.orders[rec.OrderHash]; exists {
			continue
		}
		r.orders[rec.OrderHash] = rec.Clone()
		loaded++
	}
	if loaded > 0 {
		r.log.Info("Restored orders", "count", loaded)
	}
	return loaded, nil
}

// Put inserts a new record. It fails with swap.ErrOrderExists if the hash is
// already registered.
func (r *Registry) Put(rec *swap.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[rec.OrderHash]; exists {
		return fmt.Errorf("%w: %s", swap.ErrOrderExists, rec.OrderHash.Hex())
	}

	stored := rec.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.now()
	}
	r.orders[rec.OrderHash] = stored
	r.persist(stored)
	return nil
}

// Get returns a copy of the record for hash.
func (r *Registry) Get(hash order.Hash) (*swap.OrderRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.orders[hash]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Update applies fn to a copy of the record and commits it if fn succeeds and
// the status change is allowed. The read-modify-write is atomic with respect
// to every other registry operation. It returns a copy of the committed record.
func (r *Registry) Update(hash order.Hash, fn func(rec *swap.OrderRecord) error) (*swap.OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swap.ErrOrderNotFound, hash.Hex())
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.OrderHash != hash {
		return nil, fmt.Errorf("order hash is immutable: %s", hash.Hex())
	}
	if !current.Status.CanTransition(next.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", swap.ErrInvalidTransition, current.Status, next.Status)
	}

	next.UpdatedAt = r.now()
	r.orders[hash] = next
	r.persist(next)
	return next.Clone(), nil
}

// Snapshot returns copies of all records, oldest first.
func (r *Registry) Snapshot() []*swap.OrderRecord {
	r.mu.RLock()
	out := make([]*swap.OrderRecord, 0, len(r.orders))
	for _, rec := range r.orders {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sortByCreation(out)
	return out
}

// Range calls fn with a copy of each record until fn returns false.
func (r *Registry) Range(fn func(rec *swap.OrderRecord) bool) {
	for _, rec := range r.Snapshot() {
		if !fn(rec) {
			return
		}
	}
}

// ListByStatus returns copies of the records in status, oldest first.
func (r *Registry) ListByStatus(status swap.Status) []*swap.OrderRecord {
	r.mu.RLock()
	var out []*swap.OrderRecord
	for _, rec := range r.orders {
		if rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	r.mu.RUnlock()

	sortByCreation(out)
	return out
}

// Len returns the number of records in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// Prune removes terminal records last updated more than olderThan ago.
// Pruned records stay in the store. It returns the number removed.
func (r *Registry) Prune(olderThan time.Duration) int {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for hash, rec := range r.orders {
		if !rec.Status.IsTerminal() {
			continue
		}
		if rec.UpdatedAt.Before(cutoff) {
			delete(r.orders, hash)
			removed++
		}
	}
	return removed
}

// StartCleanup prunes terminal records every interval.
func (r *Registry) StartCleanup(interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	ctx := r.ctx
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Prune(retention); n > 0 {
					r.log.Debug("Pruned terminal orders", "count", n)
				}
			}
		}
	}()

	r.log.Info("Registry cleanup started", "interval", interval, "retention", retention)
}

// Stop stops the cleanup loop.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.log.Info("Registry cleanup stopped")
}

// persist writes rec through to the store. Store failures are logged; the
// in-memory record stays authoritative. Must be called with mu held.
func (r *Registry) persist(rec *swap.OrderRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveOrder(rec); err != nil {
		r.log.Error("Failed to persist order", "order_hash", rec.OrderHash.Hex(), "status", rec.Status, "error", err)
	}
}

func sortByCreation(recs []*swap.OrderRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].OrderHash.Hex() < recs[j].OrderHash.Hex()
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
