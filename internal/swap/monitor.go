// Package swap - Secret reveal monitor that settles orders once the reveal
// delay has passed.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// Monitor defaults.
const (
	DefaultMonitorInterval = 30 * time.Second
	DefaultCheckTimeout    = 5 * time.Minute
)

var ErrNoAdapter = errors.New("no adapter for network")

// MonitorConfig holds configuration for the Monitor.
type MonitorConfig struct {
	Interval     time.Duration // tick interval, default 30s
	RevealDelay  time.Duration // minimum age of an escrows_created order before payout
	CheckTimeout time.Duration // bound on one tick, default 5m
}

// Monitor reveals the secret on the destination escrow, claims the source
// escrow, and completes the order. Payout errors leave the order in
// escrows_created for the next tick.
type Monitor struct {
	store    OrderStore
	adapters *adapter.Set
	events   *Emitter
	metrics  *swapMetrics
	log      *logging.Logger
	now      func() time.Time

	interval     time.Duration
	revealDelay  time.Duration
	checkTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	tickMu  sync.Mutex // serializes ticks from the loop and CheckNow
	running bool
}

// NewMonitor creates a secret reveal monitor. events may be nil.
func NewMonitor(store OrderStore, adapters *adapter.Set, cfg MonitorConfig, events *Emitter) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if events == nil {
		events = &Emitter{}
	}

	return &Monitor{
		store:        store,
		adapters:     adapters,
		events:       events,
		metrics:      metrics(),
		log:          logging.GetDefault().Component("reveal-monitor"),
		now:          time.Now,
		interval:     cfg.Interval,
		revealDelay:  cfg.RevealDelay,
		checkTimeout: cfg.CheckTimeout,
	}
}

// Start starts the monitor loop. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.run(ctx)
	m.log.Info("Reveal monitor started", "interval", m.interval, "reveal_delay", m.revealDelay)
}

// Stop stops the loop and waits for an in-flight tick to finish. In-flight
// chain calls are not cancelled.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("Reveal monitor stopped")
}

// run is the main monitoring loop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks run on a fresh context so Stop lets them finish.
			tickCtx, cancel := context.WithTimeout(context.Background(), m.checkTimeout)
			m.tick(tickCtx)
			cancel()
		}
	}
}

// CheckNow runs one tick synchronously and returns the number of orders
// completed.
func (m *Monitor) CheckNow(ctx context.Context) int {
	return m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) int {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.metrics.ticks.Inc()

	completed := 0
	now := m.now()
	for _, rec := range m.store.ListByStatus(StatusEscrowsCreated) {
		if ctx.Err() != nil {
			break
		}
		if now.Sub(rec.CreatedAt) <= m.revealDelay {
			continue
		}
		if err := m.settle(ctx, rec); err != nil {
			kind := swaperr.KindOf(err)
			if kind.Retryable() {
				m.log.Warn("Settlement step failed, will retry", "order_hash", rec.OrderHash.Hex(), "error", err)
			} else {
				m.log.Error("Settlement step failed", "order_hash", rec.OrderHash.Hex(), "kind", kind, "error", err)
			}
			continue
		}
		completed++
	}
	return completed
}

// settle pays out and completes one order. Each chain step is skipped if its
// reference is already recorded, so a failed step is retried alone.
func (m *Monitor) settle(ctx context.Context, rec *OrderRecord) error {
	log := m.log.With("order_hash", rec.OrderHash.Hex(), "mode", rec.Mode)

	if rec.Mode == ModeDegraded {
		// The destination transfer happened at creation.
		return m.complete(rec, rec.DstTxHash)
	}

	if rec.SecretCleared || rec.Secret.IsZero() {
		return fmt.Errorf("order %s has no secret", rec.OrderHash.Hex())
	}
	if !rec.HashLock.Matches(rec.Secret) {
		return fmt.Errorf("order %s secret does not match hash lock", rec.OrderHash.Hex())
	}

	if rec.PayoutTxHash == "" {
		dst, ok := m.adapters.Get(rec.ToNetwork)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoAdapter, rec.ToNetwork)
		}
		tx, err := dst.Withdraw(ctx, rec.DstEscrow, rec.Secret)
		if err != nil {
			m.metrics.payoutError.WithLabelValues(rec.ToNetwork, "payout").Inc()
			return fmt.Errorf("destination withdraw: %w", err)
		}
		updated, err := m.store.Update(rec.OrderHash, func(r *OrderRecord) error {
			r.PayoutTxHash = tx.String()
			return nil
		})
		if err != nil {
			return err
		}
		rec = updated
		log.Info("Destination escrow withdrawn", "network", rec.ToNetwork, "tx", tx)
		m.events.emit(EventOrderPayout, rec, map[string]interface{}{"payoutTxHash": tx.String()})
	}

	if rec.ClaimTxHash == "" {
		src, ok := m.adapters.Get(rec.FromNetwork)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoAdapter, rec.FromNetwork)
		}
		tx, err := src.Withdraw(ctx, rec.SrcEscrow, rec.Secret)
		if err != nil {
			m.metrics.payoutError.WithLabelValues(rec.FromNetwork, "claim").Inc()
			return fmt.Errorf("source withdraw: %w", err)
		}
		updated, err := m.store.Update(rec.OrderHash, func(r *OrderRecord) error {
			r.ClaimTxHash = tx.String()
			return nil
		})
		if err != nil {
			return err
		}
		rec = updated
		log.Info("Source escrow claimed", "network", rec.FromNetwork, "tx", tx)
	}

	return m.complete(rec, rec.PayoutTxHash)
}

// complete moves the order to completed and clears its secret.
func (m *Monitor) complete(rec *OrderRecord, payout string) error {
	final, err := m.store.Update(rec.OrderHash, func(r *OrderRecord) error {
		if err := r.SetStatus(StatusCompleted); err != nil {
			return err
		}
		r.PayoutTxHash = payout
		r.CompletedAt = m.now()
		r.ClearSecret()
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.statuses.WithLabelValues(string(StatusCompleted)).Inc()
	m.events.emit(EventOrderCompleted, final, map[string]interface{}{
		"payoutTxHash": final.PayoutTxHash,
		"claimTxHash":  final.ClaimTxHash,
		"completedAt":  final.CompletedAt.Unix(),
	})
	m.log.Info("Order completed", "order_hash", final.OrderHash.Hex(), "payout", final.PayoutTxHash)
	return nil
}
