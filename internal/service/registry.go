package core

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"giftvault/server/internal/model"
	"giftvault/server/pkg/config"
)

var (
	// ErrTierNotConfigured is returned for pool identifiers outside the configured set.
	ErrTierNotConfigured = errors.New("tier is not configured")
	// ErrCardPoolEmpty is returned when a consume finds no ready card.
	ErrCardPoolEmpty = errors.New("card pool is empty")
)

// Registry is the process-wide owner of all card pools. The set of tiers is
// fixed at startup; contents change through TryConsume and Append only.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*CardQueue
	tiers  map[string]config.PoolConfig
	order  []string
	busy   map[string]bool // tiers with a replenishment run in flight

	// gen/flushedGen implement the dirty flag: state is dirty whenever a
	// mutation happened after the last acknowledged flush.
	gen        atomic.Int64
	flushedGen atomic.Int64

	consumed    atomic.Int64
	replenished atomic.Int64
	failed      atomic.Int64
}

// NewRegistry builds empty pools for every configured tier.
func NewRegistry(pools []config.PoolConfig) *Registry {
	r := &Registry{
		queues: make(map[string]*CardQueue, len(pools)),
		tiers:  make(map[string]config.PoolConfig, len(pools)),
		busy:   make(map[string]bool, len(pools)),
	}
	for _, p := range pools {
		r.queues[p.Tier] = NewCardQueue(p.Tier)
		r.tiers[p.Tier] = p
		r.order = append(r.order, p.Tier)
	}
	return r
}

// Tiers returns the configured pool identifiers in configuration order.
func (r *Registry) Tiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// TierConfig returns the configuration for one tier.
func (r *Registry) TierConfig(tier string) (config.PoolConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.tiers[tier]
	return cfg, ok
}

// TryConsume pops the oldest card from the tier's pool. It never blocks and
// never triggers creation; an empty pool yields ErrCardPoolEmpty.
func (r *Registry) TryConsume(tier string) (model.Card, error) {
	q, ok := r.queue(tier)
	if !ok {
		return model.Card{}, ErrTierNotConfigured
	}
	card, ok := q.Pop()
	if !ok {
		return model.Card{}, ErrCardPoolEmpty
	}
	r.consumed.Add(1)
	r.MarkDirty()
	return card, nil
}

// Append adds one card to the tail of the tier's pool. Duplicate card IDs
// are dropped without error.
func (r *Registry) Append(tier string, card model.Card) error {
	q, ok := r.queue(tier)
	if !ok {
		return ErrTierNotConfigured
	}
	if !q.Push(card) {
		log.Warn().Str("tier", tier).Str("card_id", card.ID).Msg("Duplicate card dropped")
		return nil
	}
	r.MarkDirty()
	return nil
}

// Size returns the current card count for a tier, 0 for unknown tiers.
func (r *Registry) Size(tier string) int {
	q, ok := r.queue(tier)
	if !ok {
		return 0
	}
	return q.Len()
}

// Deficit returns max(0, target - size) for a tier.
func (r *Registry) Deficit(tier string) int {
	cfg, ok := r.TierConfig(tier)
	if !ok {
		return 0
	}
	d := cfg.Target - r.Size(tier)
	if d < 0 {
		return 0
	}
	return d
}

// Clear empties one tier's pool.
func (r *Registry) Clear(tier string) error {
	q, ok := r.queue(tier)
	if !ok {
		return ErrTierNotConfigured
	}
	q.Clear()
	r.MarkDirty()
	return nil
}

// TryLockReplenish claims the per-tier replenishment flag. A second claim
// while one run is in flight returns false; callers treat that as a no-op,
// not a queued retry.
func (r *Registry) TryLockReplenish(tier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiers[tier]; !ok {
		return false
	}
	if r.busy[tier] {
		return false
	}
	r.busy[tier] = true
	return true
}

// UnlockReplenish releases the per-tier replenishment flag.
func (r *Registry) UnlockReplenish(tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy[tier] = false
}

// Replenishing reports whether a replenishment run owns the tier.
func (r *Registry) Replenishing(tier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy[tier]
}

// MarkDirty records that in-memory state diverged from the last snapshot.
func (r *Registry) MarkDirty() {
	r.gen.Add(1)
}

// Dirty reports whether a flush is needed.
func (r *Registry) Dirty() bool {
	return r.gen.Load() != r.flushedGen.Load()
}

// Generation returns the current mutation generation. A flusher captures it
// before snapshotting and acknowledges it afterward, so mutations that land
// mid-flush keep the state dirty.
func (r *Registry) Generation() int64 {
	return r.gen.Load()
}

// AckFlushed marks everything up to gen as persisted.
func (r *Registry) AckFlushed(gen int64) {
	for {
		cur := r.flushedGen.Load()
		if gen <= cur || r.flushedGen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// Snapshot copies the full registry contents for persistence.
func (r *Registry) Snapshot() model.PoolSnapshot {
	snap := make(model.PoolSnapshot, len(r.order))
	for _, tier := range r.Tiers() {
		q, _ := r.queue(tier)
		snap[tier] = q.Items()
	}
	return snap
}

// Restore hydrates pools from a persisted snapshot. Tiers absent from the
// snapshot stay empty; tiers absent from the configuration are ignored.
// The restored state matches disk, so the registry stays clean.
func (r *Registry) Restore(snap model.PoolSnapshot) {
	for _, tier := range r.Tiers() {
		cards, ok := snap[tier]
		if !ok {
			continue
		}
		q, _ := r.queue(tier)
		q.PushAll(cards)
	}
}

// UpdatePools applies new target/min/amount values to already configured
// tiers. Tiers cannot be added or removed at runtime.
func (r *Registry) UpdatePools(pools []config.PoolConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pools {
		if _, ok := r.tiers[p.Tier]; ok {
			r.tiers[p.Tier] = p
		}
	}
}

// IncReplenished bumps the replenished-cards counter.
func (r *Registry) IncReplenished() { r.replenished.Add(1) }

// IncFailed bumps the failed-creation counter.
func (r *Registry) IncFailed() { r.failed.Add(1) }

// Counters returns the aggregate consumed/replenished/failed counts.
// They exist for observability only and play no part in correctness.
func (r *Registry) Counters() (consumed, replenished, failed int64) {
	return r.consumed.Load(), r.replenished.Load(), r.failed.Load()
}

// Stats assembles per-tier statistics for the inspect endpoints.
func (r *Registry) Stats(withCards bool) []model.TierStats {
	tiers := r.Tiers()
	out := make([]model.TierStats, 0, len(tiers))
	for _, tier := range tiers {
		cfg, _ := r.TierConfig(tier)
		st := model.TierStats{
			Tier:         tier,
			Size:         r.Size(tier),
			Target:       cfg.Target,
			Min:          cfg.Min,
			Deficit:      r.Deficit(tier),
			Replenishing: r.Replenishing(tier),
		}
		if withCards {
			q, _ := r.queue(tier)
			st.Cards = q.Items()
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) queue(tier string) (*CardQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[tier]
	return q, ok
}
