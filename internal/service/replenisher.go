package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"giftvault/server/internal/model"
	"giftvault/server/pkg/config"
)

// ErrAlreadyFull is returned by AddOne when the pool sits at its target.
var ErrAlreadyFull = errors.New("pool is already at target size")

// RunResult summarizes one replenishment run.
type RunResult struct {
	Tier      string `json:"tier"`
	Created   int    `json:"created"`
	Failed    int    `json:"failed"`
	FinalSize int    `json:"final_size"`
	// Skipped means another run already owned the tier;
	// that is an informational no-op, not an error.
	Skipped bool `json:"skipped"`
}

// Replenisher closes the deficit of one pool at a time, serialized per tier.
// Creations run sequentially to bound load on the external creator, each with
// a bounded retry budget; a partially filled pool is preferred over an empty
// one, so exhausted retries skip the card and the run continues.
type Replenisher struct {
	reg     *Registry
	store   *FileStore
	creator CardCreator

	maxRetries  int
	backoffBase time.Duration
	pace        time.Duration

	// onCreated fires for every card added to a pool. Wired to the event
	// ledger and card archive.
	onCreated func(tier string, card model.Card)
}

// NewReplenisher wires the replenisher to its collaborators.
func NewReplenisher(reg *Registry, store *FileStore, creator CardCreator, cfg config.ReplenishConfig) *Replenisher {
	return &Replenisher{
		reg:         reg,
		store:       store,
		creator:     creator,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase(),
		pace:        cfg.Pace(),
	}
}

// OnCreated registers a hook invoked after each successful creation.
func (r *Replenisher) OnCreated(fn func(tier string, card model.Card)) {
	r.onCreated = fn
}

// Run brings one tier up to its target size. If another run already owns the
// tier it returns immediately with Skipped set.
func (r *Replenisher) Run(ctx context.Context, tier string) (RunResult, error) {
	cfg, ok := r.reg.TierConfig(tier)
	if !ok {
		return RunResult{}, ErrTierNotConfigured
	}

	if !r.reg.TryLockReplenish(tier) {
		log.Info().Str("tier", tier).Msg("Replenishment already running, skipping")
		return RunResult{Tier: tier, FinalSize: r.reg.Size(tier), Skipped: true}, nil
	}
	defer r.reg.UnlockReplenish(tier)

	res := RunResult{Tier: tier}
	deficit := r.reg.Deficit(tier)
	if deficit <= 0 {
		res.FinalSize = r.reg.Size(tier)
		return res, nil
	}

	log.Info().Str("tier", tier).Int("deficit", deficit).Msg("Replenishment run started")

	for i := 0; i < deficit; i++ {
		card, err := r.createWithRetry(ctx, cfg.Amount)
		if err != nil {
			r.reg.IncFailed()
			res.Failed++
			log.Error().Err(err).Str("tier", tier).Int("slot", i+1).Int("deficit", deficit).
				Msg("Card creation abandoned after retries")
		} else {
			if err := r.reg.Append(tier, card); err != nil {
				log.Error().Err(err).Str("tier", tier).Msg("Append failed")
			} else {
				r.reg.IncReplenished()
				res.Created++
				// Flush per card so a crash loses at most the in-flight one.
				if err := FlushRegistry(r.reg, r.store); err != nil {
					log.Error().Err(err).Msg("Snapshot flush failed, will retry on sync tick")
				}
				if r.onCreated != nil {
					r.onCreated(tier, card)
				}
			}
		}

		if ctx.Err() != nil {
			log.Warn().Str("tier", tier).Msg("Replenishment run cancelled")
			break
		}
		if i < deficit-1 && r.pace > 0 {
			select {
			case <-time.After(r.pace):
			case <-ctx.Done():
			}
		}
	}

	res.FinalSize = r.reg.Size(tier)
	log.Info().Str("tier", tier).Int("created", res.Created).Int("failed", res.Failed).
		Int("size", res.FinalSize).Msg("Replenishment run finished")
	return res, nil
}

// RunAll replenishes every configured tier sequentially.
func (r *Replenisher) RunAll(ctx context.Context) []RunResult {
	results := make([]RunResult, 0, len(r.reg.Tiers()))
	for _, tier := range r.reg.Tiers() {
		res, err := r.Run(ctx, tier)
		if err != nil {
			log.Error().Err(err).Str("tier", tier).Msg("Replenishment run errored")
			continue
		}
		results = append(results, res)
	}
	return results
}

// AddOne creates exactly one card and appends it, unless the pool is already
// at target. Returns the new pool size.
func (r *Replenisher) AddOne(ctx context.Context, tier string) (int, error) {
	cfg, ok := r.reg.TierConfig(tier)
	if !ok {
		return 0, ErrTierNotConfigured
	}
	if r.reg.Deficit(tier) <= 0 {
		return r.reg.Size(tier), ErrAlreadyFull
	}

	card, err := r.createWithRetry(ctx, cfg.Amount)
	if err != nil {
		return r.reg.Size(tier), err
	}
	if err := r.reg.Append(tier, card); err != nil {
		return r.reg.Size(tier), err
	}
	r.reg.IncReplenished()
	if err := FlushRegistry(r.reg, r.store); err != nil {
		log.Error().Err(err).Msg("Snapshot flush failed, will retry on sync tick")
	}
	if r.onCreated != nil {
		r.onCreated(tier, card)
	}
	return r.reg.Size(tier), nil
}

// CreateDirect creates one card for the tier and hands it straight to the
// caller without touching the pool. This is the on-demand fallback for a
// consume that found the pool empty.
func (r *Replenisher) CreateDirect(ctx context.Context, tier string) (model.Card, error) {
	cfg, ok := r.reg.TierConfig(tier)
	if !ok {
		return model.Card{}, ErrTierNotConfigured
	}
	card, err := r.createWithRetry(ctx, cfg.Amount)
	if err != nil {
		return model.Card{}, err
	}
	return card, nil
}

// createWithRetry invokes the creator with exponential backoff between
// attempts. Each attempt carries its own timeout inside the creator.
func (r *Replenisher) createWithRetry(ctx context.Context, amount string) (model.Card, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var card model.Card
	attempt := 0
	op := func() error {
		attempt++
		c, err := r.creator.Create(ctx, amount)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Int("max", r.maxRetries).
				Str("amount", amount).Msg("Card creation attempt failed")
			return err
		}
		card = c
		return nil
	}

	retries := uint64(r.maxRetries - 1)
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		return model.Card{}, err
	}
	return card, nil
}
