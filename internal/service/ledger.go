package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"giftvault/server/pkg/config"
)

// Pool event types recorded in the ledger.
const (
	EventConsume   = "consume"
	EventOnDemand  = "on_demand"
	EventReplenish = "replenish"
)

// PoolEvent is one ledger entry describing a card movement.
type PoolEvent struct {
	Type   string    `json:"type"`
	Tier   string    `json:"tier"`
	CardID string    `json:"card_id,omitempty"`
	Size   int       `json:"size"`
	At     time.Time `json:"at"`
}

// EventLedger mirrors pool activity into Redis for external dashboards:
// a capped list keeps recent events, a pub/sub channel carries them live.
// The ledger is optional; a nil ledger silently drops everything so callers
// never branch on availability.
type EventLedger struct {
	rdb     *redis.Client
	list    string
	channel string
	maxLen  int64
}

// NewEventLedger creates a ledger over an established Redis client.
func NewEventLedger(rdb *redis.Client, cfg config.RedisConfig) *EventLedger {
	return &EventLedger{
		rdb:     rdb,
		list:    cfg.EventList,
		channel: cfg.EventChannel,
		maxLen:  int64(cfg.MaxEvents),
	}
}

// Record appends one event. Failures are logged and swallowed; the ledger
// is observability, never a correctness dependency.
func (l *EventLedger) Record(ctx context.Context, ev PoolEvent) {
	if l == nil || l.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("Ledger event encode failed")
		return
	}

	pipe := l.rdb.Pipeline()
	pipe.LPush(ctx, l.list, payload)
	pipe.LTrim(ctx, l.list, 0, l.maxLen-1)
	pipe.Publish(ctx, l.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Str("tier", ev.Tier).Msg("Ledger write failed")
	}
}

// Recent returns the newest events, most recent first.
func (l *EventLedger) Recent(ctx context.Context, n int64) ([]PoolEvent, error) {
	if l == nil || l.rdb == nil {
		return nil, nil
	}
	raw, err := l.rdb.LRange(ctx, l.list, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]PoolEvent, 0, len(raw))
	for _, item := range raw {
		var ev PoolEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
