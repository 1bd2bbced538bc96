package core

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"giftvault/server/internal/model"
)

// seenCacheSize bounds the per-queue memory spent remembering card IDs.
const seenCacheSize = 4096

// CardQueue is a thread-safe FIFO queue of ready gift cards for one tier.
// Card IDs are deduplicated so a retried creation that returns the same
// card twice never double-fills the pool.
type CardQueue struct {
	mu    sync.Mutex
	cards []model.Card
	tier  string
	seen  *lru.Cache[string, struct{}]
}

// NewCardQueue creates an empty queue for the given tier.
func NewCardQueue(tier string) *CardQueue {
	seen, _ := lru.New[string, struct{}](seenCacheSize)
	return &CardQueue{
		cards: make([]model.Card, 0, 16),
		tier:  tier,
		seen:  seen,
	}
}

// Pop removes and returns the oldest card.
func (q *CardQueue) Pop() (model.Card, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.cards) == 0 {
		return model.Card{}, false
	}

	card := q.cards[0]
	q.cards = q.cards[1:]
	return card, true
}

// Push appends one card. Cards whose ID was seen before are skipped.
func (q *CardQueue) Push(card model.Card) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if card.ID != "" {
		if _, dup := q.seen.Get(card.ID); dup {
			return false
		}
		q.seen.Add(card.ID, struct{}{})
	}
	q.cards = append(q.cards, card)
	return true
}

// PushAll appends cards in order, returning how many were accepted.
func (q *CardQueue) PushAll(cards []model.Card) int {
	added := 0
	for _, c := range cards {
		if q.Push(c) {
			added++
		}
	}
	return added
}

// Len returns the current number of cards.
func (q *CardQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cards)
}

// Items returns a copy of the queued cards in FIFO order.
func (q *CardQueue) Items() []model.Card {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.Card, len(q.cards))
	copy(out, q.cards)
	return out
}

// Clear drops all cards and forgets seen IDs.
func (q *CardQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cards = q.cards[:0]
	q.seen.Purge()
}

// Tier returns the pool identifier this queue belongs to.
func (q *CardQueue) Tier() string {
	return q.tier
}
