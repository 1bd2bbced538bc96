package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"giftvault/server/internal/model"
)

// Expected schema:
//
//	CREATE TABLE cards (
//	    card_id     VARCHAR(64) PRIMARY KEY,
//	    tier        VARCHAR(32) NOT NULL,
//	    amount      VARCHAR(16) NOT NULL,
//	    claim_url   VARCHAR(512) NOT NULL,
//	    created_at  DATETIME NOT NULL,
//	    consumed_at DATETIME NULL
//	);

type taskKind int

const (
	taskInsert taskKind = iota
	taskConsume
)

type archiveTask struct {
	kind       taskKind
	tier       string
	card       model.Card
	cardID     string
	consumedAt time.Time
}

// CardArchive records every created card and its consumption in MySQL for
// accounting. Writes are asynchronous so the request path never waits on the
// database; the file snapshot stays the sole source of truth for pool
// contents.
type CardArchive struct {
	db     *sqlx.DB
	ch     chan archiveTask
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCardArchive creates an archive over an established connection.
func NewCardArchive(db *sqlx.DB) *CardArchive {
	ctx, cancel := context.WithCancel(context.Background())
	return &CardArchive{
		db:     db,
		ch:     make(chan archiveTask, 1000),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the async write worker.
func (a *CardArchive) Start() {
	a.wg.Add(1)
	go a.worker()
	log.Info().Msg("Card archive started")
}

// Stop drains queued writes and shuts the worker down.
func (a *CardArchive) Stop() {
	close(a.ch)
	a.wg.Wait()
	a.cancel()
	log.Info().Msg("Card archive stopped")
}

// CardCreated records a freshly created card. Safe on a nil archive.
func (a *CardArchive) CardCreated(tier string, card model.Card) {
	if a == nil {
		return
	}
	a.enqueue(archiveTask{kind: taskInsert, tier: tier, card: card})
}

// CardConsumed marks a card as handed out. Safe on a nil archive.
func (a *CardArchive) CardConsumed(cardID string) {
	if a == nil {
		return
	}
	a.enqueue(archiveTask{kind: taskConsume, cardID: cardID, consumedAt: time.Now().UTC()})
}

func (a *CardArchive) enqueue(task archiveTask) {
	select {
	case a.ch <- task:
	default:
		log.Warn().Str("card_id", task.cardID).Msg("Archive queue full, dropping task")
	}
}

func (a *CardArchive) worker() {
	defer a.wg.Done()
	for task := range a.ch {
		a.process(task)
	}
}

func (a *CardArchive) process(task archiveTask) {
	var err error
	switch task.kind {
	case taskInsert:
		_, err = a.db.ExecContext(a.ctx,
			`INSERT INTO cards (card_id, tier, amount, claim_url, created_at) VALUES (?, ?, ?, ?, ?)`,
			task.card.ID, task.tier, task.card.Amount, task.card.ClaimURL, task.card.CreatedAt)
	case taskConsume:
		_, err = a.db.ExecContext(a.ctx,
			`UPDATE cards SET consumed_at = ? WHERE card_id = ?`,
			task.consumedAt, task.cardID)
	}
	if err != nil {
		id := task.cardID
		if id == "" {
			id = task.card.ID
		}
		log.Warn().Err(err).Str("card_id", id).Msg("Archive write failed")
	}
}
