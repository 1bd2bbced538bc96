package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"giftvault/server/internal/model"
	"giftvault/server/pkg/config"
)

func newTestReplenisher(t *testing.T, reg *Registry, creator CardCreator) (*Replenisher, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "cards.json"))
	cfg := config.ReplenishConfig{MaxRetries: 3, BackoffBaseMs: 1, PaceMs: 0}
	return NewReplenisher(reg, store, creator, cfg), store
}

// sequenceCreator hands out uniquely numbered cards and fails the attempt
// numbers listed in failAttempts.
type sequenceCreator struct {
	attempts     atomic.Int64
	failAttempts map[int64]bool
}

func (s *sequenceCreator) Create(ctx context.Context, amount string) (model.Card, error) {
	n := s.attempts.Add(1)
	if s.failAttempts[n] {
		return model.Card{}, NewCreationError(CreationFailed, "purchase", errors.New("store rejected order"))
	}
	return model.Card{
		ID:        fmt.Sprintf("seq-%d", n),
		ClaimURL:  fmt.Sprintf("https://cards.example.com/claim/seq-%d", n),
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func TestRun_FillsDeficit(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, store := newTestReplenisher(t, reg, &sequenceCreator{})

	res, err := repl.Run(context.Background(), "25")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Created != 3 || res.Failed != 0 || res.FinalSize != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if reg.Size("25") != 3 {
		t.Fatalf("expected pool at target, got %d", reg.Size("25"))
	}

	// every created card was flushed to disk along the way
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snap["25"]) != 3 {
		t.Fatalf("expected 3 persisted cards, got %d", len(snap["25"]))
	}
}

func TestRun_NoDeficitIsNoOp(t *testing.T) {
	reg := NewRegistry(testPools())
	creator := &sequenceCreator{}
	repl, _ := newTestReplenisher(t, reg, creator)

	reg.Append("25", card("c1"))
	reg.Append("25", card("c2"))
	reg.Append("25", card("c3"))

	res, err := repl.Run(context.Background(), "25")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Created != 0 || creator.attempts.Load() != 0 {
		t.Fatalf("full pool must not trigger creations: %+v", res)
	}
}

func TestRun_UnknownTier(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	if _, err := repl.Run(context.Background(), "99"); !errors.Is(err, ErrTierNotConfigured) {
		t.Fatalf("expected ErrTierNotConfigured, got %v", err)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	reg := NewRegistry(testPools())
	// first two attempts fail, third succeeds; budget is three attempts
	creator := &sequenceCreator{failAttempts: map[int64]bool{1: true, 2: true}}
	repl, _ := newTestReplenisher(t, reg, creator)

	res, err := repl.Run(context.Background(), "50")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Created != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := creator.attempts.Load(); got != 4 {
		t.Fatalf("expected 4 attempts (2 failures + 2 cards), got %d", got)
	}
}

func TestRun_PartialFailureKeepsGoing(t *testing.T) {
	reg := NewRegistry(testPools())
	// the second card burns its whole three-attempt budget
	creator := &sequenceCreator{failAttempts: map[int64]bool{2: true, 3: true, 4: true}}
	repl, _ := newTestReplenisher(t, reg, creator)

	res, err := repl.Run(context.Background(), "25")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Created != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 created and 1 failed, got %+v", res)
	}
	if res.FinalSize != 2 {
		t.Fatalf("expected partial fill of 2, got %d", res.FinalSize)
	}

	_, _, failed := reg.Counters()
	if failed != 1 {
		t.Fatalf("expected failed counter 1, got %d", failed)
	}
}

func TestRun_SkippedWhenTierBusy(t *testing.T) {
	reg := NewRegistry(testPools())
	creator := &sequenceCreator{}
	repl, _ := newTestReplenisher(t, reg, creator)

	reg.TryLockReplenish("25")
	defer reg.UnlockReplenish("25")

	res, err := repl.Run(context.Background(), "25")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Skipped {
		t.Fatal("run against a busy tier should be skipped")
	}
	if creator.attempts.Load() != 0 {
		t.Fatal("skipped run must not create cards")
	}
}

func TestRun_CancelledContextStopsEarly(t *testing.T) {
	reg := NewRegistry(testPools())
	creator := &sequenceCreator{}
	repl, _ := newTestReplenisher(t, reg, creator)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := repl.Run(ctx, "25")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Created >= 3 {
		t.Fatalf("cancelled run should stop before filling the deficit, created %d", res.Created)
	}
}

func TestRunAll_CoversEveryTier(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	results := repl.RunAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if reg.Size("25") != 3 || reg.Size("50") != 2 {
		t.Fatalf("pools not filled: 25=%d 50=%d", reg.Size("25"), reg.Size("50"))
	}
}

func TestAddOne(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	size, err := repl.AddOne(context.Background(), "50")
	if err != nil {
		t.Fatalf("add one failed: %v", err)
	}
	if size != 1 || reg.Size("50") != 1 {
		t.Fatalf("expected size 1, got %d", size)
	}
}

func TestAddOne_AtTarget(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	reg.Append("50", card("c1"))
	reg.Append("50", card("c2"))

	if _, err := repl.AddOne(context.Background(), "50"); !errors.Is(err, ErrAlreadyFull) {
		t.Fatalf("expected ErrAlreadyFull, got %v", err)
	}
}

func TestCreateDirect_DoesNotTouchPool(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	got, err := repl.CreateDirect(context.Background(), "25")
	if err != nil {
		t.Fatalf("create direct failed: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected a card")
	}
	if reg.Size("25") != 0 {
		t.Fatal("on-demand card must not land in the pool")
	}
}

func TestCreateDirect_SurfacesCreatorError(t *testing.T) {
	reg := NewRegistry(testPools())
	creator := &sequenceCreator{failAttempts: map[int64]bool{1: true, 2: true, 3: true}}
	repl, _ := newTestReplenisher(t, reg, creator)

	_, err := repl.CreateDirect(context.Background(), "25")
	if err == nil {
		t.Fatal("expected creation error")
	}
	if _, ok := AsCreationError(err); !ok {
		t.Fatalf("expected a CreationError, got %v", err)
	}
	if got := creator.attempts.Load(); got != 3 {
		t.Fatalf("expected the full 3-attempt budget, got %d", got)
	}
}

func TestOnCreated_FiresForPoolRefills(t *testing.T) {
	reg := NewRegistry(testPools())
	repl, _ := newTestReplenisher(t, reg, &sequenceCreator{})

	var fired atomic.Int64
	repl.OnCreated(func(tier string, c model.Card) {
		if tier != "50" || c.ID == "" {
			t.Errorf("unexpected hook call: tier=%s card=%+v", tier, c)
		}
		fired.Add(1)
	})

	if _, err := repl.Run(context.Background(), "50"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if fired.Load() != 2 {
		t.Fatalf("expected 2 hook calls, got %d", fired.Load())
	}
}
