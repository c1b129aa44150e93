package main

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Usage Accumulator
// ============================================================================

const (
	MsgUsageFlushFail = "Flush failed for emoji %s user %s: %v"
	MsgUsageWarmFail  = "Bulk usage load failed for user %s: %v"

	// UsageFlushWindow is how long bursts of "used" events coalesce before
	// a single durable upsert.
	UsageFlushWindow = 5 * time.Second
)

// UsageStore is the durable counter seam. EmojiDB implements it.
type UsageStore interface {
	UpsertUsage(ctx context.Context, emojiID, userID snowflake.ID, delta int) (int, error)
	FetchUserUsages(ctx context.Context, userID snowflake.ID) ([]UsageRow, error)
	EnsureUser(ctx context.Context, userID snowflake.ID) error
}

// emojiUsage holds all in-flight counters for a single emoji. Its lock
// keeps a flush's read-and-clear from racing a concurrent increment.
type emojiUsage struct {
	mu      sync.Mutex
	pending map[snowflake.ID]int
	timers  map[snowflake.ID]*time.Timer
	totals  map[snowflake.ID]int
	dead    bool
}

// UsageAccumulator coalesces per-(emoji, user) usage events: the first
// increment after a completed flush arms a timer, later increments within
// the window merge into the same pending delta. Increments are
// fire-and-forget; a crash loses at most one window.
type UsageAccumulator struct {
	store  UsageStore
	window time.Duration

	mu     sync.Mutex
	emojis map[snowflake.ID]*emojiUsage

	warmMu sync.Mutex
	warmed map[snowflake.ID]struct{}
}

func NewUsageAccumulator(store UsageStore) *UsageAccumulator {
	return &UsageAccumulator{
		store:  store,
		window: UsageFlushWindow,
		emojis: make(map[snowflake.ID]*emojiUsage),
		warmed: make(map[snowflake.ID]struct{}),
	}
}

func (a *UsageAccumulator) entry(emojiID snowflake.ID) *emojiUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.emojis[emojiID]
	if !ok {
		e = &emojiUsage{
			pending: make(map[snowflake.ID]int),
			timers:  make(map[snowflake.ID]*time.Timer),
			totals:  make(map[snowflake.ID]int),
		}
		a.emojis[emojiID] = e
	}
	return e
}

// Record notes that userID used emojiID, weighted. The durable write
// happens one flush window later.
func (a *UsageAccumulator) Record(emojiID, userID snowflake.ID, weight int) {
	if weight <= 0 {
		weight = 1
	}

	e := a.entry(emojiID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return
	}

	e.pending[userID] += weight
	if _, armed := e.timers[userID]; !armed {
		e.timers[userID] = time.AfterFunc(a.window, func() {
			a.flush(emojiID, userID)
		})
	}
}

func (a *UsageAccumulator) flush(emojiID, userID snowflake.ID) {
	e := a.entry(emojiID)

	e.mu.Lock()
	delta := e.pending[userID]
	delete(e.pending, userID)
	delete(e.timers, userID)
	dead := e.dead
	e.mu.Unlock()

	if dead || delta == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.EnsureUser(ctx, userID); err != nil {
		LogUsage(MsgUsageFlushFail, emojiID, userID, err)
		return
	}
	amount, err := a.store.UpsertUsage(ctx, emojiID, userID, delta)
	if err != nil {
		LogUsage(MsgUsageFlushFail, emojiID, userID, err)
		return
	}

	e.mu.Lock()
	if !e.dead {
		e.totals[userID] = amount
	}
	e.mu.Unlock()
}

// Total returns the cached cumulative count for (emojiID, userID).
func (a *UsageAccumulator) Total(emojiID, userID snowflake.ID) int {
	e := a.entry(emojiID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totals[userID]
}

// FetchTotal eagerly reads the durable counter (a zero-delta upsert) and
// caches the authoritative amount.
func (a *UsageAccumulator) FetchTotal(ctx context.Context, emojiID, userID snowflake.ID) (int, error) {
	if err := a.store.EnsureUser(ctx, userID); err != nil {
		return 0, err
	}
	amount, err := a.store.UpsertUsage(ctx, emojiID, userID, 0)
	if err != nil {
		return 0, err
	}

	e := a.entry(emojiID)
	e.mu.Lock()
	if !e.dead {
		e.totals[userID] = amount
	}
	e.mu.Unlock()
	return amount, nil
}

// WarmUser bulk-loads every durable total for a user into the cache. The
// first call per user does the fetch; repeats are no-ops.
func (a *UsageAccumulator) WarmUser(ctx context.Context, userID snowflake.ID) error {
	a.warmMu.Lock()
	if _, done := a.warmed[userID]; done {
		a.warmMu.Unlock()
		return nil
	}
	a.warmed[userID] = struct{}{}
	a.warmMu.Unlock()

	usages, err := a.store.FetchUserUsages(ctx, userID)
	if err != nil {
		a.warmMu.Lock()
		delete(a.warmed, userID)
		a.warmMu.Unlock()
		return err
	}

	for _, usage := range usages {
		e := a.entry(usage.EmojiID)
		e.mu.Lock()
		if !e.dead {
			e.totals[usage.UserID] = usage.Amount
		}
		e.mu.Unlock()
	}
	return nil
}

// Discard cancels pending flushes for a deleted emoji and drops its
// counters. A timer that already fired sees the dead flag and skips the
// durable write.
func (a *UsageAccumulator) Discard(emojiID snowflake.ID) {
	a.mu.Lock()
	e, ok := a.emojis[emojiID]
	if ok {
		delete(a.emojis, emojiID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.dead = true
	for userID, timer := range e.timers {
		timer.Stop()
		delete(e.timers, userID)
	}
	e.pending = make(map[snowflake.ID]int)
	e.mu.Unlock()
}
