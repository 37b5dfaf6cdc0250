package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/selivandex/trader-core/internal/adapters/database/testdb"
)

func uniqueGuardID(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()
	guardID := uniqueGuardID(t)
	testdb.CleanupGuard(t, db, guardID)

	store := NewPostgresStore(db, guardID)
	if _, err := store.Load(ctx); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Expected ErrStateNotFound, got %v", err)
	}

	state := &State{
		DailyStartValue: 1_000_000,
		LastResetDate:   "2026-03-02",
		HighWaterMark:   1_050_000,
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *state {
		t.Errorf("Expected %+v, got %+v", *state, *loaded)
	}
}

func TestPostgresStore_DrawdownFlagIsSticky(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()
	guardID := uniqueGuardID(t)
	testdb.CleanupGuard(t, db, guardID)

	store := NewPostgresStore(db, guardID)
	tripped := &State{DailyStartValue: 800_000, LastResetDate: "2026-03-02", HighWaterMark: 1_000_000, DrawdownTriggered: true}
	if err := store.Save(ctx, tripped); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cleared := *tripped
	cleared.DrawdownTriggered = false
	if err := store.Save(ctx, &cleared); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.DrawdownTriggered {
		t.Error("A stored drawdown halt must not be cleared by a later save")
	}
}

func TestGuard_PostgresBackedEvents(t *testing.T) {
	db := testdb.Setup(t)
	ctx := context.Background()
	guardID := uniqueGuardID(t)
	testdb.CleanupGuard(t, db, guardID)

	repo := NewRepository(db)
	clock := newFakeClock()
	since := time.Now().Add(-time.Hour)
	g := newTestGuard(t, testRiskConfig(), NewPostgresStore(db, guardID), clock,
		WithGuardID(guardID), WithEventRecorder(repo))

	halt, err := g.CheckDailyLossLimit(ctx, 930_000)
	if err != nil {
		t.Fatalf("CheckDailyLossLimit: %v", err)
	}
	if !halt {
		t.Fatal("7% intraday loss should trip the breaker")
	}

	// A second guard on the same row sees the tripped breaker
	again := newTestGuard(t, testRiskConfig(), NewPostgresStore(db, guardID), clock, WithGuardID(guardID))
	if !again.State().CircuitBreakerTriggered {
		t.Error("Restored guard should keep the tripped breaker")
	}

	events, err := repo.GetRecentRiskEvents(ctx, guardID, 10)
	if err != nil {
		t.Fatalf("GetRecentRiskEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventCircuitBreakerTripped {
		t.Fatalf("Expected one trip event, got %+v", events)
	}

	count, err := repo.CountRiskEventsByType(ctx, guardID, EventCircuitBreakerTripped, since)
	if err != nil {
		t.Fatalf("CountRiskEventsByType: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 trip event, got %d", count)
	}
}
