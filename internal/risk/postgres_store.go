package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps state in the risk_guard_state table, one row per guard
type PostgresStore struct {
	db      *sqlx.DB
	guardID string
}

// NewPostgresStore creates new PostgreSQL state store
func NewPostgresStore(db *sqlx.DB, guardID string) *PostgresStore {
	return &PostgresStore{db: db, guardID: guardID}
}

type stateRow struct {
	State
	ResetDate time.Time `db:"reset_date"`
}

func (s *PostgresStore) Load(ctx context.Context) (*State, error) {
	query := `
		SELECT daily_start_value, reset_date, circuit_breaker_triggered,
		       high_water_mark, drawdown_triggered
		FROM risk_guard_state
		WHERE guard_id = $1
	`

	var row stateRow
	if err := s.db.GetContext(ctx, &row, query, s.guardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to load risk guard state: %w", err)
	}

	state := row.State
	state.LastResetDate = row.ResetDate.Format(time.DateOnly)
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("guard %s: %w", s.guardID, err)
	}

	return &state, nil
}

func (s *PostgresStore) Save(ctx context.Context, state *State) error {
	query := `
		INSERT INTO risk_guard_state (
			guard_id, daily_start_value, reset_date, circuit_breaker_triggered,
			high_water_mark, drawdown_triggered, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (guard_id) DO UPDATE SET
			daily_start_value = EXCLUDED.daily_start_value,
			reset_date = EXCLUDED.reset_date,
			circuit_breaker_triggered = EXCLUDED.circuit_breaker_triggered,
			high_water_mark = EXCLUDED.high_water_mark,
			drawdown_triggered = risk_guard_state.drawdown_triggered OR EXCLUDED.drawdown_triggered,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		s.guardID,
		state.DailyStartValue,
		state.LastResetDate,
		state.CircuitBreakerTriggered,
		state.HighWaterMark,
		state.DrawdownTriggered,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk guard state: %w", err)
	}

	return nil
}
