package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository handles database operations for risk events
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new risk repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// RiskEvent represents a risk event record
type RiskEvent struct {
	ID          int64                  `db:"id"`
	GuardID     string                 `db:"guard_id"`
	EventType   string                 `db:"event_type"`
	Description string                 `db:"description"`
	Data        map[string]interface{} `db:"-"`
	CreatedAt   time.Time              `db:"created_at"`
}

// LogRiskEvent logs a risk event to database
func (r *Repository) LogRiskEvent(ctx context.Context, guardID, eventType, description string, data map[string]interface{}) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := `
		INSERT INTO risk_events (guard_id, event_type, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query, guardID, eventType, description, dataJSON, time.Now()).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to log risk event: %w", err)
	}

	return nil
}

// GetRecentRiskEvents retrieves recent risk events for a guard
func (r *Repository) GetRecentRiskEvents(ctx context.Context, guardID string, limit int) ([]RiskEvent, error) {
	query := `
		SELECT id, guard_id, event_type, description, data, created_at
		FROM risk_events
		WHERE guard_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, guardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events: %w", err)
	}
	defer rows.Close()

	events := make([]RiskEvent, 0)
	for rows.Next() {
		var event RiskEvent
		var dataJSON []byte

		if err := rows.Scan(
			&event.ID,
			&event.GuardID,
			&event.EventType,
			&event.Description,
			&dataJSON,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}

		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &event.Data); err != nil {
				return nil, fmt.Errorf("failed to decode risk event %d data: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// CountRiskEventsByType counts risk events by type for a guard since a point in time
func (r *Repository) CountRiskEventsByType(ctx context.Context, guardID, eventType string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM risk_events
		WHERE guard_id = $1 AND event_type = $2 AND created_at >= $3
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, guardID, eventType, since); err != nil {
		return 0, fmt.Errorf("failed to count risk events: %w", err)
	}

	return count, nil
}
