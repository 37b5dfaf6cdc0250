package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/go-redis/redis/v8"

	"github.com/selivandex/trader-core/internal/risk"
)

// StateStore keeps risk guard state as a JSON value.
// Durability follows the server's AOF/RDB configuration.
type StateStore struct {
	client *redis.Client
	key    string
}

// NewStateStore creates new Redis-backed state store
func NewStateStore(client *redis.Client, guardID string) *StateStore {
	return &StateStore{client: client, key: StateKey(guardID)}
}

// StateKey returns the Redis key holding a guard's state
func StateKey(guardID string) string {
	return fmt.Sprintf("risk_guard:state:%s", guardID)
}

func (s *StateStore) Load(ctx context.Context) (*risk.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, risk.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}

	var state risk.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", risk.ErrCorruptState, s.key, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.key, err)
	}

	return &state, nil
}

func (s *StateStore) Save(ctx context.Context, state *risk.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}
