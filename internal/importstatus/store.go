// Package importstatus reads and writes the progress state the CSV import
// jobs publish while they run. The jobs themselves live elsewhere; this is
// the shared key/value surface.
package importstatus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no state exists for an import id.
var ErrNotFound = errors.New("import status not found")

// State is one import job's progress snapshot.
type State struct {
	Type       string          `json:"type"`
	Progress   int             `json:"progress"`
	Status     string          `json:"status"`
	Results    json.RawMessage `json:"results,omitempty"`
	Error      string          `json:"error,omitempty"`
	ImportedBy string          `json:"imported_by"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Store persists import state as JSON blobs in redis, one key per import.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a store. ttl bounds how long finished states linger;
// zero keeps them forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(importID string) string { return "import_" + importID }

// Set writes the state for an import id, overwriting prior progress.
func (s *Store) Set(ctx context.Context, importID string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(importID), payload, s.ttl).Err()
}

// Get returns the state for an import id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, importID string) (State, error) {
	payload, err := s.client.Get(ctx, key(importID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return State{}, err
	}
	return state, nil
}
