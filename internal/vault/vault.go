package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genesisvault/genesisvault/internal/store"
)

// SchemaVersion is the layout of the meta records written by this binary
const SchemaVersion = 1

// Genesis is written once, on the first launch against a data directory
type Genesis struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	SchemaVersion int       `json:"schema_version"`
}

// Launches counts successful bootstraps
type Launches struct {
	Count  int64     `json:"count"`
	LastAt time.Time `json:"last_at"`
}

// State is the persisted vault metadata
type State struct {
	Genesis  Genesis  `json:"genesis"`
	Launches Launches `json:"launches"`

	// Created is true when this bootstrap wrote the genesis record
	Created bool `json:"-"`
}

// Bootstrap stamps the genesis record if it is missing and records one
// more launch. Both happen in a single transaction.
func Bootstrap(ctx context.Context, s store.Storage, now time.Time) (State, error) {
	var state State

	err := s.Transaction(ctx, func(txn store.Txn) error {
		state = State{}

		found, err := readJSON(txn, store.MetaGenesis, &state.Genesis)
		if err != nil {
			return err
		}
		if !found {
			state.Genesis = Genesis{
				ID:            uuid.NewString(),
				CreatedAt:     now.UTC(),
				SchemaVersion: SchemaVersion,
			}
			state.Created = true
			if err := writeJSON(txn, store.MetaGenesis, state.Genesis); err != nil {
				return err
			}
		} else if state.Genesis.SchemaVersion > SchemaVersion {
			return fmt.Errorf("%w: stored %d, supported %d",
				ErrSchemaTooNew, state.Genesis.SchemaVersion, SchemaVersion)
		}

		if _, err := readJSON(txn, store.MetaLaunches, &state.Launches); err != nil {
			return err
		}
		state.Launches.Count++
		state.Launches.LastAt = now.UTC()
		return writeJSON(txn, store.MetaLaunches, state.Launches)
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// Status reads the vault metadata without modifying it
func Status(ctx context.Context, s store.Storage) (State, error) {
	var state State

	raw, err := s.Get(ctx, store.MetaKey(store.MetaGenesis))
	if store.IsNotFound(err) {
		return State{}, ErrNotInitialized
	} else if err != nil {
		return State{}, err
	}
	if err := store.UnmarshalValue(raw, &state.Genesis); err != nil {
		return State{}, fmt.Errorf("failed to decode %s record: %w", store.MetaGenesis, err)
	}

	raw, err = s.Get(ctx, store.MetaKey(store.MetaLaunches))
	if err != nil && !store.IsNotFound(err) {
		return State{}, err
	}
	if err == nil {
		if err := store.UnmarshalValue(raw, &state.Launches); err != nil {
			return State{}, fmt.Errorf("failed to decode %s record: %w", store.MetaLaunches, err)
		}
	}
	return state, nil
}

// CountRecords returns the number of meta records in the store
func CountRecords(ctx context.Context, s store.Storage) (int, error) {
	iter := s.Scan(ctx, store.MetaKey(""))
	defer iter.Close()

	count := 0
	for iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("failed to scan meta records: %w", err)
	}
	return count, nil
}

func readJSON(txn store.Txn, name string, v interface{}) (bool, error) {
	raw, err := txn.Get(store.MetaKey(name))
	if store.IsNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := store.UnmarshalValue(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s record: %w", name, err)
	}
	return true, nil
}

func writeJSON(txn store.Txn, name string, v interface{}) error {
	raw, err := store.MarshalValue(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", name, err)
	}
	if err := txn.Set(store.MetaKey(name), raw); err != nil {
		return &store.StorageError{Op: "set", Key: string(store.MetaKey(name)), Err: err}
	}
	return nil
}
