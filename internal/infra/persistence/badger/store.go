// Package badger persists session state in an embedded BadgerDB key/value
// store, one JSON document per session.
package badger

import (
	"context"
	"errors"
	"fmt"

	dgbadger "github.com/dgraph-io/badger/v4"

	"smartloan/internal/infra/persistence/codec"
	"smartloan/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

const keyPrefix = "session/"

// Store wraps an open Badger database.
type Store struct {
	db *dgbadger.DB
}

// NewStore opens the database at path. An empty path opens an in-memory
// database that is discarded on Close.
func NewStore(path string) (*Store, error) {
	var opts dgbadger.Options
	if path == "" {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = dgbadger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func sessionKey(id string) []byte { return []byte(keyPrefix + id) }

// Load implements domain.SessionStore.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.SessionState, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionState{}, false, err
	}
	var data []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return domain.SessionState{}, false, nil
	}
	if err != nil {
		return domain.SessionState{}, false, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	state, err := codec.Unmarshal(data)
	if err != nil {
		return domain.SessionState{}, false, err
	}
	return state, true, nil
}

// Save implements domain.SessionStore.
func (s *Store) Save(ctx context.Context, state domain.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(sessionKey(state.SessionID), data)
	}); err != nil {
		return fmt.Errorf("write session %s: %w", state.SessionID, err)
	}
	return nil
}

// Delete implements domain.SessionStore.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	}); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// List implements domain.SessionStore. Badger iterates keys in byte order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// Close implements domain.SessionStore.
func (s *Store) Close() error { return s.db.Close() }
