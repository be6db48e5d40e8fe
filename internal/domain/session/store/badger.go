// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/dgraph-io/badger/v4"
)

const badgerSessionPrefix = "sess:"

// BadgerStore keeps each session as JSON under key "sess:<id>".
// Listing is a full prefix scan sorted in memory.
type BadgerStore struct {
	db   *badger.DB
	opts options
}

func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}
	return &BadgerStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errClosed
	}
	return nil
}

func badgerKey(id string) []byte {
	return []byte(badgerSessionPrefix + id)
}

func (s *BadgerStore) Create(_ context.Context, in model.NewSession) (*model.Session, error) {
	rec := s.opts.newRecord(in)
	buf, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.ID), buf)
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: create: %w", err)
	}
	return rec, nil
}

func (s *BadgerStore) Update(_ context.Context, id string, p model.Patch) (*model.Session, error) {
	var out model.Session
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		changed, err := model.Apply(&out, p, s.opts.stamp())
		if err != nil || !changed {
			return err
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(badgerKey(id), buf)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger store: update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (*model.Session, error) {
	var out model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger store: get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger store: get %s: %w", id, err)
	}
	return &out, nil
}

func (s *BadgerStore) ListRecent(ctx context.Context, limit int) ([]*model.Session, error) {
	list, err := s.scan(ctx, func(*model.Session) bool { return true })
	if err != nil {
		return nil, err
	}
	sortRecent(list)
	return limitList(list, limit), nil
}

func (s *BadgerStore) ListByStatus(ctx context.Context, statuses ...model.Status) ([]*model.Session, error) {
	want := statusSet(statuses)
	list, err := s.scan(ctx, func(rec *model.Session) bool { return want[rec.Status] })
	if err != nil {
		return nil, err
	}
	sortRecent(list)
	return list, nil
}

func (s *BadgerStore) scan(ctx context.Context, keep func(*model.Session) bool) ([]*model.Session, error) {
	prefix := []byte(badgerSessionPrefix)
	var list []*model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec model.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if keep(&rec) {
				list = append(list, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: scan: %w", err)
	}
	return list, nil
}

var _ Store = (*BadgerStore)(nil)
