// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/callsync/internal/models"
)

var watermarkKey = []byte("callsync:watermark")

// BadgerStore keeps the watermark under a single BadgerDB key. Every write is
// one transaction, so readers never observe a partial record.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger state store %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get(_ context.Context) (models.Watermark, error) {
	var wm models.Watermark
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(watermarkKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get watermark: %w", err)
		}
		return item.Value(func(val []byte) error {
			wm, err = decode(val)
			return err
		})
	})
	return wm, err
}

func (s *BadgerStore) Set(_ context.Context, t time.Time) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(watermarkKey, data)
	})
}

func (s *BadgerStore) Reset(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(watermarkKey)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
