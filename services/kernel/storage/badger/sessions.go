// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger provides the BadgerDB-backed session snapshot store.
//
// Session snapshots are opaque blobs outside the trust boundary: the
// signed JSONL ledger is authoritative, this store only gives the
// operator console low-latency access to full session results.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const sessionKeyPrefix = "session/"

// Config holds configuration for the snapshot store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode (tests).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// TTL expires snapshots after this duration. Zero keeps forever.
	TTL time.Duration
}

// DefaultConfig returns production defaults: durable writes, 30-day
// retention.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true, TTL: 30 * 24 * time.Hour}
}

// SessionStore persists session snapshots keyed by session id.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions
// provide isolation.
type SessionStore struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates or opens the store.
func Open(cfg Config) (*SessionStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &SessionStore{db: db, ttl: cfg.TTL}, nil
}

// PutSession stores one snapshot, applying the configured TTL.
func (s *SessionStore) PutSession(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+sessionID), snapshot)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// GetSession returns a stored snapshot, or badger.ErrKeyNotFound.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + sessionID))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// ListSessions returns all stored session ids.
func (s *SessionStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(sessionKeyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			out = append(out, key[len(sessionKeyPrefix):])
		}
		return nil
	})
	return out, err
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close badger", "error", err)
		return err
	}
	return nil
}
