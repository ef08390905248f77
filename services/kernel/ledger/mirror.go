// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Mirror stores ledger entries in a local SQLite table for fast
// querying by the operator console. The JSONL file remains
// authoritative; the verifier never reads the mirror.
type Mirror struct {
	db *sql.DB
}

// OpenMirror opens (creating if needed) the SQLite mirror database.
func OpenMirror(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger mirror: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    seq           INTEGER PRIMARY KEY,
    ts            TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    role          TEXT NOT NULL,
    action        TEXT NOT NULL,
    payload_hash  TEXT NOT NULL,
    prev_hash     TEXT NOT NULL,
    this_hash     TEXT NOT NULL,
    signature     TEXT NOT NULL,
    signer_key_id TEXT NOT NULL,
    config_hash   TEXT NOT NULL,
    soft_signals  TEXT,
    hard_actions  TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create mirror schema: %w", err)
	}
	return &Mirror{db: db}, nil
}

// Insert mirrors one entry. INSERT OR IGNORE keeps re-syncs after a
// crash idempotent on the seq primary key.
func (m *Mirror) Insert(e *Entry) error {
	_, err := m.db.Exec(`INSERT OR IGNORE INTO audit_log
        (seq, ts, session_id, role, action, payload_hash, prev_hash, this_hash,
         signature, signer_key_id, config_hash, soft_signals, hard_actions)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.TS, e.SessionID, e.Role, e.Action, e.PayloadHash, e.PrevHash,
		e.ThisHash, e.Signature, e.SignerKeyID, e.ConfigHash,
		strings.Join(e.SoftSignals, ","), strings.Join(e.HardActions, ","))
	if err != nil {
		return fmt.Errorf("mirror insert seq %d: %w", e.Seq, err)
	}
	return nil
}

// SessionEntries returns the mirrored entries of one session in seq
// order. Console queries only; not part of the trust boundary.
func (m *Mirror) SessionEntries(sessionID string) ([]Entry, error) {
	rows, err := m.db.Query(`SELECT seq, ts, session_id, role, action, payload_hash,
        prev_hash, this_hash, signature, signer_key_id, config_hash, soft_signals, hard_actions
        FROM audit_log WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mirror query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var soft, hard string
		if err := rows.Scan(&e.Seq, &e.TS, &e.SessionID, &e.Role, &e.Action,
			&e.PayloadHash, &e.PrevHash, &e.ThisHash, &e.Signature,
			&e.SignerKeyID, &e.ConfigHash, &soft, &hard); err != nil {
			return nil, fmt.Errorf("mirror scan: %w", err)
		}
		if soft != "" {
			e.SoftSignals = strings.Split(soft, ",")
		}
		if hard != "" {
			e.HardActions = strings.Split(hard, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (m *Mirror) Close() error { return m.db.Close() }
