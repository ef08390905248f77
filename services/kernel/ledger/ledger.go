// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger implements the append-only, signed, hash-chained
// audit ledger: one JSON object per line in audit.jsonl, mirrored into
// a local SQLite table for fast querying. The JSONL file is
// authoritative; the mirror is a cache and is never consulted by the
// verifier.
package ledger

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ledgerFileMode restricts the audit file to the owner. The ledger
// reveals what ran and when, which is itself sensitive.
const ledgerFileMode = 0o600

// DefaultMaxFileSize triggers rotation; the chain is preserved across
// files via a rollover entry.
const DefaultMaxFileSize int64 = 64 << 20

// Option is a functional option for configuring the Ledger.
type Option func(*Ledger)

// WithMaxFileSize sets the rotation threshold in bytes. Zero disables
// rotation.
func WithMaxFileSize(n int64) Option {
	return func(l *Ledger) { l.maxFileSize = n }
}

// WithMirror attaches a SQLite mirror. Mirror failures are logged and
// never block the authoritative append.
func WithMirror(m *Mirror) Option {
	return func(l *Ledger) { l.mirror = m }
}

// Ledger is the single-process ledger writer.
//
// # Concurrency
//
// Appends from concurrent sessions serialize on an internal mutex, and
// the whole append sequence (compute seq, compute prev_hash, sign,
// append) additionally holds an exclusive flock on a sidecar lock file
// so that concurrent processes also serialize at the file-append
// boundary. Readers open the JSONL read-only and take no lock.
type Ledger struct {
	mu          sync.Mutex
	dir         string
	activeFile  string
	lockPath    string
	signer      Signer
	maxFileSize int64
	mirror      *Mirror

	// chain state, re-synced from the file tail under the lock
	nextSeq  int64
	prevHash string
	synced   bool
}

// Open prepares the ledger writer for a directory. The active file is
// audit.jsonl; rotated files are audit-<seq>.jsonl.
func Open(dir string, signer Signer, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	l := &Ledger{
		dir:         dir,
		activeFile:  filepath.Join(dir, "audit.jsonl"),
		lockPath:    filepath.Join(dir, ".audit.lock"),
		signer:      signer,
		maxFileSize: DefaultMaxFileSize,
		prevHash:    GenesisHash,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the active ledger file path.
func (l *Ledger) Path() string { return l.activeFile }

// Append writes one signed entry and returns it.
//
// The payload itself is not stored in the entry; only its canonical
// hash is. Callers that need the raw output keep it in the session
// artifact store, outside the trust boundary.
func (l *Ledger) Append(sessionID, role, action string, payload any, soft, hard []string, configHash string) (*Entry, error) {
	payloadHash, err := HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.flock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := l.syncTail(); err != nil {
		return nil, err
	}
	if err := l.rotateIfNeeded(sessionID, configHash); err != nil {
		slog.Warn("ledger rotation failed, continuing in active file", "error", err)
	}

	entry, err := l.appendLocked(sessionID, role, action, payloadHash, soft, hard, configHash)
	if err != nil {
		return nil, err
	}
	if l.mirror != nil {
		if err := l.mirror.Insert(entry); err != nil {
			slog.Warn("ledger mirror insert failed", "seq", entry.Seq, "error", err)
		}
	}
	return entry, nil
}

// appendLocked signs and writes one entry. Caller holds both locks and
// has synced the chain tail.
func (l *Ledger) appendLocked(sessionID, role, action, payloadHash string, soft, hard []string, configHash string) (*Entry, error) {
	entry := &Entry{
		Seq:         l.nextSeq,
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:   sessionID,
		Role:        role,
		Action:      action,
		PayloadHash: payloadHash,
		PrevHash:    l.prevHash,
		SignerKeyID: l.signer.KeyID(),
		ConfigHash:  configHash,
		SoftSignals: soft,
		HardActions: hard,
	}
	canonical, err := entry.CanonicalFields()
	if err != nil {
		return nil, fmt.Errorf("canonicalize entry: %w", err)
	}
	entry.Signature, err = l.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("sign entry: %w", err)
	}
	entry.ThisHash = ChainHash(canonical, entry.Signature)

	line, err := marshalLine(entry)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.activeFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, ledgerFileMode)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync ledger: %w", err)
	}

	l.nextSeq = entry.Seq + 1
	l.prevHash = entry.ThisHash
	return entry, nil
}

// rotateIfNeeded rotates the active file when it exceeds the size
// limit. The chain is preserved: a rollover entry naming the next file
// is the last record of the old file, then the old file is renamed and
// the active path starts fresh with the chain state carried over.
func (l *Ledger) rotateIfNeeded(sessionID, configHash string) error {
	if l.maxFileSize <= 0 {
		return nil
	}
	info, err := os.Stat(l.activeFile)
	if err != nil || info.Size() < l.maxFileSize {
		return nil
	}
	rotated := filepath.Join(l.dir, fmt.Sprintf("audit-%d.jsonl", l.nextSeq))
	payloadHash, err := HashPayload(map[string]string{"next": filepath.Base(l.activeFile)})
	if err != nil {
		return err
	}
	// The rollover entry lands in the rotated file and points back at
	// the active name, which the verifier resumes on.
	if _, err := l.appendLocked(sessionID, "ledger", ActionRollover, payloadHash, nil, nil, configHash); err != nil {
		return fmt.Errorf("write rollover entry: %w", err)
	}
	if err := os.Rename(l.activeFile, rotated); err != nil {
		return fmt.Errorf("rename rotated ledger: %w", err)
	}
	return nil
}

// syncTail reads the last entry of the active file so concurrent
// processes that appended since our last write are observed.
func (l *Ledger) syncTail() error {
	entry, err := readLastEntry(l.activeFile)
	if err != nil {
		return err
	}
	if entry == nil {
		if !l.synced {
			// Fresh file; carry chain state from any rotated ones.
			if last, err := l.lastRotatedEntry(); err == nil && last != nil {
				l.nextSeq = last.Seq + 1
				l.prevHash = last.ThisHash
			}
			l.synced = true
		}
		return nil
	}
	l.nextSeq = entry.Seq + 1
	l.prevHash = entry.ThisHash
	l.synced = true
	return nil
}

// lastRotatedEntry finds the tail of the newest rotated file, if any.
func (l *Ledger) lastRotatedEntry() (*Entry, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "audit-*.jsonl"))
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	var newest string
	var newestSeq int64 = -1
	for _, m := range matches {
		var seq int64
		if _, err := fmt.Sscanf(filepath.Base(m), "audit-%d.jsonl", &seq); err == nil && seq > newestSeq {
			newest, newestSeq = m, seq
		}
	}
	if newest == "" {
		return nil, nil
	}
	return readLastEntry(newest)
}

// flock takes the exclusive advisory lock around the append sequence.
func (l *Ledger) flock() (func(), error) {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

func marshalLine(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	data, err := jsonMarshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger entry: %w", err)
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
