// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CachedVerifier memoizes the last verification walk and invalidates
// it when the ledger directory changes on disk. Verification of a
// large untouched ledger is idempotent, so repeated GET /verify calls
// can serve the cached report until a write lands.
type CachedVerifier struct {
	verifier *Verifier

	mu     sync.Mutex
	cached *Report
}

// NewCachedVerifier wraps v and starts the fsnotify watcher. The
// watcher goroutine exits when ctx is done. A watch failure degrades
// to uncached verification, never to stale results.
func NewCachedVerifier(ctx context.Context, v *Verifier) *CachedVerifier {
	c := &CachedVerifier{verifier: v}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, verification cache disabled", "error", err)
		return c
	}
	if err := watcher.Add(v.LedgerDir()); err != nil {
		slog.Warn("cannot watch ledger dir, verification cache disabled",
			"dir", v.LedgerDir(), "error", err)
		watcher.Close()
		return c
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, open := <-watcher.Events:
				if !open {
					return
				}
				c.invalidate()
			case err, open := <-watcher.Errors:
				if !open {
					return
				}
				slog.Warn("ledger watch error", "error", err)
				c.invalidate()
			}
		}
	}()
	return c
}

// Walk returns the cached report when the ledger has not changed since
// the last walk, otherwise re-verifies.
func (c *CachedVerifier) Walk() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return *c.cached
	}
	report := c.verifier.Walk()
	c.cached = &report
	return report
}

func (c *CachedVerifier) invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Verifier exposes the wrapped verifier for health information.
func (c *CachedVerifier) Verifier() *Verifier { return c.verifier }
