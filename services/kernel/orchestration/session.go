// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

// DefaultSessionBudget bounds one whole session, covering all role
// timeouts plus composer work.
const DefaultSessionBudget = 20 * time.Minute

// SessionManager multiplexes many concurrent sessions over a bounded
// worker pool. Each session is single-threaded through its roles; the
// ledger append is the only cross-session synchronization point.
type SessionManager struct {
	kernel *Kernel
	sem    *semaphore.Weighted
	budget time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewSessionManager bounds concurrency to maxParallel sessions.
func NewSessionManager(kernel *Kernel, maxParallel int64, budget time.Duration) *SessionManager {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	if budget <= 0 {
		budget = DefaultSessionBudget
	}
	return &SessionManager{
		kernel:  kernel,
		sem:     semaphore.NewWeighted(maxParallel),
		budget:  budget,
		cancels: map[string]context.CancelFunc{},
	}
}

// Run blocks until a pool slot frees, then executes the session under
// the session budget. Cancellation is cooperative: the chain checks
// its context between role steps and around LLM calls.
func (m *SessionManager) Run(ctx context.Context, objective, domain, sessionID string) (*datatypes.ChainResult, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire session slot: %w", err)
	}
	defer m.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, m.budget)
	defer cancel()

	if sessionID != "" {
		m.mu.Lock()
		m.cancels[sessionID] = cancel
		m.mu.Unlock()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, sessionID)
			m.mu.Unlock()
		}()
	}
	return m.kernel.RunChain(runCtx, objective, domain, sessionID)
}

// Cancel requests cooperative cancellation of an in-flight session.
// Unknown ids are a no-op.
func (m *SessionManager) Cancel(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, found := m.cancels[sessionID]
	if found {
		cancel()
	}
	return found
}
