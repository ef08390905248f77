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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianGovern/services/kernel/directives"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
	"github.com/AleutianAI/AleutianGovern/services/kernel/validation"
)

// ExecState names the states of the role executor's bounded retry
// machine.
type ExecState string

const (
	StateInitial     ExecState = "initial"
	StateAwaitingLLM ExecState = "awaiting_llm"
	StateParsed      ExecState = "parsed"
	StateValidated   ExecState = "validated"
	StateStrictRetry ExecState = "strict_retry"
	StateFailed      ExecState = "failed"
)

// Failure kinds surfaced by the executor.
const (
	FailTransport = "transport_error"
	FailRole      = "role_failure"
	FailTimeout   = "role_timeout"
)

// DefaultRoleTimeout is the soft per-role timeout.
const DefaultRoleTimeout = 180 * time.Second

// RoleRequest describes one role turn.
type RoleRequest struct {
	Role         string
	Letter       string
	System       string
	Prompt       string
	StrictPrompt string
	Example      string // one-shot appended on the strict retry
	Temperature  float32
	Timeout      time.Duration
	// Validate decodes and checks the parsed array; it returns the
	// validation result so the strict re-prompt can quote failures.
	Validate func(raw json.RawMessage) validation.Result
	Shapes   map[string]directives.RoleShape
}

// RoleOutcome is what one executor run produced.
type RoleOutcome struct {
	Text       string
	Raw        json.RawMessage
	Attempts   int
	State      ExecState
	FailKind   string // empty on success
	FailDetail string
}

// Executor drives a single role turn through compose -> LLM -> parse
// -> validate with one strict re-prompt on failure.
type Executor struct {
	client llm.Client
}

// NewExecutor wraps an LLM client.
func NewExecutor(client llm.Client) *Executor {
	return &Executor{client: client}
}

// Run executes one role turn.
//
// Behavior:
//   - Transport errors are retried once per attempt; a second failure
//     surfaces as transport_error.
//   - Parse, shape-ban, and validation failures trigger exactly one
//     strict re-prompt; a second failure is role_failure.
//   - Each attempt runs under the role's soft timeout. A timeout on
//     the first attempt permits the strict retry while the session
//     context still has budget; a final timeout is role_timeout.
func (e *Executor) Run(ctx context.Context, req RoleRequest) RoleOutcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultRoleTimeout
	}
	outcome := RoleOutcome{State: StateInitial}
	prompt := req.Prompt
	temp := req.Temperature

	for attempt := 1; attempt <= 2; attempt++ {
		outcome.Attempts = attempt
		outcome.State = StateAwaitingLLM

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := e.callWithRetry(attemptCtx, req.System, prompt, temp)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				if attempt == 1 {
					prompt = strictPrompt(req)
					outcome.State = StateStrictRetry
					continue
				}
				outcome.State = StateFailed
				outcome.FailKind = FailTimeout
				outcome.FailDetail = fmt.Sprintf("%s timed out after %s", req.Role, timeout)
				return outcome
			}
			outcome.State = StateFailed
			outcome.FailKind = FailTransport
			outcome.FailDetail = err.Error()
			return outcome
		}
		outcome.Text = text

		if banned, phrase := directives.ViolatesShape(text, req.Role, req.Shapes); banned {
			slog.Debug("role shape violation", "role", req.Role, "phrase", phrase)
			if attempt == 1 {
				prompt = strictPrompt(req)
				outcome.State = StateStrictRetry
				continue
			}
			outcome.State = StateFailed
			outcome.FailKind = FailRole
			outcome.FailDetail = fmt.Sprintf("banned shape for %s: %q", req.Role, phrase)
			return outcome
		}

		raw, err := ExtractRoleArray(text, req.Letter)
		if err != nil {
			if attempt == 1 {
				prompt = strictPrompt(req)
				outcome.State = StateStrictRetry
				continue
			}
			outcome.State = StateFailed
			outcome.FailKind = FailRole
			outcome.FailDetail = err.Error()
			return outcome
		}
		outcome.State = StateParsed

		result := req.Validate(raw)
		if !result.OK {
			if attempt == 1 {
				prompt = strictPrompt(req) + "\nPrevious attempt failed validation: " + result.Message
				outcome.State = StateStrictRetry
				continue
			}
			outcome.State = StateFailed
			outcome.FailKind = FailRole
			outcome.FailDetail = result.Message
			return outcome
		}

		outcome.Raw = raw
		outcome.State = StateValidated
		return outcome
	}
	// Unreachable: both attempts return above.
	outcome.State = StateFailed
	outcome.FailKind = FailRole
	return outcome
}

// callWithRetry performs the LLM call with one transport retry.
func (e *Executor) callWithRetry(ctx context.Context, system, prompt string, temp float32) (string, error) {
	params := llm.GenerationParams{Temperature: &temp}
	text, err := e.client.Generate(ctx, system, prompt, params)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	slog.Warn("llm call failed, retrying once", "error", err)
	return e.client.Generate(ctx, system, prompt, params)
}

// strictPrompt builds the strict-shape re-prompt with the versioned
// one-shot example.
func strictPrompt(req RoleRequest) string {
	p := req.StrictPrompt
	if p == "" {
		p = req.Prompt
	}
	p += fmt.Sprintf("\nSTRICT MODE: return ONLY one fenced ```%s JSON array. No prose before or after the fence.", req.Letter)
	if req.Example != "" {
		p += "\nExample of the exact shape required:\n" + req.Example
	}
	return p
}
