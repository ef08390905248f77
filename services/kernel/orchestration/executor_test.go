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
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/kernel/directives"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
	"github.com/AleutianAI/AleutianGovern/services/kernel/validation"
)

// seqClient returns queued responses, then errors.
type seqClient struct {
	responses []any // string or error
	calls     int
}

func (c *seqClient) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.calls >= len(c.responses) {
		return "", errors.New("script exhausted")
	}
	next := c.responses[c.calls]
	c.calls++
	if err, isErr := next.(error); isErr {
		return "", err
	}
	return next.(string), nil
}

func acceptAll(raw json.RawMessage) validation.Result {
	return validation.Result{OK: true, Reason: validation.ReasonOK}
}

func baseRequest(v func(json.RawMessage) validation.Result) RoleRequest {
	return RoleRequest{
		Role:     "Strategist",
		Letter:   "S",
		Prompt:   "emit S",
		Validate: v,
	}
}

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	client := &seqClient{responses: []any{"```S\n[{\"s_id\":\"S-1\"}]\n```"}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(acceptAll))
	if out.FailKind != "" {
		t.Fatalf("unexpected failure: %s %s", out.FailKind, out.FailDetail)
	}
	if out.State != StateValidated || out.Attempts != 1 {
		t.Errorf("state=%s attempts=%d", out.State, out.Attempts)
	}
}

func TestExecutorStrictRetryOnParseFailure(t *testing.T) {
	client := &seqClient{responses: []any{
		"no json here",
		"```S\n[{\"s_id\":\"S-1\"}]\n```",
	}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(acceptAll))
	if out.FailKind != "" {
		t.Fatalf("unexpected failure: %s", out.FailDetail)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
}

func TestExecutorRoleFailureAfterTwoParseFailures(t *testing.T) {
	client := &seqClient{responses: []any{"junk", "still junk"}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(acceptAll))
	if out.FailKind != FailRole {
		t.Fatalf("FailKind = %q, want %q", out.FailKind, FailRole)
	}
	if out.State != StateFailed {
		t.Errorf("State = %s", out.State)
	}
}

func TestExecutorTransportRetryThenError(t *testing.T) {
	// Both the call and its single retry fail: transport_error.
	client := &seqClient{responses: []any{
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(acceptAll))
	if out.FailKind != FailTransport {
		t.Fatalf("FailKind = %q, want %q", out.FailKind, FailTransport)
	}
}

func TestExecutorTransportRecoversOnRetry(t *testing.T) {
	client := &seqClient{responses: []any{
		errors.New("connection refused"),
		"```S\n[{\"s_id\":\"S-1\"}]\n```",
	}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(acceptAll))
	if out.FailKind != "" {
		t.Fatalf("unexpected failure: %s", out.FailDetail)
	}
	if out.Attempts != 1 {
		t.Errorf("transport retry stays within attempt 1, got %d", out.Attempts)
	}
}

func TestExecutorValidationFailureCitesMessage(t *testing.T) {
	rejecting := func(raw json.RawMessage) validation.Result {
		return validation.Result{Reason: validation.ReasonBadRef, Message: "A-1 references unknown S ids: S-9"}
	}
	client := &seqClient{responses: []any{
		"```S\n[{\"s_id\":\"S-1\"}]\n```",
		"```S\n[{\"s_id\":\"S-1\"}]\n```",
	}}
	out := NewExecutor(client).Run(context.Background(), baseRequest(rejecting))
	if out.FailKind != FailRole {
		t.Fatalf("FailKind = %q", out.FailKind)
	}
	if out.FailDetail != "A-1 references unknown S ids: S-9" {
		t.Errorf("FailDetail = %q", out.FailDetail)
	}
}

func TestExecutorShapeBanTriggersRetry(t *testing.T) {
	shapes := map[string]directives.RoleShape{
		"Strategist": {Exclusions: []string{"posting schedule"}},
	}
	client := &seqClient{responses: []any{
		"your posting schedule: ```S\n[{\"s_id\":\"S-1\"}]\n```",
		"```S\n[{\"s_id\":\"S-1\"}]\n```",
	}}
	req := baseRequest(acceptAll)
	req.Shapes = shapes
	out := NewExecutor(client).Run(context.Background(), req)
	if out.FailKind != "" {
		t.Fatalf("unexpected failure: %s", out.FailDetail)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (shape ban retried)", out.Attempts)
	}
}
