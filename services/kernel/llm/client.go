// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the synchronous text-in/text-out client the
// role executor calls, with Ollama, OpenAI, and Anthropic backends.
package llm

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/time/rate"
)

// GenerationParams tune a single generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the standard interface for any LLM backend. system may be
// empty; prompt is the user turn.
type Client interface {
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}

// NewFromEnv builds a backend from GOVERN_LLM_BACKEND (ollama, openai,
// anthropic). The returned client is wrapped with a shared rate
// limiter so many concurrent sessions do not stampede the backend.
func NewFromEnv() (Client, error) {
	var (
		c   Client
		err error
	)
	switch backend := os.Getenv("GOVERN_LLM_BACKEND"); backend {
	case "", "ollama":
		c, err = NewOllamaClient()
	case "openai":
		c, err = NewOpenAIClient()
	case "claude", "anthropic":
		c, err = NewAnthropicClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return NewRateLimited(c, rate.Limit(4), 8), nil
}

// RateLimited wraps a Client with a token-bucket limiter.
type RateLimited struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with r requests/sec and the given burst.
func NewRateLimited(inner Client, r rate.Limit, burst int) *RateLimited {
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(r, burst)}
}

// Generate waits for a limiter slot, honoring context cancellation,
// then delegates.
func (c *RateLimited) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Generate(ctx, system, prompt, params)
}
