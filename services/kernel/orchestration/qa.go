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
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
)

// qaCharLimit bounds both sides of a micro-Q&A exchange.
const qaCharLimit = 800

// runMicroQA performs one single-shot clarification exchange: asker
// poses at most one question over the context, responder answers.
// Either side may decline with NONE. Failures are soft: the chain
// proceeds without a note.
func runMicroQA(ctx context.Context, client llm.Client, asker, responder, qaContext string) (*datatypes.QANote, bool) {
	askTemp := float32(0.35)
	question, err := client.Generate(ctx,
		"Micro-QA ("+asker+" asking "+responder+")",
		qaContext+"\nAsk ONE clarifying question for the "+responder+". If none needed, reply with NONE.",
		llm.GenerationParams{Temperature: &askTemp})
	if err != nil {
		slog.Warn("micro-QA question failed", "asker", asker, "error", err)
		return nil, false
	}
	question = bound(strings.TrimSpace(question))
	if question == "" || strings.HasPrefix(strings.ToUpper(question), "NONE") {
		return nil, false
	}

	answerTemp := float32(0.2)
	answer, err := client.Generate(ctx,
		"Micro-QA ("+responder+" answering "+asker+")",
		qaContext+"\nQuestion: "+question+"\nProvide a short, direct answer.",
		llm.GenerationParams{Temperature: &answerTemp})
	if err != nil {
		slog.Warn("micro-QA answer failed", "responder", responder, "error", err)
		return nil, false
	}
	return &datatypes.QANote{
		From:     asker,
		To:       responder,
		Question: question,
		Answer:   bound(strings.TrimSpace(answer)),
	}, true
}

func bound(s string) string {
	if len(s) > qaCharLimit {
		return s[:qaCharLimit]
	}
	return s
}
