// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package taes implements the Tri-Axis Evaluation Standard: logical,
// practical, and probable sub-scores for each role output, aggregated
// into the Integrity Vector (IV) and the Ideal-Reality Disparity (IRD).
//
// The graders here are deterministic heuristics over text features, so
// the same input and weights always produce the same scores. The
// contract allows delegating sub-scores to an LLM instead; swapping the
// grader does not change the IV/IRD math below.
package taes

import (
	"math"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/detection"
)

// Summarization bounds for long outputs. Head keeps the framing,
// tail keeps the conclusion.
const (
	summarizeOver = 2500
	headKeep      = 1500
	tailKeep      = 1000
)

// IRDThreshold triggers the Reality Reconciliation Pass.
const IRDThreshold = 0.5

// Evaluator scores role outputs. It is safe for concurrent use; all
// state is read-only after construction.
type Evaluator struct {
	weights  map[string]AxisWeights
	detector *detection.Engine
	irdLog   *IRDLog
}

// NewEvaluator builds an evaluator over the given domain weight table.
// irdLog may be nil to disable disparity logging (tests).
func NewEvaluator(weights map[string]AxisWeights, detector *detection.Engine, irdLog *IRDLog) *Evaluator {
	return &Evaluator{weights: weights, detector: detector, irdLog: irdLog}
}

// Summarize reduces long outputs to head+tail before scoring.
func Summarize(text string) string {
	if len(text) <= summarizeOver {
		return text
	}
	return text[:headKeep] + "\n...\n" + text[len(text)-tailKeep:]
}

// Evaluate scores one role output and appends an IRD log row.
//
// The returned record carries both the canonical IV (0.5/0.35/0.15,
// written to the ledger) and the domain-weighted quality. IRD adds the
// contradiction and hedge penalties on top of the 0.65-IV gap.
func (e *Evaluator) Evaluate(text, role, domain, sessionID, configHash string) *datatypes.TAESRecord {
	return e.evaluate(text, role, domain, sessionID, configHash, ForDomain(e.weights, domain), false)
}

// Reconcile runs the Reality Reconciliation Pass scoring: axis-level
// weights shifted toward probable (0.3/0.3/0.4). The canonical IV
// definition is unchanged.
func (e *Evaluator) Reconcile(text, role, domain, sessionID, configHash string) *datatypes.TAESRecord {
	rec := e.evaluate(text, role, domain, sessionID, configHash, RRPWeights, true)
	rec.RRPApplied = true
	return rec
}

func (e *Evaluator) evaluate(text, role, domain, sessionID, configHash string, domainWeights AxisWeights, rrp bool) *datatypes.TAESRecord {
	scored := Summarize(text)

	logical := scoreLogical(scored)
	practical := scorePractical(scored)
	probable := scoreProbable(scored)

	iv := clamp01(CanonicalWeights.Logical*logical +
		CanonicalWeights.Practical*practical +
		CanonicalWeights.Probable*probable)
	quality := clamp01(domainWeights.Logical*logical +
		domainWeights.Practical*practical +
		domainWeights.Probable*probable)

	contradictions := 0
	if e.detector != nil {
		contradictions = e.detector.CountContradictions(scored)
	}
	hedges := detection.CountHedges(scored)

	// The reconciliation pass measures the gap against the shifted,
	// probable-weighted aggregate; the canonical IV field is unchanged.
	gapBase := iv
	if rrp {
		gapBase = quality
	}
	ird := math.Max(0, 0.65-gapBase) + 0.05*float64(contradictions) + 0.02*float64(hedges)

	rec := &datatypes.TAESRecord{
		Role:           role,
		Domain:         domain,
		Logical:        round3(logical),
		Practical:      round3(practical),
		Probable:       round3(probable),
		IV:             round3(iv),
		DomainQuality:  round3(quality),
		IRD:            round3(ird),
		Contradictions: contradictions,
		Hedges:         hedges,
		RequiresRRP:    ird > IRDThreshold,
	}
	if e.irdLog != nil {
		verdict := "pass"
		if rec.RequiresRRP {
			verdict = "rrp"
		}
		if rrp {
			verdict = "rrp_rescore"
		}
		e.irdLog.Append(sessionID, role, rec, verdict, configHash)
	}
	return rec
}

// =============================================================================
// Heuristic axis graders
// =============================================================================

var (
	idToken        = regexp.MustCompile(`\b[SAPCX]-\d+\b`)
	numberToken    = regexp.MustCompile(`\b\d[\d,.]*\b`)
	humanToken     = regexp.MustCompile(`(?i)\b(audience|customer|user|owner|reader|client|team|operator|visitor)s?\b`)
	constraintWord = regexp.MustCompile(`(?i)\b(budget|deadline|timeline|constraint|risk|dependency|capacity|scope)s?\b`)
	testWord       = regexp.MustCompile(`(?i)\b(acceptance_tests|falsifications?|kpi|metric|target|test)\b`)
)

// scoreLogical rewards structured, cross-referenced, testable output
// and penalizes hedging. All terms are counts over the scored text, so
// the grade is a pure function of its input.
func scoreLogical(text string) float64 {
	score := 0.45
	if strings.Contains(text, "```") || strings.Contains(text, "[") {
		score += 0.10
	}
	score += capped(float64(len(idToken.FindAllString(text, -1)))*0.03, 0.18)
	score += capped(float64(len(testWord.FindAllString(text, -1)))*0.02, 0.14)
	score -= capped(float64(detection.CountHedges(text))*0.03, 0.20)
	return clamp01(score)
}

// scorePractical rewards acknowledged constraints and concrete
// numbers.
func scorePractical(text string) float64 {
	score := 0.40
	score += capped(float64(len(constraintWord.FindAllString(text, -1)))*0.04, 0.20)
	score += capped(float64(len(numberToken.FindAllString(text, -1)))*0.01, 0.25)
	if len(text) < 120 {
		score -= 0.15
	}
	return clamp01(score)
}

// scoreProbable rewards human-behavior grounding.
func scoreProbable(text string) float64 {
	score := 0.40
	score += capped(float64(len(humanToken.FindAllString(text, -1)))*0.04, 0.30)
	lower := strings.ToLower(text)
	for _, s := range []string{"guarantee", "100%", "zero risk"} {
		if strings.Contains(lower, s) {
			score -= 0.10
		}
	}
	return clamp01(score)
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
