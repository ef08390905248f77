// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the typed artifacts exchanged between the
// governance chain roles, the session registry that owns them, and the
// result structures returned to callers.
//
// The five artifact kinds map one-to-one to the chain roles:
//
//	S - Strategist   strategy entries (S-1, S-2, ...)
//	A - Analyst      analysis entries referencing S ids
//	P - Producer     production assets referencing A ids
//	C - Courier      schedule rows referencing P ids
//	X - Critic       audit findings cross-referencing S/A/P/C
//
// Artifacts become immutable once written to the registry; the registry
// itself is session-scoped and exclusively owned by the orchestrator.
package datatypes

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies an artifact family in the registry.
type Kind string

const (
	KindStrategy   Kind = "S"
	KindAnalysis   Kind = "A"
	KindProduction Kind = "P"
	KindCourier    Kind = "C"
	KindCritic     Kind = "X"
)

// Severity levels allowed on Critic findings.
const (
	SeverityLow  = "low"
	SeverityMed  = "med"
	SeverityHigh = "high"
)

// SpecTypes enumerates the allowed Producer spec_type values.
var SpecTypes = map[string]bool{
	"api":         true,
	"ddl":         true,
	"config":      true,
	"copy_block":  true,
	"wiring":      true,
	"prompt_pack": true,
}

// FlexFloat decodes a JSON number that models sometimes emit as a
// quoted string ("42" or "42%"). Trailing percent signs are tolerated
// because KPI targets are frequently expressed that way.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty number")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n := len(s); n > 0 && s[n-1] == '%' {
			s = s[:n-1]
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("non-numeric value %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Strategy is one Strategist entry (kind S).
type Strategy struct {
	SID             string   `json:"s_id"`
	Title           string   `json:"title"`
	Audience        string   `json:"audience"`
	Hooks           []string `json:"hooks"`
	ThreeStepPlan   []string `json:"three_step_plan"`
	AcceptanceTests []string `json:"acceptance_tests"`
}

// KPIRow is a single row of an Analyst KPI table.
type KPIRow struct {
	Metric string    `json:"metric"`
	Target FlexFloat `json:"target"`
	Unit   string    `json:"unit"`
}

// Analysis is one Analyst entry (kind A). SRefs must resolve to
// Strategist ids in the same session.
type Analysis struct {
	AID            string   `json:"a_id"`
	SRefs          []string `json:"s_refs"`
	KPITable       []KPIRow `json:"kpi_table"`
	Falsifications []string `json:"falsifications"`
	Risks          []string `json:"risks"`
}

// Production is one Producer asset (kind P).
type Production struct {
	PID      string   `json:"p_id"`
	ARefs    []string `json:"a_refs"`
	SpecType string   `json:"spec_type"`
	Body     string   `json:"body"`
}

// CourierRow is one Courier schedule row (kind C). Rows have no id of
// their own; PID must reference an asset the Producer declared.
type CourierRow struct {
	Day         string `json:"day"`
	Time        string `json:"time"`
	Channel     string `json:"channel"`
	PID         string `json:"p_id"`
	KPITarget   string `json:"kpi_target"`
	OwnerAction string `json:"owner_action"`
}

// CriticRefs groups the upstream ids a Critic finding points at.
type CriticRefs struct {
	S []string `json:"s"`
	A []string `json:"a"`
	P []string `json:"p"`
	C []string `json:"c"`
}

// KindsSpanned counts how many artifact kinds carry at least one ref.
func (r CriticRefs) KindsSpanned() int {
	n := 0
	for _, refs := range [][]string{r.S, r.A, r.P, r.C} {
		if len(refs) > 0 {
			n++
		}
	}
	return n
}

// Critic is one Critic finding (kind X).
type Critic struct {
	XID         string               `json:"x_id"`
	Refs        CriticRefs           `json:"refs"`
	Issue       string               `json:"issue"`
	Fix         string               `json:"fix"`
	Severity    string               `json:"severity"`
	ProofScores map[string]FlexFloat `json:"proof_scores"`
}

// QANote records one bounded micro-Q&A exchange between two roles.
type QANote struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
