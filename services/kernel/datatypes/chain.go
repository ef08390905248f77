// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"time"
)

// Domains is the closed set of supported domain labels.
var Domains = []string{
	"marketing", "technical", "ops", "creative", "education",
	"product", "strategy", "research", "finance",
}

// ValidDomain reports whether d is one of the supported domain labels.
func ValidDomain(d string) bool {
	for _, k := range Domains {
		if k == d {
			return true
		}
	}
	return false
}

// ObjectiveSpec is the immutable per-session input. The orchestrator
// builds curated slices of it for each role; roles never see upstream
// prose beyond their slice.
type ObjectiveSpec struct {
	Objective string `json:"objective"`
	Domain    string `json:"domain,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TAESRecord carries the tri-axis scores for one role output.
//
// IV is always the canonical weighting (0.5 logical, 0.35 practical,
// 0.15 probable). DomainQuality is the domain-weighted aggregate and is
// reported alongside, never written in place of IV.
type TAESRecord struct {
	Role           string  `json:"role"`
	Domain         string  `json:"domain"`
	Logical        float64 `json:"logical"`
	Practical      float64 `json:"practical"`
	Probable       float64 `json:"probable"`
	IV             float64 `json:"iv"`
	DomainQuality  float64 `json:"domain_quality"`
	IRD            float64 `json:"ird"`
	Contradictions int     `json:"contradictions"`
	Hedges         int     `json:"hedges"`
	RequiresRRP    bool    `json:"requires_reconciliation"`
	RRPApplied     bool    `json:"rrp_applied,omitempty"`
}

// GovernanceOutcome records what the coupling did to a role's TAES.
type GovernanceOutcome struct {
	HardActions []string `json:"hard_actions,omitempty"`
	SoftSignals []string `json:"soft_signals,omitempty"`
	IVBefore    float64  `json:"iv_before"`
	IVAfter     float64  `json:"iv_after"`
	IRDBefore   float64  `json:"ird_before"`
	IRDAfter    float64  `json:"ird_after"`
}

// RoleResult is the per-role slice of the chain result.
type RoleResult struct {
	Output      string             `json:"output"`
	TAES        *TAESRecord        `json:"taes,omitempty"`
	Governance  *GovernanceOutcome `json:"governance,omitempty"`
	Redundancy  float64            `json:"redundancy,omitempty"`
	Temperature float32            `json:"temperature"`
	Attempts    int                `json:"attempts"`
}

// ChainError is one failure surfaced on the chain result. Whatever
// artifacts were produced before the failure are still returned.
type ChainError struct {
	Role   string `json:"role"`
	Kind   string `json:"kind"` // transport_error | role_failure | role_timeout | config_error
	Detail string `json:"detail"`
}

// ChainResult is the full result of one session.
type ChainResult struct {
	SessionID  string                 `json:"session_id"`
	Domain     string                 `json:"domain"`
	ConfigHash string                 `json:"config_hash"`
	Roles      map[string]*RoleResult `json:"roles"`
	Registry   json.RawMessage        `json:"registry"`
	Report     string                 `json:"report,omitempty"`
	Errors     []ChainError           `json:"errors,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Failed reports whether any fatal role failure occurred.
func (c *ChainResult) Failed() bool {
	for _, e := range c.Errors {
		if e.Kind == "role_failure" || e.Kind == "role_timeout" {
			return true
		}
	}
	return false
}
