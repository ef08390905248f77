// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks parsed role artifacts for schema and
// reference integrity before they enter the session registry.
//
// Validators never panic and never use errors for control flow: each
// returns a Result with a machine-readable reason and the offending
// ids quoted verbatim so the strict re-prompt can cite them.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

// Reason classifies why a validator rejected an artifact array.
type Reason string

const (
	ReasonOK           Reason = "ok"
	ReasonEmpty        Reason = "empty"
	ReasonBadID        Reason = "bad_id"
	ReasonDuplicateID  Reason = "duplicate_id"
	ReasonMissingField Reason = "missing_field"
	ReasonBadEnum      Reason = "bad_enum"
	ReasonBadRef       Reason = "bad_ref"
	ReasonBadShape     Reason = "bad_shape"
)

// Result is the outcome of one validation pass.
type Result struct {
	OK       bool
	Reason   Reason
	Message  string
	Evidence []string // offending ids or field names, verbatim
}

func ok() Result {
	return Result{OK: true, Reason: ReasonOK, Message: "ok"}
}

func fail(reason Reason, evidence []string, format string, args ...any) Result {
	return Result{
		OK:       false,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
		Evidence: evidence,
	}
}

var (
	sidPattern = regexp.MustCompile(`^S-\d+$`)
	aidPattern = regexp.MustCompile(`^A-\d+$`)
	pidPattern = regexp.MustCompile(`^P-\d+$`)
	xidPattern = regexp.MustCompile(`^X-\d+$`)
)

// sortedKeys renders a string set deterministically for error messages.
func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// missingRefs returns the refs not present in the given id set.
func missingRefs(refs []string, ids map[string]bool) []string {
	var missing []string
	for _, r := range refs {
		if !ids[r] {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return missing
}

// ValidateS checks a Strategist array: id pattern, required fields
// non-empty, at least one acceptance test per entry, unique ids.
func ValidateS(items []datatypes.Strategy) Result {
	if len(items) == 0 {
		return fail(ReasonEmpty, nil, "S must be a non-empty array")
	}
	seen := map[string]bool{}
	for _, it := range items {
		if !sidPattern.MatchString(it.SID) {
			return fail(ReasonBadID, []string{it.SID}, "S entry has malformed s_id %q", it.SID)
		}
		if seen[it.SID] {
			return fail(ReasonDuplicateID, []string{it.SID}, "duplicate s_id %q", it.SID)
		}
		seen[it.SID] = true
		if strings.TrimSpace(it.Title) == "" || strings.TrimSpace(it.Audience) == "" {
			return fail(ReasonMissingField, []string{it.SID}, "%s missing title or audience", it.SID)
		}
		if len(it.Hooks) == 0 {
			return fail(ReasonMissingField, []string{it.SID}, "%s needs at least one hook", it.SID)
		}
		if len(it.ThreeStepPlan) == 0 {
			return fail(ReasonMissingField, []string{it.SID}, "%s missing three_step_plan", it.SID)
		}
		if len(it.AcceptanceTests) == 0 {
			return fail(ReasonMissingField, []string{it.SID}, "%s needs at least one acceptance test", it.SID)
		}
	}
	return ok()
}

// ValidateA checks an Analyst array against the existing S id set.
// KPI rows must carry a metric, a numeric target, and a unit.
func ValidateA(items []datatypes.Analysis, sIDs map[string]bool) Result {
	if len(items) == 0 {
		return fail(ReasonEmpty, nil, "A must be a non-empty array")
	}
	seen := map[string]bool{}
	for _, it := range items {
		if !aidPattern.MatchString(it.AID) {
			return fail(ReasonBadID, []string{it.AID}, "A entry has malformed a_id %q", it.AID)
		}
		if seen[it.AID] {
			return fail(ReasonDuplicateID, []string{it.AID}, "duplicate a_id %q", it.AID)
		}
		seen[it.AID] = true
		if missing := missingRefs(it.SRefs, sIDs); len(missing) > 0 {
			return fail(ReasonBadRef, missing,
				"%s references unknown S ids: %s", it.AID, strings.Join(missing, ", "))
		}
		if len(it.KPITable) == 0 {
			return fail(ReasonMissingField, []string{it.AID}, "%s needs at least one KPI row", it.AID)
		}
		for _, row := range it.KPITable {
			if strings.TrimSpace(row.Metric) == "" || strings.TrimSpace(row.Unit) == "" {
				return fail(ReasonMissingField, []string{it.AID},
					"%s KPI row missing metric or unit", it.AID)
			}
		}
		if len(it.Falsifications) == 0 {
			return fail(ReasonMissingField, []string{it.AID},
				"%s needs at least one falsification", it.AID)
		}
	}
	return ok()
}

// ValidateP checks a Producer array against the existing A id set.
func ValidateP(items []datatypes.Production, aIDs map[string]bool) Result {
	if len(items) == 0 {
		return fail(ReasonEmpty, nil, "P must be a non-empty array")
	}
	seen := map[string]bool{}
	for _, it := range items {
		if !pidPattern.MatchString(it.PID) {
			return fail(ReasonBadID, []string{it.PID}, "P entry has malformed p_id %q", it.PID)
		}
		if seen[it.PID] {
			return fail(ReasonDuplicateID, []string{it.PID}, "duplicate p_id %q", it.PID)
		}
		seen[it.PID] = true
		if missing := missingRefs(it.ARefs, aIDs); len(missing) > 0 {
			return fail(ReasonBadRef, missing,
				"%s references unknown A ids: %s", it.PID, strings.Join(missing, ", "))
		}
		if !datatypes.SpecTypes[it.SpecType] {
			return fail(ReasonBadEnum, []string{it.SpecType},
				"%s has invalid spec_type %q", it.PID, it.SpecType)
		}
		if strings.TrimSpace(it.Body) == "" {
			return fail(ReasonMissingField, []string{it.PID}, "%s has empty body", it.PID)
		}
	}
	return ok()
}

// ValidateC checks a Courier array. Every row must reference a known
// P id; when producerAssets is non-nil the row p_ids must additionally
// be a subset of the explicitly handed-off asset list, and the error
// names the exact undeclared ids.
func ValidateC(items []datatypes.CourierRow, pIDs map[string]bool, producerAssets []datatypes.Production) Result {
	if len(items) == 0 {
		return fail(ReasonEmpty, nil, "C must be a non-empty array")
	}
	for i, row := range items {
		if strings.TrimSpace(row.Day) == "" || strings.TrimSpace(row.Channel) == "" ||
			strings.TrimSpace(row.KPITarget) == "" || strings.TrimSpace(row.OwnerAction) == "" {
			return fail(ReasonMissingField, nil, "C row %d missing required fields", i+1)
		}
		if !pIDs[row.PID] {
			return fail(ReasonBadRef, []string{row.PID},
				"C row %d references unknown p_id %q", i+1, row.PID)
		}
	}
	if producerAssets != nil {
		declared := make(map[string]bool, len(producerAssets))
		for _, asset := range producerAssets {
			declared[asset.PID] = true
		}
		undeclared := map[string]bool{}
		for _, row := range items {
			if !declared[row.PID] {
				undeclared[row.PID] = true
			}
		}
		if len(undeclared) > 0 {
			missing := sortedKeys(undeclared)
			return fail(ReasonBadRef, missing,
				"Courier used undeclared assets: {%s}", strings.Join(missing, ", "))
		}
	}
	return ok()
}

// ValidateX checks a Critic array: refs must collectively span at
// least three artifact kinds, every ref must resolve, severity is from
// the closed set, and proof_scores has exactly five numeric dimensions.
func ValidateX(items []datatypes.Critic, sIDs, aIDs, pIDs, cIDs map[string]bool) Result {
	if len(items) == 0 {
		return fail(ReasonEmpty, nil, "X must be a non-empty array")
	}
	spanned := map[string]bool{}
	for _, it := range items {
		if !xidPattern.MatchString(it.XID) {
			return fail(ReasonBadID, []string{it.XID}, "X entry has malformed x_id %q", it.XID)
		}
		for kind, check := range map[string]struct {
			refs []string
			ids  map[string]bool
		}{
			"S": {it.Refs.S, sIDs},
			"A": {it.Refs.A, aIDs},
			"P": {it.Refs.P, pIDs},
			"C": {it.Refs.C, cIDs},
		} {
			if missing := missingRefs(check.refs, check.ids); len(missing) > 0 {
				return fail(ReasonBadRef, missing,
					"%s references unknown %s ids: %s", it.XID, kind, strings.Join(missing, ", "))
			}
			if len(check.refs) > 0 {
				spanned[kind] = true
			}
		}
		switch it.Severity {
		case datatypes.SeverityLow, datatypes.SeverityMed, datatypes.SeverityHigh:
		default:
			return fail(ReasonBadEnum, []string{it.Severity},
				"%s has invalid severity %q", it.XID, it.Severity)
		}
		if len(it.ProofScores) != 5 {
			return fail(ReasonBadShape, []string{it.XID},
				"%s proof_scores must have five numeric dimensions, got %d", it.XID, len(it.ProofScores))
		}
	}
	if len(spanned) < 3 {
		return fail(ReasonBadShape, sortedKeys(spanned),
			"X refs span %d kinds, need at least 3", len(spanned))
	}
	return ok()
}
