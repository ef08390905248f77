// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

func validStrategy(id string) datatypes.Strategy {
	return datatypes.Strategy{
		SID:             id,
		Title:           "Neighborhood trust blitz",
		Audience:        "local homeowners",
		Hooks:           []string{"photo proof"},
		ThreeStepPlan:   []string{"collect", "post", "offer"},
		AcceptanceTests: []string{"ten calls in a week"},
	}
}

func TestValidateS(t *testing.T) {
	tests := []struct {
		name    string
		items   []datatypes.Strategy
		wantOK  bool
		wantRsn Reason
	}{
		{
			name:    "empty array",
			items:   nil,
			wantOK:  false,
			wantRsn: ReasonEmpty,
		},
		{
			name:   "valid single entry",
			items:  []datatypes.Strategy{validStrategy("S-1")},
			wantOK: true,
		},
		{
			name: "malformed id",
			items: []datatypes.Strategy{func() datatypes.Strategy {
				s := validStrategy("S-1")
				s.SID = "STRAT-1"
				return s
			}()},
			wantOK:  false,
			wantRsn: ReasonBadID,
		},
		{
			name:    "duplicate ids",
			items:   []datatypes.Strategy{validStrategy("S-1"), validStrategy("S-1")},
			wantOK:  false,
			wantRsn: ReasonDuplicateID,
		},
		{
			name: "missing acceptance tests",
			items: []datatypes.Strategy{func() datatypes.Strategy {
				s := validStrategy("S-1")
				s.AcceptanceTests = nil
				return s
			}()},
			wantOK:  false,
			wantRsn: ReasonMissingField,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateS(tc.items)
			if res.OK != tc.wantOK {
				t.Fatalf("OK = %v, want %v (%s)", res.OK, tc.wantOK, res.Message)
			}
			if !tc.wantOK && res.Reason != tc.wantRsn {
				t.Errorf("Reason = %s, want %s", res.Reason, tc.wantRsn)
			}
		})
	}
}

func TestValidateAUnknownSRef(t *testing.T) {
	items := []datatypes.Analysis{{
		AID:            "A-1",
		SRefs:          []string{"S-1", "S-9"},
		KPITable:       []datatypes.KPIRow{{Metric: "calls", Target: 10, Unit: "calls"}},
		Falsifications: []string{"no calls by day four"},
	}}
	res := ValidateA(items, map[string]bool{"S-1": true})
	if res.OK {
		t.Fatal("expected failure for unknown S ref")
	}
	if res.Reason != ReasonBadRef {
		t.Errorf("Reason = %s, want %s", res.Reason, ReasonBadRef)
	}
	// The offending id must be cited verbatim.
	if !strings.Contains(res.Message, "S-9") {
		t.Errorf("error message %q does not name S-9", res.Message)
	}
	if len(res.Evidence) != 1 || res.Evidence[0] != "S-9" {
		t.Errorf("Evidence = %v, want [S-9]", res.Evidence)
	}
}

func TestValidatePSpecType(t *testing.T) {
	base := datatypes.Production{
		PID: "P-1", ARefs: []string{"A-1"}, SpecType: "copy_block", Body: "headline",
	}
	aIDs := map[string]bool{"A-1": true}

	if res := ValidateP([]datatypes.Production{base}, aIDs); !res.OK {
		t.Fatalf("valid P rejected: %s", res.Message)
	}
	bad := base
	bad.SpecType = "poster"
	res := ValidateP([]datatypes.Production{bad}, aIDs)
	if res.OK || res.Reason != ReasonBadEnum {
		t.Fatalf("expected bad_enum, got %+v", res)
	}
}

func TestValidateCUndeclaredAssets(t *testing.T) {
	assets := []datatypes.Production{
		{PID: "P-1"}, {PID: "P-2"}, {PID: "P-3"},
	}
	pIDs := map[string]bool{"P-1": true, "P-2": true, "P-3": true, "P-4": true}
	rows := []datatypes.CourierRow{
		{Day: "D1", Time: "09:00", Channel: "fb", PID: "P-4", KPITarget: "2 calls", OwnerAction: "post"},
	}
	res := ValidateC(rows, pIDs, assets)
	if res.OK {
		t.Fatal("expected failure for undeclared asset")
	}
	if want := "Courier used undeclared assets: {P-4}"; res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
}

func TestValidateCUnknownPID(t *testing.T) {
	rows := []datatypes.CourierRow{
		{Day: "D1", Time: "09:00", Channel: "fb", PID: "P-7", KPITarget: "2", OwnerAction: "post"},
	}
	res := ValidateC(rows, map[string]bool{"P-1": true}, nil)
	if res.OK || !strings.Contains(res.Message, "P-7") {
		t.Fatalf("expected unknown p_id error naming P-7, got %+v", res)
	}
}

func TestValidateX(t *testing.T) {
	sIDs := map[string]bool{"S-1": true}
	aIDs := map[string]bool{"A-1": true}
	pIDs := map[string]bool{"P-1": true}
	cIDs := map[string]bool{"D1": true}

	valid := datatypes.Critic{
		XID:      "X-1",
		Refs:     datatypes.CriticRefs{S: []string{"S-1"}, A: []string{"A-1"}, P: []string{"P-1"}},
		Issue:    "no baseline",
		Fix:      "record baseline",
		Severity: datatypes.SeverityMed,
		ProofScores: map[string]datatypes.FlexFloat{
			"evidence": 0.7, "impact": 0.6, "effort": 0.3, "confidence": 0.8, "coverage": 0.5,
		},
	}
	if res := ValidateX([]datatypes.Critic{valid}, sIDs, aIDs, pIDs, cIDs); !res.OK {
		t.Fatalf("valid X rejected: %s", res.Message)
	}

	twoKinds := valid
	twoKinds.Refs = datatypes.CriticRefs{S: []string{"S-1"}, A: []string{"A-1"}}
	res := ValidateX([]datatypes.Critic{twoKinds}, sIDs, aIDs, pIDs, cIDs)
	if res.OK || res.Reason != ReasonBadShape {
		t.Fatalf("expected span failure, got %+v", res)
	}

	badSeverity := valid
	badSeverity.Severity = "critical"
	if res := ValidateX([]datatypes.Critic{badSeverity}, sIDs, aIDs, pIDs, cIDs); res.OK {
		t.Fatal("expected severity failure")
	}

	fourScores := valid
	fourScores.ProofScores = map[string]datatypes.FlexFloat{"a": 1, "b": 1, "c": 1, "d": 1}
	if res := ValidateX([]datatypes.Critic{fourScores}, sIDs, aIDs, pIDs, cIDs); res.OK {
		t.Fatal("expected proof_scores dimension failure")
	}
}
