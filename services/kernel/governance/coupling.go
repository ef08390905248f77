// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package governance maps detected signals onto directive enforcement:
// hard directives clamp the Integrity Vector down and floor the IRD up,
// soft directives only tag the audit record. The coupling config is the
// single source of truth for which directive is hard; when it cannot be
// loaded the kernel fails closed to soft-only behavior.
package governance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/detection"
)

// Mode classifies a directive's enforcement.
type Mode string

const (
	ModeHard Mode = "hard"
	ModeSoft Mode = "soft"
)

// CouplingUnavailableTag is recorded as a soft signal whenever the
// coupling config could not be loaded and the kernel is running
// fail-closed.
const CouplingUnavailableTag = "COUPLING_UNAVAILABLE"

// DirectiveSpec is one entry of governance_coupling.json.
type DirectiveSpec struct {
	Signal string   `json:"signal" validate:"required"`
	Mode   Mode     `json:"mode" validate:"required,oneof=hard soft"`
	IVMax  *float64 `json:"iv_max,omitempty" validate:"omitempty,gte=0,lte=1"`
	IRDMin *float64 `json:"ird_min,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Coupling is the loaded directive map plus its availability state.
type Coupling struct {
	// Directives maps directive ids (D3, D13, ...) to their spec.
	Directives map[string]DirectiveSpec
	// Unavailable is true when the config could not be loaded and all
	// signals are treated as soft.
	Unavailable bool
}

var validate = validator.New()

// Load reads config/governance_coupling.json under baseDir.
//
// Invalid entries are skipped with a warning; a missing or unparseable
// file returns a fail-closed coupling (Unavailable=true) and a non-nil
// error so the orchestrator can write the config_error ledger entry
// while continuing the chain.
func Load(baseDir string) (*Coupling, error) {
	path := filepath.Join(baseDir, "config", "governance_coupling.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return &Coupling{Unavailable: true}, fmt.Errorf("read governance coupling: %w", err)
	}
	var file struct {
		Signals map[string]DirectiveSpec `json:"signals"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return &Coupling{Unavailable: true}, fmt.Errorf("parse governance coupling: %w", err)
	}
	out := &Coupling{Directives: make(map[string]DirectiveSpec, len(file.Signals))}
	for id, spec := range file.Signals {
		if err := validate.Struct(spec); err != nil {
			slog.Warn("invalid governance spec, skipping", "directive", id, "error", err)
			continue
		}
		out.Directives[id] = spec
	}
	return out, nil
}

// Apply evaluates the detector findings against the coupling and
// mutates the TAES record in place.
//
// Precedence: when multiple hard directives trigger, the strictest cap
// (lowest iv_max) and strictest floor (highest ird_min) win. Hard
// directives can only lower IV and raise IRD, never the converse.
func (c *Coupling) Apply(rec *datatypes.TAESRecord, findings []detection.Finding) *datatypes.GovernanceOutcome {
	outcome := &datatypes.GovernanceOutcome{
		IVBefore:  rec.IV,
		IRDBefore: rec.IRD,
		IVAfter:   rec.IV,
		IRDAfter:  rec.IRD,
	}
	if c.Unavailable {
		outcome.SoftSignals = append(outcome.SoftSignals, CouplingUnavailableTag)
	}

	bySignal := make(map[string][]string)
	for id, spec := range c.Directives {
		bySignal[spec.Signal] = append(bySignal[spec.Signal], id)
	}
	for sig := range bySignal {
		sort.Strings(bySignal[sig])
	}

	var ivCap, irdFloor *float64
	for _, f := range findings {
		if !f.Detected {
			continue
		}
		for _, id := range bySignal[f.Signal] {
			spec := c.Directives[id]
			if c.Unavailable || spec.Mode == ModeSoft {
				outcome.SoftSignals = appendUnique(outcome.SoftSignals, id)
				continue
			}
			outcome.HardActions = appendUnique(outcome.HardActions, id)
			if spec.IVMax != nil && (ivCap == nil || *spec.IVMax < *ivCap) {
				ivCap = spec.IVMax
			}
			if spec.IRDMin != nil && (irdFloor == nil || *spec.IRDMin > *irdFloor) {
				irdFloor = spec.IRDMin
			}
		}
		// Signals with no configured directive still deserve an audit
		// trace under their own name.
		if len(bySignal[f.Signal]) == 0 {
			outcome.SoftSignals = appendUnique(outcome.SoftSignals, f.Signal)
		}
	}

	if ivCap != nil && rec.IV > *ivCap {
		rec.IV = *ivCap
	}
	if irdFloor != nil && rec.IRD < *irdFloor {
		rec.IRD = *irdFloor
	}
	if len(outcome.HardActions) > 0 {
		rec.RequiresRRP = rec.IRD > 0.5
	}
	outcome.IVAfter = rec.IV
	outcome.IRDAfter = rec.IRD
	sort.Strings(outcome.HardActions)
	sort.Strings(outcome.SoftSignals)
	return outcome
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
