// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taes

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// AxisWeights holds the per-domain weighting of the three TAES axes.
// The three values must sum to 1 within a small tolerance.
type AxisWeights struct {
	Logical   float64 `json:"logical" validate:"gte=0,lte=1"`
	Practical float64 `json:"practical" validate:"gte=0,lte=1"`
	Probable  float64 `json:"probable" validate:"gte=0,lte=1"`
}

// CanonicalWeights is the fixed weighting used for the ledger's IV
// field regardless of domain.
var CanonicalWeights = AxisWeights{Logical: 0.5, Practical: 0.35, Probable: 0.15}

// RRPWeights shifts scoring toward probable for the Reality
// Reconciliation Pass.
var RRPWeights = AxisWeights{Logical: 0.3, Practical: 0.3, Probable: 0.4}

// DefaultDomainWeights is the built-in weight table, used when
// config/taes_weights.json is absent or invalid.
var DefaultDomainWeights = map[string]AxisWeights{
	"technical": {0.60, 0.35, 0.05},
	"ops":       {0.40, 0.45, 0.15},
	"marketing": {0.30, 0.20, 0.50},
	"creative":  {0.35, 0.25, 0.40},
	"education": {0.45, 0.35, 0.20},
	"product":   {0.40, 0.40, 0.20},
	"strategy":  {0.45, 0.35, 0.20},
	"research":  {0.55, 0.30, 0.15},
	"finance":   {0.50, 0.35, 0.15},
}

var validate = validator.New()

// LoadDomainWeights reads config/taes_weights.json under baseDir and
// merges it over the built-in table. Entries that fail validation are
// skipped; a missing file returns the defaults with no error so the
// chain can proceed (the config fingerprint still records absence).
func LoadDomainWeights(baseDir string) (map[string]AxisWeights, error) {
	out := make(map[string]AxisWeights, len(DefaultDomainWeights))
	for k, v := range DefaultDomainWeights {
		out[k] = v
	}
	path := filepath.Join(baseDir, "config", "taes_weights.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("read taes weights: %w", err)
	}
	var parsed map[string]AxisWeights
	if err := json.Unmarshal(data, &parsed); err != nil {
		return out, fmt.Errorf("parse taes weights: %w", err)
	}
	for domain, w := range parsed {
		if err := validate.Struct(w); err != nil {
			continue
		}
		if math.Abs(w.Logical+w.Practical+w.Probable-1.0) > 0.01 {
			continue
		}
		out[domain] = w
	}
	return out, nil
}

// ForDomain returns the weights for a domain, falling back to the
// canonical weighting for unknown labels.
func ForDomain(table map[string]AxisWeights, domain string) AxisWeights {
	if w, okDomain := table[domain]; okDomain {
		return w
	}
	return CanonicalWeights
}
