// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package governance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/detection"
)

func f64(v float64) *float64 { return &v }

func testCoupling() *Coupling {
	return &Coupling{Directives: map[string]DirectiveSpec{
		"D13": {Signal: detection.SignalSycophancy, Mode: ModeHard, IVMax: f64(0.62), IRDMin: f64(0.65)},
		"D3":  {Signal: detection.SignalContradiction, Mode: ModeHard, IVMax: f64(0.68), IRDMin: f64(0.55)},
		"D2":  {Signal: detection.SignalAmbiguity, Mode: ModeSoft},
	}}
}

func TestApplySycophancyHardGate(t *testing.T) {
	c := testCoupling()
	rec := &datatypes.TAESRecord{IV: 0.85, IRD: 0.10}
	findings := []detection.Finding{
		{Signal: detection.SignalSycophancy, Detected: true, Evidence: []string{"great question"}},
	}
	outcome := c.Apply(rec, findings)

	assert.Equal(t, []string{"D13"}, outcome.HardActions)
	assert.Equal(t, 0.62, rec.IV, "IV must clamp to iv_max")
	assert.Equal(t, 0.65, rec.IRD, "IRD must floor to ird_min")
	assert.Equal(t, 0.85, outcome.IVBefore)
	assert.Equal(t, 0.62, outcome.IVAfter)
}

func TestApplyPrecedenceStrictest(t *testing.T) {
	c := testCoupling()
	rec := &datatypes.TAESRecord{IV: 0.90, IRD: 0.10}
	findings := []detection.Finding{
		{Signal: detection.SignalSycophancy, Detected: true},
		{Signal: detection.SignalContradiction, Detected: true},
	}
	outcome := c.Apply(rec, findings)

	assert.ElementsMatch(t, []string{"D13", "D3"}, outcome.HardActions)
	// Strictest cap (0.62) and strictest floor (0.65) win.
	assert.Equal(t, 0.62, rec.IV)
	assert.Equal(t, 0.65, rec.IRD)
}

func TestApplyHardGatesOnlyLowerIVRaiseIRD(t *testing.T) {
	c := testCoupling()
	rec := &datatypes.TAESRecord{IV: 0.40, IRD: 0.90}
	findings := []detection.Finding{{Signal: detection.SignalSycophancy, Detected: true}}
	c.Apply(rec, findings)

	// A cap above the current IV and a floor below the current IRD
	// must change nothing.
	assert.Equal(t, 0.40, rec.IV)
	assert.Equal(t, 0.90, rec.IRD)
}

func TestApplySoftSignalNoScoreChange(t *testing.T) {
	c := testCoupling()
	rec := &datatypes.TAESRecord{IV: 0.80, IRD: 0.10}
	findings := []detection.Finding{{Signal: detection.SignalAmbiguity, Detected: true}}
	outcome := c.Apply(rec, findings)

	assert.Equal(t, []string{"D2"}, outcome.SoftSignals)
	assert.Empty(t, outcome.HardActions)
	assert.Equal(t, 0.80, rec.IV)
	assert.Equal(t, 0.10, rec.IRD)
}

func TestApplyUndetectedSignalIgnored(t *testing.T) {
	c := testCoupling()
	rec := &datatypes.TAESRecord{IV: 0.80, IRD: 0.10}
	outcome := c.Apply(rec, []detection.Finding{{Signal: detection.SignalSycophancy, Detected: false}})
	assert.Empty(t, outcome.HardActions)
	assert.Empty(t, outcome.SoftSignals)
}

func TestApplyFailClosedTreatsAllSoft(t *testing.T) {
	c := &Coupling{Unavailable: true, Directives: map[string]DirectiveSpec{
		"D13": {Signal: detection.SignalSycophancy, Mode: ModeHard, IVMax: f64(0.62)},
	}}
	rec := &datatypes.TAESRecord{IV: 0.90, IRD: 0.10}
	outcome := c.Apply(rec, []detection.Finding{{Signal: detection.SignalSycophancy, Detected: true}})

	assert.Contains(t, outcome.SoftSignals, CouplingUnavailableTag)
	assert.Contains(t, outcome.SoftSignals, "D13")
	assert.Empty(t, outcome.HardActions)
	assert.Equal(t, 0.90, rec.IV, "fail-closed must not clamp")
}

func TestLoadValidAndInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	content := `{"signals": {
        "D13": {"signal": "SYCOPHANCY", "mode": "hard", "iv_max": 0.62, "ird_min": 0.65},
        "BAD": {"signal": "X", "mode": "sideways"}
    }}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "governance_coupling.json"), []byte(content), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, c.Unavailable)
	assert.Contains(t, c.Directives, "D13")
	assert.NotContains(t, c.Directives, "BAD", "invalid mode must be skipped")
}

func TestLoadMissingFailsClosed(t *testing.T) {
	c, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, c.Unavailable)
}
