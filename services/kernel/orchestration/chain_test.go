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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGovern/services/kernel/fingerprint"
	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
)

// scriptedClient returns canned responses per role letter, consuming
// them in order so strict retries see the next script entry.
type scriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]string
}

func (c *scriptedClient) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	if strings.HasPrefix(system, "Micro-QA") {
		return "NONE", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, letter := range []string{"S", "A", "P", "C", "X"} {
		if strings.Contains(prompt, "array named "+letter) {
			queue := c.scripts[letter]
			if len(queue) == 0 {
				return "[]", nil
			}
			next := queue[0]
			if len(queue) > 1 {
				c.scripts[letter] = queue[1:]
			}
			return next, nil
		}
	}
	return "[]", nil
}

const (
	goodS = "Strategy below.\n```S\n[" +
		`{"s_id":"S-1","title":"Trust blitz","audience":"homeowners","hooks":["photo proof"],"three_step_plan":["collect","post","offer"],"acceptance_tests":["ten calls"]},` +
		`{"s_id":"S-2","title":"Referral loop","audience":"past clients","hooks":["discount"],"three_step_plan":["email","call","book"],"acceptance_tests":["three referrals"]},` +
		`{"s_id":"S-3","title":"Storm watch","audience":"insurance holders","hooks":["urgency"],"three_step_plan":["monitor","alert","quote"],"acceptance_tests":["two quotes"]}` +
		"]\n```"
	goodA = "```A\n[" +
		`{"a_id":"A-1","s_refs":["S-1","S-2","S-3"],"kpi_table":[{"metric":"inbound_calls","target":10,"unit":"calls"},{"metric":"bookings","target":5,"unit":"jobs"}],"falsifications":["under three calls by day four"],"risks":["weather"]}` +
		"]\n```"
	goodP = "```P\n[" +
		`{"p_id":"P-1","a_refs":["A-1"],"spec_type":"copy_block","body":"Same-week removal, photo proven."},` +
		`{"p_id":"P-2","a_refs":["A-1"],"spec_type":"api","body":"POST /v1/leads {name, phone, address}"},` +
		`{"p_id":"P-3","a_refs":["A-1"],"spec_type":"config","body":"channel=facebook_local budget=500"}` +
		"]\n```"
	goodC = "```C\n[" +
		`{"day":"D1","time":"09:00","channel":"facebook_local","p_id":"P-1","kpi_target":"2 calls","owner_action":"post"},` +
		`{"day":"D2","time":"09:00","channel":"facebook_local","p_id":"P-1","kpi_target":"2 calls","owner_action":"post"},` +
		`{"day":"D3","time":"10:00","channel":"nextdoor","p_id":"P-2","kpi_target":"1 lead","owner_action":"share"},` +
		`{"day":"D4","time":"10:00","channel":"nextdoor","p_id":"P-2","kpi_target":"1 lead","owner_action":"share"},` +
		`{"day":"D5","time":"11:00","channel":"email","p_id":"P-3","kpi_target":"2 replies","owner_action":"send"},` +
		`{"day":"D6","time":"11:00","channel":"email","p_id":"P-3","kpi_target":"2 replies","owner_action":"send"},` +
		`{"day":"D7","time":"12:00","channel":"facebook_local","p_id":"P-1","kpi_target":"2 calls","owner_action":"post recap"}` +
		"]\n```"
	goodX = "```X\n[" +
		`{"x_id":"X-1","refs":{"s":["S-1"],"a":["A-1"],"p":["P-1"],"c":[]},"issue":"no baseline","fix":"record baseline","severity":"med","proof_scores":{"evidence":0.7,"impact":0.6,"effort":0.3,"confidence":0.8,"coverage":0.5}}` +
		"]\n```"
)

// writeChainFixture builds a minimal base dir: role prompts, shapes,
// coupling, weights.
func writeChainFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rolesDir := filepath.Join(dir, "config", "roles", "default")
	require.NoError(t, os.MkdirAll(rolesDir, 0o755))
	for _, role := range []string{"strategist", "analyst", "producer", "courier", "critic"} {
		require.NoError(t, os.WriteFile(
			filepath.Join(rolesDir, role+"_stable.txt"),
			[]byte("You are the "+role+"."), 0o644))
	}
	coupling := `{"signals":{
        "D13": {"signal": "SYCOPHANCY", "mode": "hard", "iv_max": 0.62, "ird_min": 0.65},
        "D3": {"signal": "CONTRADICTION", "mode": "hard", "iv_max": 0.68, "ird_min": 0.55},
        "D17": {"signal": "REDUNDANCY", "mode": "soft"}
    }}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "governance_coupling.json"), []byte(coupling), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "role_shapes.json"), []byte(`{}`), 0o644))
	return dir
}

func newTestKernel(t *testing.T, client llm.Client) (*Kernel, string) {
	t.Helper()
	baseDir := writeChainFixture(t)
	ledgerDir := filepath.Join(baseDir, "logs", "ledger")
	signer, err := ledger.NewEd25519Signer(ledgerDir)
	require.NoError(t, err)
	auditLedger, err := ledger.Open(ledgerDir, signer)
	require.NoError(t, err)
	return &Kernel{
		BaseDir: baseDir,
		LogsDir: filepath.Join(baseDir, "logs"),
		Client:  client,
		Ledger:  auditLedger,
	}, ledgerDir
}

func TestRunChainHappyPath(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]string{
		"S": {goodS}, "A": {goodA}, "P": {goodP}, "C": {goodC}, "X": {goodX},
	}}
	kernel, ledgerDir := newTestKernel(t, client)

	result, err := kernel.RunChain(context.Background(), "Book 5 local jobs in 7 days for a tree service", "marketing", "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Failed(), "errors: %+v", result.Errors)

	// All five roles produced validated artifacts.
	for _, role := range []string{"strategist", "analyst", "producer", "courier", "critic"} {
		require.Contains(t, result.Roles, role)
		assert.NotNil(t, result.Roles[role].TAES)
	}
	assert.NotEmpty(t, result.Report)
	assert.NotEmpty(t, result.SessionID)

	// The config hash matches a fresh fingerprint of the fixture.
	wantHash, err := fingerprint.Compute(kernel.BaseDir)
	require.NoError(t, err)
	assert.Equal(t, wantHash, result.ConfigHash)

	// One ledger entry per role plus composer and session end, all
	// carrying the same config hash.
	lines, err := ledger.ReadLines(ledgerDir)
	require.NoError(t, err)
	roleEntries := 0
	for _, line := range lines {
		require.NotNil(t, line.Entry)
		assert.Equal(t, wantHash, line.Entry.ConfigHash)
		if line.Entry.Action == ledger.ActionRoleOutput {
			roleEntries++
		}
	}
	assert.Equal(t, 5, roleEntries)
}

func TestRunChainSycophancyHardGate(t *testing.T) {
	syco := "Great question, you're absolutely right to focus here!\n" + goodS
	client := &scriptedClient{scripts: map[string][]string{
		"S": {syco}, "A": {goodA}, "P": {goodP}, "C": {goodC}, "X": {goodX},
	}}
	kernel, ledgerDir := newTestKernel(t, client)

	result, err := kernel.RunChain(context.Background(), "plan the launch", "marketing", "sess-syco")
	require.NoError(t, err)

	strat := result.Roles["strategist"]
	require.NotNil(t, strat)
	require.NotNil(t, strat.Governance)
	assert.Equal(t, []string{"D13"}, strat.Governance.HardActions)
	assert.LessOrEqual(t, strat.TAES.IV, 0.62)
	assert.GreaterOrEqual(t, strat.TAES.IRD, 0.65)

	// The ledger entry for the Strategist lists the hard action.
	lines, err := ledger.ReadLines(ledgerDir)
	require.NoError(t, err)
	found := false
	for _, line := range lines {
		if line.Entry != nil && line.Entry.Role == "Strategist" && line.Entry.Action == ledger.ActionRoleOutput {
			assert.Equal(t, []string{"D13"}, line.Entry.HardActions)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunChainCourierCrossRefViolation(t *testing.T) {
	badC := strings.ReplaceAll(goodC, `"p_id":"P-1"`, `"p_id":"P-4"`)
	client := &scriptedClient{scripts: map[string][]string{
		"S": {goodS}, "A": {goodA}, "P": {goodP},
		// Both the initial attempt and the strict retry schedule the
		// undeclared asset.
		"C": {badC, badC}, "X": {goodX},
	}}
	kernel, _ := newTestKernel(t, client)

	result, err := kernel.RunChain(context.Background(), "plan the launch", "marketing", "sess-courier")
	require.NoError(t, err)

	assert.True(t, result.Failed())
	var courierErr string
	for _, e := range result.Errors {
		if e.Role == "Courier" {
			courierErr = e.Detail
			assert.Equal(t, "role_failure", e.Kind)
		}
	}
	assert.Contains(t, courierErr, "P-4", "error must name the undeclared asset")

	// The Critic still ran on whatever exists.
	assert.Contains(t, result.Roles, "critic")
	assert.NotContains(t, result.Roles, "courier")
}

func TestRunChainEmptyStrategistFails(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]string{
		"S": {"```S\n[]\n```", "```S\n[]\n```"},
	}}
	kernel, _ := newTestKernel(t, client)

	result, err := kernel.RunChain(context.Background(), "plan the launch", "marketing", "sess-empty")
	require.NoError(t, err)
	assert.True(t, result.Failed())
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "Strategist", result.Errors[0].Role)
	assert.Equal(t, "role_failure", result.Errors[0].Kind)
	// Downstream roles never ran.
	assert.NotContains(t, result.Roles, "analyst")
}

func TestRunChainStrictRetryRecovers(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]string{
		"S": {"I cannot answer in JSON right now.", goodS},
		"A": {goodA}, "P": {goodP}, "C": {goodC}, "X": {goodX},
	}}
	kernel, _ := newTestKernel(t, client)

	result, err := kernel.RunChain(context.Background(), "plan the launch", "marketing", "sess-retry")
	require.NoError(t, err)
	assert.False(t, result.Failed(), "errors: %+v", result.Errors)
	assert.Equal(t, 2, result.Roles["strategist"].Attempts)
}

func TestRunChainUnknownDomain(t *testing.T) {
	kernel, _ := newTestKernel(t, &scriptedClient{scripts: map[string][]string{}})
	_, err := kernel.RunChain(context.Background(), "objective", "astrology", "")
	assert.Error(t, err)
}

func TestRunChainMissingCouplingFailsClosed(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]string{
		"S": {goodS}, "A": {goodA}, "P": {goodP}, "C": {goodC}, "X": {goodX},
	}}
	kernel, _ := newTestKernel(t, client)
	require.NoError(t, os.Remove(filepath.Join(kernel.BaseDir, "config", "governance_coupling.json")))

	result, err := kernel.RunChain(context.Background(), "plan the launch", "marketing", "sess-noconf")
	require.NoError(t, err)
	assert.False(t, result.Failed())

	// The config error is surfaced but the chain completed.
	sawConfigErr := false
	for _, e := range result.Errors {
		if e.Kind == "config_error" {
			sawConfigErr = true
		}
	}
	assert.True(t, sawConfigErr)
	assert.Contains(t, result.Roles, "critic")
}
