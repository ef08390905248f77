// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
)

// buildLedger writes a small valid session ledger and returns its dir.
func buildLedger(t *testing.T, entries int) string {
	t.Helper()
	dir := t.TempDir()
	signer, err := ledger.NewEd25519Signer(dir)
	require.NoError(t, err)
	l, err := ledger.Open(dir, signer)
	require.NoError(t, err)
	for i := 0; i < entries; i++ {
		_, err := l.Append("sess-v", "Strategist", ledger.ActionRoleOutput,
			map[string]int{"n": i}, nil, nil, "sha256:cfg")
		require.NoError(t, err)
	}
	return dir
}

func readLedgerLines(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLedgerLines(t *testing.T, dir string, lines []string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.jsonl"), []byte(content), 0o600))
}

func TestWalkVerifiedAndIdempotent(t *testing.T) {
	dir := buildLedger(t, 6)
	v := NewVerifier(dir)

	first := v.Walk()
	assert.True(t, first.Verified, "untouched ledger must verify: %+v", first.Details)
	assert.Equal(t, 6, first.Entries)
	assert.Empty(t, first.Details)

	second := v.Walk()
	assert.Equal(t, first.Verified, second.Verified, "verification must be idempotent")
	assert.Equal(t, first.Entries, second.Entries)
}

func TestWalkDetectsModification(t *testing.T) {
	dir := buildLedger(t, 4)
	lines := readLedgerLines(t, dir)

	// Flip one character of a stored payload_hash.
	var entry ledger.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	flip := "0"
	if entry.PayloadHash[0] == '0' {
		flip = "1"
	}
	entry.PayloadHash = flip + entry.PayloadHash[1:]
	mutated, err := json.Marshal(entry)
	require.NoError(t, err)
	lines[2] = string(mutated)
	writeLedgerLines(t, dir, lines)

	report := NewVerifier(dir).Walk()
	assert.False(t, report.Verified)
	kinds := map[string]bool{}
	for _, d := range report.Details {
		if d.Seq == entry.Seq {
			kinds[d.Error] = true
		}
	}
	// Modifying the signed substrate breaks both the stored hash and
	// the signature.
	assert.True(t, kinds[ErrHashMismatch] || kinds[ErrSigInvalid],
		"expected hash_mismatch or sig_invalid at seq %d: %+v", entry.Seq, report.Details)
}

func TestWalkDetectsForgedAppend(t *testing.T) {
	dir := buildLedger(t, 3)
	lines := readLedgerLines(t, dir)

	var last ledger.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))

	// Forge an entry signed with an unknown key but with a correct
	// chain link and self-consistent this_hash.
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	forged := ledger.Entry{
		Seq:         last.Seq + 1,
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:   "sess-v",
		Role:        "Strategist",
		Action:      ledger.ActionRoleOutput,
		PayloadHash: last.PayloadHash,
		PrevHash:    last.ThisHash,
		SignerKeyID: last.SignerKeyID,
		ConfigHash:  last.ConfigHash,
	}
	canonical, err := forged.CanonicalFields()
	require.NoError(t, err)
	forged.Signature = hex.EncodeToString(ed25519.Sign(priv, canonical))
	forged.ThisHash = ledger.ChainHash(canonical, forged.Signature)
	raw, err := json.Marshal(forged)
	require.NoError(t, err)
	writeLedgerLines(t, dir, append(lines, string(raw)))

	report := NewVerifier(dir).Walk()
	assert.False(t, report.Verified)
	found := false
	for _, d := range report.Details {
		if d.Seq == forged.Seq && d.Error == ErrSigInvalid {
			found = true
		}
	}
	assert.True(t, found, "forged entry must flag sig_invalid: %+v", report.Details)
}

func TestWalkDetectsMalformedLine(t *testing.T) {
	dir := buildLedger(t, 3)
	lines := readLedgerLines(t, dir)
	mangled := append([]string{lines[0], "{not json"}, lines[1:]...)
	writeLedgerLines(t, dir, mangled)

	report := NewVerifier(dir).Walk()
	assert.False(t, report.Verified)

	sawInvalid, sawBreak := false, false
	for _, d := range report.Details {
		switch d.Error {
		case ErrInvalidJSON:
			sawInvalid = true
		case ErrChainBreak:
			sawBreak = true
		}
	}
	assert.True(t, sawInvalid, "malformed line must flag invalid_json")
	assert.True(t, sawBreak, "chain is broken from the malformed point")
}

func TestWalkMissingPublicKey(t *testing.T) {
	dir := buildLedger(t, 2)
	require.NoError(t, os.Remove(filepath.Join(dir, "public.key")))

	report := NewVerifier(dir).Walk()
	assert.False(t, report.Verified)
	for _, d := range report.Details {
		assert.Equal(t, ErrMissingPublicKey, d.Error)
	}
	assert.Len(t, report.Details, 2)
}

func TestWalkFollowsRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	signer, err := ledger.NewEd25519Signer(dir)
	require.NoError(t, err)
	l, err := ledger.Open(dir, signer, ledger.WithMaxFileSize(512))
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err := l.Append("sess-r", "Producer", ledger.ActionRoleOutput,
			strings.Repeat("y", 128), nil, nil, "h")
		require.NoError(t, err)
	}

	report := NewVerifier(dir).Walk()
	assert.True(t, report.Verified, "rotated chain must verify: %+v", report.Details)
	assert.Greater(t, report.Entries, 12, "rollover entries included")
}

func TestHMACLedgerVerifies(t *testing.T) {
	dir := t.TempDir()
	signer, err := ledger.NewHMACSigner(dir)
	require.NoError(t, err)
	defer signer.Destroy()
	l, err := ledger.Open(dir, signer)
	require.NoError(t, err)
	_, err = l.Append("sess-h", "Courier", ledger.ActionRoleOutput, "x", nil, nil, "h")
	require.NoError(t, err)

	report := NewVerifier(dir).Walk()
	assert.True(t, report.Verified, "%+v", report.Details)
}

func TestReportStoreRetention(t *testing.T) {
	dir := t.TempDir()
	store, err := NewReportStore(dir)
	require.NoError(t, err)

	name, err := store.Write(Report{Verified: true, Entries: 3})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "verify_"))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Verified)
	assert.NotEmpty(t, list[0].TS)
}
