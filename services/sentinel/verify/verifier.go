// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify implements the independent ledger verifier. It is
// strictly read-only over the ledger directory: it re-reads every
// entry, recomputes the canonical hashes and chain links, and verifies
// every signature against the published key. Reports go to the
// sentinel's own report directory, never the ledger's.
package verify

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
)

// Mismatch reasons reported per entry.
const (
	ErrSigInvalid       = "sig_invalid"
	ErrHashMismatch     = "hash_mismatch"
	ErrInvalidJSON      = "invalid_json"
	ErrChainBreak       = "chain_break"
	ErrMissingPublicKey = "missing_public_key"
)

// Detail is one per-entry finding. Seq is -1 for unparseable lines
// that carry no usable sequence number.
type Detail struct {
	Seq   int64  `json:"seq"`
	Error string `json:"error,omitempty"`
	File  string `json:"file,omitempty"`
	Line  int    `json:"line,omitempty"`
}

// Report is the result of one full verification walk.
type Report struct {
	Verified bool     `json:"verified"`
	Entries  int      `json:"entries"`
	Details  []Detail `json:"details"`
	TS       string   `json:"ts"`
}

// Verifier walks a ledger directory. It holds only the published key
// material and never opens any ledger file for writing.
type Verifier struct {
	ledgerDir string
	pubKey    []byte
	haveKey   bool
}

// NewVerifier loads public.key from the ledger directory. A missing
// key is not fatal at construction: every signature check then
// reports missing_public_key, which fails verification.
func NewVerifier(ledgerDir string) *Verifier {
	v := &Verifier{ledgerDir: ledgerDir}
	data, err := os.ReadFile(filepath.Join(ledgerDir, "public.key"))
	if err == nil && len(data) > 0 {
		v.pubKey = data
		v.haveKey = true
	}
	return v
}

// Walk verifies the whole chain across rotated files and the active
// file, in order.
//
// Checks per entry:
//  1. line parses as JSON (else invalid_json, chain broken from there)
//  2. prev_hash matches the previous entry's this_hash (else chain_break)
//  3. this_hash == SHA256(canonical_fields || signature) (else hash_mismatch)
//  4. signature verifies under the published key for the entry's
//     signer scheme (else sig_invalid, or missing_public_key)
func (v *Verifier) Walk() Report {
	report := Report{Verified: true, Details: []Detail{}}

	lines, err := ledger.ReadLines(v.ledgerDir)
	if err != nil {
		report.Verified = false
		report.Details = append(report.Details, Detail{Seq: -1, Error: ErrInvalidJSON})
		return report
	}

	expectedPrev := ledger.GenesisHash
	prevUnknown := false
	for _, line := range lines {
		report.Entries++
		if line.ParseErr != nil {
			report.Verified = false
			report.Details = append(report.Details, Detail{
				Seq: -1, Error: ErrInvalidJSON, File: filepath.Base(line.File), Line: line.LineNo,
			})
			// The chain is broken from this point: the next entry
			// cannot link to a hash we could not read.
			prevUnknown = true
			continue
		}
		entry := line.Entry

		if prevUnknown || entry.PrevHash != expectedPrev {
			report.Verified = false
			report.Details = append(report.Details, Detail{Seq: entry.Seq, Error: ErrChainBreak})
		}
		prevUnknown = false
		// Adopt the stored hash so one break does not cascade into
		// spurious findings on every later entry.
		expectedPrev = entry.ThisHash

		canonical, err := entry.CanonicalFields()
		if err != nil {
			report.Verified = false
			report.Details = append(report.Details, Detail{Seq: entry.Seq, Error: ErrInvalidJSON})
			continue
		}
		if computed := ledger.ChainHash(canonical, entry.Signature); computed != entry.ThisHash {
			report.Verified = false
			report.Details = append(report.Details, Detail{Seq: entry.Seq, Error: ErrHashMismatch})
		}
		if reason := v.verifySignature(entry, canonical); reason != "" {
			report.Verified = false
			report.Details = append(report.Details, Detail{Seq: entry.Seq, Error: reason})
		}
	}
	return report
}

// verifySignature checks one entry's signature, returning the
// mismatch reason or "".
func (v *Verifier) verifySignature(entry *ledger.Entry, canonical []byte) string {
	if !v.haveKey {
		return ErrMissingPublicKey
	}
	sig, err := hex.DecodeString(entry.Signature)
	if err != nil {
		return ErrSigInvalid
	}
	switch {
	case strings.HasPrefix(entry.SignerKeyID, "ed25519:"):
		if len(v.pubKey) != ed25519.PublicKeySize {
			return ErrSigInvalid
		}
		if !ed25519.Verify(ed25519.PublicKey(v.pubKey), canonical, sig) {
			return ErrSigInvalid
		}
	case strings.HasPrefix(entry.SignerKeyID, "hmac:"):
		mac := hmac.New(sha256.New, v.pubKey)
		mac.Write(canonical)
		if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(entry.Signature)) {
			return ErrSigInvalid
		}
	default:
		return ErrSigInvalid
	}
	// The published key must also match the key id the entry claims,
	// so a forged append under an unknown key is flagged even when its
	// signature is internally consistent.
	fp := sha256.Sum256(v.pubKey)
	if entry.SignerKeyID != keyIDPrefix(entry.SignerKeyID)+hex.EncodeToString(fp[:4]) {
		return ErrSigInvalid
	}
	return ""
}

func keyIDPrefix(keyID string) string {
	if idx := strings.Index(keyID, ":"); idx >= 0 {
		return keyID[:idx+1]
	}
	return ""
}

// Fingerprint returns a short fingerprint of the published key for
// the health endpoint, or "" when the key is missing.
func (v *Verifier) Fingerprint() string {
	if !v.haveKey {
		return ""
	}
	fp := sha256.Sum256(v.pubKey)
	return hex.EncodeToString(fp[:4])
}

// LedgerDir returns the verified directory (for the health endpoint).
func (v *Verifier) LedgerDir() string { return v.ledgerDir }

// String implements fmt.Stringer for log lines.
func (v *Verifier) String() string {
	return fmt.Sprintf("verifier(ledger=%s, key=%t)", v.ledgerDir, v.haveKey)
}
