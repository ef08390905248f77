// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenesisHash is the prev_hash of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded on ledger entries.
const (
	ActionRoleOutput  = "role_output"
	ActionRoleFailure = "role_failure"
	ActionRoleTimeout = "role_timeout"
	ActionTransport   = "transport_error"
	ActionConfigError = "config_error"
	ActionComposer    = "compose_report"
	ActionRollover    = "rollover"
	ActionSessionEnd  = "session_end"
)

// Entry is one signed ledger record. The eight signing fields are
// serialized canonically (sorted keys, no whitespace) and signed;
// this_hash = SHA256(canonical_fields || signature).
type Entry struct {
	Seq         int64    `json:"seq"`
	TS          string   `json:"ts"`
	SessionID   string   `json:"session_id"`
	Role        string   `json:"role"`
	Action      string   `json:"action"`
	PayloadHash string   `json:"payload_hash"`
	PrevHash    string   `json:"prev_hash"`
	ThisHash    string   `json:"this_hash"`
	Signature   string   `json:"signature"`
	SignerKeyID string   `json:"signer_key_id"`
	ConfigHash  string   `json:"config_hash"`
	SoftSignals []string `json:"soft_signals,omitempty"`
	HardActions []string `json:"hard_actions,omitempty"`
}

// CanonicalFields returns the signing substrate: the eight ordered
// fields serialized with sorted keys and no whitespace. Marshaling a
// map lets encoding/json produce the sorted-key form directly.
func (e *Entry) CanonicalFields() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seq":          e.Seq,
		"ts":           e.TS,
		"session_id":   e.SessionID,
		"role":         e.Role,
		"action":       e.Action,
		"payload_hash": e.PayloadHash,
		"prev_hash":    e.PrevHash,
		"config_hash":  e.ConfigHash,
	})
}

// ChainHash computes SHA256(canonical_fields || signature).
func ChainHash(canonical []byte, sigHex string) string {
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(sigHex))
	return hex.EncodeToString(h.Sum(nil))
}

// HashPayload hashes an arbitrary payload value canonically
// (sorted-key JSON) for the payload_hash field.
func HashPayload(payload any) (string, error) {
	data, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON round-trips v through an untyped value so struct
// payloads also serialize with sorted keys.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, err
	}
	return json.Marshal(untyped)
}
