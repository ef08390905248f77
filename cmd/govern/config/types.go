// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type GovernConfig struct {
	// Paths: where governance config, ledger, and logs live
	Paths PathsConfig `yaml:"paths"`

	// Ledger: signing and rotation policy
	Ledger LedgerConfig `yaml:"ledger"`

	// Chain: session pool sizing and timeouts
	Chain ChainConfig `yaml:"chain"`

	// ModelBackend: decides which LLM backend the chain calls
	ModelBackend BackendConfig `yaml:"model_backend"`
}

type PathsConfig struct {
	BaseDir    string `yaml:"base_dir"`    // holds config/ and protocol/
	LogsDir    string `yaml:"logs_dir"`    // ird_log.csv, sessions/
	LedgerDir  string `yaml:"ledger_dir"`  // audit.jsonl, public.key
	ReportsDir string `yaml:"reports_dir"` // sentinel verify_*.json
}

type LedgerConfig struct {
	// AllowHMAC permits the HMAC-SHA256 fallback when Ed25519 key
	// material is unavailable. Never a silent downgrade: the signer
	// key id records which mechanism was used.
	AllowHMAC bool `yaml:"allow_hmac"`

	// MaxFileSizeMB rotates the JSONL when exceeded. Zero disables.
	MaxFileSizeMB int64 `yaml:"max_file_size_mb"`
}

type ChainConfig struct {
	MaxParallelSessions  int64 `yaml:"max_parallel_sessions"`
	RoleTimeoutSeconds   int   `yaml:"role_timeout_seconds"`
	SessionBudgetSeconds int   `yaml:"session_budget_seconds"`
}

type BackendConfig struct {
	// Type can be "ollama", "openai", or "anthropic".
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url,omitempty"`
}

func DefaultConfig() GovernConfig {
	base := "."
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".govern")
	}
	return GovernConfig{
		Paths: PathsConfig{
			BaseDir:    base,
			LogsDir:    filepath.Join(base, "logs"),
			LedgerDir:  filepath.Join(base, "logs", "ledger"),
			ReportsDir: filepath.Join(base, "logs", "reports"),
		},
		Ledger: LedgerConfig{
			AllowHMAC:     false,
			MaxFileSizeMB: 64,
		},
		Chain: ChainConfig{
			MaxParallelSessions:  8,
			RoleTimeoutSeconds:   180,
			SessionBudgetSeconds: 1200,
		},
		ModelBackend: BackendConfig{
			Type:    "ollama",
			BaseURL: "http://localhost:11434",
		},
	}
}
