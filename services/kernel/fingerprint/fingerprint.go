// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fingerprint computes the deterministic SHA-256 fingerprint
// over the fixed list of governance and protocol files. The fingerprint
// is captured once per session and anchored into every ledger entry so
// the verifier can prove which configuration produced a given run.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ConfigFiles is the canonical, sorted list of files covered by the
// fingerprint, relative to the base directory. Changing this list
// changes every fingerprint, which is the point: additions and
// removals must be visible.
var ConfigFiles = []string{
	"config/governance_coupling.json",
	"config/role_shapes.json",
	"config/taes_weights.json",
	"protocol/GovProtocol_AUTHORITY_LAYER.md",
	"protocol/GovProtocol_CORE_DIRECTIVES.md",
	"protocol/GovProtocol_D0_CHANGE_CONTROL.md",
	"protocol/GovProtocol_REDTEAM_LAYER.md",
	"protocol/GovProtocol_TAES_EVALUATION.md",
	"protocol/GovProtocol_WARROOM_ADDENDUM.md",
}

// Compute returns the config fingerprint for baseDir as
// "sha256:<hex>".
//
// Each file contributes path || "\0" || content. Missing files
// contribute the sentinel "[MISSING: <path>]" so the hash changes when
// a file appears or disappears. JSON files are normalized by canonical
// key-sorted re-serialization; unparseable JSON is hashed as-is.
func Compute(baseDir string) (string, error) {
	files := make([]string, len(ConfigFiles))
	copy(files, ConfigFiles)
	sort.Strings(files)

	h := sha256.New()
	for _, rel := range files {
		content := readNormalized(filepath.Join(baseDir, rel), rel)
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write([]byte(content))
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func readNormalized(path, rel string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("[MISSING: %s]", rel)
		}
		return fmt.Sprintf("[ERROR: %s]", rel)
	}
	content := string(data)
	if strings.HasSuffix(rel, ".json") {
		if normalized, ok := normalizeJSON(data); ok {
			content = normalized
		}
	}
	return content
}

// normalizeJSON re-serializes JSON with sorted keys and no extra
// whitespace. encoding/json marshals map keys in sorted order, which
// gives the canonical form directly.
func normalizeJSON(data []byte) (string, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(out), true
}
