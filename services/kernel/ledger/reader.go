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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// readLastEntry returns the last parseable entry of a JSONL file, or
// nil when the file is missing or empty. Used only by the writer to
// re-sync chain state; the verifier walks files in full.
func readLastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger for tail read: %w", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger tail: %w", err)
	}
	if last == "" {
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(last), &entry); err != nil {
		return nil, fmt.Errorf("parse ledger tail: %w", err)
	}
	return &entry, nil
}

// Line is one raw ledger line with its parse outcome, preserved for
// the verifier: unparseable lines must surface as invalid_json at
// their position, not vanish.
type Line struct {
	File     string
	LineNo   int
	Raw      string
	Entry    *Entry
	ParseErr error
}

// ChainFiles returns the ledger files of a directory in chain order:
// rotated files sorted by their starting seq, then the active file.
func ChainFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		return nil, err
	}
	type rotated struct {
		path string
		seq  int64
	}
	var rot []rotated
	for _, m := range matches {
		var seq int64
		if _, err := fmt.Sscanf(filepath.Base(m), "audit-%d.jsonl", &seq); err == nil {
			rot = append(rot, rotated{m, seq})
		}
	}
	sort.Slice(rot, func(i, j int) bool { return rot[i].seq < rot[j].seq })
	var out []string
	for _, r := range rot {
		out = append(out, r.path)
	}
	active := filepath.Join(dir, "audit.jsonl")
	if _, err := os.Stat(active); err == nil {
		out = append(out, active)
	}
	return out, nil
}

// ReadLines reads every line of every chain file in order.
func ReadLines(dir string) ([]Line, error) {
	files, err := ChainFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []Line
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open ledger file %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			raw := strings.TrimSpace(scanner.Text())
			if raw == "" {
				continue
			}
			line := Line{File: path, LineNo: lineNo, Raw: raw}
			var entry Entry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				line.ParseErr = err
			} else {
				line.Entry = &entry
			}
			out = append(out, line)
		}
		scanErr := scanner.Err()
		f.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("scan ledger file %s: %w", path, scanErr)
		}
	}
	return out, nil
}
