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
	"encoding/csv"
	"os"
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

func TestIRDLogAppendAndHeader(t *testing.T) {
	dir := t.TempDir()
	logFile, err := NewIRDLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := &datatypes.TAESRecord{Logical: 0.8, Practical: 0.7, Probable: 0.6, IV: 0.74, IRD: 0.1}
	logFile.Append("sess-1", "Strategist", rec, "pass", "sha256:x")
	logFile.Append("sess-1", "Analyst", rec, "pass", "sha256:x")

	f, err := os.Open(logFile.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("missing header, first cell = %q", rows[0][0])
	}
	if rows[1][2] != "Strategist" || rows[2][2] != "Analyst" {
		t.Errorf("role columns wrong: %v / %v", rows[1], rows[2])
	}
}

func TestIRDLogDrift(t *testing.T) {
	dir := t.TempDir()
	logFile, err := NewIRDLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	high := &datatypes.TAESRecord{IV: 0.2, IRD: 0.6}
	for range [25]struct{}{} {
		logFile.Append("s", "Strategist", high, "rrp", "h")
	}
	report := logFile.CheckDrift(0.4)
	if !report.Alert {
		t.Fatalf("expected drift alert, got %+v", report)
	}
	if report.Rows != 20 {
		t.Errorf("drift window = %d rows, want 20", report.Rows)
	}

	low := &datatypes.TAESRecord{IV: 0.8, IRD: 0.0}
	for range [25]struct{}{} {
		logFile.Append("s", "Strategist", low, "pass", "h")
	}
	if report := logFile.CheckDrift(0.4); report.Alert {
		t.Errorf("expected no alert after recovery, got %+v", report)
	}
}

func TestIRDLogEmptyDrift(t *testing.T) {
	logFile, err := NewIRDLog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if report := logFile.CheckDrift(0.4); report.Alert {
		t.Error("empty log must not alert")
	}
}
