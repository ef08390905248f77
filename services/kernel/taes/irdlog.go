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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

// Rotation policy for the IRD log.
const (
	maxLogSize      = 10 << 20 // 10 MiB
	keptGenerations = 5
)

var irdHeader = []string{
	"timestamp", "session_id", "role",
	"logical", "practical", "probable",
	"iv", "ird", "verdict", "config_hash",
}

// IRDLog is the append-only CSV disparity log. Appends are serialized
// by a mutex; rotation happens inline when the file exceeds the size
// limit, keeping five generations (ird_log.csv.1 is the newest).
type IRDLog struct {
	mu   sync.Mutex
	path string
}

// NewIRDLog creates the log directory if needed and returns the log.
func NewIRDLog(logsDir string) (*IRDLog, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &IRDLog{path: filepath.Join(logsDir, "ird_log.csv")}, nil
}

// Path returns the current log file path.
func (l *IRDLog) Path() string { return l.path }

// Append writes one row. Failures are logged, never fatal: the IRD log
// is analysis data, not part of the trust boundary.
func (l *IRDLog) Append(sessionID, role string, rec *datatypes.TAESRecord, verdict, configHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		slog.Warn("ird log rotation failed", "error", err)
	}

	writeHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		writeHeader = true
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("failed to open ird log", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(irdHeader); err != nil {
			slog.Error("failed to write ird header", "error", err)
			return
		}
	}
	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		sessionID,
		role,
		formatScore(rec.Logical),
		formatScore(rec.Practical),
		formatScore(rec.Probable),
		formatScore(rec.IV),
		formatScore(rec.IRD),
		verdict,
		configHash,
	}
	if err := w.Write(row); err != nil {
		slog.Error("failed to append ird row", "error", err)
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		slog.Error("failed to flush ird row", "error", err)
	}
}

// rotateIfNeeded shifts generations when the active file exceeds the
// size limit: .4 -> .5, ..., current -> .1. The oldest generation is
// dropped. Caller holds the mutex.
func (l *IRDLog) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < maxLogSize {
		return nil
	}
	oldest := fmt.Sprintf("%s.%d", l.path, keptGenerations)
	_ = os.Remove(oldest)
	for i := keptGenerations - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, fmt.Sprintf("%s.%d", l.path, i+1)); err != nil {
				return fmt.Errorf("shift generation %d: %w", i, err)
			}
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotate active log: %w", err)
	}
	return nil
}

// DriftReport summarizes the recent disparity trend.
type DriftReport struct {
	Alert  bool    `json:"alert"`
	AvgIRD float64 `json:"avg_ird"`
	Rows   int     `json:"rows"`
	Reason string  `json:"reason,omitempty"`
}

// CheckDrift averages the IRD of the last 20 rows and alerts above the
// threshold. An unreadable or empty log is not an alert.
func (l *IRDLog) CheckDrift(threshold float64) DriftReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return DriftReport{}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return DriftReport{}
	}
	rows := records[1:]
	if len(rows) > 20 {
		rows = rows[len(rows)-20:]
	}
	var sum float64
	n := 0
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		v, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return DriftReport{}
	}
	avg := sum / float64(n)
	report := DriftReport{AvgIRD: round3(avg), Rows: n}
	if avg > threshold {
		report.Alert = true
		report.Reason = fmt.Sprintf("high reality gap: avg IRD %.2f over last %d rows", avg, n)
	}
	return report
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
