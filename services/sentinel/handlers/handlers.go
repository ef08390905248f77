// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the sentinel's HTTP handlers. Everything
// here is read-only over the ledger; the only writes go to the
// sentinel's own report directory.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGovern/services/kernel/observability"
	"github.com/AleutianAI/AleutianGovern/services/sentinel/verify"
)

// Version is stamped by the build.
var Version = "dev"

// HealthCheck reports liveness and the mounted paths.
func HealthCheck(v *verify.Verifier, reports *verify.ReportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"ledger_path":  v.LedgerDir(),
			"reports_path": reports.Dir(),
			"version":      Version,
			"key_fp":       v.Fingerprint(),
		})
	}
}

// Verify walks the ledger, writes a timestamped report, and returns
// the verification result.
func Verify(cached *verify.CachedVerifier, reports *verify.ReportStore, metrics *observability.VerifierMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := cached.Walk()

		if metrics != nil {
			result := "verified"
			if !report.Verified {
				result = "failed"
			}
			metrics.VerificationsTotal.WithLabelValues(result).Inc()
			metrics.EntriesChecked.Add(float64(report.Entries))
			for _, d := range report.Details {
				metrics.TamperFindingsTotal.WithLabelValues(d.Error).Inc()
			}
		}
		if name, err := reports.Write(report); err != nil {
			slog.Error("failed to persist verification report", "error", err)
		} else {
			slog.Info("verification report written", "name", name, "verified", report.Verified)
		}
		c.JSON(http.StatusOK, gin.H{
			"verified": report.Verified,
			"entries":  report.Entries,
			"details":  report.Details,
		})
	}
}

// Reports lists the newest stored reports (at most 30), newest first.
func Reports(reports *verify.ReportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := reports.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if list == nil {
			list = []verify.ReportInfo{}
		}
		c.JSON(http.StatusOK, list)
	}
}
