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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

// ComposeFinalReport stitches the artifact registry into the
// operator-facing report. The report is descriptive only; the typed
// registry remains the machine-readable product.
func ComposeFinalReport(objective, domain string, registry *datatypes.Registry, result *datatypes.ChainResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Governance Chain Report\n\n")
	fmt.Fprintf(&b, "Objective: %s\nDomain: %s\nSession: %s\n\n", objective, domain, result.SessionID)

	fmt.Fprintf(&b, "## Strategy (%d)\n", len(registry.S))
	for _, s := range registry.S {
		fmt.Fprintf(&b, "- %s: %s (audience: %s)\n", s.SID, s.Title, s.Audience)
	}

	fmt.Fprintf(&b, "\n## Analysis (%d)\n", len(registry.A))
	for _, a := range registry.A {
		fmt.Fprintf(&b, "- %s -> %s, %d KPI rows, %d falsifications\n",
			a.AID, strings.Join(a.SRefs, ","), len(a.KPITable), len(a.Falsifications))
	}

	fmt.Fprintf(&b, "\n## Production (%d)\n", len(registry.P))
	for _, p := range registry.P {
		fmt.Fprintf(&b, "- %s [%s] -> %s\n", p.PID, p.SpecType, strings.Join(p.ARefs, ","))
	}

	fmt.Fprintf(&b, "\n## Schedule (%d rows)\n", len(registry.C))
	for _, c := range registry.C {
		fmt.Fprintf(&b, "- %s %s %s: %s (KPI %s)\n", c.Day, c.Time, c.Channel, c.PID, c.KPITarget)
	}

	fmt.Fprintf(&b, "\n## Audit (%d findings)\n", len(registry.X))
	for _, x := range registry.X {
		fmt.Fprintf(&b, "- %s [%s] %s -> %s\n", x.XID, x.Severity, x.Issue, x.Fix)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "\n## Errors\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", e.Role, e.Kind, e.Detail)
		}
	}
	return b.String()
}

// writeSessionFile writes the opaque session artifact under
// <logs_dir>/sessions/<session_id>.json.
func writeSessionFile(logsDir, sessionID string, data []byte) {
	dir := filepath.Join(logsDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, sessionID+".json"), data, 0o644)
}
