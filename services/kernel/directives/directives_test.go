// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package directives

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRoleFiles(t *testing.T, baseDir, domain string, roles ...string) {
	t.Helper()
	dir := filepath.Join(baseDir, "config", "roles", domain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, role := range roles {
		path := filepath.Join(dir, role+"_stable.txt")
		if err := os.WriteFile(path, []byte("You are the "+role+" for "+domain+"."), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

var allRoles = []string{"strategist", "analyst", "producer", "courier", "critic"}

func TestLoadDomainRolesFallback(t *testing.T) {
	dir := t.TempDir()
	writeRoleFiles(t, dir, "default", allRoles...)
	// Marketing only overrides the strategist.
	writeRoleFiles(t, dir, "marketing", "strategist")

	roles, err := LoadDomainRoles(dir, "marketing")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(roles["Strategist"], "marketing") {
		t.Error("domain override not used for Strategist")
	}
	if !strings.Contains(roles["Analyst"], "default") {
		t.Error("missing role must fall back to default domain")
	}
}

func TestLoadDomainRolesMissingDefaultFatal(t *testing.T) {
	dir := t.TempDir()
	writeRoleFiles(t, dir, "default", "strategist") // others missing
	if _, err := LoadDomainRoles(dir, "ops"); err == nil {
		t.Fatal("missing default role must be fatal at session start")
	}
}

func TestSystemForComposition(t *testing.T) {
	dirs := map[string]string{
		KeyCore: "FULL CORE TEXT",
		KeyRDL:  "FULL RDL TEXT",
	}
	sys := SystemFor("Strategist", "You are the Strategist.", dirs)

	if !strings.HasPrefix(sys, "You are the Strategist.") {
		t.Error("role prompt must lead the system prompt")
	}
	if !strings.Contains(sys, "FULL DIRECTIVE: CORE") || !strings.Contains(sys, "FULL CORE TEXT") {
		t.Error("Strategist must carry the full CORE directive")
	}
	if strings.Contains(sys, "FULL RDL TEXT") {
		t.Error("Strategist must not carry the RDL full text")
	}
	if !strings.Contains(sys, "Collaboration Contract") {
		t.Error("collaboration contract missing")
	}
}

func TestRoleTemperatures(t *testing.T) {
	// Structure-heavy roles run colder than generative ones.
	if RoleTemperature("Analyst") >= RoleTemperature("Producer") {
		t.Error("Analyst should run colder than Producer")
	}
	if RoleTemperature("Critic") >= RoleTemperature("Courier") {
		t.Error("Critic should run colder than Courier")
	}
	if RoleTemperature("nope") != 0.30 {
		t.Error("unknown roles get the default temperature")
	}
}

func TestViolatesShape(t *testing.T) {
	shapes := map[string]RoleShape{
		"Producer": {Exclusions: []string{"posting calendar"}},
	}
	if banned, _ := ViolatesShape("Here is your posting calendar for D1-D7", "Producer", shapes); !banned {
		t.Error("banned phrase must be detected case-insensitively")
	}
	if banned, _ := ViolatesShape("API contract for leads", "Producer", shapes); banned {
		t.Error("clean output flagged")
	}
	if banned, _ := ViolatesShape("posting calendar", "Courier", shapes); banned {
		t.Error("shape policies are per-role")
	}
}

func TestLoadDirectivesMissingMarker(t *testing.T) {
	dirs := LoadDirectives(t.TempDir())
	if !strings.Contains(dirs[KeyCore], "[Missing:") {
		t.Errorf("missing protocol file must load as a marker, got %q", dirs[KeyCore])
	}
}

func TestLoadRoleExample(t *testing.T) {
	dir := t.TempDir()
	exDir := filepath.Join(dir, "config", "role_examples")
	if err := os.MkdirAll(exDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "```S\n[{\"s_id\": \"S-1\"}]\n```\n\n\n"
	if err := os.WriteFile(filepath.Join(exDir, "strategist.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got := LoadRoleExample(dir, "Strategist")
	if !strings.Contains(got, "S-1") {
		t.Errorf("example not loaded: %q", got)
	}
	if LoadRoleExample(dir, "Courier") != "" {
		t.Error("missing example must load empty")
	}
}
