// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "encoding/json"

// Registry is the session-scoped typed store of chain artifacts.
//
// # Ownership
//
// The registry is exclusively owned by the orchestrator goroutine that
// runs the session; it is populated role by role and never shared
// across sessions, so it carries no lock. Entries are append-only:
// once a role's slice is set it is not mutated.
type Registry struct {
	S  []Strategy   `json:"S"`
	A  []Analysis   `json:"A"`
	P  []Production `json:"P"`
	C  []CourierRow `json:"C"`
	X  []Critic     `json:"X"`
	QA []QANote     `json:"Q"`
}

// NewRegistry returns an empty registry with all slices initialized so
// JSON snapshots serialize as arrays, not nulls.
func NewRegistry() *Registry {
	return &Registry{
		S:  []Strategy{},
		A:  []Analysis{},
		P:  []Production{},
		C:  []CourierRow{},
		X:  []Critic{},
		QA: []QANote{},
	}
}

// SIDs returns the set of Strategist ids currently registered.
func (r *Registry) SIDs() map[string]bool {
	out := make(map[string]bool, len(r.S))
	for _, s := range r.S {
		out[s.SID] = true
	}
	return out
}

// AIDs returns the set of Analyst ids currently registered.
func (r *Registry) AIDs() map[string]bool {
	out := make(map[string]bool, len(r.A))
	for _, a := range r.A {
		out[a.AID] = true
	}
	return out
}

// PIDs returns the set of Producer ids currently registered.
func (r *Registry) PIDs() map[string]bool {
	out := make(map[string]bool, len(r.P))
	for _, p := range r.P {
		out[p.PID] = true
	}
	return out
}

// CIDs returns the set of synthetic Courier row keys (day+channel) used
// only for Critic cross-reference checks; Courier rows carry no ids.
func (r *Registry) CIDs() map[string]bool {
	out := make(map[string]bool, len(r.C))
	for _, c := range r.C {
		out[c.Day] = true
	}
	return out
}

// Snapshot returns a deep JSON copy of the registry suitable for the
// chain result and for the session artifact store.
func (r *Registry) Snapshot() (json.RawMessage, error) {
	return json.Marshal(r)
}
