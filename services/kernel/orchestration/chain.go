// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestration sequences the five-role governance chain:
// Strategist -> Analyst -> (Q&A) -> Producer -> (Q&A) -> Courier ->
// Critic, with TAES evaluation, governance coupling, and ledger
// writes after every role.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/detection"
	"github.com/AleutianAI/AleutianGovern/services/kernel/directives"
	"github.com/AleutianAI/AleutianGovern/services/kernel/fingerprint"
	"github.com/AleutianAI/AleutianGovern/services/kernel/governance"
	"github.com/AleutianAI/AleutianGovern/services/kernel/ledger"
	"github.com/AleutianAI/AleutianGovern/services/kernel/llm"
	"github.com/AleutianAI/AleutianGovern/services/kernel/taes"
	"github.com/AleutianAI/AleutianGovern/services/kernel/validation"
)

var chainTracer = otel.Tracer("govern.chain")

// DefaultChainDomain is assumed when the caller declares no domain.
const DefaultChainDomain = "marketing"

// builtinDomainKeywords backs the misrouting detector. Operators can
// extend it per domain via role_shapes.json in a later revision; the
// clusters below cover the closed domain set.
var builtinDomainKeywords = map[string][]string{
	"marketing": {"campaign", "audience", "funnel", "lead", "channel", "brand"},
	"technical": {"api", "latency", "schema", "deploy", "endpoint", "database"},
	"ops":       {"runbook", "incident", "rotation", "sla", "oncall", "capacity"},
	"creative":  {"story", "scene", "voice", "imagery", "tone", "narrative"},
	"education": {"lesson", "learner", "curriculum", "quiz", "assessment"},
	"product":   {"roadmap", "feature", "user story", "backlog", "launch"},
	"strategy":  {"positioning", "moat", "segment", "expansion", "pricing"},
	"research":  {"hypothesis", "sample", "study", "method", "literature"},
	"finance":   {"npv", "irr", "revenue", "margin", "cash flow", "valuation"},
}

// SnapshotStore persists opaque session artifacts; the badger-backed
// implementation lives in services/kernel/storage/badger.
type SnapshotStore interface {
	PutSession(ctx context.Context, sessionID string, snapshot []byte) error
}

// ChainMetrics is the observability hook the chain drives.
type ChainMetrics interface {
	SessionStarted(domain string)
	SessionFinished(domain, outcome string, dur time.Duration)
	RoleCompleted(role, outcome string)
	GovernanceAction(directive string)
}

// Kernel holds the long-lived pieces shared by all sessions.
// Per-session configuration is loaded fresh at chain start and frozen
// for the session.
type Kernel struct {
	BaseDir   string
	LogsDir   string
	Client    llm.Client
	Ledger    *ledger.Ledger
	IRDLog    *taes.IRDLog
	Snapshots SnapshotStore
	Metrics   ChainMetrics
	// RoleTimeout overrides the default soft per-role timeout.
	RoleTimeout time.Duration
}

// sessionConfig is the frozen per-session configuration snapshot.
type sessionConfig struct {
	configHash  string
	dirs        map[string]string
	roles       directives.RoleSet
	shapes      map[string]directives.RoleShape
	coupling    *governance.Coupling
	couplingErr error
	detector    *detection.Engine
	evaluator   *taes.Evaluator
}

// RunChain executes one full session.
//
// The result always contains whichever artifacts were produced plus an
// errors list; fatal role failures terminate the pipeline except for a
// Courier failure, after which the Critic still audits what exists.
func (k *Kernel) RunChain(ctx context.Context, objective, domain, sessionID string) (*datatypes.ChainResult, error) {
	ctx, span := chainTracer.Start(ctx, "Kernel.RunChain")
	defer span.End()

	if domain == "" {
		domain = DefaultChainDomain
	}
	if !datatypes.ValidDomain(domain) {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.domain", domain),
	)
	started := time.Now()
	if k.Metrics != nil {
		k.Metrics.SessionStarted(domain)
	}

	result := &datatypes.ChainResult{
		SessionID: sessionID,
		Domain:    domain,
		Roles:     map[string]*datatypes.RoleResult{},
		StartedAt: started,
	}

	cfg, err := k.loadSessionConfig(domain, sessionID)
	if err != nil {
		// Role prompts missing for domain and default: fatal at start.
		result.Errors = append(result.Errors, datatypes.ChainError{
			Role: "chain", Kind: ledger.ActionConfigError, Detail: err.Error(),
		})
		k.finish(result, "config_error", started)
		return result, err
	}
	result.ConfigHash = cfg.configHash
	if cfg.couplingErr != nil {
		// Fail-closed: soft-only coupling, recorded on the ledger.
		result.Errors = append(result.Errors, datatypes.ChainError{
			Role: "chain", Kind: ledger.ActionConfigError, Detail: cfg.couplingErr.Error(),
		})
		k.writeLedger(sessionID, "chain", ledger.ActionConfigError,
			map[string]string{"error": cfg.couplingErr.Error()}, nil, nil, cfg.configHash)
	}

	registry := datatypes.NewRegistry()
	executor := NewExecutor(k.Client)
	var prevTexts []string

	run := func(role string, req RoleRequest) (RoleOutcome, bool) {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation between role steps.
			result.Errors = append(result.Errors, datatypes.ChainError{
				Role: role, Kind: ledger.ActionRoleTimeout, Detail: "session cancelled",
			})
			return RoleOutcome{}, false
		}
		req.Role = role
		req.Temperature = directives.RoleTemperature(role)
		req.Timeout = k.RoleTimeout
		req.System = directives.SystemFor(role, cfg.roles[role], cfg.dirs)
		req.Example = directives.LoadRoleExample(k.BaseDir, role)
		req.Shapes = cfg.shapes

		outcome := executor.Run(ctx, req)
		if outcome.FailKind != "" {
			result.Errors = append(result.Errors, datatypes.ChainError{
				Role: role, Kind: outcome.FailKind, Detail: outcome.FailDetail,
			})
			action := ledger.ActionRoleFailure
			switch outcome.FailKind {
			case FailTransport:
				action = ledger.ActionTransport
			case FailTimeout:
				action = ledger.ActionRoleTimeout
			}
			k.writeLedger(sessionID, role, action,
				map[string]string{"detail": outcome.FailDetail, "raw": outcome.Text},
				nil, nil, cfg.configHash)
			if k.Metrics != nil {
				k.Metrics.RoleCompleted(role, outcome.FailKind)
			}
			return outcome, false
		}
		return outcome, true
	}

	// score evaluates, couples, ledgers, and records one successful
	// role turn.
	score := func(role string, outcome RoleOutcome, extra []detection.Finding) {
		rec := cfg.evaluator.Evaluate(outcome.Text, role, domain, sessionID, cfg.configHash)
		findings := k.detect(cfg, outcome.Text, domain, role, registry)
		findings = append(findings, extra...)

		red := RedundancyScore(outcome.Text, prevTexts)
		if red > RedundancyThreshold {
			findings = append(findings, detection.Finding{
				Signal:   detection.SignalRedundancy,
				Detected: true,
				Evidence: []string{fmt.Sprintf("trigram jaccard %.2f above %.2f", red, RedundancyThreshold)},
			})
		}
		prevTexts = append(prevTexts, outcome.Text)

		gov := cfg.coupling.Apply(rec, findings)
		if rec.RequiresRRP {
			rrp := cfg.evaluator.Reconcile(outcome.Text, role, domain, sessionID, cfg.configHash)
			// Surface the reconciled scores; governance clamps persist.
			rrp.IV = rec.IV
			if rrp.IRD < rec.IRD {
				slog.Info("reality reconciliation narrowed the gap",
					"role", role, "ird_before", rec.IRD, "ird_after", rrp.IRD)
			}
			rec.RRPApplied = true
			rec.RequiresRRP = rrp.IRD > taes.IRDThreshold
		}

		if k.Metrics != nil {
			for _, d := range gov.HardActions {
				k.Metrics.GovernanceAction(d)
			}
			k.Metrics.RoleCompleted(role, "ok")
		}
		k.writeLedger(sessionID, role, ledger.ActionRoleOutput,
			map[string]any{"output": outcome.Text, "taes": rec},
			gov.SoftSignals, gov.HardActions, cfg.configHash)

		result.Roles[roleKey(role)] = &datatypes.RoleResult{
			Output:      outcome.Text,
			TAES:        rec,
			Governance:  gov,
			Redundancy:  red,
			Temperature: directives.RoleTemperature(role),
			Attempts:    outcome.Attempts,
		}
	}

	// ---- Strategist -------------------------------------------------
	sPrompt := fmt.Sprintf("ObjectiveSpec:\n%s\n"+
		"Return ONLY a fenced JSON array named S with objects: "+
		`{"s_id", "title", "audience", "hooks", "three_step_plan", "acceptance_tests"}.`, objective)
	outcome, okRole := run("Strategist", RoleRequest{
		Letter: "S", Prompt: sPrompt, StrictPrompt: sPrompt,
		Validate: func(raw json.RawMessage) validation.Result {
			var items []datatypes.Strategy
			if err := json.Unmarshal(raw, &items); err != nil {
				return validation.Result{Reason: validation.ReasonBadShape, Message: err.Error()}
			}
			res := validation.ValidateS(items)
			if res.OK {
				registry.S = items
			}
			return res
		},
	})
	if !okRole {
		return k.seal(result, registry, cfg, "role_failure", started)
	}
	score("Strategist", outcome, nil)

	// ---- Analyst ----------------------------------------------------
	sJSON, _ := json.MarshalIndent(registry.S, "", "  ")
	aPrompt := fmt.Sprintf("ObjectiveSpec:\n%s\nS objects:\n%s\n"+
		"Return ONLY a fenced JSON array named A with objects: "+
		`{"a_id", "s_refs", "kpi_table", "falsifications", "risks"}.`, objective, sJSON)
	outcome, okRole = run("Analyst", RoleRequest{
		Letter: "A", Prompt: aPrompt, StrictPrompt: aPrompt,
		Validate: func(raw json.RawMessage) validation.Result {
			var items []datatypes.Analysis
			if err := json.Unmarshal(raw, &items); err != nil {
				return validation.Result{Reason: validation.ReasonBadShape, Message: err.Error()}
			}
			res := validation.ValidateA(items, registry.SIDs())
			if res.OK {
				registry.A = items
			}
			return res
		},
	})
	if !okRole {
		return k.seal(result, registry, cfg, "role_failure", started)
	}
	score("Analyst", outcome, nil)

	// ---- Micro Q&A 1: Producer asks Analyst -------------------------
	aJSON, _ := json.MarshalIndent(registry.A, "", "  ")
	if note, asked := runMicroQA(ctx, k.Client, "Producer", "Analyst",
		"Strategy objects:\n"+string(sJSON)+"\nAnalysis objects:\n"+string(aJSON)); asked {
		registry.QA = append(registry.QA, *note)
	}

	// ---- Producer ---------------------------------------------------
	pPrompt := fmt.Sprintf("ObjectiveSpec:\n%s\nA objects:\n%s\n%s"+
		"Return ONLY a fenced JSON array named P with objects: "+
		`{"p_id", "a_refs", "spec_type", "body"}.`,
		objective, aJSON, qaSection(registry.QA, "Producer", "Analyst"))
	outcome, okRole = run("Producer", RoleRequest{
		Letter: "P", Prompt: pPrompt, StrictPrompt: pPrompt,
		Validate: func(raw json.RawMessage) validation.Result {
			var items []datatypes.Production
			if err := json.Unmarshal(raw, &items); err != nil {
				return validation.Result{Reason: validation.ReasonBadShape, Message: err.Error()}
			}
			res := validation.ValidateP(items, registry.AIDs())
			if res.OK {
				registry.P = items
			}
			return res
		},
	})
	if !okRole {
		return k.seal(result, registry, cfg, "role_failure", started)
	}
	score("Producer", outcome, nil)

	// ---- Micro Q&A 2: Courier asks Producer -------------------------
	producerAssets := registry.P
	pJSON, _ := json.MarshalIndent(producerAssets, "", "  ")
	if note, asked := runMicroQA(ctx, k.Client, "Courier", "Producer",
		"Production assets:\n"+string(pJSON)); asked {
		registry.QA = append(registry.QA, *note)
	}

	// ---- Courier ----------------------------------------------------
	// Explicit asset handoff: the Courier schedules the Producer's
	// declared assets and nothing else.
	cPrompt := fmt.Sprintf("ObjectiveSpec:\n%s\nASSETS TO DEPLOY (DO NOT RECREATE):\n%s\n%s"+
		"Build a D1-D7 schedule using ONLY these assets. Return ONLY a fenced JSON array named C with objects: "+
		`{"day", "time", "channel", "p_id", "kpi_target", "owner_action"}. `+
		"Each C row must reference a p_id from the assets above.",
		objective, pJSON, qaSection(registry.QA, "Courier", "Producer"))
	courierFailed := false
	outcome, okRole = run("Courier", RoleRequest{
		Letter: "C", Prompt: cPrompt, StrictPrompt: cPrompt,
		Validate: func(raw json.RawMessage) validation.Result {
			var items []datatypes.CourierRow
			if err := json.Unmarshal(raw, &items); err != nil {
				return validation.Result{Reason: validation.ReasonBadShape, Message: err.Error()}
			}
			res := validation.ValidateC(items, registry.PIDs(), producerAssets)
			if res.OK {
				registry.C = items
			}
			return res
		},
	})
	if okRole {
		score("Courier", outcome, nil)
	} else {
		// The Critic still audits whatever exists.
		courierFailed = true
	}

	// ---- Critic -----------------------------------------------------
	regJSON, _ := json.MarshalIndent(registry, "", "  ")
	xPrompt := fmt.Sprintf("ObjectiveSpec:\n%s\nFull registry:\n%s\n"+
		"Audit the chain. Return ONLY a fenced JSON array named X with objects: "+
		`{"x_id", "refs": {"s", "a", "p", "c"}, "issue", "fix", "severity", "proof_scores"}. `+
		"References must span at least three artifact kinds.", objective, regJSON)
	outcome, okRole = run("Critic", RoleRequest{
		Letter: "X", Prompt: xPrompt, StrictPrompt: xPrompt,
		Validate: func(raw json.RawMessage) validation.Result {
			var items []datatypes.Critic
			if err := json.Unmarshal(raw, &items); err != nil {
				return validation.Result{Reason: validation.ReasonBadShape, Message: err.Error()}
			}
			res := validation.ValidateX(items, registry.SIDs(), registry.AIDs(), registry.PIDs(), registry.CIDs())
			if res.OK {
				registry.X = items
			}
			return res
		},
	})
	if okRole {
		score("Critic", outcome, []detection.Finding{cfg.detector.ObservabilityGap(registry.X)})
	}

	// ---- Composer ---------------------------------------------------
	result.Report = ComposeFinalReport(objective, domain, registry, result)
	k.writeLedger(sessionID, "Composer", ledger.ActionComposer,
		map[string]string{"report": result.Report}, nil, nil, cfg.configHash)

	outcomeLabel := "ok"
	if courierFailed || result.Failed() {
		outcomeLabel = "role_failure"
	}
	return k.seal(result, registry, cfg, outcomeLabel, started)
}

// detect runs the per-role signal detectors.
func (k *Kernel) detect(cfg *sessionConfig, text, domain, role string, registry *datatypes.Registry) []detection.Finding {
	hasAcceptance := len(registry.S) > 0
	hasFalsifications := len(registry.A) > 0
	findings := []detection.Finding{
		cfg.detector.Sycophancy(text),
		cfg.detector.Contradiction(text),
		cfg.detector.Ambiguity(text),
		cfg.detector.Overconfidence(text, hasAcceptance, hasFalsifications),
		cfg.detector.Fabrication(text, nil),
		cfg.detector.Secrets(text),
		cfg.detector.DomainMisroute(text, domain),
	}
	return findings
}

// seal snapshots the registry, writes the session artifact, and
// finalizes timing.
func (k *Kernel) seal(result *datatypes.ChainResult, registry *datatypes.Registry, cfg *sessionConfig, outcome string, started time.Time) (*datatypes.ChainResult, error) {
	snap, err := registry.Snapshot()
	if err == nil {
		result.Registry = snap
	}
	k.writeSessionArtifact(result)
	k.writeLedger(result.SessionID, "chain", ledger.ActionSessionEnd,
		map[string]string{"outcome": outcome}, nil, nil, cfg.configHash)
	k.finish(result, outcome, started)
	return result, nil
}

func (k *Kernel) finish(result *datatypes.ChainResult, outcome string, started time.Time) {
	result.FinishedAt = time.Now()
	if k.Metrics != nil {
		k.Metrics.SessionFinished(result.Domain, outcome, time.Since(started))
	}
}

// writeLedger appends one entry, logging (never failing the chain) on
// error: a session with a broken ledger directory still returns its
// artifacts, and the gap is visible to the verifier.
func (k *Kernel) writeLedger(sessionID, role, action string, payload any, soft, hard []string, configHash string) {
	if k.Ledger == nil {
		return
	}
	if _, err := k.Ledger.Append(sessionID, role, action, payload, soft, hard, configHash); err != nil {
		slog.Error("ledger append failed", "session_id", sessionID, "role", role, "error", err)
	}
}

// writeSessionArtifact persists the opaque per-session snapshot to the
// sessions directory and the snapshot store. Best effort; not part of
// the trust boundary.
func (k *Kernel) writeSessionArtifact(result *datatypes.ChainResult) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	if k.Snapshots != nil {
		if err := k.Snapshots.PutSession(context.Background(), result.SessionID, data); err != nil {
			slog.Warn("session snapshot store write failed", "session_id", result.SessionID, "error", err)
		}
	}
	if k.LogsDir != "" {
		writeSessionFile(k.LogsDir, result.SessionID, data)
	}
}

// loadSessionConfig reads and freezes all governance configuration for
// one session.
func (k *Kernel) loadSessionConfig(domain, sessionID string) (*sessionConfig, error) {
	configHash, err := fingerprint.Compute(k.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("compute config fingerprint: %w", err)
	}
	roles, err := directives.LoadDomainRoles(k.BaseDir, domain)
	if err != nil {
		return nil, err
	}
	shapes, err := directives.LoadRoleShapes(k.BaseDir)
	if err != nil {
		slog.Warn("role shapes unavailable", "error", err)
		shapes = map[string]directives.RoleShape{}
	}
	coupling, couplingErr := governance.Load(k.BaseDir)
	weights, err := taes.LoadDomainWeights(k.BaseDir)
	if err != nil {
		slog.Warn("taes weights unavailable, using defaults", "error", err)
	}
	detector, err := detection.NewEngine(builtinDomainKeywords)
	if err != nil {
		return nil, fmt.Errorf("initialize detectors: %w", err)
	}
	return &sessionConfig{
		configHash:  configHash,
		dirs:        directives.LoadDirectives(k.BaseDir),
		roles:       roles,
		shapes:      shapes,
		coupling:    coupling,
		couplingErr: couplingErr,
		detector:    detector,
		evaluator:   taes.NewEvaluator(weights, detector, k.IRDLog),
	}, nil
}

// qaSection renders the latest matching Q&A note for a prompt.
func qaSection(notes []datatypes.QANote, from, to string) string {
	for i := len(notes) - 1; i >= 0; i-- {
		n := notes[i]
		if n.From == from && n.To == to {
			return fmt.Sprintf("\nClarifications from %s:\nQ: %s\nA: %s\n", to, n.Question, n.Answer)
		}
	}
	return ""
}

func roleKey(role string) string {
	switch role {
	case "Strategist":
		return "strategist"
	case "Analyst":
		return "analyst"
	case "Producer":
		return "producer"
	case "Courier":
		return "courier"
	case "Critic":
		return "critic"
	}
	return role
}
