// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detection implements the string and regex level signal
// detectors the governance coupling consumes: sycophancy,
// contradiction, ambiguity, overconfidence, fabrication, secrets
// leakage, domain misrouting, and observability gaps.
//
// Pattern-backed detectors (secrets, sycophancy) compile their rules
// from an embedded YAML file; the remaining detectors are coded
// heuristics over tokenized text. Every detector returns a boolean
// plus evidence snippets so audit entries can quote what fired.
package detection

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGovern/services/kernel/detection/enforcement"
)

// Signal names emitted by the engine. The governance coupling config
// maps these onto directive ids.
const (
	SignalSycophancy       = "SYCOPHANCY"
	SignalContradiction    = "CONTRADICTION"
	SignalAmbiguity        = "AMBIGUITY"
	SignalOverconfidence   = "OVERCONFIDENCE"
	SignalFabrication      = "FABRICATION"
	SignalSecrets          = "SECRETS"
	SignalDomainMisroute   = "DOMAIN_MISROUTE"
	SignalObservabilityGap = "OBSERVABILITY_GAP"
	SignalRedundancy       = "REDUNDANCY"
)

// Finding is one detector result.
type Finding struct {
	Signal   string   `json:"signal"`
	Detected bool     `json:"detected"`
	Evidence []string `json:"evidence,omitempty"`
}

// ConfidenceLevel mirrors the confidence values allowed in the
// embedded pattern file.
type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

type patternFile struct {
	Classifications []classification `yaml:"classifications"`
}

type classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []pattern `yaml:"patterns"`
}

type pattern struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`
	compiled    *regexp.Regexp  `yaml:"-"`
}

// Engine holds the compiled pattern rules plus the configured domain
// keyword lists used by the misrouting detector.
type Engine struct {
	classifiers    []classification
	domainKeywords map[string][]string
}

// NewEngine compiles the embedded pattern rules and returns a ready
// engine. domainKeywords maps a domain label to its keyword cluster;
// a nil map disables the misrouting detector.
func NewEngine(domainKeywords map[string][]string) (*Engine, error) {
	var file patternFile
	if err := yaml.Unmarshal(enforcement.SignalPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded pattern file: %w", err)
	}
	for i := range file.Classifications {
		for j := range file.Classifications[i].Patterns {
			p := &file.Classifications[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the regex %s: %w", p.Regex, err)
			}
			p.compiled = re
		}
	}
	sort.Slice(file.Classifications, func(i, j int) bool {
		return file.Classifications[i].Priority > file.Classifications[j].Priority
	})
	return &Engine{
		classifiers:    file.Classifications,
		domainKeywords: domainKeywords,
	}, nil
}

// scanClass runs every pattern of the named classification over text
// and returns the matched snippets.
func (e *Engine) scanClass(name, text string) []string {
	var evidence []string
	for _, c := range e.classifiers {
		if c.Name != name {
			continue
		}
		for _, p := range c.Patterns {
			for _, m := range p.compiled.FindAllString(text, 4) {
				if len(m) > 64 {
					m = m[:64]
				}
				evidence = append(evidence, fmt.Sprintf("%s: %s", p.ID, m))
			}
		}
	}
	return evidence
}

// Sycophancy detects the banned flattery phrases, case-insensitively
// and on word boundaries.
func (e *Engine) Sycophancy(text string) Finding {
	ev := e.scanClass("sycophancy", text)
	return Finding{Signal: SignalSycophancy, Detected: len(ev) > 0, Evidence: ev}
}

// Secrets detects credential and token shapes in role output.
func (e *Engine) Secrets(text string) Finding {
	ev := e.scanClass("secret", text)
	return Finding{Signal: SignalSecrets, Detected: len(ev) > 0, Evidence: ev}
}
