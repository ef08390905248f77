// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/kernel/datatypes"
)

// antonymPairs is the canonical shortlist used by the contradiction
// detector. Both words co-occurring near the same entity inside the
// sentence window flags opposing polarity.
var antonymPairs = [][2]string{
	{"increase", "decrease"},
	{"more", "less"},
	{"always", "never"},
	{"secure", "insecure"},
	{"possible", "impossible"},
	{"cheap", "expensive"},
	{"faster", "slower"},
	{"grow", "shrink"},
}

// hedgeWords feed the ambiguity detector.
var hedgeWords = []string{
	"maybe", "possibly", "could be", "might", "perhaps", "probably",
	"somewhat", "roughly", "sort of", "kind of", "unclear",
}

// superlatives feed the overconfidence detector.
var superlatives = []string{
	"100%", "guarantee", "guaranteed", "no doubt", "certain", "zero risk",
	"impossible to fail", "will definitely", "always works", "best possible",
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?\n]+`)
	tokenPattern  = regexp.MustCompile(`[a-z0-9%$]+`)
	numericAnchor = regexp.MustCompile(`\b\d[\d,.]*\s*(%|k|m|usd|eur|days?|hours?|weeks?|x)?\b`)
	namedEntity   = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)*\b`)
	// anchorEntity is stricter than namedEntity: a sentence-initial
	// capital is not an anchor, a multi-word proper name is.
	anchorEntity   = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
	citationShape  = regexp.MustCompile(`\(([A-Z][A-Za-z\-]+(?:\s+(?:et al\.?|&\s+[A-Z][A-Za-z\-]+))?),?\s+(19|20)\d{2}\)`)
	linkOrDOIShape = regexp.MustCompile(`(https?://\S+|doi\.org/\S+|10\.\d{4,}/\S+)`)
)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Contradiction flags opposing-polarity word pairs near the same
// capitalized entity within a rolling window of three sentences.
func (e *Engine) Contradiction(text string) Finding {
	sentences := sentenceSplit.Split(text, -1)
	var evidence []string
	for i := range sentences {
		end := i + 3
		if end > len(sentences) {
			end = len(sentences)
		}
		window := strings.Join(sentences[i:end], ". ")
		lower := strings.ToLower(window)
		for _, pair := range antonymPairs {
			if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
				// Only count when a shared entity anchors both polarities.
				if ent := namedEntity.FindString(window); ent != "" {
					snippet := window
					if len(snippet) > 96 {
						snippet = snippet[:96]
					}
					evidence = append(evidence, fmt.Sprintf("%s/%s near %q: %s", pair[0], pair[1], ent, snippet))
				}
			}
		}
	}
	// Hard-coded canonical contradictions that need no entity anchor.
	lower := strings.ToLower(text)
	if strings.Contains(lower, "both more secure and less secure") ||
		(strings.Contains(lower, "accept both as true") && !strings.Contains(lower, "contradiction")) {
		evidence = append(evidence, "explicit dual-polarity claim")
	}
	return Finding{Signal: SignalContradiction, Detected: len(evidence) > 0, Evidence: dedupe(evidence)}
}

// CountContradictions returns the contradiction evidence count, used
// by the TAES IRD penalty term.
func (e *Engine) CountContradictions(text string) int {
	return len(e.Contradiction(text).Evidence)
}

// CountHedges returns the number of hedge-word occurrences.
func CountHedges(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, h := range hedgeWords {
		n += strings.Count(lower, h)
	}
	return n
}

// Ambiguity flags hedge density of at least 4 per 1000 tokens when no
// paragraph containing a hedge also carries a concrete numeric or
// named-entity anchor.
func (e *Engine) Ambiguity(text string) Finding {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Finding{Signal: SignalAmbiguity}
	}
	hedges := CountHedges(text)
	density := float64(hedges) * 1000.0 / float64(len(tokens))
	if density < 4.0 {
		return Finding{Signal: SignalAmbiguity}
	}
	for _, para := range strings.Split(text, "\n\n") {
		lower := strings.ToLower(para)
		hasHedge := false
		for _, h := range hedgeWords {
			if strings.Contains(lower, h) {
				hasHedge = true
				break
			}
		}
		if hasHedge && (numericAnchor.MatchString(para) || anchorEntity.MatchString(para)) {
			// Anchored hedging is acceptable.
			return Finding{Signal: SignalAmbiguity}
		}
	}
	return Finding{
		Signal:   SignalAmbiguity,
		Detected: true,
		Evidence: []string{fmt.Sprintf("hedge density %.1f per 1000 tokens, no anchors", density)},
	}
}

// Overconfidence flags superlative claims when the role's artifact
// carries neither acceptance tests nor falsifications.
func (e *Engine) Overconfidence(text string, hasAcceptanceTests, hasFalsifications bool) Finding {
	if hasAcceptanceTests || hasFalsifications {
		return Finding{Signal: SignalOverconfidence}
	}
	lower := strings.ToLower(text)
	var evidence []string
	for _, s := range superlatives {
		if strings.Contains(lower, s) {
			evidence = append(evidence, s)
		}
	}
	return Finding{Signal: SignalOverconfidence, Detected: len(evidence) > 0, Evidence: evidence}
}

// Fabrication flags citation-like (Author, Year) patterns with no link
// or DOI anywhere in the text, and named numerics outside the
// per-domain plausible ranges.
func (e *Engine) Fabrication(text string, ranges map[string][2]float64) Finding {
	var evidence []string
	cites := citationShape.FindAllString(text, 8)
	if len(cites) > 0 && !linkOrDOIShape.MatchString(text) {
		evidence = append(evidence, cites...)
	}
	for metric, bounds := range ranges {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(metric) + `\D{0,12}(\d[\d,.]*)`)
		if err != nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, 4) {
			v := parseLooseFloat(m[1])
			if v < bounds[0] || v > bounds[1] {
				evidence = append(evidence, fmt.Sprintf("%s=%s outside [%g, %g]", metric, m[1], bounds[0], bounds[1]))
			}
		}
	}
	return Finding{Signal: SignalFabrication, Detected: len(evidence) > 0, Evidence: evidence}
}

// DomainMisroute scores the output's keyword overlap against every
// configured domain cluster; it fires when a different domain scores
// strictly higher than the declared one.
func (e *Engine) DomainMisroute(text, declaredDomain string) Finding {
	if e.domainKeywords == nil || declaredDomain == "" {
		return Finding{Signal: SignalDomainMisroute}
	}
	lower := strings.ToLower(text)
	scores := make(map[string]int, len(e.domainKeywords))
	for domain, words := range e.domainKeywords {
		for _, w := range words {
			scores[domain] += strings.Count(lower, strings.ToLower(w))
		}
	}
	best, bestScore := declaredDomain, scores[declaredDomain]
	for domain, score := range scores {
		if score > bestScore {
			best, bestScore = domain, score
		}
	}
	if best == declaredDomain {
		return Finding{Signal: SignalDomainMisroute}
	}
	return Finding{
		Signal:   SignalDomainMisroute,
		Detected: true,
		Evidence: []string{fmt.Sprintf("dominant cluster %q (score %d) disagrees with declared %q (score %d)", best, bestScore, declaredDomain, scores[declaredDomain])},
	}
}

// ObservabilityGap fires when the Critic produced no finding whose
// refs span more than one artifact kind.
func (e *Engine) ObservabilityGap(findings []datatypes.Critic) Finding {
	for _, x := range findings {
		if x.Refs.KindsSpanned() > 1 {
			return Finding{Signal: SignalObservabilityGap}
		}
	}
	return Finding{
		Signal:   SignalObservabilityGap,
		Detected: true,
		Evidence: []string{"critic emitted no cross-kind references"},
	}
}

func parseLooseFloat(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	var v float64
	fmt.Sscanf(s, "%f", &v)
	return v
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
