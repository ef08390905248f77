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
	"regexp"
	"strings"
)

// RedundancyThreshold is the maximum allowed trigram Jaccard overlap
// between a role's output and the union of upstream outputs. Breaches
// attach a soft REDUNDANCY signal; they never fail the role.
const RedundancyThreshold = 0.55

var shingleToken = regexp.MustCompile(`[a-z0-9]+`)

// shingles builds the n-gram shingle set of text.
func shingles(text string, n int) map[string]bool {
	tokens := shingleToken.FindAllString(strings.ToLower(text), -1)
	out := make(map[string]bool)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")] = true
	}
	return out
}

// RedundancyScore computes the trigram Jaccard similarity between the
// current text and the union of all prior texts. 0 means no overlap.
func RedundancyScore(current string, prior []string) float64 {
	if current == "" || len(prior) == 0 {
		return 0
	}
	cur := shingles(current, 3)
	if len(cur) == 0 {
		return 0
	}
	union := make(map[string]bool)
	for _, p := range prior {
		for s := range shingles(p, 3) {
			union[s] = true
		}
	}
	if len(union) == 0 {
		return 0
	}
	inter := 0
	total := len(union)
	for s := range cur {
		if union[s] {
			inter++
		} else {
			total++
		}
	}
	return float64(inter) / float64(total)
}
