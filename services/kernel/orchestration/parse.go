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
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var bareArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// ExtractRoleArray pulls the role's JSON array out of an LLM response.
//
// The first fenced block whose tag matches the role letter (```S) or
// the generic ```json tag is preferred; without a fence the first JSON
// array in the text is used. Trailing narrative inside the fenced
// block is rejected: the block must parse as a single array.
func ExtractRoleArray(text, letter string) (json.RawMessage, error) {
	for _, tag := range []string{letter, strings.ToLower(letter), "json", ""} {
		block, found := fencedBlock(text, tag)
		if !found {
			continue
		}
		raw, err := parseExactArray(block)
		if err != nil {
			return nil, fmt.Errorf("fenced %s block: %w", letter, err)
		}
		return raw, nil
	}
	if m := bareArrayPattern.FindString(text); m != "" {
		raw, err := parseExactArray(m)
		if err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("no %s JSON array found in response", letter)
}

// fencedBlock returns the content of the first ``` fence with the
// given tag ("" matches any tag).
func fencedBlock(text, tag string) (string, bool) {
	marker := "```" + tag
	start := strings.Index(text, marker)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(marker):]
	if tag == "" {
		// Skip whatever tag word is present.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
	} else {
		// The tag must end the marker word, otherwise ```S would also
		// match ```SQL.
		if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' && rest[0] != ' ' {
			return "", false
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// parseExactArray decodes s as one JSON array and rejects trailing
// content after it.
func parseExactArray(s string) (json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("payload is not a JSON array")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing content after JSON array")
	}
	var probe []json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("payload is not a JSON array: %w", err)
	}
	return raw, nil
}
