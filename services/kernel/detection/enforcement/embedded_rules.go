// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bridges the build system and the runtime detectors. The Go
embed package bakes signal_patterns.yaml into the compiled binary so
the pattern rules are immutable at runtime and travel with the
executable.
*/

package enforcement

import (
	_ "embed"
)

// SignalPatterns holds the raw byte content of signal_patterns.yaml.
//
// Populated at compile time via the embed directive; pattern rules
// cannot be tampered with on the host filesystem without recompiling.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.SignalPatterns, &targetStruct)
//
//go:embed signal_patterns.yaml
var SignalPatterns []byte
