// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citations detects CFR references in answer text.
//
// The patterns live in an embedded YAML rules file so the recognized
// citation grammar can be reviewed and extended without touching code.
package citations

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var citationPatterns []byte

type citationRule struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`
}

type citationRuleFile struct {
	Version  int            `yaml:"version"`
	Patterns []citationRule `yaml:"patterns"`
}

// Extractor finds CFR citations in free text.
//
// # Description
//
// The extractor joins the rule patterns into one alternation compiled at
// construction time. At each position the alternatives are tried in file
// order, so paragraph-level patterns win over their section-level prefixes.
// This is a pure function of its input: no session state, no network.
type Extractor struct {
	pattern *regexp.Regexp
	rules   []citationRule
}

// NewExtractor loads and compiles the embedded citation rules.
//
// Returns an error if the embedded YAML is malformed, empty, or contains
// an invalid regex.
func NewExtractor() (*Extractor, error) {
	var ruleFile citationRuleFile
	if err := yaml.Unmarshal(citationPatterns, &ruleFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded citation rules: %w", err)
	}
	if len(ruleFile.Patterns) == 0 {
		return nil, fmt.Errorf("embedded citation rules contain no patterns")
	}

	// Validate each alternative on its own so a bad rule is reported by ID.
	alternatives := make([]string, 0, len(ruleFile.Patterns))
	for _, rule := range ruleFile.Patterns {
		if _, err := regexp.Compile(rule.Regex); err != nil {
			return nil, fmt.Errorf("failed to compile citation rule %s: %w", rule.Id, err)
		}
		alternatives = append(alternatives, rule.Regex)
	}

	combined, err := regexp.Compile(strings.Join(alternatives, "|"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile combined citation pattern: %w", err)
	}

	return &Extractor{pattern: combined, rules: ruleFile.Patterns}, nil
}

// Extract returns every citation in text, in text order.
//
// Duplicates are preserved: an answer that cites § 112.4 twice yields two
// entries, and the requery stage expands both.
func (e *Extractor) Extract(text string) []string {
	return e.pattern.FindAllString(text, -1)
}
