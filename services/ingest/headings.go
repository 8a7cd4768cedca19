// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"path/filepath"
	"regexp"
	"strings"
)

// headingPattern matches the structural heading lines printed on the
// first page of a CFR volume.
var headingPattern = regexp.MustCompile(`(?i)^(Title.*|Chapter.*|Subchapter.*)$`)

// ExtractHeadings returns the heading lines found in the first page of
// a CFR volume, in document order.
func ExtractHeadings(firstPage string) []string {
	var headings []string
	for _, line := range strings.Split(firstPage, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if headingPattern.MatchString(line) {
			headings = append(headings, line)
		}
	}
	return headings
}

// HeadingKey joins heading lines into the single key stored alongside
// each chunk, e.g. "Title 40 | Chapter I | Subchapter D".
func HeadingKey(headings []string) string {
	return strings.Join(headings, " | ")
}

// FileTitle returns the file stem used as the chunk's file_title
// property.
func FileTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
