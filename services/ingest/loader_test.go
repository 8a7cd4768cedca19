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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHeadings(t *testing.T) {
	tests := []struct {
		name string
		page string
		want []string
	}{
		{
			name: "cfr title page",
			page: "Title 40\nProtection of Environment\nChapter I\nSubchapter D\nPart 112\n",
			want: []string{"Title 40", "Chapter I", "Subchapter D"},
		},
		{
			name: "case insensitive",
			page: "TITLE 33\nchapter II\n",
			want: []string{"TITLE 33", "chapter II"},
		},
		{
			name: "surrounding whitespace trimmed",
			page: "  Title 40  \r\n\tChapter I\t\n",
			want: []string{"Title 40", "Chapter I"},
		},
		{
			name: "mid-line mentions ignored",
			page: "See Title 40 for details\nthe Chapter on spills\n",
			want: nil,
		},
		{
			name: "no headings",
			page: "Oil spill prevention and response plans.\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractHeadings(tt.page))
		})
	}
}

func TestHeadingKey(t *testing.T) {
	assert.Equal(t, "Title 40 | Chapter I", HeadingKey([]string{"Title 40", "Chapter I"}))
	assert.Equal(t, "Title 40", HeadingKey([]string{"Title 40"}))
	assert.Equal(t, "", HeadingKey(nil))
}

func TestFileTitle(t *testing.T) {
	assert.Equal(t, "CFR-2023-title40-vol1", FileTitle("/data/cfr/CFR-2023-title40-vol1.pdf"))
	assert.Equal(t, "plain", FileTitle("plain.PDF"))
}

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("some regulation text")
	b := ChunkID("some regulation text")
	c := ChunkID("different regulation text")

	assert.Equal(t, a, b, "same content must map to the same object ID")
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 36)
}

func TestSplitterProducesOverlappingChunks(t *testing.T) {
	loader := NewLoader(nil, nil, 0)

	text := strings.Repeat("The facility must maintain a spill prevention plan. ", 200)
	chunks, err := loader.splitter.SplitText(text)
	assert.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), CHUNK_SIZE+CHUNK_OVERLAP)
	}
}
