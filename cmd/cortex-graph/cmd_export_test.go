package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		format, path, want string
		wantErr            bool
	}{
		{"", "-", formatJSON, false},
		{"", "graph.yaml", formatYAML, false},
		{"", "graph.YML", formatYAML, false},
		{"", "graph.json", formatJSON, false},
		{"yml", "graph.json", formatYAML, false},
		{"JSON", "graph.yaml", formatJSON, false},
		{"csv", "", "", true},
	}
	for _, tc := range cases {
		got, err := detectFormat(tc.format, tc.path)
		if tc.wantErr {
			assert.Error(t, err, "%q %q", tc.format, tc.path)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%q %q", tc.format, tc.path)
	}
}

func TestGraphCodec_YAML(t *testing.T) {
	g := &models.KnowledgeGraph{
		Entities: []models.Entity{
			{Name: "Ada", Type: "Person", Observations: []string{"mathematician"}, Labels: []string{"Historic"}},
		},
		Relations: []models.Relation{{Source: "Ada", Target: "Engine", RelationType: "worked_on"}},
	}

	var buf bytes.Buffer
	require.NoError(t, encodeGraph(&buf, g, formatYAML))
	assert.Contains(t, buf.String(), "relationType: worked_on")

	got, err := decodeGraph(&buf, formatYAML)
	require.NoError(t, err)
	assert.Equal(t, g, got)
}

func TestDecodeGraph_EmptyYAML(t *testing.T) {
	got, err := decodeGraph(strings.NewReader(""), formatYAML)
	require.NoError(t, err)
	assert.Empty(t, got.Entities)
}

func TestDecodeGraph_BadJSON(t *testing.T) {
	_, err := decodeGraph(strings.NewReader("{"), formatJSON)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "a b", truncate("a\nb", 5))
}
