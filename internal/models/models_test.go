package models_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"machine learning":  "MachineLearning",
		"high_priority":     "HighPriority",
		"Person":            "Person",
		"web-3.0 platform":  "Web30Platform",
		"3d":                "Label3d",
		"  spaced  out  ":   "SpacedOut",
		"iPhone":            "IPhone",
		"!!!":               "",
		"":                  "",
		"ünïcode tags ok":   "NCodeTagsOk",
		"42 is the answer!": "Label42IsTheAnswer",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, models.SanitizeLabel(in))
		})
	}
}

func TestSanitizeLabels_Cardinality(t *testing.T) {
	got, err := models.SanitizeLabels([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got)

	_, err = models.SanitizeLabels([]string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "labels", ve.Field)
}

func TestSanitizeLabels_DuplicatesAfterSanitizationCollapse(t *testing.T) {
	got, err := models.SanitizeLabels([]string{"tech", "Tech", "tech!", "", "AI", "Entity"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tech", "AI"}, got)
}

func TestSanitizeLabels_Empty(t *testing.T) {
	got, err := models.SanitizeLabels(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSanitizeRelationType(t *testing.T) {
	rt, err := models.SanitizeRelationType("works with")
	require.NoError(t, err)
	assert.Equal(t, "works_with", rt)

	rt, err = models.SanitizeRelationType("FOUNDED-BY")
	require.NoError(t, err)
	assert.Equal(t, "FOUNDED_BY", rt)

	_, err = models.SanitizeRelationType("!!!")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	_, err = models.SanitizeRelationType("")
	assert.True(t, models.IsValidation(err))
}

func TestIsSafeIdentifier(t *testing.T) {
	assert.True(t, models.IsSafeIdentifier("Entity"))
	assert.True(t, models.IsSafeIdentifier("works_with"))
	assert.True(t, models.IsSafeIdentifier("memory_content_embeddings"))
	assert.False(t, models.IsSafeIdentifier(""))
	assert.False(t, models.IsSafeIdentifier("a`b"))
	assert.False(t, models.IsSafeIdentifier("x) DETACH DELETE n //"))
	assert.False(t, models.IsSafeIdentifier("with space"))
}

func TestNewEntity_DedupesObservations(t *testing.T) {
	e, err := models.NewEntity("Ethereum", "Blockchain",
		[]string{"smart contracts", "proof of stake", "smart contracts"},
		[]string{"crypto platform"})
	require.NoError(t, err)
	assert.Equal(t, []string{"smart contracts", "proof of stake"}, e.Observations)
	assert.Equal(t, []string{"CryptoPlatform"}, e.Labels)
	assert.Equal(t, models.MergeKey{Name: "Ethereum", Type: "Blockchain"}, e.Key())
	assert.Equal(t, "Ethereum (Blockchain)", e.Key().String())
}

func TestNewEntity_TooManyLabels(t *testing.T) {
	_, err := models.NewEntity("x", "y", nil, []string{"a", "b", "c", "d"})
	assert.True(t, models.IsValidation(err))
}

func TestNewEntity_EmptyNameAccepted(t *testing.T) {
	e, err := models.NewEntity("", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, e.Observations)
}

func TestEntityClone_NoSharedSlices(t *testing.T) {
	e := models.Entity{Name: "a", Type: "b", Observations: []string{"o"}, Labels: []string{"L"}}
	c := e.Clone()
	c.Observations[0] = "changed"
	c.Labels[0] = "changed"
	assert.Equal(t, "o", e.Observations[0])
	assert.Equal(t, "L", e.Labels[0])
}

func TestParseSearchMode(t *testing.T) {
	m, err := models.ParseSearchMode("")
	require.NoError(t, err)
	assert.Equal(t, models.SearchModeContent, m)

	for _, mode := range models.ValidSearchModes {
		got, err := models.ParseSearchMode(string(mode))
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err = models.ParseSearchMode("vibes")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestWithField(t *testing.T) {
	err := models.WithField(&models.ValidationError{Field: "labels", Reason: "too many"}, "entities[2]")
	assert.EqualError(t, err, "invalid entities[2].labels: too many")
	assert.True(t, models.IsValidation(err))

	plain := errors.New("boom")
	assert.Same(t, plain, models.WithField(plain, "x"))
}

func TestEmbeddingSetComplete(t *testing.T) {
	assert.False(t, models.EmbeddingSet{}.Complete())
	assert.True(t, models.EmbeddingSet{
		Content:     []float32{1},
		Observation: []float32{1},
		Identity:    []float32{1},
	}.Complete())
}

func TestEmptySearchResult(t *testing.T) {
	r := models.EmptySearchResult("fulltext")
	assert.NotNil(t, r.Entities)
	assert.NotNil(t, r.Relations)
	assert.Equal(t, "fulltext", r.Strategy)
}
