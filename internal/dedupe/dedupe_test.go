package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kiranshivaraju/testscout/internal/similarity"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

func tc(id, title, desc, steps string) *models.TestCase {
	return &models.TestCase{ID: id, Title: title, Description: desc, Steps: steps}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips step markers", "Step 1: open worksheet || Step 2: post", "open worksheet post"},
		{"strips expected marker", "Step 1: post | Expected: saved", "post saved"},
		{"strips bracketed numbers", "row [12] is wrong", "row is wrong"},
		{"strips parenthesized numbers", "error (500) shown", "error shown"},
		{"lowercases and drops punctuation", "Post the Invoice!", "post the invoice"},
		{"collapses whitespace", "too   many \n spaces", "too many spaces"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeText(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := tc("1", "Post invoice", "Invoice posts", "Step 1: Open invoice | Expected: Opens")
	b := tc("2", "Invoice posting works", "invoice posts", "Step 1:   open invoice | Expected:   opens")
	c := tc("3", "Post invoice", "Invoice is voided", "Step 1: Void invoice")

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Len(t, Fingerprint(a), 64)
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TitleSimilarity("Post Invoice", "post invoice"))
	assert.Equal(t, 0.0, TitleSimilarity("", "post invoice"))
	near := TitleSimilarity("post invoice", "post invoices")
	far := TitleSimilarity("post invoice", "release session")
	assert.Greater(t, near, far)
	assert.LessOrEqual(t, near, 1.0)
}

func TestFindPairs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cands := []similarity.Candidate{
		{Record: tc("1", "Post invoice", "Invoice posts", "Step 1: Open invoice"), Vector: []float32{1, 0, 0}, Order: 0},
		{Record: tc("2", "Post invoice copy", "invoice posts", "Step 1: open invoice"), Vector: []float32{1, 0, 0}, Order: 1},
		{Record: tc("3", "Post invoice variant", "Invoice posts in bulk", "Step 1: Select all"), Vector: []float32{0.9, 0.1, 0}, Order: 2},
		{Record: tc("4", "Release session", "Session release", "Step 1: Release"), Vector: []float32{0, 0, 1}, Order: 3},
	}

	pairs, err := FindPairs(context.Background(), cands, DefaultThreshold, DefaultLimit)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	assert.Equal(t, "1", pairs[0].First.ID)
	assert.Equal(t, "2", pairs[0].Second.ID)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 1e-9)
	assert.True(t, pairs[0].Exact)
	assert.Equal(t, models.DuplicateTrue, pairs[0].Classification)

	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, pairs[i-1].Similarity, pairs[i].Similarity)
		assert.False(t, pairs[i].Exact)
		assert.Empty(t, pairs[i].Classification)
		assert.NotEqual(t, "4", pairs[i].First.ID)
		assert.NotEqual(t, "4", pairs[i].Second.ID)
	}
}

func TestFindPairs_Limit(t *testing.T) {
	var cands []similarity.Candidate
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		cands = append(cands, similarity.Candidate{Record: tc(id, id, id, ""), Vector: []float32{1, 1}, Order: i})
	}

	pairs, err := FindPairs(context.Background(), cands, 0.5, 3)
	require.NoError(t, err)
	assert.Len(t, pairs, 3)

	all, err := FindPairs(context.Background(), cands, 0.5, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
	// equal similarity keeps load order
	assert.Equal(t, "a", all[0].First.ID)
	assert.Equal(t, "b", all[0].Second.ID)
}

func TestFindPairs_SkipsZeroAndMismatchedVectors(t *testing.T) {
	cands := []similarity.Candidate{
		{Record: tc("1", "x", "", ""), Vector: []float32{0, 0}},
		{Record: tc("2", "y", "", ""), Vector: []float32{1, 0}},
		{Record: tc("3", "z", "", ""), Vector: []float32{1, 0, 0}},
	}
	pairs, err := FindPairs(context.Background(), cands, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestFindPairs_FewerThanTwo(t *testing.T) {
	pairs, err := FindPairs(context.Background(), nil, DefaultThreshold, DefaultLimit)
	require.NoError(t, err)
	assert.NotNil(t, pairs)
	assert.Empty(t, pairs)
}

func TestFindPairs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cands := []similarity.Candidate{
		{Record: tc("1", "x", "", ""), Vector: []float32{1, 0}},
		{Record: tc("2", "y", "", ""), Vector: []float32{1, 0}},
	}
	_, err := FindPairs(ctx, cands, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func pair(a, b, class, why string) models.DuplicatePair {
	return models.DuplicatePair{First: tc(a, a, "", ""), Second: tc(b, b, "", ""), Classification: class, Rationale: why}
}

func TestGroups(t *testing.T) {
	pairs := []models.DuplicatePair{
		pair("1", "2", models.DuplicateTrue, "same steps"),
		pair("2", "3", models.DuplicateTrue, "same steps"),
		pair("4", "5", models.DuplicateOverlapping, "shared setup"),
		pair("5", "6", models.DuplicateTrue, "copy"),
		pair("7", "8", models.DuplicateDistinct, "different"),
		pair("9", "10", "", ""),
	}

	groups := Groups(pairs)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"1", "2", "3"}, groups[0].TestIDs)
	assert.Equal(t, models.DuplicateTrue, groups[0].Classification)
	assert.Equal(t, "same steps", groups[0].Rationale)

	assert.Equal(t, []string{"4", "5", "6"}, groups[1].TestIDs)
	assert.Equal(t, models.DuplicateOverlapping, groups[1].Classification)
	assert.Equal(t, "shared setup; copy", groups[1].Rationale)
}

func TestGroups_Empty(t *testing.T) {
	groups := Groups(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}
