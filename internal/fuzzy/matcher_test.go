package fuzzy

import (
	"strings"
	"testing"

	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSelfMatchIsDistanceZero(t *testing.T) {
	for _, w := range []string{"viagra", "cialis", "refinance now"} {
		assert.Equal(t, 0.0, distanceRatio(w, w), w)
	}
}

func TestDistanceRatioSubstring(t *testing.T) {
	assert.Equal(t, 0.0, distanceRatio("viagra", "buy viagra today"))
	// One substitution inside a six-letter word
	assert.InDelta(t, 1.0/6.0, distanceRatio("viagra", "buy v1agra today"), 1e-9)
}

func TestMatchLinesPassZero(t *testing.T) {
	m := NewMatcher(zap.NewNop(), false, true)
	words := core.Wordlist{"viagra": 0.2}
	report := m.MatchLines(words, []string{"CHEAP V!AGRA HERE"}, 1)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, 0, report.Pass)
	assert.Equal(t, 1, report.Words["viagra"])
}

func TestMatchLinesPassOneWinsOnSplitTokens(t *testing.T) {
	m := NewMatcher(zap.NewNop(), false, true)
	words := core.Wordlist{"viagra": 0.2}

	// OCR split the word across tokens; pass 0 cannot reach it
	lines := []string{"v i a g r a"}
	report := m.MatchLines(words, lines, 2)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, 1, report.Pass)
}

func TestPassOneNeverWorseOnSplitInput(t *testing.T) {
	m := NewMatcher(zap.NewNop(), false, false)
	words := core.Wordlist{"viagra": 0.2}
	lines := []string{"via gra", "plain text"}

	pass0 := m.runPass(words, normalizeAll(lines), false)
	pass1 := m.runPass(words, normalizeAll(lines), true)
	assert.GreaterOrEqual(t, pass1.Count, pass0.Count)
}

func TestUniqueMatchStopsAfterFirstHit(t *testing.T) {
	words := core.Wordlist{"viagra": 0.2}
	lines := []string{"viagra", "viagra", "viagra"}

	unique := NewMatcher(zap.NewNop(), false, true)
	assert.Equal(t, 1, unique.MatchLines(words, lines, 10).Count)

	all := NewMatcher(zap.NewNop(), false, false)
	assert.Equal(t, 3, all.MatchLines(words, lines, 10).Count)
}

func TestMatchSkipsPassOneWhenRequiredMet(t *testing.T) {
	m := NewMatcher(zap.NewNop(), false, true)
	words := core.Wordlist{"viagra": 0.2}
	report := m.MatchLines(words, []string{"viagra"}, 1)
	assert.Equal(t, 0, report.Pass)
	assert.Equal(t, 1, report.Count)
}

func TestNormalizeLineSubstitutesConfusables(t *testing.T) {
	assert.Equal(t, "cialis", NormalizeLine("C!AL!S", false))
	assert.Equal(t, "viagra100mg", NormalizeLine("V!AGRA-100mg?", false))
	assert.Equal(t, "viagramg", NormalizeLine("V!AGRA-100mg?", true))
}

func TestParseWordlist(t *testing.T) {
	input := strings.NewReader(`
# spam words
viagra::0.2
CIALIS
refinance now::0.25
`)
	words, err := ParseWordlist(input, 0.3, false)
	require.NoError(t, err)
	assert.Equal(t, core.Wordlist{
		"viagra":        0.2,
		"cialis":        0.3,
		"refinance now": 0.25,
	}, words)
}

func TestParseWordlistRejectsBadThreshold(t *testing.T) {
	_, err := ParseWordlist(strings.NewReader("viagra::1.5"), 0.3, false)
	assert.Error(t, err)
}

func normalizeAll(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, NormalizeLine(l, false))
	}
	return out
}
