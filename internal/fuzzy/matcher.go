package fuzzy

import (
	"strings"

	"github.com/agext/levenshtein"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// Matcher runs the two-pass approximate match between a wordlist and OCR
// output lines. Pass 0 preserves spaces; pass 1 strips them from both word
// and line to tolerate OCR token-splitting.
type Matcher struct {
	logger       *zap.Logger
	stripNumbers bool
	uniqueMatch  bool
}

// NewMatcher creates a new fuzzy matcher
func NewMatcher(logger *zap.Logger, stripNumbers, uniqueMatch bool) *Matcher {
	return &Matcher{
		logger:       logger,
		stripNumbers: stripNumbers,
		uniqueMatch:  uniqueMatch,
	}
}

// MatchLines matches all wordlist words against the OCR output lines.
// If pass 0 already meets requiredCount, pass 1 is not run; otherwise the
// report with the larger count wins, ties favoring pass 0.
func (m *Matcher) MatchLines(words core.Wordlist, lines []string, requiredCount int) core.MatchReport {
	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		if n := NormalizeLine(line, m.stripNumbers); n != "" {
			normalized = append(normalized, n)
		}
	}

	pass0 := m.runPass(words, normalized, false)
	pass0.Pass = 0
	if requiredCount > 0 && pass0.Count >= requiredCount {
		return pass0
	}

	pass1 := m.runPass(words, normalized, true)
	pass1.Pass = 1
	if pass1.Count > pass0.Count {
		return pass1
	}
	return pass0
}

func (m *Matcher) runPass(words core.Wordlist, lines []string, stripSpaces bool) core.MatchReport {
	report := core.MatchReport{Words: make(map[string]int)}
	for word, threshold := range words {
		w := word
		if stripSpaces {
			w = strings.ReplaceAll(w, " ", "")
		}
		if w == "" {
			continue
		}
		for _, line := range lines {
			l := line
			if stripSpaces {
				l = strings.ReplaceAll(l, " ", "")
			}
			ratio := distanceRatio(w, l)
			if ratio < threshold {
				report.Count++
				report.Words[word]++
				m.logger.Debug("Fuzzy hit",
					zap.String("word", word),
					zap.Float64("ratio", ratio),
					zap.Bool("space_stripped", stripSpaces))
				if m.uniqueMatch {
					break
				}
			}
		}
	}
	return report
}

// distanceRatio computes the approximate-substring distance between a word
// and a line: the minimum edit distance between the word and any
// word-length window of the line, divided by the word length. A contained
// word is distance zero.
func distanceRatio(word, line string) float64 {
	if word == "" {
		return 1
	}
	if strings.Contains(line, word) {
		return 0
	}
	wl := len(word)
	if len(line) <= wl {
		return float64(levenshtein.Distance(word, line, nil)) / float64(wl)
	}
	best := wl
	for i := 0; i+wl <= len(line); i++ {
		d := levenshtein.Distance(word, line[i:i+wl], nil)
		if d < best {
			best = d
		}
		if best == 0 {
			break
		}
	}
	return float64(best) / float64(wl)
}
