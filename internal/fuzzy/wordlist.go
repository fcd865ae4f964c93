package fuzzy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mikey/ocr-spam-filter/internal/core"
	"go.uber.org/zap"
)

// ParseWordlist reads a wordlist: one word per line, optionally
// `word::threshold`, `#` starting a comment. Words are normalized at load
// so matching compares like with like.
func ParseWordlist(r io.Reader, defaultThreshold float64, stripNumbers bool) (core.Wordlist, error) {
	words := make(core.Wordlist)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word := line
		threshold := defaultThreshold
		if idx := strings.Index(line, "::"); idx >= 0 {
			word = strings.TrimSpace(line[:idx])
			v, err := strconv.ParseFloat(strings.TrimSpace(line[idx+2:]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid threshold: %w", lineNo, err)
			}
			if v < 0 || v >= 1 {
				return nil, fmt.Errorf("line %d: threshold %v outside [0,1)", lineNo, v)
			}
			threshold = v
		}
		normalized := NormalizeWord(word, stripNumbers)
		if normalized == "" {
			continue
		}
		words[normalized] = threshold
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	return words, nil
}

// LoadWordlists loads the global wordlist and merges the optional personal
// list on top of it; personal entries override global thresholds.
func LoadWordlists(globalPath, personalPath string, defaultThreshold float64, stripNumbers bool, logger *zap.Logger) (core.Wordlist, error) {
	words, err := loadFile(globalPath, defaultThreshold, stripNumbers)
	if err != nil {
		return nil, fmt.Errorf("global wordlist: %w", err)
	}

	if personalPath != "" {
		personal, err := loadFile(personalPath, defaultThreshold, stripNumbers)
		if err != nil {
			return nil, fmt.Errorf("personal wordlist: %w", err)
		}
		for w, t := range personal {
			words[w] = t
		}
	}

	logger.Info("Loaded wordlist", zap.Int("words", len(words)))
	return words, nil
}

func loadFile(path string, defaultThreshold float64, stripNumbers bool) (core.Wordlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseWordlist(f, defaultThreshold, stripNumbers)
}
