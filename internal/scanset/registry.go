package scanset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"go.uber.org/zap"
)

// ScanSet is one configured OCR engine invocation: a label plus a command
// template with `{input}` placeholders.
type ScanSet struct {
	Label   string
	Command string
	Args    []string
	// Hits is the bounded adaptive counter in [0, buffer]; it biases
	// iteration order only, never correctness.
	Hits int
}

// CommandLine expands the command template for one input file
func (s *ScanSet) CommandLine(inputPath string) (string, []string) {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = strings.ReplaceAll(a, "{input}", inputPath)
	}
	return strings.ReplaceAll(s.Command, "{input}", inputPath), args
}

// Registry holds the ordered collection of scansets with their adaptive
// hit counters. The counters are process-wide state shared across messages
// scanned by the same worker; mutation goes through Reward only.
type Registry struct {
	mu     sync.Mutex
	sets   []*ScanSet
	buffer int
	logger *zap.Logger
}

// NewRegistry creates a registry from the configured scanset definitions
func NewRegistry(defs []config.ScanSetDef, buffer int, logger *zap.Logger) *Registry {
	sets := make([]*ScanSet, 0, len(defs))
	for _, d := range defs {
		sets = append(sets, &ScanSet{
			Label:   d.Label,
			Command: d.Command,
			Args:    append([]string(nil), d.Args...),
		})
	}
	return &Registry{sets: sets, buffer: buffer, logger: logger}
}

// Ordered returns the scansets sorted by descending hit counter. The sort
// is stable so equal counters keep their configured order.
func (r *Registry) Ordered() []*ScanSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ScanSet, len(r.sets))
	copy(out, r.sets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Hits > out[j].Hits
	})
	return out
}

// Reward increments the winning scanset's hit counter (capped at the
// autosort buffer) and decrements every other counter (floored at zero).
func (r *Registry) Reward(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sets {
		if s.Label == label {
			if s.Hits < r.buffer {
				s.Hits++
			}
		} else if s.Hits > 0 {
			s.Hits--
		}
	}
}

// LoadState restores hit counters from a JSON state file. A missing file
// leaves all counters at zero; counters for unknown labels are ignored.
func (r *Registry) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read scanset state: %w", err)
	}
	var hits map[string]int
	if err := json.Unmarshal(data, &hits); err != nil {
		return fmt.Errorf("failed to parse scanset state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sets {
		if h, ok := hits[s.Label]; ok {
			if h < 0 {
				h = 0
			}
			if h > r.buffer {
				h = r.buffer
			}
			s.Hits = h
		}
	}
	r.logger.Debug("Loaded scanset state", zap.String("path", path))
	return nil
}

// SaveState persists the hit counters to a JSON state file
func (r *Registry) SaveState(path string) error {
	r.mu.Lock()
	hits := make(map[string]int, len(r.sets))
	for _, s := range r.sets {
		hits[s.Label] = s.Hits
	}
	r.mu.Unlock()

	data, err := json.Marshal(hits)
	if err != nil {
		return fmt.Errorf("failed to encode scanset state: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write scanset state: %w", err)
	}
	return nil
}
