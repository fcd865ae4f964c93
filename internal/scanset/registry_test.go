package scanset

import (
	"path/filepath"
	"testing"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDefs() []config.ScanSetDef {
	return []config.ScanSetDef{
		{Label: "ocrad", Command: "ocrad", Args: []string{"{input}"}},
		{Label: "gocr", Command: "gocr", Args: []string{"-i", "{input}"}},
	}
}

func TestCommandLineExpansion(t *testing.T) {
	r := NewRegistry(testDefs(), 10, zap.NewNop())
	sets := r.Ordered()
	path, args := sets[1].CommandLine("/tmp/x.pnm")
	assert.Equal(t, "gocr", path)
	assert.Equal(t, []string{"-i", "/tmp/x.pnm"}, args)
}

func TestOrderedKeepsConfiguredOrderOnTies(t *testing.T) {
	r := NewRegistry(testDefs(), 10, zap.NewNop())
	sets := r.Ordered()
	assert.Equal(t, "ocrad", sets[0].Label)
	assert.Equal(t, "gocr", sets[1].Label)
}

func TestRewardReorders(t *testing.T) {
	r := NewRegistry(testDefs(), 10, zap.NewNop())
	r.Reward("gocr")
	sets := r.Ordered()
	assert.Equal(t, "gocr", sets[0].Label)
	assert.Equal(t, 1, sets[0].Hits)
}

func TestRewardCapAndFloor(t *testing.T) {
	r := NewRegistry(testDefs(), 2, zap.NewNop())
	for i := 0; i < 5; i++ {
		r.Reward("ocrad")
	}
	sets := r.Ordered()
	assert.Equal(t, 2, sets[0].Hits, "capped at autosort buffer")
	assert.Equal(t, 0, sets[1].Hits, "floored at zero")
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scansets.json")

	r := NewRegistry(testDefs(), 10, zap.NewNop())
	r.Reward("gocr")
	r.Reward("gocr")
	require.NoError(t, r.SaveState(path))

	fresh := NewRegistry(testDefs(), 10, zap.NewNop())
	require.NoError(t, fresh.LoadState(path))
	sets := fresh.Ordered()
	assert.Equal(t, "gocr", sets[0].Label)
	assert.Equal(t, 2, sets[0].Hits)
}

func TestLoadStateMissingFile(t *testing.T) {
	r := NewRegistry(testDefs(), 10, zap.NewNop())
	require.NoError(t, r.LoadState(filepath.Join(t.TempDir(), "absent.json")))
	assert.Equal(t, 0, r.Ordered()[0].Hits)
}
