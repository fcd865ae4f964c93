package scanner

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/ocr-spam-filter/internal/adapters/hashstore"
	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/mikey/ocr-spam-filter/internal/digest"
	"github.com/mikey/ocr-spam-filter/internal/fuzzy"
	"github.com/mikey/ocr-spam-filter/internal/pipeline"
	"github.com/mikey/ocr-spam-filter/internal/scanset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner scripts external tools per executable name and counts calls
type fakeRunner struct {
	calls map[string]int
	steps map[string]fakeStep
}

type fakeStep struct {
	retcode int
	lines   []string
	output  []byte
}

func newFakeRunner(steps map[string]fakeStep) *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), steps: steps}
}

func (r *fakeRunner) Run(_ context.Context, spec core.ToolSpec) core.ToolResult {
	r.calls[spec.Path]++
	step := r.steps[spec.Path]
	if spec.StdoutFile != "" && step.retcode == 0 {
		out := step.output
		if out == nil {
			out = []byte("P6 fake raster")
		}
		os.WriteFile(spec.StdoutFile, out, 0600)
	}
	return core.ToolResult{Retcode: step.retcode, Lines: step.lines}
}

func (r *fakeRunner) totalCalls() int {
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

type report struct {
	rule  string
	score float64
	desc  string
}

type fakeSink struct {
	pre     float64
	raw     []byte
	reports []report
}

func (s *fakeSink) CurrentScore() float64 { return s.pre }
func (s *fakeSink) RawMessage() []byte    { return s.raw }
func (s *fakeSink) Report(rule string, score float64, desc string) {
	s.reports = append(s.reports, report{rule, score, desc})
}

func gifAttachment(width, height uint16) core.Attachment {
	b := []byte("GIF89a\x00\x00\x00\x00trailing image data")
	binary.LittleEndian.PutUint16(b[6:8], width)
	binary.LittleEndian.PutUint16(b[8:10], height)
	return core.Attachment{ContentType: "image/gif", Filename: "promo.gif", Data: b}
}

func testSettings(tmpDir string) Settings {
	return Settings{
		Formats: config.FormatsConfig{GIF: true, JPEG: true, PNG: true, BMP: true, TIFF: true, PDF: true},
		Image:   config.ImageConfig{MinWidth: 16, MinHeight: 16, MaxWidth: 2048, MaxHeight: 2048, MaxRasterBytes: 1 << 20, PDFMaxPages: 10},
		Scan:    config.ScanConfig{GlobalTimeout: time.Minute, TmpDir: tmpDir},
		Score: config.ScoreConfig{
			Base:                3.0,
			Add:                 1.0,
			RequiredCount:       1,
			WrongContentType:    1.5,
			WrongExtension:      1.5,
			Corrupt:             2.5,
			CorruptUnfixable:    5.0,
			AutodisablePositive: 100,
			AutodisableNegative: -100,
			Pass1Factor:         0.5,
			RuleName:            "OCR_SPAM",
		},
		Hash: config.HashConfig{Mode: 2},
		Scanset: config.ScansetConfig{
			Minimal:        true,
			Autosort:       true,
			AutosortBuffer: 10,
			Sets: []config.ScanSetDef{
				{Label: "ocrad", Command: "ocrad", Args: []string{"{input}"}},
				{Label: "gocr", Command: "gocr", Args: []string{"-i", "{input}"}},
			},
		},
	}
}

func newTestService(t *testing.T, settings Settings, runner core.ToolRunner, store core.HashStore, words core.Wordlist) *ScanService {
	t.Helper()
	logger := zap.NewNop()
	chains := pipeline.New(runner, toolPaths(), settings.Image, logger)
	registry := scanset.NewRegistry(settings.Scanset.Sets, settings.Scanset.AutosortBuffer, logger)
	matcher := fuzzy.NewMatcher(logger, false, true)
	return NewScanService(settings, chains, runner, registry, matcher, store, digest.NewBlake3Hasher(), words, logger)
}

func toolPaths() config.ToolsConfig {
	paths := map[string]string{}
	for _, t := range []string{
		"giftext", "giffix", "gifsicle", "gifinter", "giftopnm",
		"jpegtopnm", "pngtopnm", "bmptopnm", "tifftopnm",
		"pdfinfo", "pdftops", "pstopnm",
	} {
		paths[t] = t
	}
	return config.ToolsConfig{Timeout: time.Second, Paths: paths}
}

func gifSteps() map[string]fakeStep {
	return map[string]fakeStep{
		"giftext": {lines: []string{"Image #0"}},
		"giffix":  {output: []byte("GIF89a fixed")},
	}
}

func TestScanMessageSpamVerdict(t *testing.T) {
	steps := gifSteps()
	steps["ocrad"] = fakeStep{lines: []string{"CHEAP VIAGRA ONLINE"}}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})

	sink := &fakeSink{}
	verdict := svc.ScanMessage(context.Background(), sink, []core.Attachment{gifAttachment(640, 480)})

	assert.InDelta(t, 3.0, verdict.Score, 1e-9)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, "OCR_SPAM", sink.reports[0].rule)
	assert.InDelta(t, 3.0, sink.reports[0].score, 1e-9)
	assert.Contains(t, verdict.Description, "viagra(1)")

	// Minimal mode: the first scanset met the required count, so the
	// second engine never ran and the winner got its autosort reward
	assert.Equal(t, 1, runner.calls["ocrad"])
	assert.Zero(t, runner.calls["gocr"])
}

func TestScanMessageSpamLearnsHash(t *testing.T) {
	steps := gifSteps()
	steps["ocrad"] = fakeStep{lines: []string{"viagra"}}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})

	svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{gifAttachment(640, 480)})

	dig := digest.NewBlake3Hasher().Digest([]byte("P6 fake raster"))
	rec, err := store.Get(context.Background(), dig, core.PartitionSpam)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 3.0, rec.Score, 1e-9)
}

func TestScanMessageKnownSpamShortCircuits(t *testing.T) {
	runner := newFakeRunner(gifSteps())
	store := hashstore.NewMemoryStore(zap.NewNop())

	dig := digest.NewBlake3Hasher().Digest([]byte("P6 fake raster"))
	require.NoError(t, store.Put(context.Background(),
		&core.HashRecord{Digest: dig, Score: 5.0, Description: "words: viagra(2)"},
		core.PartitionSpam, core.HashMeta{}))

	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})
	sink := &fakeSink{}
	verdict := svc.ScanMessage(context.Background(), sink,
		[]core.Attachment{gifAttachment(640, 480), gifAttachment(320, 240)})

	assert.InDelta(t, 5.0, verdict.Score, 1e-9)
	assert.Equal(t, "words: viagra(2)", verdict.Description)
	// No OCR ran and the second image was never converted
	assert.Zero(t, runner.calls["ocrad"])
	assert.Zero(t, runner.calls["gocr"])
	assert.Equal(t, 1, runner.calls["giftext"])
}

func TestScanMessageKnownGoodSkipsOCR(t *testing.T) {
	runner := newFakeRunner(gifSteps())
	store := hashstore.NewMemoryStore(zap.NewNop())

	dig := digest.NewBlake3Hasher().Digest([]byte("P6 fake raster"))
	require.NoError(t, store.Put(context.Background(),
		&core.HashRecord{Digest: dig}, core.PartitionGood, core.HashMeta{}))

	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})
	verdict := svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{gifAttachment(640, 480)})

	assert.Zero(t, verdict.Score)
	assert.Zero(t, runner.calls["ocrad"])
}

func TestScanMessageRejectsBelowMinWidth(t *testing.T) {
	runner := newFakeRunner(nil)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})

	verdict := svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{gifAttachment(8, 480)})

	assert.Zero(t, verdict.Score)
	assert.Zero(t, runner.totalCalls(), "no external tool may run for a rejected attachment")
}

func TestScanMessageAutodisabledByPreScore(t *testing.T) {
	runner := newFakeRunner(nil)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})

	sink := &fakeSink{pre: 200}
	verdict := svc.ScanMessage(context.Background(), sink, []core.Attachment{gifAttachment(640, 480)})

	assert.Zero(t, verdict.Score)
	assert.Empty(t, sink.reports)
	assert.Zero(t, runner.totalCalls())
}

func TestScanMessageCorruptionPenaltyStopsOCR(t *testing.T) {
	settings := testSettings(t.TempDir())
	settings.Score.Corrupt = 50
	settings.Score.AutodisablePositive = 10

	steps := gifSteps()
	steps["giffix"] = fakeStep{
		lines:  []string{"GIF-LIB error: broken extension block"},
		output: []byte("GIF89a fixed"),
	}
	steps["ocrad"] = fakeStep{lines: []string{"viagra"}}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, settings, runner, store, core.Wordlist{"viagra": 0.2})

	verdict := svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{gifAttachment(640, 480)})

	// The repair penalty crossed the autodisable threshold, so no OCR
	// engine may run even for the image that incurred it
	assert.Zero(t, verdict.Score)
	assert.Zero(t, runner.calls["ocrad"])
	assert.Zero(t, runner.calls["gocr"])
}

func TestScanMessageUnfixablePenaltyStopsRemainingImages(t *testing.T) {
	settings := testSettings(t.TempDir())
	settings.Score.CorruptUnfixable = 50
	settings.Score.AutodisablePositive = 10

	steps := gifSteps()
	steps["giffix"] = fakeStep{
		lines:  []string{"GIF-LIB error: broken extension block"},
		output: []byte{},
	}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, settings, runner, store, core.Wordlist{"viagra": 0.2})

	verdict := svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{
		gifAttachment(640, 480), gifAttachment(320, 240),
	})

	assert.Zero(t, verdict.Score)
	assert.Equal(t, 1, runner.calls["giftext"], "second image must not be converted")
	assert.Zero(t, runner.calls["ocrad"])
}

func TestScanMessageRetainsRawMessageOnFailure(t *testing.T) {
	tmp := t.TempDir()
	settings := testSettings(tmp)
	settings.Scan.KeepFailedGrade = 1

	steps := gifSteps()
	steps["giftopnm"] = fakeStep{retcode: 1}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, settings, runner, store, core.Wordlist{"viagra": 0.2})

	sink := &fakeSink{raw: []byte("From: a@b\r\n\r\nbody")}
	svc.ScanMessage(context.Background(), sink, []core.Attachment{gifAttachment(640, 480)})

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Len(t, entries, 1, "workspace must be retained for the failed image")

	captured, err := os.ReadFile(filepath.Join(tmp, entries[0].Name(), "message.eml"))
	require.NoError(t, err)
	assert.Equal(t, sink.raw, captured)
}

func TestScanMessageGlobalTimeoutYieldsNeutral(t *testing.T) {
	tmp := t.TempDir()
	settings := testSettings(tmp)
	settings.Scan.GlobalTimeout = time.Nanosecond

	steps := gifSteps()
	steps["ocrad"] = fakeStep{lines: []string{"viagra"}}
	runner := newFakeRunner(steps)
	store := hashstore.NewMemoryStore(zap.NewNop())
	svc := newTestService(t, settings, runner, store, core.Wordlist{"viagra": 0.2})

	sink := &fakeSink{}
	verdict := svc.ScanMessage(context.Background(), sink, []core.Attachment{gifAttachment(640, 480)})

	assert.Zero(t, verdict.Score)
	assert.Empty(t, sink.reports, "a timed-out message reports nothing")

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace must not survive a global timeout")
}

func TestScanMessageIdempotentReplay(t *testing.T) {
	store := hashstore.NewMemoryStore(zap.NewNop())
	run := func() float64 {
		steps := gifSteps()
		steps["ocrad"] = fakeStep{lines: []string{"viagra"}}
		runner := newFakeRunner(steps)
		svc := newTestService(t, testSettings(t.TempDir()), runner, store, core.Wordlist{"viagra": 0.2})
		return svc.ScanMessage(context.Background(), sinkOf(0), []core.Attachment{gifAttachment(640, 480)}).Score
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func sinkOf(pre float64) *fakeSink {
	return &fakeSink{pre: pre}
}
