// Package scanner orchestrates the per-message scan pipeline: gating,
// conversion chains, the hash cache, scanset iteration, fuzzy matching and
// score aggregation.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/mikey/ocr-spam-filter/internal/fuzzy"
	"github.com/mikey/ocr-spam-filter/internal/pipeline"
	"github.com/mikey/ocr-spam-filter/internal/scanset"
	"github.com/mikey/ocr-spam-filter/internal/sniff"
	"github.com/mikey/ocr-spam-filter/internal/workspace"
	"go.uber.org/zap"
)

// Settings groups the configuration sections the service consumes
type Settings struct {
	Formats config.FormatsConfig
	Image   config.ImageConfig
	Scan    config.ScanConfig
	Score   config.ScoreConfig
	Hash    config.HashConfig
	Scanset config.ScansetConfig
}

// ScanService runs the scan pipeline for one message at a time. A message
// is processed strictly sequentially; the only state shared across
// messages is the scanset registry's hit counters and the hash store.
type ScanService struct {
	settings Settings
	chains   *pipeline.Chains
	runner   core.ToolRunner
	registry *scanset.Registry
	matcher  *fuzzy.Matcher
	store    core.HashStore
	hasher   core.Hasher
	words    core.Wordlist
	logger   *zap.Logger
}

// NewScanService creates a new scan service
func NewScanService(
	settings Settings,
	chains *pipeline.Chains,
	runner core.ToolRunner,
	registry *scanset.Registry,
	matcher *fuzzy.Matcher,
	store core.HashStore,
	hasher core.Hasher,
	words core.Wordlist,
	logger *zap.Logger,
) *ScanService {
	return &ScanService{
		settings: settings,
		chains:   chains,
		runner:   runner,
		registry: registry,
		matcher:  matcher,
		store:    store,
		hasher:   hasher,
		words:    words,
		logger:   logger,
	}
}

// scannedImage records one OCR-scanned image for post-hoc cache writes
type scannedImage struct {
	digest string
	count  int
	meta   core.HashMeta
}

// ScanMessage runs the whole pipeline for one message's attachments and
// reports the final score to the host's scoring sink. It never returns an
// error: every failure mode degrades to "this image or message contributes
// nothing", and the global timeout yields a neutral verdict with the
// workspace removed.
func (s *ScanService) ScanMessage(ctx context.Context, sink core.ScoreSink, atts []core.Attachment) *core.ScanVerdict {
	verdict := &core.ScanVerdict{Rule: s.settings.Score.RuleName, AnalyzedAt: time.Now()}

	pre := sink.CurrentScore()
	if pre > s.settings.Score.AutodisablePositive || pre < s.settings.Score.AutodisableNegative {
		s.logger.Info("Pipeline autodisabled by pre-existing score",
			zap.Float64("score", pre))
		return verdict
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.Scan.GlobalTimeout)
	defer cancel()

	ws, err := workspace.New(s.settings.Scan.TmpDir, s.logger)
	if err != nil {
		s.logger.Error("Failed to create workspace", zap.Error(err))
		return verdict
	}

	var (
		penalty     float64
		occurrences float64
		matched     = make(map[string]int)
		scanned     []scannedImage
	)

	for i := range atts {
		if ctx.Err() != nil {
			return s.abortNeutral(ws, verdict)
		}

		img, ok := s.gate(&atts[i])
		if !ok {
			continue
		}

		path, err := ws.WriteFile(fmt.Sprintf("image-%d.%s", i, img.Format), img.Data)
		if err != nil {
			s.logger.Error("Failed to write candidate image", zap.Error(err))
			ws.RecordError()
			continue
		}
		img.Path = path

		penalty += s.protocolPenalties(img)
		if s.autodisabled(pre, penalty) {
			break
		}

		result, err := s.chains.Normalize(ctx, img, ws)
		if err != nil {
			if ctx.Err() != nil {
				return s.abortNeutral(ws, verdict)
			}
			if result != nil && result.CorruptUnfixable {
				penalty += s.settings.Score.CorruptUnfixable
			}
			s.logger.Warn("Conversion chain aborted image",
				zap.Error(err),
				zap.String("file", img.Filename))
			ws.RecordError()
			if s.autodisabled(pre, penalty) {
				break
			}
			continue
		}
		if result.Corrupt {
			penalty += s.settings.Score.Corrupt
			s.logger.Info("Corrupt image repaired, applying penalty",
				zap.String("file", img.Filename))
			if s.autodisabled(pre, penalty) {
				break
			}
		}

		raster, err := os.ReadFile(result.RasterPath)
		if err != nil {
			s.logger.Error("Failed to read normalized raster", zap.Error(err))
			ws.RecordError()
			continue
		}

		var dig string
		if s.settings.Hash.Enabled() {
			dig = s.hasher.Digest(raster)
			if rec := s.lookup(ctx, dig, core.PartitionSpam); rec != nil && rec.Score > 0 {
				// Known spam finalizes the whole message immediately
				s.logger.Info("Known-spam hash hit",
					zap.String("digest", dig),
					zap.Float64("score", rec.Score))
				verdict.Score = rec.Score
				verdict.Description = rec.Description
				sink.Report(verdict.Rule, verdict.Score, verdict.Description)
				s.finishWorkspace(ws, sink)
				return verdict
			}
			if rec := s.lookup(ctx, dig, core.PartitionGood); rec != nil {
				s.logger.Debug("Known-good hash hit, skipping OCR",
					zap.String("digest", dig))
				continue
			}
		}

		best := s.scanImage(ctx, result.RasterPath)
		if ctx.Err() != nil {
			return s.abortNeutral(ws, verdict)
		}

		weight := 1.0
		if best.Pass == 1 {
			weight = s.settings.Score.Pass1Factor
		}
		occurrences += float64(best.Count) * weight
		for w, c := range best.Words {
			matched[w] += c
		}
		scanned = append(scanned, scannedImage{
			digest: dig,
			count:  best.Count,
			meta: core.HashMeta{
				Filename:    img.Filename,
				ContentType: img.ContentType,
				Format:      img.Format,
			},
		})
	}

	if ctx.Err() != nil {
		return s.abortNeutral(ws, verdict)
	}

	verdict.Score = s.finalScore(occurrences)
	verdict.Description = core.DescribeMatches(matched)
	s.logger.Info("Scan complete",
		zap.Float64("occurrences", occurrences),
		zap.Float64("score", verdict.Score),
		zap.String("matches", verdict.Description))

	sink.Report(verdict.Rule, verdict.Score, verdict.Description)
	s.applyCacheWrites(ctx, verdict, scanned)
	s.finishWorkspace(ws, sink)
	return verdict
}

// finishWorkspace applies the retention policy. A workspace kept for
// diagnostics also gets the raw message written next to the temp files,
// so a failing image can be replayed from the original bytes.
func (s *ScanService) finishWorkspace(ws *workspace.Workspace, sink core.ScoreSink) {
	keep := s.settings.Scan.KeepFailedGrade
	if keep > 0 && ws.Errors() >= keep {
		if raw := sink.RawMessage(); len(raw) > 0 {
			if _, err := ws.WriteFile("message.eml", raw); err != nil {
				s.logger.Warn("Failed to capture raw message for diagnostics", zap.Error(err))
			}
		}
	}
	ws.Cleanup(keep)
}

// autodisabled reports whether accumulated penalties pushed the message
// past the positive autodisable threshold. Crossing it stops all further
// image work before any OCR engine runs.
func (s *ScanService) autodisabled(pre, penalty float64) bool {
	if pre+penalty > s.settings.Score.AutodisablePositive {
		s.logger.Info("Aborting before OCR: penalty score crossed autodisable threshold",
			zap.Float64("penalty", penalty))
		return true
	}
	return false
}

// abortNeutral implements the global-timeout contract: kill is already
// handled by context cancellation, the workspace is removed, and the
// caller gets a neutral score with no sink report.
func (s *ScanService) abortNeutral(ws *workspace.Workspace, verdict *core.ScanVerdict) *core.ScanVerdict {
	s.logger.Error("Global scan timeout, aborting message")
	ws.Destroy()
	verdict.Score = 0
	verdict.Description = ""
	return verdict
}

// gate rejects attachments that must not enter a conversion chain:
// unrecognized format, disabled format, or dimensions out of bounds.
// Rejection has no score impact.
func (s *ScanService) gate(att *core.Attachment) (*core.CandidateImage, bool) {
	info, err := sniff.Sniff(att.Data)
	if err != nil {
		s.logger.Debug("Attachment rejected by sniffer",
			zap.Error(err),
			zap.String("file", att.Filename),
			zap.String("content_type", att.ContentType))
		return nil, false
	}

	if !s.formatEnabled(info.Format) {
		s.logger.Debug("Format disabled in configuration",
			zap.String("format", info.Format.String()))
		return nil, false
	}

	// PDFs are gated later by page count
	if info.Format != core.FormatPDF {
		img := s.settings.Image
		if info.Width < img.MinWidth || info.Height < img.MinHeight ||
			info.Width > img.MaxWidth || info.Height > img.MaxHeight {
			s.logger.Debug("Attachment rejected by dimension bounds",
				zap.Int("width", info.Width),
				zap.Int("height", info.Height),
				zap.String("file", att.Filename))
			return nil, false
		}
	}

	return &core.CandidateImage{
		Data:        att.Data,
		Format:      info.Format,
		Width:       info.Width,
		Height:      info.Height,
		Size:        len(att.Data),
		ContentType: att.ContentType,
		Filename:    att.Filename,
		Extra:       info.Extra,
	}, true
}

func (s *ScanService) formatEnabled(f core.ImageFormat) bool {
	switch f {
	case core.FormatGIF:
		return s.settings.Formats.GIF
	case core.FormatJPEG:
		return s.settings.Formats.JPEG
	case core.FormatPNG:
		return s.settings.Formats.PNG
	case core.FormatBMP:
		return s.settings.Formats.BMP
	case core.FormatTIFF:
		return s.settings.Formats.TIFF
	case core.FormatPDF:
		return s.settings.Formats.PDF
	default:
		return false
	}
}

// expectedContentTypes maps a sniffed format to the declared content types
// that do not count as a protocol violation
var expectedContentTypes = map[core.ImageFormat][]string{
	core.FormatGIF:  {"image/gif"},
	core.FormatJPEG: {"image/jpeg", "image/pjpeg"},
	core.FormatPNG:  {"image/png"},
	core.FormatBMP:  {"image/bmp", "image/x-ms-bmp"},
	core.FormatTIFF: {"image/tiff"},
	core.FormatPDF:  {"application/pdf"},
}

var expectedExtensions = map[core.ImageFormat][]string{
	core.FormatGIF:  {".gif"},
	core.FormatJPEG: {".jpg", ".jpeg"},
	core.FormatPNG:  {".png"},
	core.FormatBMP:  {".bmp"},
	core.FormatTIFF: {".tif", ".tiff"},
	core.FormatPDF:  {".pdf"},
}

// protocolPenalties scores mismatches between what the sender declared and
// what the bytes actually are. Tracked separately for content type and
// extension; octet-stream and a missing filename are not violations.
func (s *ScanService) protocolPenalties(img *core.CandidateImage) float64 {
	var penalty float64

	declared := strings.ToLower(strings.TrimSpace(img.ContentType))
	if declared != "" && declared != "application/octet-stream" &&
		!contains(expectedContentTypes[img.Format], declared) {
		s.logger.Info("Declared content type does not match sniffed format",
			zap.String("declared", declared),
			zap.String("sniffed", img.Format.String()))
		penalty += s.settings.Score.WrongContentType
	}

	if ext := strings.ToLower(filepath.Ext(img.Filename)); ext != "" &&
		!contains(expectedExtensions[img.Format], ext) {
		s.logger.Info("Declared extension does not match sniffed format",
			zap.String("extension", ext),
			zap.String("sniffed", img.Format.String()))
		penalty += s.settings.Score.WrongExtension
	}

	return penalty
}

// lookup queries one hash partition; a backend failure is logged and
// treated as a cache miss.
func (s *ScanService) lookup(ctx context.Context, digest string, partition core.Partition) *core.HashRecord {
	rec, err := s.store.Get(ctx, digest, partition)
	if err != nil {
		s.logger.Warn("Hash store lookup failed, treating as miss",
			zap.Error(err),
			zap.String("partition", string(partition)))
		return nil
	}
	return rec
}

// scanImage iterates the scansets in adaptive order and returns the best
// match report (highest count, earlier scanset winning ties). In minimal
// mode iteration stops as soon as a scanset meets the required count, and
// autosort rewards that scanset.
func (s *ScanService) scanImage(ctx context.Context, rasterPath string) core.MatchReport {
	best := core.MatchReport{Words: map[string]int{}}
	required := s.settings.Score.RequiredCount

	for _, set := range s.registry.Ordered() {
		if ctx.Err() != nil {
			return best
		}
		path, args := set.CommandLine(rasterPath)
		res := s.runner.Run(ctx, core.ToolSpec{
			Path:          path,
			Args:          args,
			CaptureStdout: true,
		})
		if !res.Ok() {
			// A failing OCR engine does not abort the image; the
			// remaining scansets still get their chance
			s.logger.Warn("Scanset failed",
				zap.String("scanset", set.Label),
				zap.Int("retcode", res.Retcode))
			continue
		}

		report := s.matcher.MatchLines(s.words, res.Lines, required)
		s.logger.Debug("Scanset finished",
			zap.String("scanset", set.Label),
			zap.Int("count", report.Count),
			zap.Int("pass", report.Pass))
		if report.Count > best.Count {
			best = report
		}

		if s.settings.Scanset.Minimal && report.Count >= required {
			if s.settings.Scanset.Autosort {
				s.registry.Reward(set.Label)
			}
			break
		}
	}
	return best
}

// finalScore applies the aggregation formula to the message's occurrence total
func (s *ScanService) finalScore(occurrences float64) float64 {
	required := float64(s.settings.Score.RequiredCount)
	if occurrences >= required {
		return s.settings.Score.Base + (occurrences-required)*s.settings.Score.Add
	}
	if s.settings.Score.HamEnabled {
		return s.settings.Score.Add * occurrences
	}
	return 0
}

// applyCacheWrites performs the post-scan learning writes: known-spam
// entries for matching images of a spam verdict, known-good entries for
// clean images of a ham verdict. Writes are best effort.
func (s *ScanService) applyCacheWrites(ctx context.Context, verdict *core.ScanVerdict, scanned []scannedImage) {
	if !s.settings.Hash.Enabled() {
		return
	}

	switch {
	case verdict.Score > 0:
		for _, img := range scanned {
			if img.count == 0 || img.digest == "" {
				continue
			}
			rec := &core.HashRecord{
				Digest:      img.digest,
				Score:       verdict.Score,
				Description: verdict.Description,
			}
			if err := s.store.Put(ctx, rec, core.PartitionSpam, img.meta); err != nil {
				s.logger.Warn("Failed to record known-spam hash", zap.Error(err))
			}
		}
	case verdict.Score == 0 && s.settings.Hash.LearnHam():
		for _, img := range scanned {
			if img.count != 0 || img.digest == "" {
				continue
			}
			rec := &core.HashRecord{Digest: img.digest}
			if err := s.store.Put(ctx, rec, core.PartitionGood, img.meta); err != nil {
				s.logger.Warn("Failed to record known-good hash", zap.Error(err))
			}
		}
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
