// Package pipeline holds the format-specific conversion chains that turn a
// candidate image into the normalized raster form OCR engines consume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mikey/ocr-spam-filter/internal/config"
	"github.com/mikey/ocr-spam-filter/internal/core"
	"github.com/mikey/ocr-spam-filter/internal/workspace"
	"go.uber.org/zap"
)

// Chain failure modes. Each aborts only the current image.
var (
	ErrToolMissing      = errors.New("required tool not configured")
	ErrToolTimeout      = errors.New("tool timed out")
	ErrToolFailed       = errors.New("tool exited with error")
	ErrRasterTooLarge   = errors.New("converted raster exceeds size bound")
	ErrTooManyPages     = errors.New("pdf page count exceeds maximum")
	ErrUnfixableCorrupt = errors.New("corrupt image could not be repaired")
)

// corruptionMarker is the giffix stderr string that flags structural damage
const corruptionMarker = "GIF-LIB error"

// pdfRasterWidth is the pixel width cap applied when rasterizing PDFs
const pdfRasterWidth = 1000

// Result is the outcome of one image's conversion chain
type Result struct {
	RasterPath string
	// Corrupt is set when the repair tool reported fixable damage;
	// CorruptUnfixable when the image stayed empty after repair.
	Corrupt          bool
	CorruptUnfixable bool
}

// Chains runs the per-format conversion sequences
type Chains struct {
	runner core.ToolRunner
	tools  config.ToolsConfig
	image  config.ImageConfig
	logger *zap.Logger
}

// New creates the conversion chains
func New(runner core.ToolRunner, tools config.ToolsConfig, image config.ImageConfig, logger *zap.Logger) *Chains {
	return &Chains{
		runner: runner,
		tools:  tools,
		image:  image,
		logger: logger,
	}
}

// Normalize converts one on-disk candidate image to the normalized raster
// form, running the format's chain of external tools inside the workspace.
func (c *Chains) Normalize(ctx context.Context, img *core.CandidateImage, ws *workspace.Workspace) (*Result, error) {
	switch img.Format {
	case core.FormatGIF:
		return c.gifChain(ctx, img, ws)
	case core.FormatJPEG:
		return c.rasterChain(ctx, img, ws, "jpegtopnm")
	case core.FormatPNG:
		return c.rasterChain(ctx, img, ws, "pngtopnm")
	case core.FormatBMP:
		return c.rasterChain(ctx, img, ws, "bmptopnm")
	case core.FormatTIFF:
		return c.rasterChain(ctx, img, ws, "tifftopnm")
	case core.FormatPDF:
		return c.pdfChain(ctx, img, ws)
	default:
		return nil, fmt.Errorf("no conversion chain for format %s", img.Format)
	}
}

// gifChain runs the GIF repair/deanimation sub-chain: info, then either
// deanimation (multi-frame), structural fix (single-frame non-interlaced)
// or interlace correction, then conversion to the raster form.
func (c *Chains) gifChain(ctx context.Context, img *core.CandidateImage, ws *workspace.Workspace) (*Result, error) {
	info := c.runner.Run(ctx, core.ToolSpec{
		Path:          c.tools.Path("giftext"),
		Args:          []string{img.Path},
		CaptureStdout: true,
	})
	if !info.Ok() {
		return nil, retcodeErr("giftext", info.Retcode)
	}
	frames, interlaced := parseGifInfo(info.Lines)
	c.logger.Debug("GIF info",
		zap.String("file", img.Filename),
		zap.Int("frames", frames),
		zap.Bool("interlaced", interlaced))

	result := &Result{}
	current := img.Path

	switch {
	case frames > 1:
		deanimated := ws.Path("deanimated.gif")
		res := c.runner.Run(ctx, core.ToolSpec{
			Path: c.tools.Path("gifsicle"),
			Args: []string{current, "#0", "-o", deanimated},
		})
		if !res.Ok() {
			return nil, retcodeErr("gifsicle", res.Retcode)
		}
		current = deanimated
	case !interlaced:
		fixed := ws.Path("fixed.gif")
		res := c.runner.Run(ctx, core.ToolSpec{
			Path:          c.tools.Path("giffix"),
			Args:          []string{current},
			StdoutFile:    fixed,
			CaptureStderr: true,
		})
		if containsMarker(res.Lines) {
			if fileSize(fixed) == 0 {
				result.CorruptUnfixable = true
				return result, ErrUnfixableCorrupt
			}
			result.Corrupt = true
			current = fixed
			break
		}
		if !res.Ok() {
			return nil, retcodeErr("giffix", res.Retcode)
		}
		if fileSize(fixed) > 0 {
			current = fixed
		}
	}

	if interlaced {
		deinterlaced := ws.Path("deinterlaced.gif")
		res := c.runner.Run(ctx, core.ToolSpec{
			Path:       c.tools.Path("gifinter"),
			Args:       []string{current},
			StdoutFile: deinterlaced,
		})
		if !res.Ok() {
			return nil, retcodeErr("gifinter", res.Retcode)
		}
		current = deinterlaced
	}

	raster := ws.Path("image.pnm")
	res := c.runner.Run(ctx, core.ToolSpec{
		Path:       c.tools.Path("giftopnm"),
		Args:       []string{current},
		StdoutFile: raster,
	})
	if !res.Ok() {
		return nil, retcodeErr("giftopnm", res.Retcode)
	}
	if err := c.checkRasterSize(raster, core.FormatGIF); err != nil {
		return nil, err
	}
	result.RasterPath = raster
	return result, nil
}

// rasterChain is the single-conversion chain shared by JPEG, PNG, BMP and TIFF
func (c *Chains) rasterChain(ctx context.Context, img *core.CandidateImage, ws *workspace.Workspace, tool string) (*Result, error) {
	raster := ws.Path("image.pnm")
	res := c.runner.Run(ctx, core.ToolSpec{
		Path:       c.tools.Path(tool),
		Args:       []string{img.Path},
		StdoutFile: raster,
	})
	if !res.Ok() {
		return nil, retcodeErr(tool, res.Retcode)
	}
	if err := c.checkRasterSize(raster, img.Format); err != nil {
		return nil, err
	}
	return &Result{RasterPath: raster}, nil
}

// pdfChain gates on page count via pdfinfo, then converts through the
// intermediate PostScript form to a raster capped at pdfRasterWidth.
func (c *Chains) pdfChain(ctx context.Context, img *core.CandidateImage, ws *workspace.Workspace) (*Result, error) {
	info := c.runner.Run(ctx, core.ToolSpec{
		Path:          c.tools.Path("pdfinfo"),
		Args:          []string{img.Path},
		CaptureStdout: true,
	})
	if !info.Ok() {
		return nil, retcodeErr("pdfinfo", info.Retcode)
	}
	pages := parsePageCount(info.Lines)
	if pages > c.image.PDFMaxPages {
		c.logger.Info("PDF rejected by page count",
			zap.String("file", img.Filename),
			zap.Int("pages", pages),
			zap.Int("max", c.image.PDFMaxPages))
		return nil, ErrTooManyPages
	}

	ps := ws.Path("document.ps")
	res := c.runner.Run(ctx, core.ToolSpec{
		Path: c.tools.Path("pdftops"),
		Args: []string{img.Path, ps},
	})
	if !res.Ok() {
		return nil, retcodeErr("pdftops", res.Retcode)
	}

	raster := ws.Path("image.pnm")
	res = c.runner.Run(ctx, core.ToolSpec{
		Path:       c.tools.Path("pstopnm"),
		Args:       []string{fmt.Sprintf("-xsize=%d", pdfRasterWidth), "-stdout", ps},
		StdoutFile: raster,
	})
	if !res.Ok() {
		return nil, retcodeErr("pstopnm", res.Retcode)
	}
	if err := c.checkRasterSize(raster, core.FormatPDF); err != nil {
		return nil, err
	}
	return &Result{RasterPath: raster}, nil
}

func (c *Chains) checkRasterSize(path string, format core.ImageFormat) error {
	if limit := c.image.RasterLimit(format.String()); limit > 0 && fileSize(path) > limit {
		return ErrRasterTooLarge
	}
	return nil
}

// parseGifInfo extracts the frame count and interlace flag from giftext output
func parseGifInfo(lines []string) (frames int, interlaced bool) {
	for _, line := range lines {
		if strings.Contains(line, "Image #") {
			frames++
		}
		l := strings.ToLower(line)
		if strings.Contains(l, "interlaced") &&
			!strings.Contains(l, "non") && !strings.Contains(l, "off") {
			interlaced = true
		}
	}
	return frames, interlaced
}

// parsePageCount extracts the page count from pdfinfo output, zero if absent
func parsePageCount(lines []string) int {
	for _, line := range lines {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err == nil {
			return n
		}
	}
	return 0
}

func containsMarker(lines []string) bool {
	for _, line := range lines {
		if strings.Contains(line, corruptionMarker) {
			return true
		}
	}
	return false
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func retcodeErr(tool string, retcode int) error {
	switch retcode {
	case core.RetcodeTimeout:
		return fmt.Errorf("%s: %w", tool, ErrToolTimeout)
	case core.RetcodeStartFailure:
		return fmt.Errorf("%s: %w", tool, ErrToolMissing)
	default:
		return fmt.Errorf("%s exited with %d: %w", tool, retcode, ErrToolFailed)
	}
}
