package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Workspace owns the per-message temporary directory. Every file written
// during one message's pipeline run lives under it; it is destroyed at the
// end of the run unless the retention policy keeps it for diagnostics.
type Workspace struct {
	dir      string
	logger   *zap.Logger
	errCount int
}

// New creates the per-message temporary directory under baseDir
// (os.TempDir when empty).
func New(baseDir string, logger *zap.Logger) (*Workspace, error) {
	dir, err := os.MkdirTemp(baseDir, "ocr-spam-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	logger.Debug("Created workspace", zap.String("dir", dir))
	return &Workspace{dir: dir, logger: logger}, nil
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the absolute path of a file inside the workspace
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile writes data to a file inside the workspace and returns its path
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// RecordError bumps the error counter that grades the retention policy
func (w *Workspace) RecordError() {
	w.errCount++
}

// Errors returns the number of recorded per-message errors
func (w *Workspace) Errors() int {
	return w.errCount
}

// Cleanup removes the workspace unless keepGrade is positive and at least
// that many errors were recorded, in which case the directory is retained
// for diagnostics.
func (w *Workspace) Cleanup(keepGrade int) {
	if keepGrade > 0 && w.errCount >= keepGrade {
		w.logger.Info("Retaining workspace for diagnostics",
			zap.String("dir", w.dir),
			zap.Int("errors", w.errCount))
		return
	}
	w.Destroy()
}

// Destroy unconditionally removes the workspace directory
func (w *Workspace) Destroy() {
	if err := os.RemoveAll(w.dir); err != nil {
		w.logger.Warn("Failed to remove workspace", zap.Error(err), zap.String("dir", w.dir))
		return
	}
	w.logger.Debug("Removed workspace", zap.String("dir", w.dir))
}
