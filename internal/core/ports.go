package core

import (
	"context"
	"io"
	"time"
)

// ToolSpec describes one external tool invocation
type ToolSpec struct {
	// Path is the executable; an empty path fails with RetcodeStartFailure
	Path string
	Args []string
	// Stdin, if set, is fed to the child process
	Stdin io.Reader
	// StdoutFile/StderrFile redirect the stream to a file when non-empty
	StdoutFile string
	StderrFile string
	// CaptureStdout/CaptureStderr collect the stream as text lines instead
	CaptureStdout bool
	CaptureStderr bool
	// Timeout overrides the runner's default per-step timeout when positive
	Timeout time.Duration
}

// ToolRunner invokes an external conversion/OCR program with a bounded
// wall-clock timeout. Failures are encoded in the result's Retcode; Run
// never returns an error because the pipeline treats every failure mode
// as data.
type ToolRunner interface {
	Run(ctx context.Context, spec ToolSpec) ToolResult
}

// HashStore is the digest cache backend. Get returns (nil, nil) on a miss;
// a lookup error is treated as a miss by the caller.
type HashStore interface {
	Get(ctx context.Context, digest string, partition Partition) (*HashRecord, error)
	Put(ctx context.Context, record *HashRecord, partition Partition, meta HashMeta) error
	Close() error
}

// Hasher computes the content digest of a normalized raster
type Hasher interface {
	Digest(data []byte) string
}

// AttachmentSource supplies the message parts eligible for scanning
type AttachmentSource interface {
	Attachments() ([]Attachment, error)
}

// ScoreSink is the host's rule-scoring API: the pre-existing cumulative
// message score, the final-score sink, and the raw message bytes for
// diagnostic capture alongside a retained workspace.
type ScoreSink interface {
	CurrentScore() float64
	Report(rule string, score float64, description string)
	RawMessage() []byte
}
