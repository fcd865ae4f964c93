package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ImageFormat identifies the detected attachment format
type ImageFormat int

const (
	FormatUnknown ImageFormat = iota
	FormatGIF
	FormatJPEG
	FormatPNG
	FormatBMP
	FormatTIFF
	FormatPDF
)

// String returns the canonical lower-case name of the format
func (f ImageFormat) String() string {
	switch f {
	case FormatGIF:
		return "gif"
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	case FormatPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// CandidateImage represents one qualifying attachment inside a message's
// pipeline run. It is created once per attachment and never outlives the
// message's temp workspace.
type CandidateImage struct {
	Data        []byte
	Format      ImageFormat
	Width       int
	Height      int
	Size        int
	ContentType string
	Filename    string
	Path        string
	// Extra carries format-specific header info (the PDF version string)
	Extra string
}

// Sentinel return codes reported by the tool runner
const (
	RetcodeTimeout      = -1
	RetcodeStartFailure = -2
)

// ToolResult is the uniform result of one external tool invocation.
// Retcode 0 means success, positive values are the tool's exit code and
// negative values are the sentinels above.
type ToolResult struct {
	Retcode int
	Lines   []string
}

// Ok reports whether the invocation succeeded
func (r ToolResult) Ok() bool { return r.Retcode == 0 }

// Wordlist maps normalized word text to its fuzz-distance threshold
type Wordlist map[string]float64

// MatchReport is the outcome of matching one scanset's output against the
// wordlist. Pass is 0 for the space-preserving pass and 1 for the
// space-stripped pass.
type MatchReport struct {
	Count int
	Pass  int
	Words map[string]int
}

// Partition names a logical hash store partition
type Partition string

const (
	PartitionSpam Partition = "known-spam"
	PartitionGood Partition = "known-good"
)

// HashRecord is one durable entry in the hash store
type HashRecord struct {
	Digest      string
	Score       float64
	Description string
}

// HashMeta carries the diagnostic metadata written alongside a hash record
type HashMeta struct {
	Filename    string
	ContentType string
	Format      ImageFormat
}

// Attachment is one decoded message part supplied by the attachment source
type Attachment struct {
	ContentType string
	Filename    string
	Data        []byte
}

// ScanVerdict is the final outcome of one message's pipeline run
type ScanVerdict struct {
	Rule        string
	Score       float64
	Description string
	AnalyzedAt  time.Time
}

// DescribeMatches renders a word→count map as a stable, human-readable
// summary for verdict descriptions and spam hash records.
func DescribeMatches(words map[string]int) string {
	if len(words) == 0 {
		return "no words matched"
	}
	keys := make([]string, 0, len(words))
	for w := range words {
		keys = append(keys, w)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, w := range keys {
		parts = append(parts, fmt.Sprintf("%s(%d)", w, words[w]))
	}
	return "words: " + strings.Join(parts, ", ")
}
