package config

import (
	"fmt"
	"time"
)

// FormatsConfig holds the per-format enable flags
type FormatsConfig struct {
	GIF  bool
	JPEG bool
	PNG  bool
	BMP  bool
	TIFF bool
	PDF  bool
}

// ImageConfig holds the dimension and size gates applied to candidate images
type ImageConfig struct {
	MinWidth       int
	MinHeight      int
	MaxWidth       int
	MaxHeight      int
	MaxRasterBytes int64
	// RasterLimits overrides MaxRasterBytes per source format, keyed by
	// the lower-case format name.
	RasterLimits map[string]int64
	PDFMaxPages  int
}

// RasterLimit returns the post-conversion byte bound for a source format,
// falling back to the global bound when no per-format value is set.
// Zero disables the check.
func (i ImageConfig) RasterLimit(format string) int64 {
	if limit, ok := i.RasterLimits[format]; ok {
		return limit
	}
	return i.MaxRasterBytes
}

// ToolsConfig holds the external tool paths and the per-step timeout
type ToolsConfig struct {
	Timeout time.Duration
	Paths   map[string]string
}

// Path returns the configured executable path for a tool.
// An empty string means the tool is not configured.
func (t ToolsConfig) Path(name string) string {
	return t.Paths[name]
}

// ScanConfig holds the per-message pipeline settings
type ScanConfig struct {
	GlobalTimeout   time.Duration
	TmpDir          string
	KeepFailedGrade int
}

// MatchConfig holds the fuzzy matcher settings
type MatchConfig struct {
	DefaultThreshold float64
	StripNumbers     bool
	UniqueMatch      bool
}

// ScoreConfig holds the scoring constants and penalty deltas
type ScoreConfig struct {
	Base                float64
	Add                 float64
	RequiredCount       int
	HamEnabled          bool
	WrongContentType    float64
	WrongExtension      float64
	Corrupt             float64
	CorruptUnfixable    float64
	AutodisablePositive float64
	AutodisableNegative float64
	Pass1Factor         float64
	RuleName            string
}

// HashConfig holds the hash cache settings.
// Mode 0 disables hashing, 1 uses the local cache, 2 additionally learns
// ham entries, 3 uses the shared relational backend.
type HashConfig struct {
	Mode       int
	SQLitePath string
	MySQLDSN   string
}

// Enabled reports whether hash lookups are performed at all
func (h HashConfig) Enabled() bool { return h.Mode > 0 }

// LearnHam reports whether zero-match images are written to the known-good store
func (h HashConfig) LearnHam() bool { return h.Mode >= 2 }

// WordlistConfig holds the wordlist file locations
type WordlistConfig struct {
	GlobalPath   string
	PersonalPath string
}

// ScanSetDef describes one configured OCR engine invocation
type ScanSetDef struct {
	Label   string   `mapstructure:"label"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ScansetConfig holds the scanset registry settings
type ScansetConfig struct {
	Minimal        bool
	Autosort       bool
	AutosortBuffer int
	StateFile      string
	Sets           []ScanSetDef
}

// GetFormats returns the per-format enable flags
func (c *Config) GetFormats() FormatsConfig {
	return FormatsConfig{
		GIF:  c.GetBool("formats.gif"),
		JPEG: c.GetBool("formats.jpeg"),
		PNG:  c.GetBool("formats.png"),
		BMP:  c.GetBool("formats.bmp"),
		TIFF: c.GetBool("formats.tiff"),
		PDF:  c.GetBool("formats.pdf"),
	}
}

// GetImage returns the image gate configuration
func (c *Config) GetImage() ImageConfig {
	limits := make(map[string]int64)
	for format := range c.v.GetStringMap("image.raster_limits") {
		limits[format] = c.v.GetInt64("image.raster_limits." + format)
	}
	return ImageConfig{
		MinWidth:       c.GetInt("image.min_width"),
		MinHeight:      c.GetInt("image.min_height"),
		MaxWidth:       c.GetInt("image.max_width"),
		MaxHeight:      c.GetInt("image.max_height"),
		MaxRasterBytes: int64(c.GetInt("image.max_raster_bytes")),
		RasterLimits:   limits,
		PDFMaxPages:    c.GetInt("image.pdf_max_pages"),
	}
}

// GetTools returns the external tool configuration
func (c *Config) GetTools() (ToolsConfig, error) {
	timeout, err := c.GetDuration("tools.timeout")
	if err != nil {
		return ToolsConfig{}, fmt.Errorf("invalid tool timeout: %w", err)
	}
	return ToolsConfig{
		Timeout: timeout,
		Paths:   c.GetStringMapString("tools.paths"),
	}, nil
}

// GetScan returns the per-message pipeline configuration
func (c *Config) GetScan() (ScanConfig, error) {
	timeout, err := c.GetDuration("scan.global_timeout")
	if err != nil {
		return ScanConfig{}, fmt.Errorf("invalid global timeout: %w", err)
	}
	return ScanConfig{
		GlobalTimeout:   timeout,
		TmpDir:          c.GetString("scan.tmp_dir"),
		KeepFailedGrade: c.GetInt("scan.keep_failed_grade"),
	}, nil
}

// GetMatch returns the fuzzy matcher configuration
func (c *Config) GetMatch() MatchConfig {
	return MatchConfig{
		DefaultThreshold: c.GetFloat64("match.default_threshold"),
		StripNumbers:     c.GetBool("match.strip_numbers"),
		UniqueMatch:      c.GetBool("match.unique_match"),
	}
}

// GetScore returns the scoring configuration
func (c *Config) GetScore() ScoreConfig {
	return ScoreConfig{
		Base:                c.GetFloat64("score.base"),
		Add:                 c.GetFloat64("score.add"),
		RequiredCount:       c.GetInt("score.required_count"),
		HamEnabled:          c.GetBool("score.ham_enabled"),
		WrongContentType:    c.GetFloat64("score.wrong_content_type"),
		WrongExtension:      c.GetFloat64("score.wrong_extension"),
		Corrupt:             c.GetFloat64("score.corrupt"),
		CorruptUnfixable:    c.GetFloat64("score.corrupt_unfixable"),
		AutodisablePositive: c.GetFloat64("score.autodisable_positive"),
		AutodisableNegative: c.GetFloat64("score.autodisable_negative"),
		Pass1Factor:         c.GetFloat64("score.pass1_factor"),
		RuleName:            c.GetString("score.rule_name"),
	}
}

// GetHash returns the hash cache configuration
func (c *Config) GetHash() HashConfig {
	return HashConfig{
		Mode:       c.GetInt("hash.mode"),
		SQLitePath: c.GetString("hash.sqlite_path"),
		MySQLDSN:   c.GetString("hash.mysql_dsn"),
	}
}

// GetWordlist returns the wordlist configuration
func (c *Config) GetWordlist() WordlistConfig {
	return WordlistConfig{
		GlobalPath:   c.GetString("wordlist.global_path"),
		PersonalPath: c.GetString("wordlist.personal_path"),
	}
}

// GetScanset returns the scanset registry configuration
func (c *Config) GetScanset() (ScansetConfig, error) {
	var sets []ScanSetDef
	if err := c.v.UnmarshalKey("scanset.sets", &sets); err != nil {
		return ScansetConfig{}, fmt.Errorf("invalid scanset definitions: %w", err)
	}
	return ScansetConfig{
		Minimal:        c.GetBool("scanset.minimal"),
		Autosort:       c.GetBool("scanset.autosort"),
		AutosortBuffer: c.GetInt("scanset.autosort_buffer"),
		StateFile:      c.GetString("scanset.state_file"),
		Sets:           sets,
	}, nil
}
