package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/ocr-spam-filter/")
	v.AddConfigPath("$HOME/.ocr-spam-filter")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("OCR_SPAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Per-format enable flags
	v.SetDefault("formats.gif", true)
	v.SetDefault("formats.jpeg", true)
	v.SetDefault("formats.png", true)
	v.SetDefault("formats.bmp", true)
	v.SetDefault("formats.tiff", true)
	v.SetDefault("formats.pdf", true)

	// Image gate defaults
	v.SetDefault("image.min_width", 16)
	v.SetDefault("image.min_height", 16)
	v.SetDefault("image.max_width", 2048)
	v.SetDefault("image.max_height", 2048)
	v.SetDefault("image.max_raster_bytes", 5242880)
	// Per-format byte bounds go under image.raster_limits.<format>
	v.SetDefault("image.pdf_max_pages", 10)

	// External tool defaults; an empty path disables the tool
	v.SetDefault("tools.timeout", "10s")
	v.SetDefault("tools.paths.giftext", "giftext")
	v.SetDefault("tools.paths.giffix", "giffix")
	v.SetDefault("tools.paths.gifsicle", "gifsicle")
	v.SetDefault("tools.paths.gifinter", "gifinter")
	v.SetDefault("tools.paths.giftopnm", "giftopnm")
	v.SetDefault("tools.paths.jpegtopnm", "jpegtopnm")
	v.SetDefault("tools.paths.pngtopnm", "pngtopnm")
	v.SetDefault("tools.paths.bmptopnm", "bmptopnm")
	v.SetDefault("tools.paths.tifftopnm", "tifftopnm")
	v.SetDefault("tools.paths.pdfinfo", "pdfinfo")
	v.SetDefault("tools.paths.pdftops", "pdftops")
	v.SetDefault("tools.paths.pstopnm", "pstopnm")

	// Scan defaults
	v.SetDefault("scan.global_timeout", "2m")
	v.SetDefault("scan.tmp_dir", "")
	v.SetDefault("scan.keep_failed_grade", 0)

	// Matcher defaults
	v.SetDefault("match.default_threshold", 0.3)
	v.SetDefault("match.strip_numbers", false)
	v.SetDefault("match.unique_match", true)

	// Scoring defaults
	v.SetDefault("score.base", 4.0)
	v.SetDefault("score.add", 1.0)
	v.SetDefault("score.required_count", 2)
	v.SetDefault("score.ham_enabled", false)
	v.SetDefault("score.wrong_content_type", 1.5)
	v.SetDefault("score.wrong_extension", 1.5)
	v.SetDefault("score.corrupt", 2.5)
	v.SetDefault("score.corrupt_unfixable", 5.0)
	v.SetDefault("score.autodisable_positive", 100.0)
	v.SetDefault("score.autodisable_negative", -100.0)
	v.SetDefault("score.pass1_factor", 0.5)
	v.SetDefault("score.rule_name", "OCR_SPAM")

	// Hash cache defaults (0 disabled, 1 local, 2 local+ham learning, 3 shared backend)
	v.SetDefault("hash.mode", 0)
	v.SetDefault("hash.sqlite_path", "/data/image_hashes.db")
	v.SetDefault("hash.mysql_dsn", "user:password@tcp(localhost:3306)/ocr_spam")

	// Wordlist defaults
	v.SetDefault("wordlist.global_path", "/etc/ocr-spam-filter/words")
	v.SetDefault("wordlist.personal_path", "")

	// Scanset defaults
	v.SetDefault("scanset.minimal", true)
	v.SetDefault("scanset.autosort", true)
	v.SetDefault("scanset.autosort_buffer", 10)
	v.SetDefault("scanset.state_file", "")
	v.SetDefault("scanset.sets", []map[string]interface{}{
		{"label": "ocrad", "command": "ocrad", "args": []string{"-s", "2", "-T", "0.5", "{input}"}},
		{"label": "ocrad-invert", "command": "ocrad", "args": []string{"-s", "2", "-i", "-T", "0.5", "{input}"}},
		{"label": "gocr", "command": "gocr", "args": []string{"-i", "{input}"}},
	})

	// Logging defaults
	v.SetDefault("logging.verbosity", 1)
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapString gets a string map value from the configuration
func (c *Config) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
