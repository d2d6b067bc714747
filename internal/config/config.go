package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all configurable motionwatch settings.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log" json:"log"`
	Source  SourceConfig  `toml:"source" yaml:"source" json:"source"`
	Compare CompareConfig `toml:"compare" yaml:"compare" json:"compare"`
	Timing  TimingConfig  `toml:"timing" yaml:"timing" json:"timing"`
	Output  OutputConfig  `toml:"output" yaml:"output" json:"output"`
	Control ControlConfig `toml:"control" yaml:"control" json:"control"`
	Notify  NotifyConfig  `toml:"notify" yaml:"notify" json:"notify"`
	Bus     BusConfig     `toml:"bus" yaml:"bus" json:"bus"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"` // "json" | "console"
}

type SourceConfig struct {
	Kind     string   `toml:"kind" yaml:"kind" json:"kind"` // "sequence" | "spool" | "device"
	Path     string   `toml:"path" yaml:"path" json:"path"`
	Interval Duration `toml:"interval" yaml:"interval" json:"interval"`
	Loop     bool     `toml:"loop" yaml:"loop" json:"loop"`
	Remove   bool     `toml:"remove" yaml:"remove" json:"remove"`
	Ignore   []string `toml:"ignore" yaml:"ignore" json:"ignore"`
	Width    int      `toml:"width" yaml:"width" json:"width"`
	Height   int      `toml:"height" yaml:"height" json:"height"`

	RetryDelay   Duration `toml:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	MaxErrors    int      `toml:"max_errors" yaml:"max_errors" json:"max_errors"` // 0 retries forever
	StartStopped bool     `toml:"start_stopped" yaml:"start_stopped" json:"start_stopped"`
}

type CompareConfig struct {
	Engine           string  `toml:"engine" yaml:"engine" json:"engine"` // "native" | "gocv"
	BlurSize         int     `toml:"blur_size" yaml:"blur_size" json:"blur_size"`
	BlurSigma        float64 `toml:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
	DilateShape      string  `toml:"dilate_shape" yaml:"dilate_shape" json:"dilate_shape"`
	DilateSize       int     `toml:"dilate_size" yaml:"dilate_size" json:"dilate_size"`
	DilateIterations int     `toml:"dilate_iterations" yaml:"dilate_iterations" json:"dilate_iterations"`
	Threshold        int     `toml:"threshold" yaml:"threshold" json:"threshold"`
	ContourArea      int     `toml:"contour_area" yaml:"contour_area" json:"contour_area"`
}

type TimingConfig struct {
	MinDuration Duration `toml:"min_duration" yaml:"min_duration" json:"min_duration"`
	MaxDuration Duration `toml:"max_duration" yaml:"max_duration" json:"max_duration"`
	MaxIdleGap  Duration `toml:"max_idle_gap" yaml:"max_idle_gap" json:"max_idle_gap"`
}

type OutputConfig struct {
	Folder         string  `toml:"folder" yaml:"folder" json:"folder"`
	FilenameLayout string  `toml:"filename_layout" yaml:"filename_layout" json:"filename_layout"`
	Encoder        string  `toml:"encoder" yaml:"encoder" json:"encoder"` // "ffmpeg" | "gocv"
	FFmpeg         string  `toml:"ffmpeg" yaml:"ffmpeg" json:"ffmpeg"`    // ffmpeg binary
	Codec          string  `toml:"codec" yaml:"codec" json:"codec"`
	FPS            float64 `toml:"fps" yaml:"fps" json:"fps"`
	FPSMode        string  `toml:"fps_mode" yaml:"fps_mode" json:"fps_mode"`
	Size           string  `toml:"size" yaml:"size" json:"size"`
	Width          int     `toml:"width" yaml:"width" json:"width"`
	Height         int     `toml:"height" yaml:"height" json:"height"`
	Resampling     string  `toml:"resampling" yaml:"resampling" json:"resampling"`
	Color          bool    `toml:"color" yaml:"color" json:"color"`
	Manifest       bool    `toml:"manifest" yaml:"manifest" json:"manifest"`
}

type ControlConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" yaml:"addr" json:"addr"`
}

type NotifyConfig struct {
	// Command is run with the clip path appended for every captured clip.
	Command []string `toml:"command" yaml:"command" json:"command"`
	Timeout Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
}

type BusConfig struct {
	// QueueLimit bounds each subscriber queue; 0 is unbounded.
	QueueLimit int `toml:"queue_limit" yaml:"queue_limit" json:"queue_limit"`
}

// Defaults returns the stock configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Source: SourceConfig{
			Kind:       "sequence",
			Ignore:     []string{},
			RetryDelay: Duration(time.Second),
		},
		Compare: CompareConfig{
			Engine:           "native",
			BlurSize:         3,
			BlurSigma:        4.0,
			DilateShape:      "ellipse",
			DilateSize:       7,
			DilateIterations: 4,
			Threshold:        6,
			ContourArea:      2000,
		},
		Timing: TimingConfig{
			MinDuration: Duration(3 * time.Second),
			MaxDuration: Duration(15 * time.Second),
			MaxIdleGap:  Duration(3 * time.Second),
		},
		Output: OutputConfig{
			Folder:         "output",
			FilenameLayout: "2006-01-02-15-04-05.avi",
			Encoder:        "ffmpeg",
			FFmpeg:         "ffmpeg",
			Codec:          "DIVX",
			FPS:            24,
			FPSMode:        "static",
			Size:           "derive_resize",
			Resampling:     "lanczos",
			Color:          true,
			Manifest:       true,
		},
		Control: ControlConfig{Enabled: true, Addr: "127.0.0.1:7878"},
		Notify:  NotifyConfig{Command: []string{}, Timeout: Duration(30 * time.Second)},
	}
}

// GlobalPath returns ~/.config/motionwatch/config.toml, honouring
// XDG_CONFIG_HOME.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "motionwatch", "config.toml"), nil
}

// ProjectFile is looked up in the working directory.
const ProjectFile = "motionwatch.toml"

// Load builds the effective configuration. With an explicit path only that
// file is layered over the defaults and it must exist; otherwise the global
// file and then the project file are applied when present.
func Load(explicit string) (Config, error) {
	cfg := Defaults()
	if explicit != "" {
		if err := Apply(&cfg, explicit); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	global, err := GlobalPath()
	if err != nil {
		return Config{}, fmt.Errorf("resolving config directory: %w", err)
	}
	for _, path := range []string{global, ProjectFile} {
		if err := Apply(&cfg, path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, err
		}
	}
	return cfg, nil
}

// Apply decodes the file at path over cfg. Keys present in the file replace
// the current values; absent keys are left alone. The format follows the
// extension: .toml, .yaml/.yml or .json. Unknown keys are a ParseError.
func Apply(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := decode(cfg, path, data); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

func decode(cfg *Config, path string, data []byte) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", "":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
