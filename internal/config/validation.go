package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/fakeyudi/motionwatch/internal/capture"
	"github.com/fakeyudi/motionwatch/internal/clip"
	"github.com/fakeyudi/motionwatch/internal/compare"
	"github.com/fakeyudi/motionwatch/internal/motion"
	"github.com/fakeyudi/motionwatch/internal/runner"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem Validate found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field is among the errors.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the whole configuration, including that the source has a
// path. Commands that never open the source use ValidateLenient.
func (c Config) Validate() error {
	errs := c.validate()
	if c.Source.Path == "" {
		errs = append(errs, ValidationError{Field: "source.path", Message: "is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateLenient checks everything except the source path.
func (c Config) ValidateLenient() error {
	if errs := c.validate(); len(errs) > 0 {
		return errs
	}
	return nil
}

func (c Config) validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format", "must be json or console; got %q", c.Log.Format)
	}

	switch capture.Kind(c.Source.Kind) {
	case capture.KindSequence, capture.KindSpool, capture.KindDevice:
	default:
		add("source.kind", "must be sequence, spool or device; got %q", c.Source.Kind)
	}
	if c.Source.Interval < 0 {
		add("source.interval", "must not be negative")
	}
	if c.Source.RetryDelay < 0 {
		add("source.retry_delay", "must not be negative")
	}
	if c.Source.MaxErrors < 0 {
		add("source.max_errors", "must not be negative")
	}
	if c.Source.Width < 0 || c.Source.Height < 0 {
		add("source.width", "capture size must not be negative")
	}

	switch c.Compare.Engine {
	case "native", "gocv":
	default:
		add("compare.engine", "must be native or gocv; got %q", c.Compare.Engine)
	}
	if cc, err := c.CompareConfig(); err != nil {
		add("compare.dilate_shape", "%v", err)
	} else if err := cc.Validate(); err != nil {
		add("compare", "%s", flatten(err))
	}

	if err := c.Policy().Validate(); err != nil {
		add("timing", "%s", flatten(err))
	}

	switch c.Output.Encoder {
	case "ffmpeg", "gocv":
	default:
		add("output.encoder", "must be ffmpeg or gocv; got %q", c.Output.Encoder)
	}
	if c.Output.Encoder == "ffmpeg" && c.Output.FFmpeg == "" {
		add("output.ffmpeg", "is required with the ffmpeg encoder")
	}
	if err := c.ClipSettings().Validate(); err != nil {
		add("output", "%s", flatten(err))
	}

	if c.Control.Enabled {
		if _, _, err := net.SplitHostPort(c.Control.Addr); err != nil {
			add("control.addr", "must be host:port: %v", err)
		}
	}

	if c.Notify.Timeout < 0 {
		add("notify.timeout", "must not be negative")
	}
	for i, arg := range c.Notify.Command {
		if i == 0 && strings.TrimSpace(arg) == "" {
			add("notify.command", "program name is empty")
		}
	}

	if c.Bus.QueueLimit < 0 {
		add("bus.queue_limit", "must not be negative")
	}
	return errs
}

func flatten(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

// CompareConfig converts the compare section.
func (c Config) CompareConfig() (compare.Config, error) {
	shape, err := compare.ParseShape(c.Compare.DilateShape)
	if err != nil {
		return compare.Config{}, err
	}
	return compare.Config{
		BlurSize:             c.Compare.BlurSize,
		BlurSigma:            c.Compare.BlurSigma,
		DilateShape:          shape,
		DilateSize:           c.Compare.DilateSize,
		DilateIterations:     c.Compare.DilateIterations,
		Threshold:            c.Compare.Threshold,
		ContourAreaThreshold: c.Compare.ContourArea,
	}, nil
}

// Policy converts the timing section.
func (c Config) Policy() motion.Policy {
	return motion.Policy{
		MinDuration: c.Timing.MinDuration.D(),
		MaxDuration: c.Timing.MaxDuration.D(),
		MaxIdleGap:  c.Timing.MaxIdleGap.D(),
	}
}

// ClipSettings converts the output section.
func (c Config) ClipSettings() clip.Settings {
	return clip.Settings{
		Folder:         c.Output.Folder,
		FilenameLayout: c.Output.FilenameLayout,
		Codec:          c.Output.Codec,
		FPS:            c.Output.FPS,
		FPSMode:        clip.FPSMode(c.Output.FPSMode),
		Size:           clip.SizeMode(c.Output.Size),
		Width:          c.Output.Width,
		Height:         c.Output.Height,
		Resampling:     clip.Resampling(c.Output.Resampling),
		Color:          c.Output.Color,
		Manifest:       c.Output.Manifest,
	}
}

// CaptureOptions converts the source section.
func (c Config) CaptureOptions() capture.Options {
	return capture.Options{
		Kind:     capture.Kind(c.Source.Kind),
		Path:     c.Source.Path,
		Interval: c.Source.Interval.D(),
		Loop:     c.Source.Loop,
		Remove:   c.Source.Remove,
		Ignore:   c.Source.Ignore,
		Width:    c.Source.Width,
		Height:   c.Source.Height,
	}
}

// RunnerOptions converts the frame loop settings.
func (c Config) RunnerOptions() runner.Options {
	return runner.Options{
		RetryDelay:       c.Source.RetryDelay.D(),
		MaxCaptureErrors: c.Source.MaxErrors,
		StartStopped:     c.Source.StartStopped,
	}
}
