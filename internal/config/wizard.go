package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Save writes cfg to path as TOML, creating the directory if needed.
func Save(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// RunWizard asks for the settings a first run needs, offering the values in
// start as defaults, and returns the edited configuration. An empty answer
// keeps the default; an invalid one is asked again.
func RunWizard(in io.Reader, out io.Writer, start Config) (Config, error) {
	r := bufio.NewReader(in)
	cfg := start

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askChoice := func(prompt, defaultVal string, choices ...string) (string, error) {
		for {
			ans, err := ask(fmt.Sprintf("%s (%s)", prompt, strings.Join(choices, "/")), defaultVal)
			if err != nil {
				return "", err
			}
			for _, c := range choices {
				if strings.EqualFold(ans, c) {
					return c, nil
				}
			}
			fmt.Fprintf(out, "  please answer one of: %s\n", strings.Join(choices, ", "))
		}
	}

	askDuration := func(prompt string, defaultVal Duration) (Duration, error) {
		for {
			ans, err := ask(prompt, defaultVal.String())
			if err != nil {
				return 0, err
			}
			d, perr := time.ParseDuration(ans)
			if perr == nil && d > 0 {
				return Duration(d), nil
			}
			fmt.Fprintln(out, "  please enter a positive duration such as 3s or 1m")
		}
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes", nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │   motionwatch: configuration    │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error
	if cfg.Source.Kind, err = askChoice("  Frame source", cfg.Source.Kind, "sequence", "spool", "device"); err != nil {
		return Config{}, err
	}
	pathPrompt := map[string]string{
		"sequence": "  Image glob to replay",
		"spool":    "  Directory to watch for snapshots",
		"device":   "  Camera index or stream URL",
	}[cfg.Source.Kind]
	if cfg.Source.Path, err = ask(pathPrompt, cfg.Source.Path); err != nil {
		return Config{}, err
	}
	if cfg.Output.Folder, err = ask("  Clip output folder", cfg.Output.Folder); err != nil {
		return Config{}, err
	}
	if cfg.Timing.MinDuration, err = askDuration("  Shortest motion worth keeping", cfg.Timing.MinDuration); err != nil {
		return Config{}, err
	}
	if cfg.Timing.MaxDuration, err = askDuration("  Longest clip before it is cut", cfg.Timing.MaxDuration); err != nil {
		return Config{}, err
	}
	if cfg.Timing.MaxIdleGap, err = askDuration("  Stillness that ends a clip", cfg.Timing.MaxIdleGap); err != nil {
		return Config{}, err
	}
	if cfg.Control.Enabled, err = askBool("  Serve the control API", cfg.Control.Enabled); err != nil {
		return Config{}, err
	}
	if cfg.Control.Enabled {
		if cfg.Control.Addr, err = ask("  Control address", cfg.Control.Addr); err != nil {
			return Config{}, err
		}
	}
	hook, err := ask("  Command to run for each clip (blank for none)", strings.Join(cfg.Notify.Command, " "))
	if err != nil {
		return Config{}, err
	}
	cfg.Notify.Command = strings.Fields(hook)
	if cfg.Notify.Command == nil {
		cfg.Notify.Command = []string{}
	}

	fmt.Fprintln(out)
	return cfg, nil
}
