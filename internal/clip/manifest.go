package clip

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// manifestExt is appended to a clip's path to name its sidecar.
const manifestExt = ".json"

// Manifest describes one written clip. It is stored next to the clip as
// <clip>.json.
type Manifest struct {
	ID     string    `json:"id"`
	Path   string    `json:"path"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Frames int       `json:"frames"`
	FPS    float64   `json:"fps"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Codec  string    `json:"codec,omitempty"`
}

// Duration is the capture span covered by the clip.
func (m Manifest) Duration() time.Duration { return m.End.Sub(m.Start) }

// ManifestPath returns the sidecar path for the clip at clipPath.
func ManifestPath(clipPath string) string { return clipPath + manifestExt }

// WriteManifest stores m next to its clip via a temp file + os.Rename.
func WriteManifest(m Manifest) (err error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	dst := ManifestPath(m.Path)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the sidecar at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// ReadManifests loads every sidecar in dir, newest clip first. A missing
// directory yields no manifests. Unreadable sidecars are skipped and
// reported together in the returned error alongside the ones that loaded.
func ReadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing clips: %w", err)
	}

	var (
		out  []Manifest
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := ReadManifest(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, errors.Join(errs...)
}

// ManifestRenderer serializes a list of manifests.
type ManifestRenderer interface {
	Render(ms []Manifest) ([]byte, error)
}

// JSONRenderer renders manifests as an indented JSON array.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(ms []Manifest) ([]byte, error) {
	if ms == nil {
		ms = []Manifest{}
	}
	return json.MarshalIndent(ms, "", "  ")
}

// TableRenderer renders manifests as an aligned text table.
type TableRenderer struct{}

func (r *TableRenderer) Render(ms []Manifest) ([]byte, error) {
	var sb strings.Builder
	if len(ms) == 0 {
		sb.WriteString("No clips recorded.\n")
		return []byte(sb.String()), nil
	}
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tLENGTH\tFRAMES\tSIZE\tPATH")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\t%s\n",
			m.Start.Local().Format("2006-01-02 15:04:05"),
			m.Duration().Round(100*time.Millisecond),
			m.Frames,
			m.Width, m.Height,
			m.Path,
		)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
