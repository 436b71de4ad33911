// Package storage resolves where recordings live on disk: raw uploads,
// processed outputs and the per-run work arenas.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	rawDir       = "raw"
	processedDir = "processed"
	workDir      = "work"

	processedSuffix = "_processed.mp4"
)

// ErrInvalidName is returned for names that are empty or escape their directory.
var ErrInvalidName = errors.New("invalid file name")

// Locator maps recording names to paths under a storage root.
type Locator struct {
	Root string
}

// NewLocator returns a locator rooted at root.
func NewLocator(root string) *Locator {
	return &Locator{Root: root}
}

// EnsureDirs creates the raw, processed and work directories.
func (l *Locator) EnsureDirs() error {
	for _, dir := range []string{l.RawDir(), l.ProcessedDir(), l.WorkDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// RawDir holds uploaded recordings.
func (l *Locator) RawDir() string { return filepath.Join(l.Root, rawDir) }

// ProcessedDir holds pipeline outputs and snapshots.
func (l *Locator) ProcessedDir() string { return filepath.Join(l.Root, processedDir) }

// WorkDir holds per-run arenas.
func (l *Locator) WorkDir() string { return filepath.Join(l.Root, workDir) }

// RawPath resolves an uploaded recording by name.
func (l *Locator) RawPath(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.RawDir(), clean), nil
}

// ProcessedPath is the final output path for a recording: the base name with
// a _processed suffix, always in an mp4 container.
func (l *Locator) ProcessedPath(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(clean, filepath.Ext(clean))
	return filepath.Join(l.ProcessedDir(), base+processedSuffix), nil
}

// ProcessedFile resolves a file that already lives in the processed directory.
func (l *Locator) ProcessedFile(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.ProcessedDir(), clean), nil
}

// SaveUpload writes r to raw/<name>, replacing any previous file of that name.
func (l *Locator) SaveUpload(name string, r io.Reader) (string, error) {
	return l.save(l.RawDir(), name, r)
}

// SaveSnap writes a screenshot straight into the processed directory.
func (l *Locator) SaveSnap(name string, r io.Reader) (string, error) {
	return l.save(l.ProcessedDir(), name, r)
}

func (l *Locator) save(dir, name string, r io.Reader) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close upload: %w", err)
	}

	dest := filepath.Join(dir, clean)
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("move upload: %w", err)
	}
	return dest, nil
}

// CleanName accepts a bare file name and rejects anything that could resolve
// outside its directory.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: hidden file %q", ErrInvalidName, name)
	}
	return name, nil
}

// Arena is the private working directory of one pipeline run.
type Arena struct {
	Dir string
}

// NewRunArena creates work/<runID>/frames for a run.
func (l *Locator) NewRunArena(runID string) (*Arena, error) {
	id, err := CleanName(runID)
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a := &Arena{Dir: filepath.Join(l.WorkDir(), id)}
	if err := os.MkdirAll(a.FramesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create arena: %w", err)
	}
	return a, nil
}

// FramesDir holds the sampled frames.
func (a *Arena) FramesDir() string { return filepath.Join(a.Dir, "frames") }

// CompositePath is the blurred file before audio sanitization.
func (a *Arena) CompositePath() string { return filepath.Join(a.Dir, "composite.mp4") }

// SanitizedPath is where the denoised output is written before it is moved
// into place.
func (a *Arena) SanitizedPath() string { return filepath.Join(a.Dir, "sanitized.mp4") }

// Release removes the arena and everything in it.
func (a *Arena) Release() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}
