package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type historyFile struct {
	MagCat    float64    `toml:"mag_cat"`
	Primary   *int       `toml:"primary"`
	Window    *Window    `toml:"window"`
	Events    []Event    `toml:"event"`
	Intervals []Interval `toml:"interval"`
}

// Load reads a TOML history file and prepares it.
// A missing primary means none; a missing window covers the whole history.
func Load(path string) (*History, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	var f historyFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	h := &History{
		Events:    f.Events,
		Intervals: f.Intervals,
		Primary:   NoPrimary,
		MagCat:    f.MagCat,
	}
	if f.Primary != nil {
		h.Primary = *f.Primary
	}
	if f.Window != nil {
		h.Window = *f.Window
	} else {
		h.Window = h.FullWindow()
	}
	if err := h.Prepare(); err != nil {
		return nil, err
	}
	return h, nil
}

// Save writes h as a TOML history file, replacing path atomically.
func Save(path string, h *History) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "history-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp history: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	primary := h.Primary
	window := h.Window
	f := historyFile{
		MagCat:    h.MagCat,
		Primary:   &primary,
		Window:    &window,
		Events:    h.Events,
		Intervals: h.Intervals,
	}
	writer := bufio.NewWriter(tmpFile)
	if err := toml.NewEncoder(writer).Encode(f); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush history: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
