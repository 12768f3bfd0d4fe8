// Package progressjson appends progress messages to JSON lines files.
package progressjson

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ocelbridge/internal/logger"
	"ocelbridge/pkg/models"
)

type sink struct {
	file *os.File
	buf  *bufio.Writer
}

// Writer appends progress messages to JSONL files. The path may contain
// {run_id}; each run then gets its own file, opened on first use.
type Writer struct {
	template string

	mu    sync.Mutex
	sinks map[string]*sink
}

// NewWriter creates a writer for path. A path without {run_id} is opened
// immediately so configuration errors surface early.
func NewWriter(path string) (*Writer, error) {
	w := &Writer{template: path, sinks: make(map[string]*sink)}
	if !strings.Contains(path, "{run_id}") {
		if _, err := w.open(path); err != nil {
			return nil, err
		}
	}
	logger.Infof("Progress JSON writer initialized: %s", path)
	return w, nil
}

// PathFor returns the file a run's messages go to.
func (w *Writer) PathFor(runID string) string {
	return strings.ReplaceAll(w.template, "{run_id}", runID)
}

func (w *Writer) open(path string) (*sink, error) {
	if s, ok := w.sinks[path]; ok {
		return s, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress file: %w", err)
	}
	s := &sink{file: f, buf: bufio.NewWriter(f)}
	w.sinks[path] = s
	return s, nil
}

// WriteProgress appends a batch and flushes every touched file.
func (w *Writer) WriteProgress(batch []*models.Progress) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	touched := make(map[*sink]bool)
	for _, p := range batch {
		s, err := w.open(w.PathFor(p.RunID))
		if err != nil {
			return err
		}
		line, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode progress: %w", err)
		}
		s.buf.Write(line)
		s.buf.WriteByte('\n')
		touched[s] = true
	}
	for s := range touched {
		if err := s.buf.Flush(); err != nil {
			return fmt.Errorf("failed to flush progress: %w", err)
		}
	}
	return nil
}

// Close flushes and closes every open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for path, s := range w.sinks {
		if err := s.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(w.sinks, path)
	}
	return errors.Join(errs...)
}
