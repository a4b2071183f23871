// Package csvwriter provides a small concurrency-safe CSV output helper
// shared by the report tooling.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Writer writes CSV records to a file.
type Writer struct {
	path   string
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewWriter creates the output file, truncating any existing content.
func NewWriter(path string, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	return &Writer{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}, nil
}

// Path returns the output file path.
func (w *Writer) Path() string { return w.path }

// Write appends one record.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// WriteAll appends all records.
func (w *Writer) WriteAll(records [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write records to CSV: %w", err)
	}
	return nil
}

// Flush writes any buffered records to the file.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("CSV flush failed", zap.String("path", w.path), zap.Error(err))
	}
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.Flush()
	return w.file.Close()
}
