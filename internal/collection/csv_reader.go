package collection

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// LoadCSVDir builds a store from a directory of CSV files, one file per unit,
// loaded in lexical order. Every file must share the same header.
func LoadCSVDir(dir string, logger *zap.Logger) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	store := NewStore(filepath.Base(dir))
	for _, f := range files {
		unit, err := LoadCSVFile(filepath.Join(dir, f))
		if err != nil {
			return nil, err
		}
		if err := store.Append(unit); err != nil {
			return nil, err
		}
		logger.Debug("Loaded unit from CSV",
			zap.String("file", f),
			zap.Int("rows", unit.Len()))
	}
	logger.Info("Loaded collection",
		zap.String("dir", dir),
		zap.Int("units", store.Len()),
		zap.Int("rows", store.TotalRows()))
	return store, nil
}

// LoadCSVFile reads one unit from a CSV file. The header names the columns;
// a first column named "time" or "index" (case-insensitive) becomes the row
// index, all remaining columns must be numeric.
func LoadCSVFile(path string) (*Unit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header in %s: %w", path, err)
	}

	hasIndex := len(header) > 0 &&
		(strings.EqualFold(header[0], "time") || strings.EqualFold(header[0], "index"))
	columns := header
	if hasIndex {
		columns = header[1:]
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("csv file %s has no data columns", path)
	}

	var index []float64
	data := make(map[string][]float64, len(columns))
	for _, col := range columns {
		data[col] = []float64{}
	}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record in %s: %w", path, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%s:%d: got %d fields, want %d", path, line, len(record), len(header))
		}
		fields := record
		if hasIndex {
			idx, err := strconv.ParseFloat(record[0], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad index value %q: %w", path, line, record[0], err)
			}
			index = append(index, idx)
			fields = record[1:]
		}
		for i, col := range columns {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad value %q for column %s: %w", path, line, fields[i], col, err)
			}
			data[col] = append(data[col], v)
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewUnit(name, index, columns, data)
}
