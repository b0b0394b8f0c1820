package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// JSONLSink writes one JSON record per line, rotating by size.
type JSONLSink struct {
	logger *lumberjack.Logger
	enc    *json.Encoder
}

// NewJSONLSink creates a sink writing to path. maxSizeMB and maxBackups
// control rotation; zero keeps lumberjack's defaults.
func NewJSONLSink(path string, maxSizeMB, maxBackups int) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating event log directory: %w", err)
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	return &JSONLSink{logger: lj, enc: json.NewEncoder(lj)}, nil
}

// Append writes the record and rotates if needed.
func (s *JSONLSink) Append(_ context.Context, rec Record) error {
	return s.enc.Encode(rec)
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error { return s.logger.Close() }

// ReadJSONL reads the records of a single JSONL file.
func ReadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	defer func() { _ = f.Close() }()
	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("reading event log %s line %d: %w", path, line, err)
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return out, nil
}
