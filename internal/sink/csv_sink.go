package sink

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSVSink appends rows to a CSV file, writing the header only when the file
// is created. Each Append flushes, so rows written before a crash survive.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink opens (or creates) the file at path with the given header.
func NewCSVSink(path string, header []string) (*CSVSink, error) {
	info, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}

	s := &CSVSink{file: file, writer: csv.NewWriter(file)}
	if fresh {
		if err := s.Append(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write sink header: %w", err)
		}
	}
	return s, nil
}

// Append writes one row and flushes.
func (s *CSVSink) Append(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("append sink row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// MemorySink collects rows in memory for tests.
type MemorySink struct {
	Rows [][]string
}

func (m *MemorySink) Append(row []string) error {
	copied := append([]string{}, row...)
	m.Rows = append(m.Rows, copied)
	return nil
}

func (m *MemorySink) Close() error { return nil }
