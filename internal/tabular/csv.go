// Package tabular saves and loads the parsed-record and suspicious-event tables
// exchanged between the parse and detect stages.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"logwarden/internal/types"
)

// RecordColumns is the header of the parsed-record table
var RecordColumns = []string{"ip", "time", "method", "url", "status", "size"}

// EventColumns is the header of the suspicious-event table
var EventColumns = append(slices.Clone(RecordColumns), "reason")

// WriteRecords writes records as CSV with a header row
func WriteRecords(w io.Writer, records []types.RequestRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(recordRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEvents writes events as CSV with a header row
func WriteEvents(w io.Writer, events []types.SuspiciousEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventColumns); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write(append(recordRow(e.RequestRecord), e.Reason.String())); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecords reads a parsed-record table. Rows whose time cannot be parsed are
// dropped; any other malformed content is an error.
func ReadRecords(r io.Reader) ([]types.RequestRecord, error) {
	rows, err := readTable(r, RecordColumns)
	if err != nil {
		return nil, err
	}

	records := make([]types.RequestRecord, 0, len(rows))
	for i, row := range rows {
		rec, ok, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ReadEvents reads a suspicious-event table
func ReadEvents(r io.Reader) ([]types.SuspiciousEvent, error) {
	rows, err := readTable(r, EventColumns)
	if err != nil {
		return nil, err
	}

	events := make([]types.SuspiciousEvent, 0, len(rows))
	for i, row := range rows {
		rec, ok, err := parseRecord(row[:len(RecordColumns)])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if !ok {
			continue
		}
		reason, known := types.ParseReason(row[len(RecordColumns)])
		if !known {
			return nil, fmt.Errorf("row %d: unknown reason %q", i+2, row[len(RecordColumns)])
		}
		events = append(events, types.SuspiciousEvent{RequestRecord: rec, Reason: reason})
	}
	return events, nil
}

// SaveRecords writes the parsed-record table to path, creating parent directories
func SaveRecords(path string, records []types.RequestRecord) error {
	return save(path, func(w io.Writer) error { return WriteRecords(w, records) })
}

// SaveEvents writes the suspicious-event table to path, creating parent directories
func SaveEvents(path string, events []types.SuspiciousEvent) error {
	return save(path, func(w io.Writer) error { return WriteEvents(w, events) })
}

// LoadRecords loads the parsed-record table. The error distinguishes a missing
// file (types.ErrMissingInput), an unreadable one (types.ErrUnreadableInput)
// and one without rows (types.ErrEmptyInput).
func LoadRecords(path string) ([]types.RequestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUnreadableInput, path, err)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUnreadableInput, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrEmptyInput, path)
	}
	return records, nil
}

// LoadEvents loads a suspicious-event table. A missing file is an empty table.
func LoadEvents(path string) ([]types.SuspiciousEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadEvents(f)
}

func save(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func recordRow(r types.RequestRecord) []string {
	return []string{
		r.IP,
		r.Time.Format(types.TimeLayout),
		r.Method,
		r.URL,
		strconv.Itoa(r.Status),
		strconv.FormatInt(r.Size, 10),
	}
}

func parseRecord(row []string) (types.RequestRecord, bool, error) {
	ts, err := time.Parse(types.TimeLayout, row[1])
	if err != nil {
		return types.RequestRecord{}, false, nil
	}
	status, err := strconv.Atoi(row[4])
	if err != nil {
		return types.RequestRecord{}, false, fmt.Errorf("invalid status %q", row[4])
	}
	size, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return types.RequestRecord{}, false, fmt.Errorf("invalid size %q", row[5])
	}
	return types.RequestRecord{
		IP:     row[0],
		Time:   ts,
		Method: row[2],
		URL:    row[3],
		Status: status,
		Size:   size,
	}, true, nil
}

func readTable(r io.Reader, columns []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !slices.Equal(header, columns) {
		return nil, fmt.Errorf("unexpected columns %v, want %v", header, columns)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
