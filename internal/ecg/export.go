package ecg

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/orangewave/cardio/internal/security"
	"github.com/orangewave/cardio/internal/units"
)

// exportHeader is the fixed column order of the CSV export.
var exportHeader = []string{"sequence", "timestamp", "adc_raw", "voltage"}

// WriteCSV serializes samples as CSV: a header row, then one row per sample
// with timestamps and voltages at fixed 6-decimal precision. An empty slice
// produces a header-only file, which keeps re-parsing uniform.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatUint(s.Sequence, 10),
			units.FormatTimestamp(s.Timestamp),
			strconv.FormatInt(s.Raw, 10),
			units.FormatVoltage(s.Voltage),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSVRow parses one data row from an export back into a Sample. Used by
// tests and by tools replaying captured files.
func ParseCSVRow(row []string) (Sample, error) {
	if len(row) != len(exportHeader) {
		return Sample{}, fmt.Errorf("expected %d columns, got %d", len(exportHeader), len(row))
	}
	seq, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("bad sequence %q: %w", row[0], err)
	}
	ts, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return Sample{}, fmt.Errorf("bad timestamp %q: %w", row[1], err)
	}
	raw, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("bad adc_raw %q: %w", row[2], err)
	}
	v, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return Sample{}, fmt.Errorf("bad voltage %q: %w", row[3], err)
	}
	return Sample{Sequence: seq, Timestamp: ts, Raw: raw, Voltage: v}, nil
}

// ExportFile writes the resident samples in [seqStart, seqEnd] to a CSV file.
// The path is validated against the shared export-path policy to keep file
// writes inside controlled directories. Failures come back as *ExportError.
func (p *Pipeline) ExportFile(path string, seqStart, seqEnd uint64) error {
	clean := filepath.Clean(path)
	if err := security.ValidateExportPath(clean); err != nil {
		return &ExportError{SeqStart: seqStart, SeqEnd: seqEnd, Err: err}
	}
	f, err := os.Create(clean)
	if err != nil {
		return &ExportError{SeqStart: seqStart, SeqEnd: seqEnd, Err: err}
	}
	defer f.Close()
	if err := p.ExportRange(seqStart, seqEnd, f); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return &ExportError{SeqStart: seqStart, SeqEnd: seqEnd, Err: err}
	}
	return nil
}
