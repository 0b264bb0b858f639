// =============================================================================
// DOETH Attestation Generator - Intermediate Store
// =============================================================================
//
// Persists the ordered, boundary-flagged sequence as a semicolon-separated
// CSV snapshot and reads it back into the identical sequence. The snapshot is
// the durable checkpoint between data processing and document generation: a
// run may start directly from an existing snapshot with --skip-processing.
//
// Typing discipline: every non-numeric field is quoted on write, numeric
// fields (year, measures, boundary flags) are written bare. A SIRET therefore
// never gets reinterpreted as a number by a spreadsheet tool opening the
// file, and floats round-trip exactly via the shortest-representation format.
//
// The store never overwrites: default snapshot names carry a timestamp and
// collisions get a unique suffix. Writes go through a temp file and a rename
// so an interrupted run never leaves a truncated snapshot at the final path.
//
// =============================================================================

package snapshot

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doethtools/attestor/internal/process"
	"github.com/doethtools/attestor/internal/record"
)

// FormatError reports a snapshot that cannot be parsed back into ordered
// records. Fatal when the run was asked to start from that snapshot.
type FormatError struct {
	Path string
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("snapshot %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// columns lists the snapshot header in write order.
var columns = []string{
	record.ColGroupCode,
	record.ColGroupLabel,
	"SIRET",
	record.ColClientName,
	record.ColClientAddress,
	record.ColClientPostal,
	record.ColClientCity,
	record.ColActivityCode,
	record.ColLastName,
	record.ColFirstName,
	record.ColBirthDate,
	record.ColYear,
	record.ColQualification,
	record.ColMajored,
	record.ColAnnualFTE,
	record.ColWorkedHours,
	"NOUVEAU_GROUPE",
	"FIN_GROUPE",
}

// DefaultPath returns a fresh timestamped snapshot path under dir. If the
// timestamped name is already taken (two runs within one second), a short
// unique suffix is appended.
func DefaultPath(dir string) string {
	name := fmt.Sprintf("processed_%s.csv", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		suffix := uuid.New().String()[:8]
		path = filepath.Join(dir, fmt.Sprintf("processed_%s_%s.csv", time.Now().Format("20060102_150405"), suffix))
	}
	return path
}

// Write persists the ordered sequence to path. It refuses to replace an
// existing snapshot.
func Write(records []record.OrderedRecord, path string, separator byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot already exists, refusing to overwrite: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	if err := writeAll(f, records, separator); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

func writeAll(f *os.File, records []record.OrderedRecord, separator byte) error {
	var sb strings.Builder

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = quote(col)
	}
	sb.WriteString(strings.Join(header, string(separator)))
	sb.WriteByte('\n')

	for _, r := range records {
		fields := []string{
			quote(r.GroupCode),
			quote(r.GroupLabel),
			quote(r.SIRET),
			quote(r.ClientName),
			quote(r.ClientAddress),
			quote(r.ClientPostalCode),
			quote(r.ClientCity),
			quote(r.ActivityCode),
			quote(r.LastName),
			quote(r.FirstName),
			quote(r.BirthDate),
			strconv.Itoa(r.DeclarationYear),
			quote(r.Qualification),
			quote(process.MajoredLabel(r.Majored)),
			formatFloat(r.AnnualFTE),
			formatFloat(r.WorkedHours),
			boolFlag(r.GroupStart),
			boolFlag(r.GroupEnd),
		}
		sb.WriteString(strings.Join(fields, string(separator)))
		sb.WriteByte('\n')

		if sb.Len() > 64*1024 {
			if _, err := f.WriteString(sb.String()); err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
			sb.Reset()
		}
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// quote wraps a non-numeric field in double quotes, doubling any embedded
// quote. encoding/csv on the read side understands this form natively.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Read parses a snapshot back into the ordered sequence written by Write.
func Read(path string, separator byte) ([]record.OrderedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = rune(separator)
	// FieldsPerRecord stays 0: every row must match the header width, while
	// missing columns are reported by name below instead of as a generic
	// field-count error.

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("empty snapshot")}
	}

	idx := make(map[string]int, len(columns))
	for i, name := range rows[0] {
		idx[name] = i
	}
	for _, col := range columns {
		if _, ok := idx[col]; !ok {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("missing column %s", col)}
		}
	}

	records := make([]record.OrderedRecord, 0, len(rows)-1)
	for line, row := range rows[1:] {
		rec, err := parseRow(row, idx)
		if err != nil {
			return nil, &FormatError{Path: path, Line: line + 2, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, idx map[string]int) (record.OrderedRecord, error) {
	get := func(col string) string { return row[idx[col]] }

	year, err := strconv.Atoi(get(record.ColYear))
	if err != nil {
		return record.OrderedRecord{}, fmt.Errorf("invalid %s: %w", record.ColYear, err)
	}
	fte, err := strconv.ParseFloat(get(record.ColAnnualFTE), 64)
	if err != nil {
		return record.OrderedRecord{}, fmt.Errorf("invalid %s: %w", record.ColAnnualFTE, err)
	}
	hours, err := strconv.ParseFloat(get(record.ColWorkedHours), 64)
	if err != nil {
		return record.OrderedRecord{}, fmt.Errorf("invalid %s: %w", record.ColWorkedHours, err)
	}
	start, err := strconv.Atoi(get("NOUVEAU_GROUPE"))
	if err != nil {
		return record.OrderedRecord{}, fmt.Errorf("invalid NOUVEAU_GROUPE: %w", err)
	}
	end, err := strconv.Atoi(get("FIN_GROUPE"))
	if err != nil {
		return record.OrderedRecord{}, fmt.Errorf("invalid FIN_GROUPE: %w", err)
	}

	return record.OrderedRecord{
		BeneficiaryRecord: record.BeneficiaryRecord{
			GroupCode:        get(record.ColGroupCode),
			GroupLabel:       get(record.ColGroupLabel),
			SIRET:            get("SIRET"),
			ClientName:       get(record.ColClientName),
			ClientAddress:    get(record.ColClientAddress),
			ClientPostalCode: get(record.ColClientPostal),
			ClientCity:       get(record.ColClientCity),
			ActivityCode:     get(record.ColActivityCode),
			LastName:         get(record.ColLastName),
			FirstName:        get(record.ColFirstName),
			BirthDate:        get(record.ColBirthDate),
			DeclarationYear:  year,
			Qualification:    get(record.ColQualification),
			Majored:          process.ParseMajored(get(record.ColMajored)),
			AnnualFTE:        fte,
			WorkedHours:      hours,
		},
		GroupStart: start != 0,
		GroupEnd:   end != 0,
	}, nil
}
