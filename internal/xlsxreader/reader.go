// =============================================================================
// DOETH Attestation Generator - Excel Source Reader
// =============================================================================
//
// Reads the declaration sheet of the source workbook into raw rows keyed by
// the header row. No typing or validation happens here; that is the
// normalizer's job. A failure here is fatal for the run: without the source
// there is nothing to process.
//
// =============================================================================

package xlsxreader

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/doethtools/attestor/internal/record"
)

// Read loads every data row of the named sheet. The first non-empty row is
// taken as the header; cells beyond the header width are ignored, missing
// trailing cells read as empty strings. Fully empty rows are skipped.
func Read(path, sheet string) ([]record.RawRow, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source file not found: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	var headers []string
	start := 0
	for i, row := range rows {
		if isRowEmpty(row) {
			continue
		}
		headers = make([]string, len(row))
		for j, h := range row {
			headers[j] = strings.TrimSpace(h)
		}
		start = i + 1
		break
	}
	if headers == nil {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	var out []record.RawRow
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}
		raw := make(record.RawRow, len(headers))
		for j, header := range headers {
			if header == "" {
				continue
			}
			if j < len(row) {
				raw[header] = row[j]
			} else {
				raw[header] = ""
			}
		}
		out = append(out, raw)
	}
	return out, nil
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
