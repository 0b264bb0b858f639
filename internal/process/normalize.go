// =============================================================================
// DOETH Attestation Generator - Record Normalizer
// =============================================================================
//
// Turns raw sheet rows into typed BeneficiaryRecords. Rows that cannot yield
// a valid SIRET or that lack a client name are dropped with a diagnostic;
// processing never aborts on a single bad row. Non-critical fields degrade
// instead of dropping: an unparsable birth date becomes an empty string, an
// unparsable measure becomes 0.
//
// =============================================================================

package process

import (
	"strconv"
	"strings"
	"time"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/record"
)

const (
	sirenLen = 9
	nicLen   = 5
)

// Normalize converts raw rows into validated records, emitting one
// KindRowDropped event per rejected row. The returned slice preserves input
// order.
func Normalize(rows []record.RawRow, defaults config.Defaults, sink diag.Sink) []record.BeneficiaryRecord {
	out := make([]record.BeneficiaryRecord, 0, len(rows))
	for i, raw := range rows {
		rec, verr := normalizeRow(raw, defaults, i+1, sink)
		if verr != nil {
			sink.Emit(diag.Event{
				Kind:   diag.KindRowDropped,
				Row:    verr.Row,
				Reason: string(verr.Reason),
				Value:  verr.Value,
				Err:    verr,
			})
			continue
		}
		out = append(out, rec)
	}
	return out
}

func normalizeRow(raw record.RawRow, defaults config.Defaults, rowNum int, sink diag.Sink) (record.BeneficiaryRecord, *diag.ValidationError) {
	var rec record.BeneficiaryRecord

	siren := strings.TrimSpace(raw[record.ColSIREN])
	nic := strings.TrimSpace(raw[record.ColNIC])
	if siren == "" || nic == "" {
		field := record.ColSIREN
		if siren != "" {
			field = record.ColNIC
		}
		return rec, &diag.ValidationError{
			Reason: diag.MissingRequiredField,
			Field:  field,
			Row:    rowNum,
		}
	}

	siren = padLeftZeros(siren, sirenLen)
	nic = padLeftZeros(nic, nicLen)
	if !isDigits(siren) {
		return rec, &diag.ValidationError{
			Reason: diag.NonNumericIdentifier,
			Field:  record.ColSIREN,
			Value:  siren,
			Row:    rowNum,
		}
	}
	if !isDigits(nic) {
		return rec, &diag.ValidationError{
			Reason: diag.NonNumericIdentifier,
			Field:  record.ColNIC,
			Value:  nic,
			Row:    rowNum,
		}
	}

	clientName := strings.TrimSpace(raw[record.ColClientName])
	if clientName == "" {
		return rec, &diag.ValidationError{
			Reason: diag.MissingRequiredField,
			Field:  record.ColClientName,
			Row:    rowNum,
		}
	}

	rec = record.BeneficiaryRecord{
		GroupCode:        strings.TrimSpace(raw[record.ColGroupCode]),
		GroupLabel:       strings.TrimSpace(raw[record.ColGroupLabel]),
		SIRET:            siren + nic,
		ClientName:       clientName,
		ClientAddress:    strings.TrimSpace(raw[record.ColClientAddress]),
		ClientPostalCode: strings.TrimSpace(raw[record.ColClientPostal]),
		ClientCity:       strings.TrimSpace(raw[record.ColClientCity]),
		ActivityCode:     strings.TrimSpace(raw[record.ColActivityCode]),
		LastName:         strings.TrimSpace(raw[record.ColLastName]),
		FirstName:        strings.TrimSpace(raw[record.ColFirstName]),
		BirthDate:        normalizeDate(raw[record.ColBirthDate], defaults),
		DeclarationYear:  parseYear(raw[record.ColYear]),
		Qualification:    strings.TrimSpace(raw[record.ColQualification]),
		Majored:          ParseMajored(raw[record.ColMajored]),
		AnnualFTE:        measure(raw, record.ColAnnualFTE, rowNum, sink),
		WorkedHours:      measure(raw, record.ColWorkedHours, rowNum, sink),
	}
	return rec, nil
}

// measure parses one numeric cell, reporting negative values before clamping.
func measure(raw record.RawRow, col string, rowNum int, sink diag.Sink) float64 {
	f, negative := parseMeasure(raw[col])
	if negative {
		sink.Emit(diag.Event{
			Kind:   diag.KindNegativeMeasure,
			Row:    rowNum,
			Reason: "negative measure clamped to zero",
			Value:  col + "=" + strings.TrimSpace(raw[col]),
		})
	}
	return f
}

func padLeftZeros(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// normalizeDate parses a source date cell with the configured layouts and
// re-renders it in the display format. Birth dates are not legally required
// on the certificate, so failure yields an empty string, never a dropped row.
func normalizeDate(value string, defaults config.Defaults) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range defaults.SourceDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(defaults.DateFormat)
		}
	}
	return ""
}

// parseMeasure reads a numeric cell. Source sheets come from FR-locale Excel,
// so comma decimals and space thousand separators are accepted. Anything
// unparsable or NaN becomes 0 so that no sentinel value survives downstream.
// A negative value is also clamped to 0 but flagged to the caller: unlike a
// blank cell it points at broken upstream data.
func parseMeasure(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	value = strings.ReplaceAll(value, "\u00a0", "")
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, ",", ".")
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != f {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	return f, false
}

func parseYear(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	// Excel sometimes renders integer cells as floats ("2024.0").
	if f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64); err == nil {
		return int(f)
	}
	return 0
}

// ParseMajored reads the yes/no majoration flag.
func ParseMajored(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "OUI", "O", "YES", "Y", "VRAI", "TRUE", "1", "X":
		return true
	default:
		return false
	}
}

// MajoredLabel renders the majoration flag the way the source sheets and the
// certificates spell it.
func MajoredLabel(majored bool) string {
	if majored {
		return "OUI"
	}
	return "NON"
}
