// =============================================================================
// DOETH Attestation Generator - Filter & Orderer
// =============================================================================
//
// Drops out-of-scope records, fixes the final deterministic order and marks
// the SIRET group boundaries the certificate builder relies on.
//
// =============================================================================

package process

import (
	"sort"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/record"
)

// FilterAndOrder removes records carrying the excluded group code, sorts the
// remainder by (SIRET, last name, first name) and attaches the group boundary
// flags. Sorting is a stable byte-wise comparison: reproducible on every
// platform, independent of locale.
func FilterAndOrder(records []record.BeneficiaryRecord, filter config.Filter) []record.OrderedRecord {
	kept := make([]record.BeneficiaryRecord, 0, len(records))
	for _, rec := range records {
		if rec.GroupCode == filter.ExcludedGroupCode {
			continue
		}
		kept = append(kept, rec)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.SIRET != b.SIRET {
			return a.SIRET < b.SIRET
		}
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})

	ordered := make([]record.OrderedRecord, len(kept))
	for i, rec := range kept {
		ordered[i] = record.OrderedRecord{BeneficiaryRecord: rec}
	}
	return MarkBoundaries(ordered)
}

// MarkBoundaries recomputes the group start/end flags in one linear pass.
// Idempotent: running it on an already-flagged sequence with the same order
// reproduces identical flags.
func MarkBoundaries(records []record.OrderedRecord) []record.OrderedRecord {
	for i := range records {
		records[i].GroupStart = i == 0 || records[i].SIRET != records[i-1].SIRET
		records[i].GroupEnd = i == len(records)-1 || records[i].SIRET != records[i+1].SIRET
	}
	return records
}

// CountGroups returns the number of SIRET runs in a flagged sequence.
func CountGroups(records []record.OrderedRecord) int {
	n := 0
	for _, r := range records {
		if r.GroupStart {
			n++
		}
	}
	return n
}
