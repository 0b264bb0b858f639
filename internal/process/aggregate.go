// =============================================================================
// DOETH Attestation Generator - Aggregator
// =============================================================================
//
// Merges normalized records sharing the full non-numeric attribute tuple into
// one record, summing the two measures. The declaration year is not part of
// the key; when merged rows disagree on it the conflict is reported and
// resolved by the configured policy.
//
// =============================================================================

package process

import (
	"fmt"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/record"
)

// Aggregate merges records by their aggregation key. Output order follows the
// first occurrence of each key in the input; the orderer fixes the final
// order later.
//
// Post-condition: no two returned records share an aggregation key.
func Aggregate(records []record.BeneficiaryRecord, agg config.Aggregation, sink diag.Sink) []record.BeneficiaryRecord {
	index := make(map[record.Key]int, len(records))
	out := make([]record.BeneficiaryRecord, 0, len(records))

	for _, rec := range records {
		key := rec.AggregationKey()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}

		out[i].AnnualFTE += rec.AnnualFTE
		out[i].WorkedHours += rec.WorkedHours

		if rec.DeclarationYear != out[i].DeclarationYear {
			sink.Emit(diag.Event{
				Kind:   diag.KindInconsistency,
				SIRET:  rec.SIRET,
				Reason: "declaration year differs within aggregation key",
				Value:  fmt.Sprintf("%d vs %d", out[i].DeclarationYear, rec.DeclarationYear),
			})
			out[i].DeclarationYear = resolveYear(out[i].DeclarationYear, rec.DeclarationYear, agg.YearPolicy)
		}
	}
	return out
}

func resolveYear(kept, incoming int, policy config.YearPolicy) int {
	switch policy {
	case config.YearLowest:
		if incoming < kept {
			return incoming
		}
	case config.YearHighest:
		if incoming > kept {
			return incoming
		}
	}
	// YearFirst keeps the first-seen value.
	return kept
}
