// =============================================================================
// DOETH Attestation Generator - Aggregator Tests
// =============================================================================

package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/record"
)

func beneficiary(siret, last, first string, fte, hours float64) record.BeneficiaryRecord {
	return record.BeneficiaryRecord{
		GroupCode:       "GRP1",
		SIRET:           siret,
		ClientName:      "ACME SARL",
		LastName:        last,
		FirstName:       first,
		DeclarationYear: 2025,
		AnnualFTE:       fte,
		WorkedHours:     hours,
	}
}

func TestAggregateSumsMeasuresForIdenticalKeys(t *testing.T) {
	in := []record.BeneficiaryRecord{
		beneficiary("12345678900057", "DURAND", "Marie", 10.0, 400),
		beneficiary("12345678900057", "DURAND", "Marie", 5.5, 100),
	}

	out := Aggregate(in, config.Aggregation{YearPolicy: config.YearFirst}, &diag.Collector{})

	require.Len(t, out, 1)
	assert.InDelta(t, 15.5, out[0].AnnualFTE, 1e-9)
	assert.InDelta(t, 500.0, out[0].WorkedHours, 1e-9)
}

func TestAggregateKeepsDistinctKeysApart(t *testing.T) {
	in := []record.BeneficiaryRecord{
		beneficiary("12345678900057", "DURAND", "Marie", 1, 10),
		beneficiary("12345678900057", "DURAND", "Paul", 1, 10), // different first name
		beneficiary("98765432100011", "DURAND", "Marie", 1, 10), // different SIRET
	}

	out := Aggregate(in, config.Aggregation{YearPolicy: config.YearFirst}, &diag.Collector{})

	require.Len(t, out, 3)
	keys := map[record.Key]bool{}
	for _, r := range out {
		keys[r.AggregationKey()] = true
	}
	assert.Len(t, keys, 3, "no two output records may share a key")
}

func TestAggregatePreservesFirstOccurrenceOrder(t *testing.T) {
	in := []record.BeneficiaryRecord{
		beneficiary("2", "B", "B", 1, 1),
		beneficiary("1", "A", "A", 1, 1),
		beneficiary("2", "B", "B", 1, 1),
	}

	out := Aggregate(in, config.Aggregation{YearPolicy: config.YearFirst}, &diag.Collector{})

	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].SIRET)
	assert.Equal(t, "1", out[1].SIRET)
}

func TestAggregateReportsYearConflicts(t *testing.T) {
	a := beneficiary("12345678900057", "DURAND", "Marie", 1, 10)
	a.DeclarationYear = 2024
	b := beneficiary("12345678900057", "DURAND", "Marie", 1, 10)
	b.DeclarationYear = 2025

	tests := []struct {
		policy config.YearPolicy
		want   int
	}{
		{config.YearFirst, 2024},
		{config.YearLowest, 2024},
		{config.YearHighest, 2025},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			collector := &diag.Collector{}

			out := Aggregate([]record.BeneficiaryRecord{a, b}, config.Aggregation{YearPolicy: tt.policy}, collector)

			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].DeclarationYear)
			assert.Equal(t, 1, collector.CountByKind(diag.KindInconsistency))
		})
	}
}

func TestAggregateAgreeingYearsEmitNoDiagnostic(t *testing.T) {
	collector := &diag.Collector{}
	in := []record.BeneficiaryRecord{
		beneficiary("12345678900057", "DURAND", "Marie", 1, 10),
		beneficiary("12345678900057", "DURAND", "Marie", 2, 20),
	}

	Aggregate(in, config.Aggregation{YearPolicy: config.YearFirst}, collector)

	assert.Zero(t, collector.CountByKind(diag.KindInconsistency))
}
