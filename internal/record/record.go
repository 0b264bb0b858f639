// =============================================================================
// DOETH Attestation Generator - Shared Record Types
// =============================================================================
//
// This package contains the domain types shared across the pipeline stages to
// avoid import cycles. Types defined here are used by:
//   - process (normalization, aggregation, ordering)
//   - snapshot (intermediate CSV store)
//   - certificate (document generation)
//   - pipeline (orchestration)
//
// =============================================================================

package record

// Source column headers expected on the declaration sheet.
const (
	ColGroupCode     = "CODE_REGROUPEMENT"
	ColGroupLabel    = "REGROUPEMENT"
	ColSIREN         = "SIREN"
	ColNIC           = "NIC"
	ColClientName    = "NOM_CLIENT"
	ColClientAddress = "ADRESSE_CLIENT"
	ColClientPostal  = "CP_CLIENT"
	ColClientCity    = "VILLE_CLIENT"
	ColActivityCode  = "APE"
	ColLastName      = "NOM"
	ColFirstName     = "PRENOM"
	ColBirthDate     = "DATE_NAISSANCE"
	ColYear          = "ANNEE"
	ColQualification = "QUALIFICATION"
	ColMajored       = "ETP_MAJORE"
	ColAnnualFTE     = "ETP_ANNUEL"
	ColWorkedHours   = "NB_HEURES"
)

// RawRow is an untyped row as read from the source sheet, keyed by column
// header. It never survives past normalization.
type RawRow map[string]string

// BeneficiaryRecord is one normalized, validated declaration row.
//
// Invariant: SIRET is non-empty and all digits; rows that cannot satisfy this
// are dropped by the normalizer and never reach this type.
type BeneficiaryRecord struct {
	GroupCode        string
	GroupLabel       string
	SIRET            string // 14 digits: 9-digit SIREN + 5-digit NIC
	ClientName       string
	ClientAddress    string
	ClientPostalCode string
	ClientCity       string
	ActivityCode     string
	LastName         string
	FirstName        string
	BirthDate        string // display format, empty when unparsable
	DeclarationYear  int
	Qualification    string
	Majored          bool
	AnnualFTE        float64
	WorkedHours      float64
}

// Key is the aggregation key: every attribute except the summed measures and
// the declaration year.
type Key struct {
	GroupCode        string
	GroupLabel       string
	SIRET            string
	ClientName       string
	ClientAddress    string
	ClientPostalCode string
	ClientCity       string
	ActivityCode     string
	LastName         string
	FirstName        string
	BirthDate        string
	Qualification    string
	Majored          bool
}

// AggregationKey returns the full non-numeric attribute tuple of the record.
func (r BeneficiaryRecord) AggregationKey() Key {
	return Key{
		GroupCode:        r.GroupCode,
		GroupLabel:       r.GroupLabel,
		SIRET:            r.SIRET,
		ClientName:       r.ClientName,
		ClientAddress:    r.ClientAddress,
		ClientPostalCode: r.ClientPostalCode,
		ClientCity:       r.ClientCity,
		ActivityCode:     r.ActivityCode,
		LastName:         r.LastName,
		FirstName:        r.FirstName,
		BirthDate:        r.BirthDate,
		Qualification:    r.Qualification,
		Majored:          r.Majored,
	}
}

// OrderedRecord is an aggregated record plus the SIRET group boundary flags
// computed by the orderer.
type OrderedRecord struct {
	BeneficiaryRecord

	// GroupStart is true iff this record opens a new SIRET run (or is the
	// first record of the sequence).
	GroupStart bool

	// GroupEnd is true iff this record closes its SIRET run (or is the last
	// record of the sequence).
	GroupEnd bool
}

// Group is the set of ordered records sharing one SIRET. Records are
// read-only; totals are computed on demand and never stored.
type Group struct {
	SIRET   string
	Records []OrderedRecord
}

// TotalFTE sums the annual full-time-equivalent over the group.
func (g Group) TotalFTE() float64 {
	var sum float64
	for _, r := range g.Records {
		sum += r.AnnualFTE
	}
	return sum
}

// TotalHours sums the worked hours over the group.
func (g Group) TotalHours() float64 {
	var sum float64
	for _, r := range g.Records {
		sum += r.WorkedHours
	}
	return sum
}

// SplitGroups cuts an ordered sequence into per-SIRET groups using the
// boundary flags. The input must already be sorted with contiguous SIRET
// runs, which is guaranteed by the orderer and preserved by the snapshot
// round trip.
func SplitGroups(records []OrderedRecord) []Group {
	var groups []Group
	var current Group
	for _, r := range records {
		if r.GroupStart {
			current = Group{SIRET: r.SIRET}
		}
		current.Records = append(current.Records, r)
		if r.GroupEnd {
			groups = append(groups, current)
			current = Group{}
		}
	}
	return groups
}
