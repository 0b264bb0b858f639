// =============================================================================
// DOETH Attestation Generator - Certificate Builder Tests
// =============================================================================

package certificate

import (
	"archive/zip"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/record"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder(config.Default(), zap.NewNop())
	b.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	return b
}

func testGroup(siret, client string, year int) record.Group {
	return record.Group{
		SIRET: siret,
		Records: []record.OrderedRecord{
			{
				BeneficiaryRecord: record.BeneficiaryRecord{
					GroupLabel:      "Groupe Un",
					SIRET:           siret,
					ClientName:      client,
					ClientAddress:   "1 rue de la Paix",
					ClientCity:      "Rennes",
					LastName:        "DURAND",
					FirstName:       "Marie",
					DeclarationYear: year,
					Qualification:   "Technicienne",
					AnnualFTE:       0.82,
					WorkedHours:     1204.5,
				},
				GroupStart: true,
				GroupEnd:   true,
			},
		},
	}
}

func TestBuildWritesDocumentWithExpectedName(t *testing.T) {
	dir := t.TempDir()
	b := testBuilder(t)

	art, err := b.Build(testGroup("12345678900057", "ACME SARL", 2025), 3, dir)

	require.NoError(t, err)
	assert.Equal(t, "3_Attestation DOETH_2025_ACME SARL.docx", filepath.Base(art.Path))
	assert.Equal(t, "12345678900057", art.SIRET)
	assert.Equal(t, 3, art.Seq)
	assert.Equal(t, 2025, art.Year)

	info, statErr := os.Stat(art.Path)
	require.NoError(t, statErr)
	assert.Positive(t, info.Size())
}

func TestBuildSanitizesClientNameInFilename(t *testing.T) {
	dir := t.TempDir()
	b := testBuilder(t)

	art, err := b.Build(testGroup("12345678900057", `ACME/Agence "Ouest"`, 2025), 1, dir)

	require.NoError(t, err)
	base := filepath.Base(art.Path)
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, `"`)
	assert.Contains(t, base, "1_Attestation DOETH_2025_")
}

func TestBuildYearFallsBackToPreviousCivilYear(t *testing.T) {
	dir := t.TempDir()
	b := testBuilder(t) // now() pinned to 2026

	art, err := b.Build(testGroup("12345678900057", "ACME SARL", 0), 1, dir)

	require.NoError(t, err)
	assert.Equal(t, 2025, art.Year)
}

func TestBuildRejectsEmptyGroup(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build(record.Group{SIRET: "12345678900057"}, 1, t.TempDir())

	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "12345678900057", berr.SIRET)
}

func TestBuildAllContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	b := testBuilder(t)
	collector := &diag.Collector{}

	groups := []record.Group{
		testGroup("11111111100011", "PREMIER", 2025),
		{SIRET: "22222222200022"}, // empty group, must fail
		testGroup("33333333300033", "TROISIEME", 2025),
	}

	artifacts := b.BuildAll(groups, dir, collector)

	require.Len(t, artifacts, 2)
	assert.Equal(t, 1, artifacts[0].Seq)
	assert.Equal(t, 3, artifacts[1].Seq, "sequence numbers follow group positions, not output count")
	assert.Equal(t, 1, collector.CountByKind(diag.KindBuildFailure))
}

// documentXML extracts word/document.xml from a generated certificate.
func documentXML(t *testing.T, path string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}
	t.Fatal("word/document.xml not found in archive")
	return ""
}

func TestBuildMultiLineBlocksUseOneParagraphPerLine(t *testing.T) {
	dir := t.TempDir()
	b := testBuilder(t)

	art, err := b.Build(testGroup("12345678900057", "ACME SARL", 2025), 1, dir)
	require.NoError(t, err)

	xml := documentXML(t, art.Path)
	name := strings.Index(xml, "ACME SARL")
	addr := strings.Index(xml, "1 rue de la Paix")
	require.GreaterOrEqual(t, name, 0)
	require.Greater(t, addr, name)
	// Word ignores raw newlines inside a text run, so each address line must
	// close its own paragraph.
	assert.Contains(t, xml[name:addr], "</w:p>")
	assert.NotContains(t, xml, "ACME SARL\n")
	assert.NotContains(t, xml, "\nSIRET :")
}

func TestFteText(t *testing.T) {
	assert.Equal(t, "0.82", fteText(0.82))
	assert.Equal(t, "15.50", fteText(15.5))
	assert.Equal(t, "0.00", fteText(0))
	assert.Equal(t, "", fteText(math.NaN()))
}

func TestMeasureText(t *testing.T) {
	assert.Equal(t, "1204.5", measureText(1204.5))
	assert.Equal(t, "0", measureText(0))
	assert.Equal(t, "", measureText(math.NaN()))
}
