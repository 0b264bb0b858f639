// =============================================================================
// DOETH Attestation Generator - Pipeline Tests
// =============================================================================

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/pdfconvert"
)

// sourceRows is a small but representative declaration sheet: two entities,
// one duplicated beneficiary, one DIFFUS row and one row with a broken NIC.
var sourceRows = [][]any{
	{"CODE_REGROUPEMENT", "REGROUPEMENT", "SIREN", "NIC", "NOM_CLIENT", "ADRESSE_CLIENT", "CP_CLIENT", "VILLE_CLIENT", "APE", "NOM", "PRENOM", "DATE_NAISSANCE", "ANNEE", "QUALIFICATION", "ETP_MAJORE", "ETP_ANNUEL", "NB_HEURES"},
	{"GRP1", "Groupe Un", "123456789", "57", "ACME SARL", "1 rue de la Paix", "35000", "Rennes", "6201Z", "DURAND", "Marie", "03/04/1985", "2025", "Technicienne", "NON", "0,5", "800"},
	{"GRP1", "Groupe Un", "123456789", "57", "ACME SARL", "1 rue de la Paix", "35000", "Rennes", "6201Z", "DURAND", "Marie", "03/04/1985", "2025", "Technicienne", "NON", "0,32", "404,5"},
	{"GRP2", "Groupe Deux", "987654321", "11", "AUTRE SA", "2 avenue du Port", "44000", "Nantes", "4711F", "PETIT", "Anne", "1990-06-12", "2025", "Vendeuse", "OUI", "1", "1607"},
	{"DIFFUS", "Diffus", "111111111", "22", "SANS CLIENT", "", "", "", "", "X", "Y", "", "2025", "", "NON", "1", "100"},
	{"GRP1", "Groupe Un", "123456789", "00ST MALO", "ACME SARL", "", "", "", "", "MARTIN", "Luc", "", "2025", "", "NON", "1", "100"},
}

func writeSource(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	idx, err := f.NewSheet("Feuil1")
	require.NoError(t, err)
	f.SetActiveSheet(idx)

	for i, row := range sourceRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Feuil1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "declaration.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ProcessedDir = filepath.Join(t.TempDir(), "processed")
	return cfg
}

// fakeSession renames extensions instead of invoking LibreOffice.
type fakeSession struct {
	closeCalls int
}

func (s *fakeSession) Convert(ctx context.Context, src string) (string, error) {
	pdf := strings.TrimSuffix(src, filepath.Ext(src)) + ".pdf"
	if err := os.WriteFile(pdf, []byte("pdf"), 0o644); err != nil {
		return "", err
	}
	return pdf, nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	outDir := filepath.Join(t.TempDir(), "out")

	summary, err := Run(context.Background(), cfg, Params{
		SourcePath: writeSource(t),
		SheetName:  "Feuil1",
		OutputDir:  outDir,
		Format:     FormatDocx,
	}, &diag.Collector{}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, 5, summary.RowsRead)
	assert.Equal(t, 1, summary.RowsDropped, "broken NIC row")
	assert.Equal(t, 1, summary.DroppedByReason[string(diag.NonNumericIdentifier)])
	assert.Equal(t, 2, summary.Records, "duplicate merged, DIFFUS filtered")
	assert.Equal(t, 2, summary.Groups)
	assert.InDelta(t, 1.82, summary.TotalFTE, 1e-9)
	assert.InDelta(t, 2811.5, summary.TotalHours, 1e-9)
	assert.Equal(t, 2, summary.DocumentsBuilt)
	assert.FileExists(t, summary.SnapshotPath)

	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".docx"))
	}
}

func TestRunDryRunWritesNoDocuments(t *testing.T) {
	cfg := testConfig(t)
	outDir := filepath.Join(t.TempDir(), "out")

	summary, err := Run(context.Background(), cfg, Params{
		SourcePath: writeSource(t),
		SheetName:  "Feuil1",
		OutputDir:  outDir,
		DryRun:     true,
	}, &diag.Collector{}, zap.NewNop())

	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Zero(t, summary.DocumentsBuilt)
	assert.FileExists(t, summary.SnapshotPath, "the checkpoint is still written on a dry run")
	assert.NoDirExists(t, outDir)
}

func TestRunSkipProcessingFromSnapshot(t *testing.T) {
	cfg := testConfig(t)

	first, err := Run(context.Background(), cfg, Params{
		SourcePath: writeSource(t),
		SheetName:  "Feuil1",
		OutputDir:  filepath.Join(t.TempDir(), "out1"),
	}, &diag.Collector{}, zap.NewNop())
	require.NoError(t, err)

	second, err := Run(context.Background(), cfg, Params{
		SnapshotPath:   first.SnapshotPath,
		SkipProcessing: true,
		OutputDir:      filepath.Join(t.TempDir(), "out2"),
	}, &diag.Collector{}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.DocumentsBuilt, second.DocumentsBuilt)
	assert.InDelta(t, first.TotalFTE, second.TotalFTE, 1e-9)
}

func TestRunSkipProcessingRequiresSnapshot(t *testing.T) {
	cfg := testConfig(t)

	_, err := Run(context.Background(), cfg, Params{
		SkipProcessing: true,
		OutputDir:      t.TempDir(),
	}, &diag.Collector{}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
}

func TestRunPDFOnlyRemovesIntermediateDocx(t *testing.T) {
	cfg := testConfig(t)
	outDir := filepath.Join(t.TempDir(), "out")
	session := &fakeSession{}

	summary, err := Run(context.Background(), cfg, Params{
		SourcePath: writeSource(t),
		SheetName:  "Feuil1",
		OutputDir:  outDir,
		Format:     FormatPDF,
		Opener:     func() (pdfconvert.Session, error) { return session, nil },
	}, &diag.Collector{}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Converted)
	assert.Equal(t, 1, session.closeCalls)

	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".pdf"), "no DOCX left behind: %s", e.Name())
	}
}

func TestRunFormatBothKeepsDocx(t *testing.T) {
	cfg := testConfig(t)
	outDir := filepath.Join(t.TempDir(), "out")

	summary, err := Run(context.Background(), cfg, Params{
		SourcePath: writeSource(t),
		SheetName:  "Feuil1",
		OutputDir:  outDir,
		Format:     FormatBoth,
		Opener:     func() (pdfconvert.Session, error) { return &fakeSession{}, nil },
	}, &diag.Collector{}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Converted)

	var docx, pdf int
	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".docx":
			docx++
		case ".pdf":
			pdf++
		}
	}
	assert.Equal(t, 2, docx)
	assert.Equal(t, 2, pdf)
}

func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"docx", "pdf", "both"} {
		f, err := ParseFormat(valid)
		require.NoError(t, err)
		assert.Equal(t, Format(valid), f)
	}

	_, err := ParseFormat("odt")
	require.Error(t, err)
}
