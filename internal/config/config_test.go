// =============================================================================
// DOETH Attestation Generator - Configuration Tests
// =============================================================================

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResolvesReferences(t *testing.T) {
	path := writeConfig(t, `
paths:
  input_dir: ./data/input
  processed_dir: ${paths.input_dir}/../processed
  output_dir: ${paths.input_dir}/../output
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "./data/input/../processed", cfg.Paths.ProcessedDir)
	assert.Equal(t, "./data/input/../output", cfg.Paths.OutputDir)
}

func TestLoadLeavesUnresolvableReferences(t *testing.T) {
	path := writeConfig(t, `
paths:
  processed_dir: ${paths.nope}/processed
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "${paths.nope}/processed", cfg.Paths.ProcessedDir)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
document:
  city: Nantes
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "Nantes", cfg.Document.City)
	assert.Equal(t, "Feuil1", cfg.Defaults.ExcelSheet)
	assert.Equal(t, ";", cfg.Defaults.CSVSeparator)
	assert.Equal(t, "DIFFUS", cfg.Filter.ExcludedGroupCode)
	assert.Equal(t, YearFirst, cfg.Aggregation.YearPolicy)
	assert.Equal(t, "soffice", cfg.Converter.SofficeBin)
	assert.Equal(t, 120, cfg.Converter.TimeoutSeconds)
}

func TestLoadRejectsMultiCharSeparator(t *testing.T) {
	path := writeConfig(t, `
defaults:
  csv_separator: ";;"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv_separator")
}

func TestLoadRejectsUnknownYearPolicy(t *testing.T) {
	path := writeConfig(t, `
aggregation:
  year_policy: newest
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "year_policy")
}

func TestLoadRejectsSentinelContainingSeparator(t *testing.T) {
	path := writeConfig(t, `
filter:
  excluded_group_code: "DIF;FUS"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "excluded_group_code")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "paths: [not a map")

	_, err := Load(path)

	require.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	assert.NoError(t, validate(cfg))
	assert.NotEmpty(t, cfg.Document.Title)
	assert.NotEmpty(t, cfg.Document.ExplanationText)
	assert.Contains(t, cfg.Document.ExplanationText, "%d")
}
