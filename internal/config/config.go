// =============================================================================
// DOETH Attestation Generator - Configuration Module
// =============================================================================
//
// Loads the single YAML configuration file into an immutable Config value.
// Components receive the value (or a sub-struct) at construction; nothing in
// the codebase reads configuration through package-level state.
//
// The file may use ${dotted.path} references to other string values, e.g.
//
//   paths:
//     base_dir: ./data
//     processed_dir: ${paths.base_dir}/processed
//
// References are resolved once at load time, before defaulting.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Paths          Paths          `yaml:"paths"`
	Defaults       Defaults       `yaml:"defaults"`
	Aggregation    Aggregation    `yaml:"aggregation"`
	Filter         Filter         `yaml:"filter"`
	Document       Document       `yaml:"document"`
	Representative Representative `yaml:"representative"`
	Resources      Resources      `yaml:"resources"`
	Converter      Converter      `yaml:"converter"`
}

// Paths groups the working directories.
type Paths struct {
	// InputDir is where source Excel files are picked up.
	InputDir string `yaml:"input_dir"`

	// ProcessedDir receives the intermediate CSV snapshots.
	ProcessedDir string `yaml:"processed_dir"`

	// OutputDir receives the generated attestations.
	OutputDir string `yaml:"output_dir"`

	// LogsDir receives the per-run log files.
	LogsDir string `yaml:"logs_dir"`
}

// Defaults groups input parsing settings.
type Defaults struct {
	// InputFilename is the Excel file name used when --input is not given.
	InputFilename string `yaml:"input_filename"`

	// ExcelSheet is the sheet holding the declaration rows.
	ExcelSheet string `yaml:"excel_sheet"`

	// DateFormat is the Go layout used to display dates (birth date cells,
	// the signature date line). Default 02/01/2006.
	DateFormat string `yaml:"date_format"`

	// SourceDateFormats are the layouts tried, in order, when parsing date
	// cells from the source sheet.
	SourceDateFormats []string `yaml:"source_date_formats"`

	// CSVSeparator is the intermediate snapshot delimiter. Default ";".
	CSVSeparator string `yaml:"csv_separator"`
}

// YearPolicy resolves conflicting declaration years inside one aggregation
// key.
type YearPolicy string

const (
	YearFirst   YearPolicy = "first"
	YearLowest  YearPolicy = "lowest"
	YearHighest YearPolicy = "highest"
)

// Aggregation groups aggregator settings.
type Aggregation struct {
	// YearPolicy picks the declaration year kept when merged rows disagree.
	// The disagreement is always reported; this only decides the kept value.
	YearPolicy YearPolicy `yaml:"year_policy"`
}

// Filter groups the business filtering settings.
type Filter struct {
	// ExcludedGroupCode marks beneficiaries not attributable to a client
	// entity; those rows never appear on certificates. Default "DIFFUS".
	ExcludedGroupCode string `yaml:"excluded_group_code"`
}

// Document groups certificate layout and wording.
type Document struct {
	Title           string  `yaml:"title"`
	LegalReference  string  `yaml:"legal_reference"`
	ExplanationText string  `yaml:"explanation_text"` // %d expands to the declaration year
	City            string  `yaml:"city"`
	FontSize        int     `yaml:"font_size"`
	TableFontSize   int     `yaml:"table_font_size"`
	LogoWidthCm     float64 `yaml:"logo_width"`
	SignatureWidth  float64 `yaml:"signature_width"`
	TableWidthTwips int     `yaml:"table_width_twips"`
}

// Representative identifies the legal representative signing every
// certificate.
type Representative struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	SIRET   string `yaml:"siret"`
}

// Resources points at the static images embedded in certificates.
type Resources struct {
	LogoPath      string `yaml:"logo_path"`
	SignaturePath string `yaml:"signature_path"`
}

// Converter groups PDF conversion settings.
type Converter struct {
	// SofficeBin is the LibreOffice binary used for DOCX to PDF conversion.
	SofficeBin string `yaml:"soffice_bin"`

	// TimeoutSeconds bounds a single document conversion.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// =============================================================================
// LOADING
// =============================================================================

var refPattern = regexp.MustCompile(`\$\{([\w.]+)\}`)

// Load reads, resolves, defaults and validates the configuration file.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	resolveReferences(tree, tree)

	resolved, err := yaml.Marshal(tree)
	if err != nil {
		return cfg, fmt.Errorf("failed to re-encode resolved config: %w", err)
	}
	if err := yaml.Unmarshal(resolved, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the built-in configuration, used when no file is supplied.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// resolveReferences substitutes ${dotted.path} occurrences in string values.
// Unresolvable references are left as-is so validation can surface them in
// context.
func resolveReferences(node map[string]any, root map[string]any) {
	for key, value := range node {
		switch v := value.(type) {
		case map[string]any:
			resolveReferences(v, root)
		case string:
			node[key] = refPattern.ReplaceAllStringFunc(v, func(match string) string {
				path := match[2 : len(match)-1]
				if ref, ok := lookupPath(root, path); ok {
					return fmt.Sprintf("%v", ref)
				}
				return match
			})
		}
	}
}

func lookupPath(root map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = root
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if _, nested := current.(map[string]any); nested {
		return nil, false
	}
	return current, true
}

func applyDefaults(cfg *Config) {
	if cfg.Paths.InputDir == "" {
		cfg.Paths.InputDir = "./data/input"
	}
	if cfg.Paths.ProcessedDir == "" {
		cfg.Paths.ProcessedDir = "./data/processed"
	}
	if cfg.Paths.OutputDir == "" {
		cfg.Paths.OutputDir = "./data/output"
	}
	if cfg.Paths.LogsDir == "" {
		cfg.Paths.LogsDir = "./logs"
	}
	if cfg.Defaults.InputFilename == "" {
		cfg.Defaults.InputFilename = "declaration.xlsx"
	}
	if cfg.Defaults.ExcelSheet == "" {
		cfg.Defaults.ExcelSheet = "Feuil1"
	}
	if cfg.Defaults.DateFormat == "" {
		cfg.Defaults.DateFormat = "02/01/2006"
	}
	if len(cfg.Defaults.SourceDateFormats) == 0 {
		cfg.Defaults.SourceDateFormats = []string{
			"02/01/2006",
			"2006-01-02 15:04:05",
			"2006-01-02",
			"01-02-06",
		}
	}
	if cfg.Defaults.CSVSeparator == "" {
		cfg.Defaults.CSVSeparator = ";"
	}
	if cfg.Aggregation.YearPolicy == "" {
		cfg.Aggregation.YearPolicy = YearFirst
	}
	if cfg.Filter.ExcludedGroupCode == "" {
		cfg.Filter.ExcludedGroupCode = "DIFFUS"
	}
	if cfg.Document.Title == "" {
		cfg.Document.Title = "Attestation relative aux travailleurs en situation d'handicap mis à disposition " +
			"par une entreprise de travail temporaire ou un groupement d'employeurs"
	}
	if cfg.Document.LegalReference == "" {
		cfg.Document.LegalReference = "Vu les articles L5212-1, D5212-1, D5212-3, D5212-6 et D5212-8 du Code du travail,"
	}
	if cfg.Document.ExplanationText == "" {
		cfg.Document.ExplanationText = "Peut, valoriser, dans le cadre de la déclaration obligatoire d'emploi des " +
			"travailleurs en situation d'handicap au titre de l'année civile %d les bénéficiaires de l'obligation " +
			"d'emploi des travailleurs handicapés mis à disposition suivants :"
	}
	if cfg.Document.City == "" {
		cfg.Document.City = "Rennes"
	}
	if cfg.Document.FontSize == 0 {
		cfg.Document.FontSize = 10
	}
	if cfg.Document.TableFontSize == 0 {
		cfg.Document.TableFontSize = 8
	}
	if cfg.Document.LogoWidthCm == 0 {
		cfg.Document.LogoWidthCm = 4.0
	}
	if cfg.Document.SignatureWidth == 0 {
		cfg.Document.SignatureWidth = 4.5
	}
	if cfg.Document.TableWidthTwips == 0 {
		cfg.Document.TableWidthTwips = 9800
	}
	if cfg.Converter.SofficeBin == "" {
		cfg.Converter.SofficeBin = "soffice"
	}
	if cfg.Converter.TimeoutSeconds == 0 {
		cfg.Converter.TimeoutSeconds = 120
	}
}

func validate(cfg Config) error {
	if len(cfg.Defaults.CSVSeparator) != 1 {
		return fmt.Errorf("invalid config: csv_separator must be a single character, got %q", cfg.Defaults.CSVSeparator)
	}
	switch cfg.Aggregation.YearPolicy {
	case YearFirst, YearLowest, YearHighest:
	default:
		return fmt.Errorf("invalid config: year_policy must be first, lowest or highest, got %q", cfg.Aggregation.YearPolicy)
	}
	if strings.Contains(cfg.Filter.ExcludedGroupCode, string(cfg.Defaults.CSVSeparator[0])) {
		return fmt.Errorf("invalid config: excluded_group_code must not contain the CSV separator")
	}
	return nil
}
