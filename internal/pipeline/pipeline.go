// =============================================================================
// DOETH Attestation Generator - Pipeline Orchestration
// =============================================================================
//
// Drives a whole run: source reading, normalization, aggregation, filtering
// and ordering, the snapshot checkpoint, certificate generation and the
// optional PDF conversion batch. The pipeline receives plain parameters and
// a diagnostics sink; it never parses command lines, never formats logs and
// never terminates the process. Fatal conditions are returned to the caller,
// everything row- or document-scoped becomes a diagnostic and the run
// continues.
//
// A Summary is produced on every run that gets past the input stage, even
// when some rows, groups or conversions failed.
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doethtools/attestor/internal/certificate"
	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/pdfconvert"
	"github.com/doethtools/attestor/internal/process"
	"github.com/doethtools/attestor/internal/record"
	"github.com/doethtools/attestor/internal/snapshot"
	"github.com/doethtools/attestor/internal/xlsxreader"
	"github.com/doethtools/attestor/pkg/utils"
)

// Format selects the output artifact set.
type Format string

const (
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
	FormatBoth Format = "both"
)

// ParseFormat maps the user-facing format name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDocx, FormatPDF, FormatBoth:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want docx, pdf or both)", s)
	}
}

// Params are the plain run parameters. The CLI maps its flags onto this
// struct; nothing here knows about flag syntax.
type Params struct {
	// SourcePath is the Excel file to process. Ignored with SkipProcessing.
	SourcePath string

	// SheetName is the declaration sheet inside the source workbook.
	SheetName string

	// OutputDir receives the generated certificates.
	OutputDir string

	// SnapshotPath: with SkipProcessing, an existing snapshot to start
	// from; otherwise the path the new snapshot is written to (empty means
	// a timestamped default under the processed dir).
	SnapshotPath string

	// SkipProcessing starts directly from SnapshotPath.
	SkipProcessing bool

	// Format selects docx, pdf or both.
	Format Format

	// DryRun runs processing and the snapshot checkpoint but writes no
	// documents.
	DryRun bool

	// Opener overrides the rendering session acquisition. Nil selects the
	// LibreOffice session from the configuration.
	Opener pdfconvert.Opener
}

// Summary is the user-visible outcome of a run.
type Summary struct {
	RunID             string
	RowsRead          int
	RowsDropped       int
	DroppedByReason   map[string]int
	Inconsistencies   int
	Records           int
	Groups            int
	TotalFTE          float64
	TotalHours        float64
	SnapshotPath      string
	DocumentsBuilt    int
	BuildFailures     int
	Converted         int
	ConversionFailed  int
	ConversionSkipped int
	DryRun            bool
	Duration          time.Duration
}

// Run executes one batch run.
func Run(ctx context.Context, cfg config.Config, params Params, sink diag.Sink, log *zap.Logger) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:           uuid.New().String(),
		DroppedByReason: map[string]int{},
		DryRun:          params.DryRun,
	}
	log = log.With(zap.String("run_id", summary.RunID))

	if params.Format == "" {
		params.Format = FormatDocx
	}

	collector := &diag.Collector{}
	sink = diag.Tee{sink, collector}

	var ordered []record.OrderedRecord
	var err error
	if params.SkipProcessing {
		ordered, err = loadSnapshot(cfg, params, &summary, log)
	} else {
		ordered, err = processSource(cfg, params, &summary, sink, log)
	}
	if err != nil {
		return summary, err
	}

	for _, ev := range collector.Events() {
		switch ev.Kind {
		case diag.KindRowDropped:
			summary.RowsDropped++
			summary.DroppedByReason[ev.Reason]++
		case diag.KindInconsistency:
			summary.Inconsistencies++
		}
	}

	summary.Records = len(ordered)
	for _, r := range ordered {
		summary.TotalFTE += r.AnnualFTE
		summary.TotalHours += r.WorkedHours
	}

	starts, ends := 0, 0
	for _, r := range ordered {
		if r.GroupStart {
			starts++
		}
		if r.GroupEnd {
			ends++
		}
	}
	if starts != ends {
		log.Warn("group boundary flags inconsistent, recomputing",
			zap.Int("starts", starts), zap.Int("ends", ends))
	}

	// Boundary marking is idempotent; re-running it shields the builder
	// from inconsistent flags in hand-edited snapshots.
	groups := record.SplitGroups(process.MarkBoundaries(ordered))
	summary.Groups = len(groups)
	log.Info("processing complete",
		zap.Int("records", summary.Records),
		zap.Int("groups", summary.Groups))

	if params.DryRun {
		log.Info("dry run: no documents will be written", zap.Int("would_build", summary.Groups))
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if err := utils.EnsureDirectories(params.OutputDir); err != nil {
		return summary, err
	}

	builder := certificate.NewBuilder(cfg, log)
	artifacts := builder.BuildAll(groups, params.OutputDir, sink)
	summary.DocumentsBuilt = len(artifacts)
	summary.BuildFailures = len(groups) - len(artifacts)

	if params.Format == FormatPDF || params.Format == FormatBoth {
		open := params.Opener
		if open == nil {
			open = pdfconvert.NewLibreOfficeOpener(
				cfg.Converter.SofficeBin,
				time.Duration(cfg.Converter.TimeoutSeconds)*time.Second,
				log,
			)
		}
		report, convErr := pdfconvert.ConvertBatch(ctx, open, artifacts, params.Format == FormatPDF, sink, log)
		summary.Converted = report.Converted
		summary.ConversionFailed = report.Failed
		summary.ConversionSkipped = report.Skipped
		if convErr != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("conversion batch aborted: %w", convErr)
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// processSource runs the full cleaning pipeline and writes the snapshot
// checkpoint.
func processSource(cfg config.Config, params Params, summary *Summary, sink diag.Sink, log *zap.Logger) ([]record.OrderedRecord, error) {
	rows, err := xlsxreader.Read(params.SourcePath, params.SheetName)
	if err != nil {
		return nil, err
	}
	summary.RowsRead = len(rows)
	log.Info("source loaded",
		zap.String("path", params.SourcePath),
		zap.String("sheet", params.SheetName),
		zap.Int("rows", len(rows)))

	normalized := process.Normalize(rows, cfg.Defaults, sink)
	aggregated := process.Aggregate(normalized, cfg.Aggregation, sink)
	ordered := process.FilterAndOrder(aggregated, cfg.Filter)
	log.Info("data cleaned",
		zap.Int("normalized", len(normalized)),
		zap.Int("aggregated", len(aggregated)),
		zap.Int("ordered", len(ordered)))

	path := params.SnapshotPath
	if path == "" {
		path = snapshot.DefaultPath(cfg.Paths.ProcessedDir)
	}
	if err := snapshot.Write(ordered, path, cfg.Defaults.CSVSeparator[0]); err != nil {
		return nil, err
	}
	summary.SnapshotPath = path
	log.Info("snapshot written", zap.String("path", path))
	return ordered, nil
}

// loadSnapshot reconstructs the ordered sequence from an existing snapshot.
func loadSnapshot(cfg config.Config, params Params, summary *Summary, log *zap.Logger) ([]record.OrderedRecord, error) {
	if params.SnapshotPath == "" {
		return nil, fmt.Errorf("skip-processing requires a snapshot path")
	}
	ordered, err := snapshot.Read(params.SnapshotPath, cfg.Defaults.CSVSeparator[0])
	if err != nil {
		return nil, err
	}
	summary.SnapshotPath = params.SnapshotPath
	summary.RowsRead = len(ordered)
	log.Info("snapshot loaded",
		zap.String("path", params.SnapshotPath),
		zap.Int("records", len(ordered)))
	return ordered, nil
}
