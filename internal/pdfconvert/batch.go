// =============================================================================
// DOETH Attestation Generator - Batch Converter
// =============================================================================
//
// Converts every rendered certificate of a run through one shared rendering
// session. One document failing is reported and skipped; the session dying is
// fatal for the rest of the batch but never loses what was already converted.
// The session is released exactly once on every exit path.
//
// =============================================================================

package pdfconvert

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/doethtools/attestor/internal/certificate"
	"github.com/doethtools/attestor/internal/diag"
)

// Report summarizes one conversion batch.
type Report struct {
	Converted int
	Failed    int
	Skipped   int
	Outputs   []string
}

// ConvertBatch converts each artifact to PDF through a single session
// acquired from open. With deleteSource set, the source DOCX of every
// successful conversion is removed (PDF-only output mode).
//
// The returned error is non-nil only for batch-fatal conditions (session
// acquisition or session loss); the Report is always meaningful.
func ConvertBatch(
	ctx context.Context,
	open Opener,
	artifacts []certificate.Artifact,
	deleteSource bool,
	sink diag.Sink,
	log *zap.Logger,
) (Report, error) {
	var report Report
	if len(artifacts) == 0 {
		return report, nil
	}

	session, err := open()
	if err != nil {
		report.Skipped = len(artifacts)
		emitSummary(sink, report)
		return report, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("failed to release rendering session", zap.Error(cerr))
		}
	}()

	var fatal error
	for i, art := range artifacts {
		pdf, err := session.Convert(ctx, art.Path)
		if err != nil {
			var sessErr *SessionError
			if errors.As(err, &sessErr) {
				report.Skipped = len(artifacts) - i
				fatal = err
				break
			}
			report.Failed++
			sink.Emit(diag.Event{
				Kind:     diag.KindConversionFailure,
				SIRET:    art.SIRET,
				Document: art.Path,
				Reason:   "document conversion failed",
				Err:      err,
			})
			continue
		}

		report.Converted++
		report.Outputs = append(report.Outputs, pdf)
		log.Debug("document converted", zap.String("pdf", pdf))

		if deleteSource {
			if rmErr := os.Remove(art.Path); rmErr != nil {
				log.Warn("failed to remove intermediate document",
					zap.String("path", art.Path), zap.Error(rmErr))
			}
		}
	}

	emitSummary(sink, report)
	return report, fatal
}

func emitSummary(sink diag.Sink, report Report) {
	sink.Emit(diag.Event{
		Kind:   diag.KindBatchSummary,
		Reason: "conversion batch finished",
		Counts: map[string]int{
			"converted": report.Converted,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
		},
	})
}
