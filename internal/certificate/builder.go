// =============================================================================
// DOETH Attestation Generator - Certificate Builder
// =============================================================================
//
// Renders one DOCX attestation per SIRET group. The document layout is fixed:
// letterhead logo, client address block, centered title, legal reference,
// legal representative identity, "Atteste que" block, beneficiary table with
// a totals row, and the signature footer. All wording, styling and the
// representative identity come from the configuration so the builder stays
// independently testable.
//
// A failure on one group is reported and skipped; the remaining groups are
// still generated.
//
// =============================================================================

package certificate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fumiama/go-docx"
	"go.uber.org/zap"

	"github.com/doethtools/attestor/internal/config"
	"github.com/doethtools/attestor/internal/diag"
	"github.com/doethtools/attestor/internal/process"
	"github.com/doethtools/attestor/internal/record"
	"github.com/doethtools/attestor/pkg/utils"
)

const headerShade = "D3D3D3"

// BuildError is a recoverable document-level failure: the group is skipped,
// the run continues.
type BuildError struct {
	SIRET string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building certificate for SIRET %s: %v", e.SIRET, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Artifact is one rendered certificate on disk. The builder owns it until it
// is handed to the batch converter.
type Artifact struct {
	SIRET      string
	Seq        int
	Path       string
	ClientName string
	Year       int
}

// Builder renders attestations. Construct with NewBuilder; the zero value is
// not usable.
type Builder struct {
	doc        config.Document
	rep        config.Representative
	res        config.Resources
	dateFormat string
	log        *zap.Logger
	now        func() time.Time
}

// NewBuilder returns a Builder bound to the given styling, representative
// identity and static resources.
func NewBuilder(cfg config.Config, log *zap.Logger) *Builder {
	return &Builder{
		doc:        cfg.Document,
		rep:        cfg.Representative,
		res:        cfg.Resources,
		dateFormat: cfg.Defaults.DateFormat,
		log:        log,
		now:        time.Now,
	}
}

// BuildAll renders one certificate per group into outputDir. Groups that fail
// are reported through the sink and skipped.
func (b *Builder) BuildAll(groups []record.Group, outputDir string, sink diag.Sink) []Artifact {
	artifacts := make([]Artifact, 0, len(groups))
	for i, group := range groups {
		art, err := b.Build(group, i+1, outputDir)
		if err != nil {
			sink.Emit(diag.Event{
				Kind:   diag.KindBuildFailure,
				SIRET:  group.SIRET,
				Reason: "certificate build failed",
				Err:    err,
			})
			continue
		}
		artifacts = append(artifacts, art)
	}
	return artifacts
}

// Build renders the certificate for one group. seq is the 1-based position of
// the group among all groups of the run and becomes the filename prefix.
func (b *Builder) Build(group record.Group, seq int, outputDir string) (Artifact, error) {
	if len(group.Records) == 0 {
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: fmt.Errorf("empty group")}
	}
	head := group.Records[0]
	year := b.declarationYear(group)

	w := docx.New().WithDefaultTheme()

	b.addLogo(w)
	b.addClientHeader(w, head)
	b.addTitle(w)
	b.addLegalReference(w)
	b.addRepresentative(w)
	b.addAttestation(w, head, year)
	if err := b.addBeneficiaryTable(w, group); err != nil {
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: err}
	}
	b.addFooter(w)

	name := fmt.Sprintf("%d_Attestation DOETH_%d_%s.docx", seq, year, utils.SanitizeFileName(head.ClientName))
	path := filepath.Join(outputDir, name)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: err}
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, &BuildError{SIRET: group.SIRET, Err: err}
	}

	b.log.Debug("certificate written",
		zap.String("siret", group.SIRET),
		zap.String("path", path),
		zap.Int("beneficiaries", len(group.Records)))

	return Artifact{
		SIRET:      group.SIRET,
		Seq:        seq,
		Path:       path,
		ClientName: head.ClientName,
		Year:       year,
	}, nil
}

// declarationYear is taken from the records; certificates for data without a
// year fall back to the previous civil year.
func (b *Builder) declarationYear(group record.Group) int {
	if y := group.Records[0].DeclarationYear; y > 0 {
		return y
	}
	return b.now().Year() - 1
}

func (b *Builder) addLogo(w *docx.Docx) {
	if !utils.FileExists(b.res.LogoPath) {
		b.log.Warn("logo not found, letterhead skipped", zap.String("path", b.res.LogoPath))
		return
	}
	p := w.AddParagraph().Justification("start")
	if _, err := p.AddInlineDrawingFrom(b.res.LogoPath); err != nil {
		b.log.Warn("failed to embed logo", zap.Error(err))
	}
}

// addClientHeader writes the client address block, one paragraph per line.
// Raw newlines inside a text run are not rendered as breaks by Word.
func (b *Builder) addClientHeader(w *docx.Docx, head record.OrderedRecord) {
	lines := []string{head.ClientName, head.ClientAddress, head.ClientPostalCode, head.ClientCity}
	for _, line := range lines {
		if line == "" {
			continue
		}
		p := w.AddParagraph().Justification("end")
		p.AddText(line).Size(b.halfPoints(b.doc.FontSize)).Bold()
	}
}

func (b *Builder) addTitle(w *docx.Docx) {
	w.AddParagraph()
	p := w.AddParagraph().Justification("center")
	p.AddText(b.doc.Title).Size(b.halfPoints(b.doc.FontSize + 2)).Bold()
}

func (b *Builder) addLegalReference(w *docx.Docx) {
	w.AddParagraph()
	w.AddParagraph().AddText(b.doc.LegalReference).Size(b.halfPoints(b.doc.FontSize))
}

func (b *Builder) addRepresentative(w *docx.Docx) {
	w.AddParagraph()
	lines := []string{
		fmt.Sprintf("Je soussigné, %s", b.rep.Name),
		"Représentant légal de l'entreprise de travail temporaire située au",
		b.rep.Address,
		fmt.Sprintf("SIRET : %s", b.rep.SIRET),
	}
	for _, line := range lines {
		w.AddParagraph().AddText(line).Size(b.halfPoints(b.doc.FontSize))
	}
}

func (b *Builder) addAttestation(w *docx.Docx, head record.OrderedRecord, year int) {
	w.AddParagraph()
	w.AddParagraph().AddText("Atteste que").Size(b.halfPoints(b.doc.FontSize))

	w.AddParagraph().AddText(fmt.Sprintf("Nom client : %s", head.ClientName)).
		Size(b.halfPoints(b.doc.FontSize)).Bold()
	w.AddParagraph().AddText(fmt.Sprintf("SIRET : %s", head.SIRET)).
		Size(b.halfPoints(b.doc.FontSize)).Bold()

	w.AddParagraph()
	w.AddParagraph().AddText(fmt.Sprintf(b.doc.ExplanationText, year)).Size(b.halfPoints(b.doc.FontSize))
}

var tableHeaders = []string{
	"REGROUPEMENT", "SIRET", "PRENOM", "NOM", "QUALIFICATION",
	"ETP_MAJORE", "Nombre d'heures", "ETP annuelle",
}

func (b *Builder) addBeneficiaryTable(w *docx.Docx, group record.Group) error {
	w.AddParagraph()
	rows := len(group.Records) + 2 // header + beneficiaries + totals
	tbl := w.AddTable(rows, len(tableHeaders), int64(b.doc.TableWidthTwips), nil)
	if tbl == nil || len(tbl.TableRows) != rows {
		return fmt.Errorf("table allocation failed")
	}
	sz := b.halfPoints(b.doc.TableFontSize)

	for j, header := range tableHeaders {
		p := tbl.TableRows[0].TableCells[j].AddParagraph().Justification("center")
		p.AddText(header).Size(sz).Bold().Shade("clear", "auto", headerShade)
	}

	for i, rec := range group.Records {
		cells := tbl.TableRows[i+1].TableCells
		values := []string{
			rec.GroupLabel,
			rec.SIRET,
			rec.FirstName,
			rec.LastName,
			rec.Qualification,
			process.MajoredLabel(rec.Majored),
			measureText(rec.WorkedHours),
			fteText(rec.AnnualFTE),
		}
		for j, v := range values {
			p := cells[j].AddParagraph()
			if j >= 6 {
				p.Justification("end")
			}
			p.AddText(v).Size(sz)
		}
	}

	totals := tbl.TableRows[rows-1].TableCells
	label := totals[0].AddParagraph().Justification("end")
	label.AddText("Total d'unités bénéficiaires").Size(sz).Bold()
	hours := totals[len(tableHeaders)-2].AddParagraph().Justification("end")
	hours.AddText(measureText(group.TotalHours())).Size(sz).Bold()
	fte := totals[len(tableHeaders)-1].AddParagraph().Justification("center")
	fte.AddText(fteText(group.TotalFTE())).Size(sz).Bold()

	return nil
}

func (b *Builder) addFooter(w *docx.Docx) {
	w.AddParagraph()
	date := b.now().Format(b.dateFormat)
	w.AddParagraph().AddText(fmt.Sprintf("Fait à %s, le %s", b.doc.City, date)).Size(b.halfPoints(b.doc.FontSize))

	w.AddParagraph()
	w.AddParagraph().AddText("Le représentant légal,").Size(b.halfPoints(b.doc.FontSize))
	w.AddParagraph()

	if !utils.FileExists(b.res.SignaturePath) {
		b.log.Warn("signature image not found", zap.String("path", b.res.SignaturePath))
		return
	}
	p := w.AddParagraph().Justification("end")
	if _, err := p.AddInlineDrawingFrom(b.res.SignaturePath); err != nil {
		b.log.Warn("failed to embed signature", zap.Error(err))
	}
}

// halfPoints converts a point size to the OOXML half-point string form.
func (b *Builder) halfPoints(pt int) string {
	return strconv.Itoa(pt * 2)
}

// fteText renders an FTE cell with two decimals. NaN values can come back
// from snapshot files touched by spreadsheet tools; they render empty, never
// as a literal token.
func fteText(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// measureText renders an hours cell in shortest exact form, with the same
// NaN guard as fteText.
func measureText(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
