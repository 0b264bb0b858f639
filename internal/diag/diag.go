// =============================================================================
// DOETH Attestation Generator - Diagnostics
// =============================================================================
//
// The pipeline stages never log directly and never abort on a single bad row
// or document. Instead every recoverable incident is converted into a
// structured Event and handed to a caller-supplied Sink. The CLI wires a zap
// backed sink; tests use the Collector.
//
// =============================================================================

package diag

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	// KindRowDropped is emitted by the normalizer for each rejected row.
	KindRowDropped Kind = "row_dropped"

	// KindInconsistency is emitted by the aggregator when records merged
	// under one key disagree on the declaration year.
	KindInconsistency Kind = "aggregation_inconsistency"

	// KindNegativeMeasure is emitted by the normalizer when a numeric cell
	// holds a negative value; the value is clamped to zero and the row kept.
	KindNegativeMeasure Kind = "negative_measure"

	// KindBuildFailure is emitted when one group's certificate cannot be
	// built; remaining groups continue.
	KindBuildFailure Kind = "build_failure"

	// KindConversionFailure is emitted when one document cannot be
	// converted; the batch continues.
	KindConversionFailure Kind = "conversion_failure"

	// KindBatchSummary is emitted once per conversion batch with the final
	// converted/failed/skipped counts.
	KindBatchSummary Kind = "batch_summary"
)

// Event is one structured diagnostic.
type Event struct {
	Kind     Kind
	Row      int    // 1-based source row, when row-scoped
	SIRET    string // entity, when entity-scoped
	Document string // artifact path or name, when document-scoped
	Reason   string
	Value    string // offending value, when relevant
	Err      error
	Counts   map[string]int // batch summaries only
}

// Sink receives diagnostic events. Implementations must be safe for use from
// a single goroutine; the pipeline is sequential by design.
type Sink interface {
	Emit(Event)
}

// =============================================================================
// ROW-LEVEL ERROR TAXONOMY
// =============================================================================

// DropReason tells why the normalizer rejected a row.
type DropReason string

const (
	NonNumericIdentifier DropReason = "non_numeric_identifier"
	MissingRequiredField DropReason = "missing_required_field"
)

// ValidationError is a recoverable row-level rejection. The row is dropped,
// the run continues.
type ValidationError struct {
	Reason DropReason
	Field  string
	Value  string
	Row    int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s (%s=%q)", e.Row, e.Reason, e.Field, e.Value)
}

// =============================================================================
// SINKS
// =============================================================================

// ZapSink routes diagnostics to a zap logger. Row and document level events
// log at warn, batch summaries at info.
type ZapSink struct {
	Log *zap.Logger
}

func (s *ZapSink) Emit(ev Event) {
	fields := []zap.Field{zap.String("kind", string(ev.Kind))}
	if ev.Row > 0 {
		fields = append(fields, zap.Int("row", ev.Row))
	}
	if ev.SIRET != "" {
		fields = append(fields, zap.String("siret", ev.SIRET))
	}
	if ev.Document != "" {
		fields = append(fields, zap.String("document", ev.Document))
	}
	if ev.Value != "" {
		fields = append(fields, zap.String("value", ev.Value))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	for k, v := range ev.Counts {
		fields = append(fields, zap.Int(k, v))
	}

	switch ev.Kind {
	case KindBatchSummary:
		s.Log.Info(ev.Reason, fields...)
	default:
		s.Log.Warn(ev.Reason, fields...)
	}
}

// Collector records every event in memory. Used by tests and by the pipeline
// to build the end-of-run summary.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// CountByKind tallies collected events per kind.
func (c *Collector) CountByKind(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Tee duplicates events to several sinks.
type Tee []Sink

func (t Tee) Emit(ev Event) {
	for _, s := range t {
		s.Emit(ev)
	}
}
