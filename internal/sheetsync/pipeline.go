// Package sheetsync reconciles roster rows exported from a spreadsheet into
// the student store: it fetches the raw matrix, repairs collapsed rows, maps
// heterogeneous columns onto the fixed schema, deduplicates against both the
// store and the current run, and commits accepted rows in bounded batches
// with per-row diagnostics.
package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zimi2002/qr-system/internal/students"
)

// ErrEmptySource is fatal: the sheet fetch returned zero rows.
var ErrEmptySource = errors.New("no data found in sheet")

var (
	syncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrsystem_sync_runs_total",
		Help: "Completed sync pipeline runs.",
	})
	syncRowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrsystem_sync_rows_inserted_total",
		Help: "Roster rows inserted by sync runs.",
	})
	syncRowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrsystem_sync_rows_skipped_total",
		Help: "Roster rows skipped by sync runs.",
	})
	syncRowErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrsystem_sync_row_errors_total",
		Help: "Roster rows lost to failed insert batches.",
	})
)

// SheetFetcher retrieves the raw cell matrix.
type SheetFetcher interface {
	Fetch(ctx context.Context, sheetID, cellRange string) ([][]string, error)
}

// StudentStore is the subset of the students repository the pipeline needs.
type StudentStore interface {
	ListTokens(ctx context.Context) ([]string, error)
	InsertBatch(ctx context.Context, batch []students.Student) (int, error)
}

// Pipeline runs one sheet-to-store reconciliation per invocation. Runs are
// independent and hold no state between invocations.
type Pipeline struct {
	fetcher   SheetFetcher
	store     StudentStore
	batchSize int
}

// NewPipeline creates a pipeline committing in batches of batchSize rows.
func NewPipeline(fetcher SheetFetcher, store StudentStore, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Pipeline{fetcher: fetcher, store: store, batchSize: batchSize}
}

// Run executes the pipeline. The existing-token snapshot is read once up
// front; an external write between that read and the batch commits can let a
// duplicate through, which the conflict-ignoring insert then drops silently.
// Fatal errors (unreachable source, empty sheet, missing qr_token column)
// return a nil report; per-row and per-batch failures are recorded in the
// report instead.
func (p *Pipeline) Run(ctx context.Context, sheetID, cellRange string) (*Report, error) {
	runID := uuid.NewString()[:8]

	rows, err := p.fetcher.Fetch(ctx, sheetID, cellRange)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}

	cols, err := MapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	tokens, err := p.store.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing tokens: %w", err)
	}

	filter := NewFilter(cols, tokens)
	rb := newReportBuilder()
	var accepted []students.Student

	for i, row := range rows[1:] {
		rowNumber := i + 2 // 1-based, counting the header

		if len(row) > 0 {
			if fixed, ok := repairCollapsedRow(row, cols); ok && len(fixed) >= cols.Width {
				row = fixed
			}
		}

		candidate, skipped := filter.Evaluate(row, rowNumber)
		if skipped != nil {
			rb.addSkip(skipped)
			continue
		}
		accepted = append(accepted, *candidate)
	}

	for start := 0; start < len(accepted); start += p.batchSize {
		end := start + p.batchSize
		if end > len(accepted) {
			end = len(accepted)
		}
		chunk := accepted[start:end]
		batchNo := start/p.batchSize + 1

		inserted, err := p.store.InsertBatch(ctx, chunk)
		if err != nil {
			detail := ErrorDetail{Batch: batchNo, Error: err.Error(), BatchSize: len(chunk)}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				detail.Code = pgErr.Code
				detail.Hint = pgErr.Hint
			}
			rb.addBatchError(detail)
			log.Printf("sync %s: batch %d insert failed: %v", runID, batchNo, err)
			continue
		}

		rb.addInserted(inserted)
		if inserted < len(chunk) {
			dup := len(chunk) - inserted
			rb.addConflictSkips(dup)
			log.Printf("sync %s: batch %d inserted %d, skipped %d duplicates", runID, batchNo, inserted, dup)
		}
	}

	processed := len(accepted) + rb.reasonCount(SkipMissingRequired)
	report := rb.build(len(rows)-1, processed)

	syncRuns.Inc()
	syncRowsInserted.Add(float64(report.Stats.Inserted))
	syncRowsSkipped.Add(float64(report.Stats.Skipped))
	syncRowErrors.Add(float64(report.Stats.Errors))

	log.Printf("sync %s: %d rows, %d inserted, %d skipped, %d errors",
		runID, report.Stats.TotalRows, report.Stats.Inserted, report.Stats.Skipped, report.Stats.Errors)
	return report, nil
}

// IsUserError reports whether a fatal pipeline error was caused by the sheet
// contents rather than the transport or the store.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptySource) || errors.Is(err, ErrMissingQRColumn)
}
