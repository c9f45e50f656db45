package sheetsync

import "fmt"

const (
	maxSkippedRowDetails = 100
	maxErrorDetails      = 10
)

// Stats summarizes one sync run.
type Stats struct {
	TotalRows   int                `json:"total_rows"`
	Processed   int                `json:"processed"`
	Inserted    int                `json:"inserted"`
	Skipped     int                `json:"skipped"`
	Errors      int                `json:"errors"`
	SkipReasons map[SkipReason]int `json:"skip_reasons"`
}

// ErrorDetail records one failed insert batch.
type ErrorDetail struct {
	Batch     int    `json:"batch"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Hint      string `json:"hint,omitempty"`
	BatchSize int    `json:"batch_size"`
}

// Report is the full outcome of a sync run, emitted only after every batch
// has been attempted.
type Report struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	Stats             Stats         `json:"stats"`
	SkippedRows       []SkippedRow  `json:"skipped_rows,omitempty"`
	SkippedRowsCount  int           `json:"skipped_rows_count,omitempty"`
	Note              string        `json:"note,omitempty"`
	ErrorDetails      []ErrorDetail `json:"error_details,omitempty"`
	TotalErrorBatches int           `json:"total_error_batches,omitempty"`
}

// reportBuilder accumulates counts and capped detail lists as the pipeline
// runs.
type reportBuilder struct {
	skipReasons  map[SkipReason]int
	skipped      int
	skippedRows  []SkippedRow
	inserted     int
	errors       int
	errorDetails []ErrorDetail
}

func newReportBuilder() *reportBuilder {
	return &reportBuilder{
		skipReasons: map[SkipReason]int{
			SkipEmptyRow:         0,
			SkipEmptyQRToken:     0,
			SkipExistingInDB:     0,
			SkipDuplicateInSheet: 0,
			SkipMissingRequired:  0,
		},
	}
}

func (b *reportBuilder) addSkip(d *SkippedRow) {
	b.skipped++
	b.skipReasons[d.Reason]++
	if len(b.skippedRows) < maxSkippedRowDetails {
		b.skippedRows = append(b.skippedRows, *d)
	}
}

// addConflictSkips attributes store-side conflict shortfalls to skipped.
func (b *reportBuilder) addConflictSkips(n int) {
	b.skipped += n
}

func (b *reportBuilder) addInserted(n int) {
	b.inserted += n
}

func (b *reportBuilder) addBatchError(d ErrorDetail) {
	b.errors += d.BatchSize
	b.errorDetails = append(b.errorDetails, d)
}

func (b *reportBuilder) reasonCount(r SkipReason) int {
	return b.skipReasons[r]
}

func (b *reportBuilder) build(totalRows, processed int) *Report {
	rep := &Report{
		Success: b.errors == 0,
		Message: "Sync completed",
		Stats: Stats{
			TotalRows:   totalRows,
			Processed:   processed,
			Inserted:    b.inserted,
			Skipped:     b.skipped,
			Errors:      b.errors,
			SkipReasons: b.skipReasons,
		},
	}
	if b.errors > 0 {
		rep.Message = "Sync completed with errors"
	}
	if len(b.skippedRows) > 0 {
		rep.SkippedRows = b.skippedRows
		rep.SkippedRowsCount = len(b.skippedRows)
		if b.skipped > maxSkippedRowDetails {
			rep.Note = fmt.Sprintf("Showing first %d of %d skipped rows", maxSkippedRowDetails, b.skipped)
		}
	}
	if len(b.errorDetails) > 0 {
		details := b.errorDetails
		if len(details) > maxErrorDetails {
			details = details[:maxErrorDetails]
		}
		rep.ErrorDetails = details
		rep.TotalErrorBatches = len(b.errorDetails)
	}
	return rep
}
