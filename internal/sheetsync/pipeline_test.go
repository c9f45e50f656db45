package sheetsync

import (
	"context"
	"errors"
	"testing"

	"github.com/zimi2002/qr-system/internal/students"
)

type fakeFetcher struct {
	rows [][]string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, sheetID, cellRange string) ([][]string, error) {
	return f.rows, f.err
}

type fakeStore struct {
	tokens      []string
	batches     [][]students.Student
	failBatches map[int]error // 1-based batch number -> error
	shortfall   int           // pretend this many rows per batch hit conflicts
}

func (s *fakeStore) ListTokens(ctx context.Context) ([]string, error) {
	return s.tokens, nil
}

func (s *fakeStore) InsertBatch(ctx context.Context, batch []students.Student) (int, error) {
	s.batches = append(s.batches, batch)
	if err, ok := s.failBatches[len(s.batches)]; ok {
		return 0, err
	}
	inserted := len(batch) - s.shortfall
	if inserted < 0 {
		inserted = 0
	}
	return inserted, nil
}

func row(cells ...string) []string { return cells }

func TestRunEndToEnd(t *testing.T) {
	// Row 3 duplicates row 2's token, row 4 has an empty name.
	fetcher := &fakeFetcher{rows: [][]string{
		rosterHeader,
		row("alice", "Alice A", "555", "2024", "Mia", "tok-1", "", "", "", ""),
		row("bob", "Bob B", "555", "2024", "Mia", "tok-1", "", "", "", ""),
		row("carol", "", "555", "2024", "Mia", "tok-2", "", "", "", ""),
	}}
	store := &fakeStore{}

	rep, err := NewPipeline(fetcher, store, 50).Run(context.Background(), "sheet", "A1:Z1000")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !rep.Success {
		t.Error("Success = false, want true")
	}
	if rep.Stats.TotalRows != 3 {
		t.Errorf("total_rows = %d, want 3", rep.Stats.TotalRows)
	}
	if rep.Stats.Processed != 2 {
		t.Errorf("processed = %d, want 2", rep.Stats.Processed)
	}
	if rep.Stats.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", rep.Stats.Inserted)
	}
	if rep.Stats.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", rep.Stats.Skipped)
	}
	if rep.Stats.Errors != 0 {
		t.Errorf("errors = %d, want 0", rep.Stats.Errors)
	}
	if got := rep.Stats.SkipReasons[SkipDuplicateInSheet]; got != 1 {
		t.Errorf("duplicate_in_sheet = %d, want 1", got)
	}
	if got := rep.Stats.SkipReasons[SkipMissingRequired]; got != 1 {
		t.Errorf("missing_required_fields = %d, want 1", got)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 1 || store.batches[0][0].QRToken != "tok-1" {
		t.Errorf("unexpected writes: %+v", store.batches)
	}
}

func TestRunExistingTokensNeverReachWriter(t *testing.T) {
	fetcher := &fakeFetcher{rows: [][]string{
		rosterHeader,
		row("alice", "Alice A", "", "", "", "tok-old", "", "", "", ""),
		row("bob", "Bob B", "", "", "", "tok-new", "", "", "", ""),
	}}
	store := &fakeStore{tokens: []string{"tok-old"}}

	rep, err := NewPipeline(fetcher, store, 50).Run(context.Background(), "sheet", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := rep.Stats.SkipReasons[SkipExistingInDB]; got != 1 {
		t.Errorf("existing_in_db = %d, want 1", got)
	}
	for _, batch := range store.batches {
		for _, st := range batch {
			if st.QRToken == "tok-old" {
				t.Error("existing token reached the batch writer")
			}
		}
	}
}

func TestRunMissingQRColumnFailsBeforeData(t *testing.T) {
	fetcher := &fakeFetcher{rows: [][]string{
		{"Username", "Name"},
		row("alice", "Alice A"),
	}}
	store := &fakeStore{}

	_, err := NewPipeline(fetcher, store, 50).Run(context.Background(), "sheet", "")
	if !errors.Is(err, ErrMissingQRColumn) {
		t.Fatalf("Run() error = %v, want ErrMissingQRColumn", err)
	}
	if len(store.batches) != 0 {
		t.Error("store written despite missing qr_token column")
	}
}

func TestRunEmptySource(t *testing.T) {
	_, err := NewPipeline(&fakeFetcher{}, &fakeStore{}, 50).Run(context.Background(), "sheet", "")
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("Run() error = %v, want ErrEmptySource", err)
	}
}

func TestRunChunkFaultIsolation(t *testing.T) {
	rows := [][]string{rosterHeader}
	for _, tok := range []string{"t1", "t2", "t3", "t4", "t5"} {
		rows = append(rows, row("u-"+tok, "N "+tok, "", "", "", tok, "", "", "", ""))
	}
	fetcher := &fakeFetcher{rows: rows}
	store := &fakeStore{failBatches: map[int]error{1: errors.New("connection reset")}}

	rep, err := NewPipeline(fetcher, store, 2).Run(context.Background(), "sheet", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.batches) != 3 {
		t.Fatalf("attempted %d batches, want 3 (failure must not abort later chunks)", len(store.batches))
	}
	if rep.Stats.Errors != 2 {
		t.Errorf("errors = %d, want 2 (size of the failed chunk only)", rep.Stats.Errors)
	}
	if rep.Stats.Inserted != 3 {
		t.Errorf("inserted = %d, want 3", rep.Stats.Inserted)
	}
	if rep.Success {
		t.Error("Success = true, want false when batches failed")
	}
	if len(rep.ErrorDetails) != 1 || rep.ErrorDetails[0].Batch != 1 || rep.ErrorDetails[0].BatchSize != 2 {
		t.Errorf("error details = %+v", rep.ErrorDetails)
	}
	if rep.TotalErrorBatches != 1 {
		t.Errorf("total_error_batches = %d, want 1", rep.TotalErrorBatches)
	}
}

func TestRunConflictShortfallCountsAsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{rows: [][]string{
		rosterHeader,
		row("a", "A", "", "", "", "t1", "", "", "", ""),
		row("b", "B", "", "", "", "t2", "", "", "", ""),
	}}
	store := &fakeStore{shortfall: 1}

	rep, err := NewPipeline(fetcher, store, 50).Run(context.Background(), "sheet", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Stats.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", rep.Stats.Inserted)
	}
	if rep.Stats.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (store-side conflict shortfall)", rep.Stats.Skipped)
	}
	if rep.Stats.Errors != 0 {
		t.Errorf("errors = %d, want 0", rep.Stats.Errors)
	}
}

func TestRunRepairsCollapsedRows(t *testing.T) {
	fetcher := &fakeFetcher{rows: [][]string{
		rosterHeader,
		row("gina,Gina G,555,2024,Mia,tok-7,,active", ""),
	}}
	store := &fakeStore{}

	rep, err := NewPipeline(fetcher, store, 50).Run(context.Background(), "sheet", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Stats.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1, report: %+v", rep.Stats.Inserted, rep)
	}
	st := store.batches[0][0]
	if st.Username != "gina" || st.Name != "Gina G" || st.QRToken != "tok-7" || st.Status != "active" {
		t.Errorf("repaired candidate wrong: %+v", st)
	}
	if st.Batch == nil || *st.Batch != "2024" {
		t.Errorf("batch = %v, want 2024", st.Batch)
	}
}
