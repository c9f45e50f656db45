package sheetsync

import (
	"reflect"
	"testing"
)

func newTestFilter(t *testing.T, existing ...string) *Filter {
	t.Helper()
	return NewFilter(mustCols(t), existing)
}

func dataRow(cols ColumnIndex, username, name, batch, mentor, token, status string) []string {
	row := make([]string, cols.Width)
	row[cols.Username] = username
	row[cols.Name] = name
	row[cols.Batch] = batch
	row[cols.Mentor] = mentor
	row[cols.QRToken] = token
	row[cols.Status] = status
	return row
}

func TestEvaluateAccepts(t *testing.T) {
	f := newTestFilter(t)
	cols := mustCols(t)

	st, skipped := f.Evaluate(dataRow(cols, " alice ", "Alice A", "2024", "Mia", "tok-1", ""), 2)
	if skipped != nil {
		t.Fatalf("Evaluate() skipped: %+v", skipped)
	}
	if st.Username != "alice" || st.Name != "Alice A" || st.QRToken != "tok-1" {
		t.Errorf("unexpected candidate: %+v", st)
	}
	if st.Status != "inactive" {
		t.Errorf("status = %q, want default inactive", st.Status)
	}
	if st.Batch == nil || *st.Batch != "2024" {
		t.Errorf("batch = %v, want 2024", st.Batch)
	}
}

func TestEvaluateSkipTiers(t *testing.T) {
	cols := mustCols(t)
	f := newTestFilter(t, "tok-known")

	tests := []struct {
		name string
		row  []string
		want SkipReason
	}{
		{"empty row", []string{}, SkipEmptyRow},
		{"empty qr token", dataRow(cols, "bob", "Bob B", "", "", "", ""), SkipEmptyQRToken},
		{"existing in db", dataRow(cols, "bob", "Bob B", "", "", "tok-known", ""), SkipExistingInDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, skipped := f.Evaluate(tt.row, 2)
			if st != nil {
				t.Fatalf("Evaluate() accepted, want skip %s", tt.want)
			}
			if skipped.Reason != tt.want {
				t.Errorf("reason = %s, want %s", skipped.Reason, tt.want)
			}
		})
	}
}

func TestEvaluateDuplicateInSheet(t *testing.T) {
	cols := mustCols(t)
	f := newTestFilter(t)

	if _, skipped := f.Evaluate(dataRow(cols, "a", "A", "", "", "tok-dup", ""), 2); skipped != nil {
		t.Fatalf("first occurrence skipped: %+v", skipped)
	}
	_, skipped := f.Evaluate(dataRow(cols, "b", "B", "", "", "tok-dup", ""), 3)
	if skipped == nil || skipped.Reason != SkipDuplicateInSheet {
		t.Fatalf("second occurrence: got %+v, want duplicate_in_sheet", skipped)
	}
	if skipped.RowNumber != 3 {
		t.Errorf("row number = %d, want 3", skipped.RowNumber)
	}
}

func TestEvaluateMissingRequiredFields(t *testing.T) {
	cols := mustCols(t)
	f := newTestFilter(t)

	_, skipped := f.Evaluate(dataRow(cols, "carol", "  ", "2024", "", "tok-2", ""), 4)
	if skipped == nil || skipped.Reason != SkipMissingRequired {
		t.Fatalf("got %+v, want missing_required_fields", skipped)
	}
	if !reflect.DeepEqual(skipped.MissingFields, []string{"name"}) {
		t.Errorf("missing_fields = %v, want [name]", skipped.MissingFields)
	}
	if skipped.QRToken == nil || *skipped.QRToken != "tok-2" {
		t.Errorf("qr_token diagnostic = %v, want tok-2", skipped.QRToken)
	}
	if skipped.Name != nil {
		t.Errorf("name diagnostic = %v, want nil", skipped.Name)
	}

	// A rejected row must not consume the token.
	if _, s := f.Evaluate(dataRow(cols, "carol", "Carol C", "", "", "tok-2", ""), 5); s != nil {
		t.Errorf("valid retry of the same token skipped: %+v", s)
	}
}

func TestEvaluateRecoversTokenFromCollapsedCell(t *testing.T) {
	cols := mustCols(t)
	f := newTestFilter(t)

	row := make([]string, cols.Width)
	row[0] = "erin,Erin E,555,2024,Mia,tok-3,,active"

	st, skipped := f.Evaluate(row, 2)
	if skipped != nil {
		t.Fatalf("Evaluate() skipped: %+v", skipped)
	}
	if st.QRToken != "tok-3" {
		t.Errorf("token = %q, want tok-3", st.QRToken)
	}
	if st.Username != "erin" || st.Name != "Erin E" || st.Status != "active" {
		t.Errorf("back-filled candidate wrong: %+v", st)
	}
}

func TestEvaluateTimestampLeniency(t *testing.T) {
	cols := mustCols(t)
	f := newTestFilter(t)

	row := dataRow(cols, "frank", "Frank F", "", "", "tok-4", "")
	row[cols.InTime] = "01/15/2024 09:30:00"
	row[cols.LastScan] = "definitely not a date"

	st, skipped := f.Evaluate(row, 2)
	if skipped != nil {
		t.Fatalf("Evaluate() skipped: %+v", skipped)
	}
	wantInTime := NormalizeTime("01/15/2024 09:30:00").Value
	if st.InTime == nil || *st.InTime != wantInTime {
		t.Fatalf("in_time = %v, want %q", st.InTime, wantInTime)
	}
	if st.LastScan == nil || *st.LastScan != "definitely not a date" {
		t.Errorf("last_scan = %v, want raw passthrough", st.LastScan)
	}
}
