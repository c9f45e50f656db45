package sheetsync

import (
	"strings"

	"github.com/zimi2002/qr-system/internal/students"
)

// SkipReason classifies why a row was rejected. Exactly one is attached per
// rejected row.
type SkipReason string

const (
	SkipEmptyRow         SkipReason = "empty_row"
	SkipEmptyQRToken     SkipReason = "empty_qr_token"
	SkipExistingInDB     SkipReason = "existing_in_db"
	SkipDuplicateInSheet SkipReason = "duplicate_in_sheet"
	SkipMissingRequired  SkipReason = "missing_required_fields"
)

// SkippedRow is the diagnostic snapshot for one rejected row. Field pointers
// are nil when the corresponding column is absent from the sheet.
type SkippedRow struct {
	RowNumber     int        `json:"row_number"`
	Reason        SkipReason `json:"reason"`
	Username      *string    `json:"username"`
	Name          *string    `json:"name"`
	QRToken       *string    `json:"qr_token"`
	Batch         *string    `json:"batch"`
	MissingFields []string   `json:"missing_fields,omitempty"`
}

// Filter applies the three-tier dedup/validation policy. The existing-token
// set is a snapshot taken at run start; seen grows as rows are accepted.
type Filter struct {
	cols     ColumnIndex
	existing map[string]struct{}
	seen     map[string]struct{}
}

// NewFilter builds a filter over a header mapping and the store's current
// token snapshot.
func NewFilter(cols ColumnIndex, existingTokens []string) *Filter {
	existing := make(map[string]struct{}, len(existingTokens))
	for _, t := range existingTokens {
		existing[t] = struct{}{}
	}
	return &Filter{
		cols:     cols,
		existing: existing,
		seen:     make(map[string]struct{}),
	}
}

// Evaluate classifies one data row. rowNumber is 1-based and counts the
// header, matching what a user sees in the sheet. Exactly one of the returns
// is non-nil.
func (f *Filter) Evaluate(row []string, rowNumber int) (*students.Student, *SkippedRow) {
	if len(row) == 0 {
		return nil, f.skip(row, rowNumber, SkipEmptyRow)
	}

	token := strings.TrimSpace(cell(row, f.cols.QRToken))
	if token == "" && row[0] != "" {
		row, token = recoverFromCollapsed(row, f.cols)
	}
	if token == "" {
		return nil, f.skip(row, rowNumber, SkipEmptyQRToken)
	}
	if _, ok := f.existing[token]; ok {
		return nil, f.skip(row, rowNumber, SkipExistingInDB)
	}
	if _, ok := f.seen[token]; ok {
		return nil, f.skip(row, rowNumber, SkipDuplicateInSheet)
	}

	username := strings.TrimSpace(cell(row, f.cols.Username))
	name := strings.TrimSpace(cell(row, f.cols.Name))
	if username == "" || name == "" {
		d := f.skip(row, rowNumber, SkipMissingRequired)
		d.Username = nonEmpty(username)
		d.Name = nonEmpty(name)
		d.QRToken = &token
		if username == "" {
			d.MissingFields = append(d.MissingFields, "username")
		}
		if name == "" {
			d.MissingFields = append(d.MissingFields, "name")
		}
		return nil, d
	}

	f.seen[token] = struct{}{}

	status := strings.TrimSpace(cell(row, f.cols.Status))
	if status == "" {
		status = "inactive"
	}

	st := &students.Student{
		Username: username,
		Name:     name,
		Batch:    optCell(row, f.cols.Batch),
		Mentor:   optCell(row, f.cols.Mentor),
		QRToken:  token,
		Status:   status,
		InTime:   normalizedCell(cell(row, f.cols.InTime)),
		LastScan: normalizedCell(cell(row, f.cols.LastScan)),
	}
	return st, nil
}

// skip builds the base diagnostic snapshot, best-effort: each field is read
// independently even when the row never reached full validation.
func (f *Filter) skip(row []string, rowNumber int, reason SkipReason) *SkippedRow {
	return &SkippedRow{
		RowNumber: rowNumber,
		Reason:    reason,
		Username:  optCell(row, f.cols.Username),
		Name:      optCell(row, f.cols.Name),
		QRToken:   optCell(row, f.cols.QRToken),
		Batch:     optCell(row, f.cols.Batch),
	}
}

// optCell returns the trimmed cell value, or nil when the column is absent.
func optCell(row []string, col int) *string {
	if col == absent {
		return nil
	}
	v := strings.TrimSpace(cell(row, col))
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizedCell(raw string) *string {
	tv := NormalizeTime(raw)
	if tv == nil {
		return nil
	}
	return &tv.Value
}
