package sheetsync

import (
	"errors"
	"strings"
)

// absent marks a semantic column that is not present in the header row.
const absent = -1

// ErrMissingQRColumn is fatal: without a qr_token column no row can be keyed.
var ErrMissingQRColumn = errors.New("qr_token column not found in sheet")

// ColumnIndex maps the fixed roster schema onto header positions. Built once
// from the header row; every field except QRToken may be absent.
type ColumnIndex struct {
	Username int
	Name     int
	Batch    int
	Mentor   int
	QRToken  int
	Status   int
	InTime   int
	LastScan int
	Width    int
}

// MapHeader resolves header cells by exact, case-sensitive name match. Cells
// are trimmed before matching; the first occurrence of a name wins.
func MapHeader(header []string) (ColumnIndex, error) {
	cols := ColumnIndex{
		Username: absent,
		Name:     absent,
		Batch:    absent,
		Mentor:   absent,
		QRToken:  absent,
		Status:   absent,
		InTime:   absent,
		LastScan: absent,
		Width:    len(header),
	}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Username":
			if cols.Username == absent {
				cols.Username = i
			}
		case "Name":
			if cols.Name == absent {
				cols.Name = i
			}
		case "Batch":
			if cols.Batch == absent {
				cols.Batch = i
			}
		case "Mentor Name":
			if cols.Mentor == absent {
				cols.Mentor = i
			}
		case "qr_token":
			if cols.QRToken == absent {
				cols.QRToken = i
			}
		case "sts":
			if cols.Status == absent {
				cols.Status = i
			}
		case "in_time":
			if cols.InTime == absent {
				cols.InTime = i
			}
		case "last_scan":
			if cols.LastScan == absent {
				cols.LastScan = i
			}
		}
	}
	if cols.QRToken == absent {
		return cols, ErrMissingQRColumn
	}
	return cols, nil
}

// cell reads a column from a possibly short row; absent columns and missing
// trailing cells read as empty.
func cell(row []string, col int) string {
	if col == absent || col >= len(row) {
		return ""
	}
	return row[col]
}
