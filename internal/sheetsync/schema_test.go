package sheetsync

import (
	"errors"
	"testing"
)

// rosterHeader is the layout the export usually carries.
var rosterHeader = []string{"Username", "Name", "Phone Number", "Batch", "Mentor Name", "qr_token", "url", "sts", "in_time", "last_scan"}

func TestMapHeader(t *testing.T) {
	cols, err := MapHeader(rosterHeader)
	if err != nil {
		t.Fatalf("MapHeader() error = %v", err)
	}

	want := ColumnIndex{Username: 0, Name: 1, Batch: 3, Mentor: 4, QRToken: 5, Status: 7, InTime: 8, LastScan: 9, Width: 10}
	if cols != want {
		t.Errorf("MapHeader() = %+v, want %+v", cols, want)
	}
}

func TestMapHeaderOptionalColumnsAbsent(t *testing.T) {
	cols, err := MapHeader([]string{"qr_token", "Name"})
	if err != nil {
		t.Fatalf("MapHeader() error = %v", err)
	}
	if cols.QRToken != 0 || cols.Name != 1 {
		t.Errorf("unexpected mapping: %+v", cols)
	}
	for name, got := range map[string]int{
		"Username": cols.Username,
		"Batch":    cols.Batch,
		"Mentor":   cols.Mentor,
		"Status":   cols.Status,
		"InTime":   cols.InTime,
		"LastScan": cols.LastScan,
	} {
		if got != absent {
			t.Errorf("%s = %d, want absent", name, got)
		}
	}
}

func TestMapHeaderIsCaseSensitive(t *testing.T) {
	if _, err := MapHeader([]string{"QR_TOKEN", "username", "name"}); !errors.Is(err, ErrMissingQRColumn) {
		t.Fatalf("MapHeader() error = %v, want ErrMissingQRColumn", err)
	}
}

func TestMapHeaderMissingQRToken(t *testing.T) {
	if _, err := MapHeader([]string{"Username", "Name"}); !errors.Is(err, ErrMissingQRColumn) {
		t.Fatalf("MapHeader() error = %v, want ErrMissingQRColumn", err)
	}
}

func TestCellShortRow(t *testing.T) {
	row := []string{"a", "b"}
	if got := cell(row, 5); got != "" {
		t.Errorf("cell() past end = %q, want empty", got)
	}
	if got := cell(row, absent); got != "" {
		t.Errorf("cell() absent column = %q, want empty", got)
	}
	if got := cell(row, 1); got != "b" {
		t.Errorf("cell() = %q, want b", got)
	}
}
