package students

import (
	"context"
	"errors"
	"time"
)

// Student is the persisted roster entity. in_time and last_scan are strings
// because the sheet sync stores unparseable timestamps verbatim.
type Student struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Batch     *string   `json:"batch"`
	Mentor    *string   `json:"mentor"`
	QRToken   string    `json:"qr_token"`
	Status    string    `json:"sts"`
	InTime    *string   `json:"in_time"`
	LastScan  *string   `json:"last_scan"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ErrNotFound is returned when a qr_token does not match any student.
var ErrNotFound = errors.New("QR token not found")

// Store is the subset of Repository the service needs.
type Store interface {
	GetByToken(ctx context.Context, qrToken string) (*Student, error)
	UpdateScan(ctx context.Context, qrToken, status, lastScan string, inTime *string) (*Student, error)
	DeleteAll(ctx context.Context) (int, error)
}

// ScanResult is the outcome of activating a QR token.
type ScanResult struct {
	Student          *Student `json:"data"`
	IsDuplicateScan  bool     `json:"is_duplicate_scan"`
	PreviousScanTime *string  `json:"previous_scan_time,omitempty"`
}

// Service implements the single-record scan operations.
type Service struct {
	store      Store
	scanWindow time.Duration
	now        func() time.Time
}

// NewService creates a service. scanWindow bounds duplicate-scan detection.
func NewService(store Store, scanWindow time.Duration) *Service {
	if scanWindow <= 0 {
		scanWindow = 5 * time.Minute
	}
	return &Service{store: store, scanWindow: scanWindow, now: time.Now}
}

// GetStudent looks up a student by QR token.
func (s *Service) GetStudent(ctx context.Context, qrToken string) (*Student, error) {
	st, err := s.store.GetByToken(ctx, qrToken)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotFound
	}
	return st, nil
}

// Activate marks a scan: sts goes active and last_scan is always refreshed.
// in_time is only set on the first activation. A scan within scanWindow of
// the previous one is flagged as a duplicate, with the prior scan time.
func (s *Service) Activate(ctx context.Context, qrToken string) (*ScanResult, error) {
	current, err := s.store.GetByToken(ctx, qrToken)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	nowISO := now.Format(time.RFC3339)

	var previousScan *string
	isDuplicate := false
	if current.LastScan != nil && *current.LastScan != "" {
		if last, perr := time.Parse(time.RFC3339, *current.LastScan); perr == nil {
			prev := last.UTC().Format(time.RFC3339)
			previousScan = &prev
			if now.Sub(last) < s.scanWindow {
				isDuplicate = true
			}
		}
	}

	var inTime *string
	if current.Status == "inactive" || current.InTime == nil || *current.InTime == "" {
		inTime = &nowISO
	}

	updated, err := s.store.UpdateScan(ctx, qrToken, "active", nowISO, inTime)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	res := &ScanResult{Student: updated, IsDuplicateScan: isDuplicate}
	if isDuplicate {
		res.PreviousScanTime = previousScan
	}
	return res, nil
}

// DeleteAll wipes the roster and returns the number of deleted records.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	return s.store.DeleteAll(ctx)
}
