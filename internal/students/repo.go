package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists student records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListTokens returns every qr_token currently in the store. The sync pipeline
// snapshots this once per run.
func (r *Repository) ListTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT qr_token FROM students`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// InsertBatch inserts students in one statement, silently skipping rows whose
// qr_token already exists. Returns the number of rows actually inserted.
func (r *Repository) InsertBatch(ctx context.Context, batch []Student) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO students (username, name, batch, mentor, qr_token, sts, in_time, last_scan) VALUES `)
	args := make([]any, 0, len(batch)*8)
	for i, s := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, s.Username, s.Name, s.Batch, s.Mentor, s.QRToken, s.Status, s.InTime, s.LastScan)
	}
	sb.WriteString(` ON CONFLICT (qr_token) DO NOTHING RETURNING qr_token`)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	inserted := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, rows.Err()
}

// GetByToken returns a single student or nil when the token is unknown.
func (r *Repository) GetByToken(ctx context.Context, qrToken string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, name, batch, mentor, qr_token, sts, in_time, last_scan, created_at
		FROM students WHERE qr_token = $1
	`, strings.TrimSpace(qrToken))
	var s Student
	if err := row.Scan(&s.ID, &s.Username, &s.Name, &s.Batch, &s.Mentor, &s.QRToken, &s.Status, &s.InTime, &s.LastScan, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpdateScan sets the scan state for a student. inTime is only written when
// non-nil; last_scan and sts are always overwritten.
func (r *Repository) UpdateScan(ctx context.Context, qrToken, status, lastScan string, inTime *string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET sts = $2, last_scan = $3, in_time = COALESCE($4, in_time)
		WHERE qr_token = $1
		RETURNING id, username, name, batch, mentor, qr_token, sts, in_time, last_scan, created_at
	`, strings.TrimSpace(qrToken), status, lastScan, inTime)
	var s Student
	if err := row.Scan(&s.ID, &s.Username, &s.Name, &s.Batch, &s.Mentor, &s.QRToken, &s.Status, &s.InTime, &s.LastScan, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// DeleteAll removes every student record and reports how many were deleted.
func (r *Repository) DeleteAll(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// UpsertDevice ensures a scanner device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, device_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, deviceID, expiresAt)
	return err
}
