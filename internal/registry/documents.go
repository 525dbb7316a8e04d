package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/scanflow/internal/ocrlog"
)

// Document is one registry row.
type Document struct {
	ID            int64          `json:"id" yaml:"id"`
	CanonicalName string         `json:"canonical_name" yaml:"canonical_name"`
	OriginalName  string         `json:"original_name,omitempty" yaml:"original_name,omitempty"`
	HashOriginal  string         `json:"hash_original,omitempty" yaml:"hash_original,omitempty"`
	HashOCR       string         `json:"hash_ocr,omitempty" yaml:"hash_ocr,omitempty"`
	Status        Status         `json:"status" yaml:"status"`
	LastUpdate    time.Time      `json:"last_update" yaml:"last_update"`
	Metrics       ocrlog.Metrics `json:"metrics" yaml:"metrics"`
}

// Admission is the input to Admit.
type Admission struct {
	OriginalName  string
	CanonicalName string
	HashOriginal  string
	Status        Status
}

// LogEntry is one audit log line.
type LogEntry struct {
	ID            int64     `json:"id" yaml:"id"`
	CanonicalName string    `json:"canonical_name" yaml:"canonical_name"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	Message       string    `json:"message" yaml:"message"`
}

// Filter narrows List. A zero Filter returns every document.
type Filter struct {
	Status Status
}

const documentColumns = `id, canonical_name, original_name, hash_original, hash_ocr, status, last_update,
	ocr_pages, ocr_time_seconds, ocr_errors, ocr_warnings, ocr_chars_total, ocr_chars_wrong`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		d                           Document
		original, hashOrig, hashOCR sql.NullString
		status, lastUpdate          string
		pages, secs, errs, warns    sql.NullInt64
		charsTotal, charsWrong      sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.CanonicalName, &original, &hashOrig, &hashOCR, &status, &lastUpdate,
		&pages, &secs, &errs, &warns, &charsTotal, &charsWrong)
	if err != nil {
		return nil, err
	}
	d.OriginalName = original.String
	d.HashOriginal = hashOrig.String
	d.HashOCR = hashOCR.String
	d.Status = Status(status)
	d.LastUpdate = parseTime(lastUpdate)
	d.Metrics = ocrlog.Metrics{
		Pages:       nullInt(pages),
		TimeSeconds: nullInt(secs),
		Errors:      nullInt(errs),
		Warnings:    nullInt(warns),
		CharsTotal:  nullInt(charsTotal),
		CharsWrong:  nullInt(charsWrong),
	}
	return &d, nil
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intParam(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// IsKnown reports whether fingerprint matches any document's original or
// OCR hash.
func (s *Store) IsKnown(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE hash_original = ? OR hash_ocr = ?`,
		fingerprint, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return n > 0, nil
}

// Admit inserts a new document. It returns false without error when the
// canonical name or original hash is already recorded.
func (s *Store) Admit(ctx context.Context, a Admission) (bool, error) {
	if !a.Status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, a.Status)
	}
	if a.CanonicalName == "" || a.HashOriginal == "" {
		return false, errors.New("admission requires a canonical name and a hash")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (canonical_name, original_name, hash_original, status, last_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		a.CanonicalName, nullString(a.OriginalName), a.HashOriginal, string(a.Status), s.timestamp())
	if err != nil {
		return false, fmt.Errorf("failed to admit %s: %w", a.CanonicalName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Discard removes a document that is still new, along with its log
// entries. It rolls back an admission whose file copies failed.
func (s *Store) Discard(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE canonical_name = ? AND status = ?`,
			name, string(StatusNew))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM document_logs WHERE canonical_name = ?`, name)
		return err
	})
}

// MarkOCRComplete records the OCR output fingerprint and moves the document
// to ocred. A bare record is created if the name is unknown.
func (s *Store) MarkOCRComplete(ctx context.Context, name, hashOCR string) error {
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (canonical_name, status, last_update)
			VALUES (?, ?, ?)
			ON CONFLICT (canonical_name) DO NOTHING`,
			name, string(StatusNew), now)
		if err != nil {
			return fmt.Errorf("failed to upsert %s: %w", name, err)
		}

		current, err := statusTx(ctx, tx, `canonical_name`, name)
		if err != nil {
			return err
		}
		if !CanTransition(current, StatusOCRed) {
			return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, name, current, StatusOCRed)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE OR IGNORE documents SET hash_ocr = ?, status = ?, last_update = ?
			WHERE canonical_name = ?`,
			hashOCR, string(StatusOCRed), now, name)
		if err != nil {
			return fmt.Errorf("failed to mark %s complete: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		return nil
	})
}

// RecordOCRMetrics stores the quality figures of an OCR run. Nil fields
// are stored as NULL.
func (s *Store) RecordOCRMetrics(ctx context.Context, name string, m ocrlog.Metrics) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			ocr_pages = ?, ocr_time_seconds = ?, ocr_errors = ?,
			ocr_warnings = ?, ocr_chars_total = ?, ocr_chars_wrong = ?,
			last_update = ?
		WHERE canonical_name = ?`,
		intParam(m.Pages), intParam(m.TimeSeconds), intParam(m.Errors),
		intParam(m.Warnings), intParam(m.CharsTotal), intParam(m.CharsWrong),
		s.timestamp(), name)
	if err != nil {
		return fmt.Errorf("failed to record metrics for %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// SetStatus moves the named document to status.
func (s *Store) SetStatus(ctx context.Context, name string, status Status) error {
	return s.setStatus(ctx, "canonical_name", name, status)
}

// SetStatusByHash moves the document with the given original hash to status.
func (s *Store) SetStatusByHash(ctx context.Context, hashOriginal string, status Status) error {
	return s.setStatus(ctx, "hash_original", hashOriginal, status)
}

func (s *Store) setStatus(ctx context.Context, column, key string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := statusTx(ctx, tx, column, key)
		if err != nil {
			return err
		}
		if !CanTransition(current, status) {
			return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, key, current, status)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET status = ?, last_update = ? WHERE `+column+` = ?`,
			string(status), s.timestamp(), key)
		return err
	})
}

// column is always one of the two identifiers above.
func statusTx(ctx context.Context, tx *sql.Tx, column, key string) (Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE `+column+` = ?`, key).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

// AppendLog adds an audit message for the named document.
func (s *Store) AppendLog(ctx context.Context, name, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_logs (canonical_name, timestamp, message) VALUES (?, ?, ?)`,
		name, s.timestamp(), message)
	if err != nil {
		return fmt.Errorf("failed to append log for %s: %w", name, err)
	}
	return nil
}

// Logs returns the audit trail of the named document, oldest first.
func (s *Store) Logs(ctx context.Context, name string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_name, timestamp, message FROM document_logs
		 WHERE canonical_name = ? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.CanonicalName, &ts, &e.Message); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the named document.
func (s *Store) Get(ctx context.Context, name string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE canonical_name = ?`, name)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, err
}

// GetByHash returns the document admitted with the given original
// fingerprint.
func (s *Store) GetByHash(ctx context.Context, hashOriginal string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE hash_original = ?`, hashOriginal)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, hashOriginal)
	}
	return d, err
}

// List returns documents in admission order.
func (s *Store) List(ctx context.Context, f Filter) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
		}
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Counts returns the number of documents per status. Every status is
// present in the result.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int, len(transitions))
	for _, st := range AllStatuses() {
		counts[st] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

// ReconcileConsumed marks ocred documents whose file is no longer in dir
// as consumed and returns their names.
func (s *Store) ReconcileConsumed(ctx context.Context, dir string) ([]string, error) {
	docs, err := s.List(ctx, Filter{Status: StatusOCRed})
	if err != nil {
		return nil, err
	}

	var consumed []string
	for _, d := range docs {
		if strings.ContainsAny(d.CanonicalName, `/\`) {
			continue
		}
		_, err := os.Stat(filepath.Join(dir, d.CanonicalName))
		if err == nil || !os.IsNotExist(err) {
			continue
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, last_update = ? WHERE canonical_name = ? AND status = ?`,
			string(StatusConsumed), s.timestamp(), d.CanonicalName, string(StatusOCRed))
		if err != nil {
			return consumed, fmt.Errorf("failed to mark %s consumed: %w", d.CanonicalName, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			consumed = append(consumed, d.CanonicalName)
		}
	}
	return consumed, nil
}
