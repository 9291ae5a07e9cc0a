package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/srec-tools/pipectl/internal/layout"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Drafts ---

const draftColumns = `id, name, description, remote_id, steps, positions, laid_out, dirty, created_at, updated_at`

func (s *LibSQLStore) CreateDraft(ctx context.Context, d *Draft) error {
	steps, err := marshalSteps(d.Steps)
	if err != nil {
		return err
	}
	positions, err := marshalPositions(d.Positions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (`+draftColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullStr(d.Description), nullStr(d.RemoteID),
		steps, positions, d.LaidOut, d.Dirty,
		timeOrNow(d.CreatedAt), timeOrNow(d.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "draft name %q already in use", d.Name)
	}
	return err
}

func (s *LibSQLStore) GetDraft(ctx context.Context, id string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", id)
	}
	return d, err
}

func (s *LibSQLStore) GetDraftByName(ctx context.Context, name string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE name = ?`, name)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", name)
	}
	return d, err
}

func (s *LibSQLStore) UpdateDraft(ctx context.Context, id string, update DraftUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, nullStr(*update.RemoteID))
	}
	if update.Steps != nil {
		steps, err := marshalSteps(update.Steps)
		if err != nil {
			return err
		}
		sets = append(sets, "steps = ?")
		args = append(args, steps)
	}
	if update.Positions != nil {
		positions, err := marshalPositions(update.Positions)
		if err != nil {
			return err
		}
		sets = append(sets, "positions = ?")
		args = append(args, positions)
	}
	if update.LaidOut != nil {
		sets = append(sets, "laid_out = ?")
		args = append(args, *update.LaidOut)
	}
	if update.Dirty != nil {
		sets = append(sets, "dirty = ?")
		args = append(args, *update.Dirty)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE drafts SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) && update.Name != nil {
		return schema.NewErrorf(schema.ErrCodeConflict, "draft name %q already in use", *update.Name)
	}
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "draft", id)
}

func (s *LibSQLStore) ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error) {
	var where []string
	var args []any

	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + draftColumns + ` FROM drafts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *LibSQLStore) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "draft", id)
}

// scanDraft reads one draft row from either a *sql.Row or *sql.Rows.
func scanDraft(scanner interface{ Scan(dest ...any) error }) (*Draft, error) {
	d := &Draft{}
	var (
		description, remoteID   sql.NullString
		stepsJSON, positionsJSON string
	)
	err := scanner.Scan(&d.ID, &d.Name, &description, &remoteID,
		&stepsJSON, &positionsJSON, &d.LaidOut, &d.Dirty,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Description = description.String
	d.RemoteID = remoteID.String
	if err := unmarshalSteps(stepsJSON, &d.Steps); err != nil {
		return nil, err
	}
	if err := unmarshalPositions(positionsJSON, &d.Positions); err != nil {
		return nil, err
	}
	return d, nil
}

// --- Helpers ---

func marshalSteps(steps []schema.DagStepDefinition) (string, error) {
	if steps == nil {
		steps = []schema.DagStepDefinition{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "encode draft steps").WithCause(err)
	}
	return string(data), nil
}

func marshalPositions(positions map[string]layout.Position) (string, error) {
	if positions == nil {
		positions = map[string]layout.Position{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "encode draft positions").WithCause(err)
	}
	return string(data), nil
}

func unmarshalSteps(raw string, steps *[]schema.DagStepDefinition) error {
	if err := json.Unmarshal([]byte(raw), steps); err != nil {
		return schema.NewError(schema.ErrCodeStore, "decode draft steps").WithCause(err)
	}
	if *steps == nil {
		*steps = []schema.DagStepDefinition{}
	}
	return nil
}

func unmarshalPositions(raw string, positions *map[string]layout.Position) error {
	if err := json.Unmarshal([]byte(raw), positions); err != nil {
		return schema.NewError(schema.ErrCodeStore, "decode draft positions").WithCause(err)
	}
	if *positions == nil {
		*positions = map[string]layout.Position{}
	}
	return nil
}

func storeNotFound(resource, id string) *schema.PipelineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
