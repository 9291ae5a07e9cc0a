package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// editHistoryLimit caps the journal per draft; older entries are pruned on append.
const editHistoryLimit = 50

// EditLog provides a bounded undo journal on top of a LibSQLStore.
type EditLog struct {
	store *LibSQLStore
}

// NewEditLog wraps a LibSQLStore to provide journal operations.
func NewEditLog(s *LibSQLStore) *EditLog {
	return &EditLog{store: s}
}

const editColumns = `draft_id, sequence, op, summary, steps, positions, laid_out, dirty, created_at`

// AppendEdit appends an entry with a monotonically increasing per-draft sequence
// and prunes entries older than editHistoryLimit.
func (el *EditLog) AppendEdit(ctx context.Context, e *EditEvent) error {
	db := el.store.db

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction. A write-intent
	// statement forces lock acquisition before the sequence read so concurrent
	// appenders cannot interleave reads and writes.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM draft_edits WHERE draft_id = ?`, e.DraftID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	e.Sequence = seq

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	steps, err := marshalSteps(e.Steps)
	if err != nil {
		return err
	}
	positions, err := marshalPositions(e.Positions)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO draft_edits (`+editColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DraftID, seq, e.Op, e.Summary, steps, positions, e.LaidOut, e.Dirty, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert edit: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM draft_edits WHERE draft_id = ? AND sequence <= ?`,
		e.DraftID, seq-editHistoryLimit,
	); err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	return nil
}

// ListEdits returns the journal for a draft, newest first. A limit of 0 means
// everything still retained.
func (el *EditLog) ListEdits(ctx context.Context, draftID string, limit int) ([]*EditEvent, error) {
	query := `SELECT ` + editColumns + ` FROM draft_edits WHERE draft_id = ? ORDER BY sequence DESC`
	args := []any{draftID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := el.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []*EditEvent
	for rows.Next() {
		e, err := scanEdit(rows)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// LatestEdit returns the most recent journal entry for a draft.
func (el *EditLog) LatestEdit(ctx context.Context, draftID string) (*EditEvent, error) {
	row := el.store.db.QueryRowContext(ctx,
		`SELECT `+editColumns+` FROM draft_edits WHERE draft_id = ? ORDER BY sequence DESC LIMIT 1`, draftID)
	e, err := scanEdit(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "draft %q has no recorded edits", draftID)
	}
	return e, err
}

// DeleteEdit removes one journal entry, identified by draft and sequence.
func (el *EditLog) DeleteEdit(ctx context.Context, draftID string, sequence int64) error {
	res, err := el.store.db.ExecContext(ctx,
		`DELETE FROM draft_edits WHERE draft_id = ? AND sequence = ?`, draftID, sequence)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "edit", fmt.Sprintf("%s#%d", draftID, sequence))
}

// scanEdit reads one journal row from either a *sql.Row or *sql.Rows.
func scanEdit(scanner interface{ Scan(dest ...any) error }) (*EditEvent, error) {
	e := &EditEvent{}
	var stepsJSON, positionsJSON string
	err := scanner.Scan(&e.DraftID, &e.Sequence, &e.Op, &e.Summary,
		&stepsJSON, &positionsJSON, &e.LaidOut, &e.Dirty, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalSteps(stepsJSON, &e.Steps); err != nil {
		return nil, err
	}
	if err := unmarshalPositions(positionsJSON, &e.Positions); err != nil {
		return nil, err
	}
	return e, nil
}
