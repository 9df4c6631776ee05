package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RunRecord is one persisted payment run: the goal it started from, the
// outcome, and the recorded action trail. Sensitive values are masked before
// they reach the record; the store never sees raw bank numbers.
type RunRecord struct {
	ID           string
	Provider     string
	AccountLast4 string
	Goal         schemas.GoalType
	Result       schemas.AgentResult
	CreatedAt    time.Time
}

// Store provides a PostgreSQL implementation of run history persistence.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS payment_runs (
    id UUID PRIMARY KEY,
    provider TEXT NOT NULL,
    account_last4 TEXT NOT NULL,
    goal TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    paused_for_user BOOLEAN NOT NULL,
    pause_reason TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    final_url TEXT NOT NULL DEFAULT '',
    iterations INT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_actions (
    run_id UUID NOT NULL REFERENCES payment_runs(id) ON DELETE CASCADE,
    iteration INT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    action_type TEXT NOT NULL DEFAULT '',
    target TEXT NOT NULL DEFAULT '',
    value TEXT NOT NULL DEFAULT '',
    succeeded BOOLEAN NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payment_runs_provider ON payment_runs (provider, created_at DESC);
`

// EnsureSchema creates the run history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure run history schema: %w", err)
	}
	return nil
}

const sqlInsertRun = `
        INSERT INTO payment_runs (id, provider, account_last4, goal, success, paused_for_user, pause_reason, error, final_url, iterations, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `

// SaveRun persists a run and its action trail in a single transaction.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	createdAt := rec.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, sqlInsertRun,
		rec.ID, rec.Provider, rec.AccountLast4, string(rec.Goal),
		rec.Result.Success, rec.Result.PausedForUser, rec.Result.PauseReason,
		rec.Result.Error, rec.Result.FinalURL, rec.Result.Iterations, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment run: %w", err)
	}

	if len(rec.Result.ActionHistory) > 0 {
		if err := s.persistActions(ctx, tx, rec.ID, rec.Result.ActionHistory); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistActions(ctx context.Context, tx pgx.Tx, runID string, actions []schemas.ActionRecord) error {
	rows := make([][]interface{}, len(actions))
	for i, a := range actions {
		rows[i] = []interface{}{
			runID, a.Iteration, a.URL,
			string(a.Action.Type), a.Action.Target, a.Action.Value,
			a.Succeeded, a.Detail, a.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"run_actions"},
		[]string{"run_id", "iteration", "url", "action_type", "target", "value", "succeeded", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy run actions: %w", err)
	}
	if int(copyCount) != len(actions) {
		return fmt.Errorf("mismatch in copied action count: expected %d, got %d", len(actions), copyCount)
	}

	return nil
}

// GetRunsByProvider returns recent runs for a provider, newest first. The
// action trail is not loaded; use GetRunActions for a specific run.
func (s *Store) GetRunsByProvider(ctx context.Context, provider string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
        SELECT id, provider, account_last4, goal, success, paused_for_user, pause_reason, error, final_url, iterations, created_at
        FROM payment_runs
        WHERE provider = $1
        ORDER BY created_at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var goalStr string

		err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.AccountLast4, &goalStr,
			&rec.Result.Success, &rec.Result.PausedForUser, &rec.Result.PauseReason,
			&rec.Result.Error, &rec.Result.FinalURL, &rec.Result.Iterations, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment run row: %w", err)
		}

		rec.Goal = schemas.GoalType(goalStr)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// GetRunActions returns the recorded action trail for one run, in order.
func (s *Store) GetRunActions(ctx context.Context, runID string) ([]schemas.ActionRecord, error) {
	query := `
        SELECT iteration, url, action_type, target, value, succeeded, detail, recorded_at
        FROM run_actions
        WHERE run_id = $1
        ORDER BY iteration ASC, recorded_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run actions: %w", err)
	}
	defer rows.Close()

	var actions []schemas.ActionRecord
	for rows.Next() {
		var a schemas.ActionRecord
		var actionType string

		err := rows.Scan(&a.Iteration, &a.URL, &actionType, &a.Action.Target, &a.Action.Value, &a.Succeeded, &a.Detail, &a.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run action row: %w", err)
		}

		a.Action.Type = schemas.AgentActionType(actionType)
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return actions, nil
}
