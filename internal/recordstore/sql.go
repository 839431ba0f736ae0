package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/asad/accountd/internal/util"
)

// Dialect selects placeholder style and error classification for SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type sqlQueries struct {
	get    string
	exists string
	insert string
	update string
}

var queriesByDialect = map[Dialect]sqlQueries{
	DialectSQLite: {
		get:    `SELECT data FROM accounts WHERE uid = ?`,
		exists: `SELECT 1 FROM accounts WHERE uid = ?`,
		insert: `INSERT INTO accounts (uid, data) VALUES (?, ?)`,
		update: `UPDATE accounts SET data = ? WHERE uid = ?`,
	},
	DialectPostgres: {
		get:    `SELECT data FROM accounts WHERE uid = $1`,
		exists: `SELECT 1 FROM accounts WHERE uid = $1`,
		insert: `INSERT INTO accounts (uid, data) VALUES ($1, $2)`,
		update: `UPDATE accounts SET data = $1 WHERE uid = $2`,
	},
}

const createAccountsTable = `
	CREATE TABLE IF NOT EXISTS accounts (
		uid TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);`

// SQLStore keeps records in a single accounts(uid, data) table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	queries sqlQueries
	retry   util.RetryConfig
}

// NewSQLStore wraps an open database. The accounts table is expected to exist;
// call EnsureSchema to create it.
func NewSQLStore(db *sql.DB, dialect Dialect, maxRetries int) (*SQLStore, error) {
	queries, ok := queriesByDialect[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	retry := util.DefaultRetryConfig()
	retry.MaxRetries = maxRetries
	if dialect == DialectSQLite {
		retry.ShouldRetryFunc = isSQLiteBusyError
	}

	return &SQLStore{
		db:      db,
		dialect: dialect,
		queries: queries,
		retry:   retry,
	}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string, maxRetries int) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(0)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite db: %w", err)
	}

	// Single connection to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return openSQL(ctx, db, DialectSQLite, maxRetries)
}

// OpenPostgres connects to Postgres through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string, maxRetries int) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return openSQL(ctx, db, DialectPostgres, maxRetries)
}

func openSQL(ctx context.Context, db *sql.DB, dialect Dialect, maxRetries int) (*SQLStore, error) {
	store, err := NewSQLStore(db, dialect, maxRetries)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the accounts table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("%w: could not create accounts table: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, userID string) ([]byte, error) {
	var data string
	err := util.Retry(ctx, s.retry, func() error {
		return s.db.QueryRowContext(ctx, s.queries.get, userID).Scan(&data)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to query account: %w", ErrUnavailable, err)
	}
	return []byte(data), nil
}

func (s *SQLStore) Exists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := util.Retry(ctx, s.retry, func() error {
		return s.db.QueryRowContext(ctx, s.queries.exists, userID).Scan(&one)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to probe account: %w", ErrUnavailable, err)
	}
	return true, nil
}

func (s *SQLStore) Insert(ctx context.Context, userID string, blob []byte) error {
	err := util.Retry(ctx, s.retry, func() error {
		_, execErr := s.db.ExecContext(ctx, s.queries.insert, userID, string(blob))
		return execErr
	})
	if err != nil {
		if s.isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("%w: failed to insert account: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, userID string, blob []byte) error {
	var result sql.Result
	err := util.Retry(ctx, s.retry, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, s.queries.update, string(blob), userID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("%w: failed to update account: %w", ErrUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get rows affected: %w", ErrUnavailable, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) isUniqueViolation(err error) bool {
	switch s.dialect {
	case DialectPostgres:
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	default:
		msg := err.Error()
		return strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "SQLITE_CONSTRAINT_PRIMARYKEY")
	}
}

// isSQLiteBusyError checks if an error is a SQLite BUSY error that should be retried
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

var _ Store = (*SQLStore)(nil)
