package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a job record with the same message id exists.
	ErrDuplicate = errors.New("duplicate message id")
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Error wraps a failed storage operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Store persists job records and backup-set bookkeeping.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger overrides the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects using a registered driver name: sqlite, postgres or mysql.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, wrap("open", err)
	}
	if driver == "sqlite" {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap("ping", err)
	}
	return New(db, opts...), nil
}

// OpenConfig connects with pool settings from configuration.
func OpenConfig(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	s, err := Open(ctx, cfg.Driver, cfg.DataSource(), opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Driver != "sqlite" && cfg.MaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		s.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return s, nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrap("ensure schema", err)
		}
	}
	return nil
}

// MessageExists reports whether a job record exists for messageID.
func (s *Store) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(*) FROM emails WHERE message_id = ?`)
	if err := s.db.GetContext(ctx, &n, query, messageID); err != nil {
		return false, wrap("message exists", err)
	}
	return n > 0, nil
}

// MarkSeen flips the seen flag of an existing record.
func (s *Store) MarkSeen(ctx context.Context, messageID string) error {
	query := s.db.Rebind(`UPDATE emails SET seen = 1 WHERE message_id = ?`)
	res, err := s.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return wrap("mark seen", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap("mark seen", ErrNotFound)
	}
	return nil
}

// InsertJobRecord stores rec and advances its backup set in one transaction.
// The backup set is created when missing and only moves forward when rec is a
// completed run whose end time is not older than the stored timestamp.
func (s *Store) InsertJobRecord(ctx context.Context, rec models.JobRecord) error {
	return s.inTx(ctx, "insert job record", func(tx *sqlx.Tx) error {
		last, err := s.ensureBackupSet(ctx, tx, rec.Source, rec.Destination)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertJobSQL, toJobRow(rec)); err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%s: %w", rec.MessageID, ErrDuplicate)
			}
			return err
		}
		if rec.RunFailed {
			return nil
		}
		return s.advanceBackupSet(ctx, tx, last, backupSetFromJob(rec))
	})
}

// UpsertBackupSet creates the pair if needed and records set when it is at
// least as recent as the stored state.
func (s *Store) UpsertBackupSet(ctx context.Context, set models.BackupSetRecord) error {
	return s.inTx(ctx, "upsert backup set", func(tx *sqlx.Tx) error {
		last, err := s.ensureBackupSet(ctx, tx, set.Source, set.Destination)
		if err != nil {
			return err
		}
		return s.advanceBackupSet(ctx, tx, last, set)
	})
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrap(op, err)
	}
	return nil
}

func (s *Store) ensureBackupSet(ctx context.Context, tx *sqlx.Tx, source, destination string) (int64, error) {
	var last int64
	query := tx.Rebind(`SELECT last_timestamp FROM backupsets WHERE source = ? AND destination = ?`)
	err := tx.GetContext(ctx, &last, query, source, destination)
	if err == nil {
		return last, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	insert := tx.Rebind(`INSERT INTO backupsets (source, destination, last_file_count, last_file_size, last_timestamp, last_version)
		VALUES (?, ?, 0, 0, 0, '')`)
	if _, err := tx.ExecContext(ctx, insert, source, destination); err != nil {
		return 0, err
	}
	s.logger.Info("new backup set", zap.String("source", source), zap.String("destination", destination))
	return 0, nil
}

func (s *Store) advanceBackupSet(ctx context.Context, tx *sqlx.Tx, last int64, set models.BackupSetRecord) error {
	ts := toUnix(set.LastTimestamp)
	if ts < last {
		s.logger.Debug("backup set newer than job, keeping",
			zap.String("source", set.Source), zap.String("destination", set.Destination))
		return nil
	}
	update := tx.Rebind(`UPDATE backupsets
		SET last_file_count = ?, last_file_size = ?, last_timestamp = ?, last_version = ?
		WHERE source = ? AND destination = ?`)
	_, err := tx.ExecContext(ctx, update,
		set.LastFileCount, set.LastFileSize, ts, set.LastVersion, set.Source, set.Destination)
	return err
}

// GetJobRecord loads one record by message id.
func (s *Store) GetJobRecord(ctx context.Context, messageID string) (*models.JobRecord, error) {
	var row jobRow
	query := s.db.Rebind(`SELECT ` + jobColumnList + ` FROM emails WHERE message_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrap("get job record", ErrNotFound)
		}
		return nil, wrap("get job record", err)
	}
	rec := row.toModel()
	return &rec, nil
}

// JobQuery narrows ListJobRecords. Zero values are ignored.
type JobQuery struct {
	Source      string
	Destination string
	Since       time.Time
	Limit       int
}

// ListJobRecords returns records newest first by end time.
func (s *Store) ListJobRecords(ctx context.Context, q JobQuery) ([]models.JobRecord, error) {
	var (
		where []string
		args  []any
	)
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	if q.Destination != "" {
		where = append(where, "destination = ?")
		args = append(args, q.Destination)
	}
	if !q.Since.IsZero() {
		where = append(where, "end_time >= ?")
		args = append(args, toUnix(q.Since))
	}
	query := `SELECT ` + jobColumnList + ` FROM emails`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY end_time DESC, message_id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, wrap("list job records", err)
	}
	out := make([]models.JobRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetBackupSet loads one pair.
func (s *Store) GetBackupSet(ctx context.Context, source, destination string) (*models.BackupSetRecord, error) {
	var row backupSetRow
	query := s.db.Rebind(`SELECT ` + backupSetColumnList + ` FROM backupsets WHERE source = ? AND destination = ?`)
	if err := s.db.GetContext(ctx, &row, query, source, destination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrap("get backup set", ErrNotFound)
		}
		return nil, wrap("get backup set", err)
	}
	set := row.toModel()
	return &set, nil
}

// ListBackupSets returns every pair ordered by source then destination.
func (s *Store) ListBackupSets(ctx context.Context) ([]models.BackupSetRecord, error) {
	var rows []backupSetRow
	query := `SELECT ` + backupSetColumnList + ` FROM backupsets ORDER BY source, destination`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrap("list backup sets", err)
	}
	out := make([]models.BackupSetRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func isDuplicate(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
