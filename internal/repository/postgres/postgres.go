package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db        *sql.DB
	isolation sql.IsolationLevel
	txTimeout time.Duration
}

type StoreOption func(*Store)

// WithIsolation sets the transaction isolation: "read_committed" (default) or "serializable".
func WithIsolation(level string) StoreOption {
	return func(s *Store) {
		if level == "serializable" {
			s.isolation = sql.LevelSerializable
		} else {
			s.isolation = sql.LevelReadCommitted
		}
	}
}

// WithTxTimeout bounds every transaction started by WithinTx.
func WithTxTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.txTimeout = d
	}
}

func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, isolation: sql.LevelReadCommitted}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRepositories(q DBTX) repository.Repositories {
	return repository.Repositories{
		Readings:  NewReadingRepository(q),
		Meters:    NewMeterRepository(q),
		Tariffs:   NewTariffRepository(q),
		Bills:     NewBillRepository(q),
		Payments:  NewPaymentRepository(q),
		Sequences: NewSequenceRepository(q),
	}
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.isolation})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// mapError turns transient PostgreSQL failures into domain.ErrConcurrentUpdate.
func mapError(err error) error {
	switch pqCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
