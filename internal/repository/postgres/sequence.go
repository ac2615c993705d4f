package postgres

import (
	"context"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/repository"
)

type sequenceRepository struct {
	db DBTX
}

func NewSequenceRepository(db DBTX) repository.SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next runs a single upsert, so concurrent callers serialize on the
// (kind, year) row and never observe the same value.
func (r *sequenceRepository) Next(ctx context.Context, kind domain.SequenceKind, year int) (int64, error) {
	query := `
		INSERT INTO document_sequences (kind, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (kind, year) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value
	`
	var next int64
	if err := r.db.QueryRowContext(ctx, query, kind, year).Scan(&next); err != nil {
		return 0, mapError(err)
	}
	return next, nil
}
