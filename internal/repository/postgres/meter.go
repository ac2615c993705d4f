package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/repository"
)

type meterRepository struct {
	db DBTX
}

func NewMeterRepository(db DBTX) repository.MeterRepository {
	return &meterRepository{db: db}
}

func (r *meterRepository) GetByID(ctx context.Context, id int64) (*domain.Meter, error) {
	query := `SELECT id, connection_id, serial_number FROM meters WHERE id = $1`

	m := &domain.Meter{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.ConnectionID, &m.SerialNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrMeterNotFound, id)
		}
		return nil, mapError(err)
	}
	return m, nil
}
