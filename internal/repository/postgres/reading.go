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

type readingRepository struct {
	db DBTX
}

func NewReadingRepository(db DBTX) repository.ReadingRepository {
	return &readingRepository{db: db}
}

const readingColumns = `id, meter_id, reading_date, reading_type, previous_value, current_value, recorded_by, created_at`

func scanReading(row rowScanner, r *domain.MeterReading) error {
	return row.Scan(&r.ID, &r.MeterID, &r.ReadingDate, &r.ReadingType, &r.PreviousValue, &r.CurrentValue, &r.RecordedBy, &r.CreatedAt)
}

func (r *readingRepository) Create(ctx context.Context, reading *domain.MeterReading) error {
	logger.EnterMethod("readingRepository.Create", "meterID", reading.MeterID, "readingDate", reading.ReadingDate)

	query := `
		INSERT INTO meter_readings (
			meter_id, reading_date, reading_type, previous_value, current_value, recorded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		reading.MeterID, reading.ReadingDate, reading.ReadingType, reading.PreviousValue,
		reading.CurrentValue, reading.RecordedBy, time.Now(),
	).Scan(&reading.ID, &reading.CreatedAt)

	if err != nil {
		logger.ExitMethodWithError("readingRepository.Create", err, "meterID", reading.MeterID)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: meter %d on %s", domain.ErrDuplicateReading, reading.MeterID, reading.ReadingDate.Format(time.DateOnly))
		}
		return mapError(err)
	}

	logger.ExitMethod("readingRepository.Create", "readingID", reading.ID)
	return nil
}

func (r *readingRepository) GetByID(ctx context.Context, id int64) (*domain.MeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM meter_readings WHERE id = $1`

	reading := &domain.MeterReading{}
	if err := scanReading(r.db.QueryRowContext(ctx, query, id), reading); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, id)
		}
		return nil, mapError(err)
	}
	return reading, nil
}

func (r *readingRepository) GetLatestForMeter(ctx context.Context, meterID int64, before time.Time) (*domain.MeterReading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM meter_readings
		WHERE meter_id = $1 AND reading_date < $2
		ORDER BY reading_date DESC
		LIMIT 1
	`

	reading := &domain.MeterReading{}
	if err := scanReading(r.db.QueryRowContext(ctx, query, meterID, before), reading); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return reading, nil
}

func (r *readingRepository) GetBillingContext(ctx context.Context, readingID int64) (*domain.BillingContext, error) {
	logger.EnterMethod("readingRepository.GetBillingContext", "readingID", readingID)

	query := `
		SELECT r.id, r.meter_id, r.reading_date, r.reading_type, r.previous_value, r.current_value,
		       r.recorded_by, r.created_at,
		       sc.id, sc.customer_id, sc.utility_type, sc.status, c.customer_type,
		       (SELECT MAX(p.reading_date) FROM meter_readings p
		         WHERE p.meter_id = r.meter_id AND p.reading_date < r.reading_date)
		FROM meter_readings r
		JOIN meters m ON m.id = r.meter_id
		JOIN service_connections sc ON sc.id = m.connection_id
		JOIN customers c ON c.id = sc.customer_id
		WHERE r.id = $1
	`

	bc := &domain.BillingContext{}
	rd := &bc.Reading
	var previous sql.NullTime
	err := r.db.QueryRowContext(ctx, query, readingID).Scan(
		&rd.ID, &rd.MeterID, &rd.ReadingDate, &rd.ReadingType, &rd.PreviousValue, &rd.CurrentValue,
		&rd.RecordedBy, &rd.CreatedAt,
		&bc.ConnectionID, &bc.CustomerID, &bc.UtilityType, &bc.ConnectionStatus, &bc.CustomerClass,
		&previous,
	)
	if err != nil {
		logger.ExitMethodWithError("readingRepository.GetBillingContext", err, "readingID", readingID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, readingID)
		}
		return nil, mapError(err)
	}
	bc.PreviousReadingDate = nullTimePtr(previous)

	logger.ExitMethod("readingRepository.GetBillingContext", "readingID", readingID, "connectionID", bc.ConnectionID)
	return bc, nil
}

func (r *readingRepository) ListUnbilled(ctx context.Context, types []domain.ReadingType, limit int) ([]int64, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}

	query := `
		SELECT r.id
		FROM meter_readings r
		LEFT JOIN bills b ON b.reading_id = r.id
		WHERE b.id IS NULL AND r.reading_type = ANY($1)
		ORDER BY r.reading_date, r.id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(typeStrs), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
