package postgres

import (
	"context"
	"database/sql"
	"time"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

type tariffRepository struct {
	db DBTX
}

func NewTariffRepository(db DBTX) repository.TariffRepository {
	return &tariffRepository{db: db}
}

func (r *tariffRepository) ListApplicable(ctx context.Context, utility domain.UtilityType, class domain.CustomerClass, asOf time.Time, limit int) ([]domain.TariffPlan, error) {
	logger.EnterMethod("tariffRepository.ListApplicable", "utility", utility, "class", class, "asOf", asOf)

	query := `
		SELECT id, utility_type, customer_type, rate_per_unit, fixed_charge,
		       effective_from, effective_to, is_active
		FROM tariffs
		WHERE utility_type = $1 AND customer_type = $2 AND is_active = TRUE
		  AND effective_from <= $3
		  AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY effective_from DESC, id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, utility, class, domain.DateOf(asOf), limit)
	if err != nil {
		logger.ExitMethodWithError("tariffRepository.ListApplicable", err)
		return nil, mapError(err)
	}
	defer rows.Close()

	var plans []domain.TariffPlan
	for rows.Next() {
		var t domain.TariffPlan
		var effectiveTo sql.NullTime
		if err := rows.Scan(&t.ID, &t.UtilityType, &t.CustomerClass, &t.RatePerUnit, &t.FixedCharge,
			&t.EffectiveFrom, &effectiveTo, &t.IsActive); err != nil {
			return nil, err
		}
		t.EffectiveTo = nullTimePtr(effectiveTo)
		plans = append(plans, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("tariffRepository.ListApplicable", "count", len(plans))
	return plans, nil
}
