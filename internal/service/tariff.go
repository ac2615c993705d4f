package service

import (
	"context"
	"fmt"
	"time"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

type tariffResolver struct {
	tariffRepo repository.TariffRepository
}

func NewTariffResolver(tariffRepo repository.TariffRepository) TariffResolver {
	return &tariffResolver{tariffRepo: tariffRepo}
}

// Resolve returns the single active plan in force on asOf. Two candidates is
// enough to prove ambiguity, so no more are fetched.
func (r *tariffResolver) Resolve(ctx context.Context, utility domain.UtilityType, class domain.CustomerClass, asOf time.Time) (*domain.TariffPlan, error) {
	logger.EnterMethod("tariffResolver.Resolve", "utility", utility, "class", class, "asOf", asOf)

	plans, err := r.tariffRepo.ListApplicable(ctx, utility, class, asOf, 2)
	if err != nil {
		logger.ExitMethodWithError("tariffResolver.Resolve", err)
		return nil, err
	}

	switch len(plans) {
	case 0:
		err = fmt.Errorf("%w for %s/%s on %s", domain.ErrNoApplicableTariff, utility, class, asOf.Format(time.DateOnly))
	case 1:
		logger.ExitMethod("tariffResolver.Resolve", "tariffID", plans[0].ID)
		return &plans[0], nil
	default:
		err = fmt.Errorf("%w for %s/%s on %s: plans %d and %d", domain.ErrAmbiguousTariff,
			utility, class, asOf.Format(time.DateOnly), plans[0].ID, plans[1].ID)
	}

	logger.ExitMethodRejected("tariffResolver.Resolve", err)
	return nil, err
}
