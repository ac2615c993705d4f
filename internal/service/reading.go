package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/logger"
	"utilbill-backend/internal/repository"
)

type readingService struct {
	store repository.Store
	clock Clock
}

func NewReadingService(store repository.Store, clock Clock) ReadingService {
	return &readingService{store: store, clock: clock}
}

func (s *readingService) RecordReading(ctx context.Context, req RecordReadingRequest) (*domain.MeterReading, error) {
	logger.EnterMethod("readingService.RecordReading", "meterID", req.MeterID, "date", req.ReadingDate, "type", req.Type)

	today := domain.DateOf(s.clock.now())
	if err := validateReading(req, today); err != nil {
		logger.ExitMethodRejected("readingService.RecordReading", err, "meterID", req.MeterID)
		return nil, err
	}

	readingDate := domain.DateOf(req.ReadingDate)
	var reading *domain.MeterReading
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Meters.GetByID(ctx, req.MeterID); err != nil {
			return err
		}

		latest, err := repos.Readings.GetLatestForMeter(ctx, req.MeterID, today.AddDate(0, 0, 1))
		if err != nil {
			return err
		}

		previous := decimal.Zero
		if latest != nil {
			latestDate := domain.DateOf(latest.ReadingDate)
			switch {
			case latestDate.Equal(readingDate):
				return fmt.Errorf("%w: meter %d on %s", domain.ErrDuplicateReading, req.MeterID, readingDate.Format(time.DateOnly))
			case readingDate.Before(latestDate):
				return fmt.Errorf("%w: %s is before the latest reading on %s", domain.ErrInvalidReading,
					readingDate.Format(time.DateOnly), latestDate.Format(time.DateOnly))
			}
			previous = latest.CurrentValue
		}
		if req.PreviousValue != nil {
			previous = *req.PreviousValue
		}
		if req.CurrentValue.LessThan(previous) {
			return fmt.Errorf("%w: current %s is below previous %s", domain.ErrInvalidReading, req.CurrentValue, previous)
		}

		reading = &domain.MeterReading{
			MeterID:       req.MeterID,
			ReadingDate:   readingDate,
			ReadingType:   req.Type,
			PreviousValue: previous,
			CurrentValue:  req.CurrentValue,
			RecordedBy:    strings.TrimSpace(req.RecordedBy),
		}
		return repos.Readings.Create(ctx, reading)
	})
	if err != nil {
		if domain.IsInputError(err) {
			logger.ExitMethodRejected("readingService.RecordReading", err, "meterID", req.MeterID)
		} else {
			logger.ExitMethodWithError("readingService.RecordReading", err, "meterID", req.MeterID)
		}
		return nil, err
	}

	logger.ExitMethod("readingService.RecordReading", "readingID", reading.ID)
	return reading, nil
}

func validateReading(req RecordReadingRequest, today time.Time) error {
	switch {
	case req.MeterID <= 0:
		return fmt.Errorf("%w: meter id is required", domain.ErrInvalidReading)
	case !req.Type.Valid():
		return fmt.Errorf("%w: unknown reading type %q", domain.ErrInvalidReading, req.Type)
	case strings.TrimSpace(req.RecordedBy) == "":
		return fmt.Errorf("%w: recorded by is required", domain.ErrInvalidReading)
	case req.ReadingDate.IsZero():
		return fmt.Errorf("%w: reading date is required", domain.ErrInvalidReading)
	case domain.DateOf(req.ReadingDate).After(today):
		return fmt.Errorf("%w: reading date %s is in the future", domain.ErrInvalidReading, req.ReadingDate.Format(time.DateOnly))
	case req.CurrentValue.IsNegative():
		return fmt.Errorf("%w: current value %s is negative", domain.ErrInvalidReading, req.CurrentValue)
	case req.PreviousValue != nil && req.PreviousValue.IsNegative():
		return fmt.Errorf("%w: previous value %s is negative", domain.ErrInvalidReading, *req.PreviousValue)
	case req.PreviousValue != nil && req.PreviousValue.GreaterThan(req.CurrentValue):
		return fmt.Errorf("%w: current %s is below previous %s", domain.ErrInvalidReading, req.CurrentValue, *req.PreviousValue)
	}
	return nil
}
