package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/repository"
)

// acquire returns the state to operate on and a release func.
type acquire func() (*state, func())

func newRepositories(get acquire) repository.Repositories {
	return repository.Repositories{
		Readings:  &readingRepo{get: get},
		Meters:    &meterRepo{get: get},
		Tariffs:   &tariffRepo{get: get},
		Bills:     &billRepo{get: get},
		Payments:  &paymentRepo{get: get},
		Sequences: &sequenceRepo{get: get},
	}
}

func sortedValues[T any](m map[int64]T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

type readingRepo struct{ get acquire }

func (r *readingRepo) Create(_ context.Context, reading *domain.MeterReading) error {
	st, release := r.get()
	defer release()

	if _, ok := st.meters[reading.MeterID]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrMeterNotFound, reading.MeterID)
	}
	day := domain.DateOf(reading.ReadingDate)
	for _, existing := range st.readings {
		if existing.MeterID == reading.MeterID && domain.DateOf(existing.ReadingDate).Equal(day) {
			return fmt.Errorf("%w: meter %d on %s", domain.ErrDuplicateReading, reading.MeterID, day.Format(time.DateOnly))
		}
	}

	reading.ID = st.nextID()
	reading.CreatedAt = time.Now()
	st.readings[reading.ID] = *reading
	return nil
}

func (r *readingRepo) GetByID(_ context.Context, id int64) (*domain.MeterReading, error) {
	st, release := r.get()
	defer release()

	reading, ok := st.readings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, id)
	}
	return &reading, nil
}

func (r *readingRepo) GetLatestForMeter(_ context.Context, meterID int64, before time.Time) (*domain.MeterReading, error) {
	st, release := r.get()
	defer release()

	var latest *domain.MeterReading
	for _, reading := range st.readings {
		if reading.MeterID != meterID || !domain.DateOf(reading.ReadingDate).Before(domain.DateOf(before)) {
			continue
		}
		if latest == nil || reading.ReadingDate.After(latest.ReadingDate) {
			rd := reading
			latest = &rd
		}
	}
	return latest, nil
}

func (r *readingRepo) GetBillingContext(_ context.Context, readingID int64) (*domain.BillingContext, error) {
	st, release := r.get()
	defer release()

	reading, ok := st.readings[readingID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, readingID)
	}
	meter, ok := st.meters[reading.MeterID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, readingID)
	}
	conn, ok := st.connections[meter.ConnectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, readingID)
	}
	customer, ok := st.customers[conn.CustomerID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrReadingNotFound, readingID)
	}

	bc := &domain.BillingContext{
		Reading:          reading,
		ConnectionID:     conn.ID,
		CustomerID:       customer.ID,
		UtilityType:      conn.UtilityType,
		CustomerClass:    customer.CustomerType,
		ConnectionStatus: conn.Status,
	}
	for _, other := range st.readings {
		if other.MeterID != reading.MeterID || !other.ReadingDate.Before(reading.ReadingDate) {
			continue
		}
		if bc.PreviousReadingDate == nil || other.ReadingDate.After(*bc.PreviousReadingDate) {
			d := other.ReadingDate
			bc.PreviousReadingDate = &d
		}
	}
	return bc, nil
}

func (r *readingRepo) ListUnbilled(_ context.Context, types []domain.ReadingType, limit int) ([]int64, error) {
	st, release := r.get()
	defer release()

	billed := make(map[int64]bool, len(st.bills))
	for _, b := range st.bills {
		billed[b.ReadingID] = true
	}

	var pending []domain.MeterReading
	for _, reading := range st.readings {
		if !billed[reading.ID] && slices.Contains(types, reading.ReadingType) {
			pending = append(pending, reading)
		}
	}
	slices.SortFunc(pending, func(a, b domain.MeterReading) int {
		return cmp.Or(a.ReadingDate.Compare(b.ReadingDate), cmp.Compare(a.ID, b.ID))
	})

	ids := make([]int64, 0, len(pending))
	for _, reading := range pending {
		if len(ids) == limit {
			break
		}
		ids = append(ids, reading.ID)
	}
	return ids, nil
}

type meterRepo struct{ get acquire }

func (r *meterRepo) GetByID(_ context.Context, id int64) (*domain.Meter, error) {
	st, release := r.get()
	defer release()

	m, ok := st.meters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrMeterNotFound, id)
	}
	return &m, nil
}

type tariffRepo struct{ get acquire }

func (r *tariffRepo) ListApplicable(_ context.Context, utility domain.UtilityType, class domain.CustomerClass, asOf time.Time, limit int) ([]domain.TariffPlan, error) {
	st, release := r.get()
	defer release()

	var plans []domain.TariffPlan
	for _, t := range st.tariffs {
		if t.UtilityType == utility && t.CustomerClass == class && t.AppliesOn(asOf) {
			plans = append(plans, t)
		}
	}
	slices.SortFunc(plans, func(a, b domain.TariffPlan) int {
		return cmp.Or(b.EffectiveFrom.Compare(a.EffectiveFrom), cmp.Compare(a.ID, b.ID))
	})
	if len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

type billRepo struct{ get acquire }

func (r *billRepo) Create(_ context.Context, bill *domain.Bill) error {
	st, release := r.get()
	defer release()

	for _, existing := range st.bills {
		if existing.ReadingID == bill.ReadingID {
			return fmt.Errorf("%w: reading %d", domain.ErrBillAlreadyExists, bill.ReadingID)
		}
		if existing.BillNumber == bill.BillNumber {
			return fmt.Errorf("duplicate bill number %s", bill.BillNumber)
		}
	}

	now := time.Now()
	bill.ID = st.nextID()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	st.bills[bill.ID] = *bill
	return nil
}

func (r *billRepo) GetByID(_ context.Context, id int64) (*domain.Bill, error) {
	st, release := r.get()
	defer release()

	b, ok := st.bills[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrBillNotFound, id)
	}
	return &b, nil
}

func (r *billRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Bill, error) {
	return r.GetByID(ctx, id)
}

func (r *billRepo) ExistsForReading(_ context.Context, readingID int64) (bool, error) {
	st, release := r.get()
	defer release()

	for _, b := range st.bills {
		if b.ReadingID == readingID {
			return true, nil
		}
	}
	return false, nil
}

func (r *billRepo) UpdateBalance(_ context.Context, bill *domain.Bill) error {
	st, release := r.get()
	defer release()

	stored, ok := st.bills[bill.ID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrBillNotFound, bill.ID)
	}
	stored.LateFee = bill.LateFee
	stored.TotalAmount = bill.TotalAmount
	stored.AmountPaid = bill.AmountPaid
	stored.OutstandingBalance = bill.OutstandingBalance
	stored.Status = bill.Status
	stored.UpdatedAt = time.Now()
	bill.UpdatedAt = stored.UpdatedAt
	st.bills[bill.ID] = stored
	return nil
}

func overdueEligible(b domain.Bill, asOf time.Time) bool {
	return slices.Contains(domain.OpenBillStatuses, b.Status) &&
		domain.DateOf(b.DueDate).Before(domain.DateOf(asOf)) &&
		b.OutstandingBalance.IsPositive()
}

func (r *billRepo) ListOverdueCandidates(_ context.Context, asOf time.Time, limit int) ([]int64, error) {
	st, release := r.get()
	defer release()

	return selectBills(st.bills, limit, func(b domain.Bill) bool { return overdueEligible(b, asOf) }), nil
}

func (r *billRepo) MarkOverdue(_ context.Context, id int64, asOf time.Time) (bool, error) {
	st, release := r.get()
	defer release()

	b, ok := st.bills[id]
	if !ok || !overdueEligible(b, asOf) {
		return false, nil
	}
	b.Status = domain.BillStatusOverdue
	b.UpdatedAt = time.Now()
	st.bills[id] = b
	return true, nil
}

func (r *billRepo) ListOverdueWithBalance(_ context.Context, limit int) ([]int64, error) {
	st, release := r.get()
	defer release()

	return selectBills(st.bills, limit, func(b domain.Bill) bool {
		return b.Status == domain.BillStatusOverdue && b.OutstandingBalance.IsPositive()
	}), nil
}

func selectBills(bills map[int64]domain.Bill, limit int, keep func(domain.Bill) bool) []int64 {
	var matched []domain.Bill
	for _, b := range bills {
		if keep(b) {
			matched = append(matched, b)
		}
	}
	slices.SortFunc(matched, func(a, b domain.Bill) int {
		return cmp.Or(a.DueDate.Compare(b.DueDate), cmp.Compare(a.ID, b.ID))
	})

	ids := make([]int64, 0, len(matched))
	for _, b := range matched {
		if len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}
	return ids
}

type paymentRepo struct{ get acquire }

func (r *paymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	st, release := r.get()
	defer release()

	if _, ok := st.bills[payment.BillID]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrBillNotFound, payment.BillID)
	}
	if payment.RefundOfPaymentID != nil {
		for _, existing := range st.payments {
			if existing.RefundOfPaymentID != nil && *existing.RefundOfPaymentID == *payment.RefundOfPaymentID {
				return fmt.Errorf("%w: payment %d already refunded", domain.ErrPaymentNotRefundable, *payment.RefundOfPaymentID)
			}
		}
	}

	now := time.Now()
	payment.ID = st.nextID()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	st.payments[payment.ID] = *payment
	return nil
}

func (r *paymentRepo) GetByID(_ context.Context, id int64) (*domain.Payment, error) {
	st, release := r.get()
	defer release()

	p, ok := st.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrPaymentNotFound, id)
	}
	return &p, nil
}

func (r *paymentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) UpdateStatus(_ context.Context, id int64, status domain.PaymentStatus) error {
	st, release := r.get()
	defer release()

	p, ok := st.payments[id]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrPaymentNotFound, id)
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	st.payments[id] = p
	return nil
}

func (r *paymentRepo) SumCompleted(ctx context.Context, billID int64) (decimal.Decimal, error) {
	ledger, err := r.ListByBill(ctx, billID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.SumCompleted(ledger), nil
}

func (r *paymentRepo) ListByBill(_ context.Context, billID int64) ([]domain.Payment, error) {
	st, release := r.get()
	defer release()

	var ledger []domain.Payment
	for _, p := range sortedValues(st.payments) {
		if p.BillID == billID {
			ledger = append(ledger, p)
		}
	}
	return ledger, nil
}

type sequenceRepo struct{ get acquire }

func (r *sequenceRepo) Next(_ context.Context, kind domain.SequenceKind, year int) (int64, error) {
	st, release := r.get()
	defer release()

	key := seqKey{kind: kind, year: year}
	st.sequences[key]++
	return st.sequences[key], nil
}
