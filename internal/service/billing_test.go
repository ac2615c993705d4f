package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/service"
)

func TestGenerateBill(t *testing.T) {
	ctx := context.Background()

	t.Run("Prices consumption against the tariff", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()

		assert.Equal(t, "BILL-2026-0001", bill.BillNumber)
		assert.Equal(t, f.customerID, bill.CustomerID)
		assert.Equal(t, f.connectionID, bill.ConnectionID)
		assert.Equal(t, f.tariffID, bill.TariffID)
		assert.True(t, bill.Consumption.Equal(dec("200")))
		assert.True(t, bill.ConsumptionCharge.Equal(dec("2000")))
		assert.True(t, bill.TotalAmount.Equal(dec("2000")))
		assert.True(t, bill.OutstandingBalance.Equal(dec("2000")))
		assert.True(t, bill.AmountPaid.IsZero())
		assert.True(t, bill.LateFee.IsZero())
		assert.Equal(t, domain.BillStatusUnpaid, bill.Status)
		assert.Equal(t, day(2026, time.March, 1), bill.BillDate)
		assert.Equal(t, day(2026, time.March, 30), bill.DueDate)
		assert.Equal(t, day(2026, time.January, 28), bill.PeriodStart)
		assert.Equal(t, day(2026, time.February, 28), bill.PeriodEnd)
		assert.Equal(t, []events.EventType{events.BillGenerated}, f.publisher.types())
	})

	t.Run("Period starts at the previous reading", func(t *testing.T) {
		f := newFixture(t)
		f.addReading(day(2026, time.January, 31), "900", "1000", domain.ReadingTypeActual)
		bill := f.billFor()

		assert.Equal(t, day(2026, time.January, 31), bill.PeriodStart)
	})

	t.Run("Bill numbers are sequential", func(t *testing.T) {
		f := newFixture(t)
		first := f.addReading(day(2026, time.January, 31), "900", "1000", domain.ReadingTypeActual)
		b1, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: first})
		require.NoError(t, err)
		b2 := f.billFor()

		assert.Equal(t, "BILL-2026-0001", b1.BillNumber)
		assert.Equal(t, "BILL-2026-0002", b2.BillNumber)
	})

	t.Run("Second generation is rejected", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: bill.ReadingID})
		assert.ErrorIs(t, err, domain.ErrBillAlreadyExists)
		assert.Len(t, f.store.Bills(), 1)
	})

	t.Run("Unknown reading", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: 999})
		assert.ErrorIs(t, err, domain.ErrReadingNotFound)
	})

	t.Run("Estimated reading is not billable by default", func(t *testing.T) {
		f := newFixture(t)
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeEstimated)

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		assert.ErrorIs(t, err, domain.ErrReadingNotBillable)
		assert.True(t, domain.IsConsistencyError(err))
	})

	t.Run("Estimated reading billable when configured", func(t *testing.T) {
		f := newFixture(t)
		f.billingCfg.BillableReadingTypes = []string{"estimated"}
		f.build()
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeEstimated)

		bill, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		require.NoError(t, err)
		assert.True(t, bill.TotalAmount.Equal(dec("1000")))
	})

	t.Run("Inactive connection", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetConnectionStatus(f.connectionID, domain.ConnectionStatusSuspended)
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeActual)

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		assert.ErrorIs(t, err, domain.ErrConnectionNotActive)
		assert.Empty(t, f.store.Bills())
	})

	t.Run("Negative consumption", func(t *testing.T) {
		f := newFixture(t)
		id := f.addReading(day(2026, time.February, 28), "500", "400", domain.ReadingTypeActual)

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		assert.ErrorIs(t, err, domain.ErrNegativeConsumption)
	})

	t.Run("No applicable tariff", func(t *testing.T) {
		f := newFixture(t)
		customer := f.store.AddCustomer("Acme Ltd", domain.CustomerClassCommercial)
		conn := f.store.AddConnection(customer, domain.UtilityTypeElectricity, domain.ConnectionStatusActive)
		meter := f.store.AddMeter(conn, "EL-0002")
		id := f.store.AddReading(domain.MeterReading{
			MeterID: meter, ReadingDate: day(2026, time.February, 28), ReadingType: domain.ReadingTypeActual,
			PreviousValue: dec("0"), CurrentValue: dec("10"), RecordedBy: "reader-7",
		})

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		assert.ErrorIs(t, err, domain.ErrNoApplicableTariff)
		assert.Empty(t, f.publisher.types())
	})

	t.Run("Ambiguous tariff", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddTariff(domain.TariffPlan{
			UtilityType:   domain.UtilityTypeElectricity,
			CustomerClass: domain.CustomerClassResidential,
			RatePerUnit:   dec("12.00"),
			FixedCharge:   dec("50.00"),
			EffectiveFrom: day(2025, time.June, 1),
			IsActive:      true,
		})
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeActual)

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		assert.ErrorIs(t, err, domain.ErrAmbiguousTariff)
	})

	t.Run("Expired tariff is ignored", func(t *testing.T) {
		f := newFixture(t)
		ended := day(2025, time.December, 31)
		f.store.AddTariff(domain.TariffPlan{
			UtilityType:   domain.UtilityTypeElectricity,
			CustomerClass: domain.CustomerClassResidential,
			RatePerUnit:   dec("7.00"),
			EffectiveFrom: day(2024, time.January, 1),
			EffectiveTo:   &ended,
			IsActive:      true,
		})
		bill := f.billFor()
		assert.Equal(t, f.tariffID, bill.TariffID)
	})

	t.Run("Supplied due date", func(t *testing.T) {
		f := newFixture(t)
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeActual)
		due := day(2026, time.March, 15)

		bill, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id, DueDate: &due})
		require.NoError(t, err)
		assert.Equal(t, due, bill.DueDate)
	})

	t.Run("Due date before the reading", func(t *testing.T) {
		f := newFixture(t)
		id := f.addReading(day(2026, time.February, 28), "0", "100", domain.ReadingTypeActual)
		due := day(2026, time.February, 1)

		_, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id, DueDate: &due})
		assert.ErrorIs(t, err, domain.ErrInvalidDueDate)
		assert.Empty(t, f.store.Bills())
	})

	t.Run("Fixed charge is added and snapshotted", func(t *testing.T) {
		f := newFixture(t)
		customer := f.store.AddCustomer("Acme Ltd", domain.CustomerClassCommercial)
		conn := f.store.AddConnection(customer, domain.UtilityTypeElectricity, domain.ConnectionStatusActive)
		meter := f.store.AddMeter(conn, "EL-0002")
		tariff := f.store.AddTariff(domain.TariffPlan{
			UtilityType:   domain.UtilityTypeElectricity,
			CustomerClass: domain.CustomerClassCommercial,
			RatePerUnit:   dec("10.00"),
			FixedCharge:   dec("500.00"),
			EffectiveFrom: day(2020, time.January, 1),
			IsActive:      true,
		})
		id := f.store.AddReading(domain.MeterReading{
			MeterID: meter, ReadingDate: day(2026, time.February, 28), ReadingType: domain.ReadingTypeActual,
			PreviousValue: dec("100"), CurrentValue: dec("250"), RecordedBy: "reader-7",
		})

		bill, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		require.NoError(t, err)
		assert.Equal(t, tariff, bill.TariffID)
		assert.True(t, bill.Consumption.Equal(dec("150")))
		assert.True(t, bill.RatePerUnit.Equal(dec("10")))
		assert.True(t, bill.FixedCharge.Equal(dec("500")))
		assert.True(t, bill.ConsumptionCharge.Equal(dec("1500")))
		assert.True(t, bill.TotalAmount.Equal(dec("2000")))
		assert.True(t, bill.OutstandingBalance.Equal(dec("2000")))
		assert.Equal(t, domain.BillStatusUnpaid, bill.Status)
	})

	t.Run("Nothing to pay is issued paid", func(t *testing.T) {
		f := newFixture(t)
		id := f.addReading(day(2026, time.February, 28), "1000", "1000", domain.ReadingTypeActual)

		bill, err := f.billing.GenerateBill(ctx, service.GenerateBillRequest{ReadingID: id})
		require.NoError(t, err)
		assert.True(t, bill.TotalAmount.IsZero())
		assert.True(t, bill.OutstandingBalance.IsZero())
		assert.Equal(t, domain.BillStatusPaid, bill.Status)

		result, err := f.sweeper.Sweep(ctx, day(2026, time.May, 1))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Candidates)

		_, _, err = f.pay(bill.ID, "1")
		assert.ErrorIs(t, err, domain.ErrBillAlreadySettled)
	})
}

func TestGenerateBill_ConcurrentCallsCreateOneBill(t *testing.T) {
	f := newFixture(t)
	id := f.addReading(day(2026, time.February, 28), "1000", "1200", domain.ReadingTypeActual)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.billing.GenerateBill(context.Background(), service.GenerateBillRequest{ReadingID: id})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrBillAlreadyExists)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.store.Bills(), 1)
}

func TestGenerateBills(t *testing.T) {
	f := newFixture(t)
	ok := f.addReading(day(2026, time.January, 31), "0", "100", domain.ReadingTypeActual)
	estimated := f.addReading(day(2026, time.February, 28), "100", "150", domain.ReadingTypeEstimated)

	results := f.billing.GenerateBills(context.Background(), []int64{ok, estimated, 4242})
	require.Len(t, results, 3)

	assert.Equal(t, ok, results[0].ReadingID)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Bill.TotalAmount.Equal(dec("1000")))

	assert.ErrorIs(t, results[1].Err, domain.ErrReadingNotBillable)
	assert.NotEmpty(t, results[1].Error)
	assert.Nil(t, results[1].Bill)

	assert.ErrorIs(t, results[2].Err, domain.ErrReadingNotFound)
}

func TestGeneratePendingBills(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addReading(day(2026, time.January, 31), "0", "100", domain.ReadingTypeActual)
	f.addReading(day(2026, time.February, 28), "100", "250", domain.ReadingTypeActual)
	f.addReading(day(2026, time.February, 27), "0", "10", domain.ReadingTypeCustomerSubmitted)

	suspended := f.store.AddConnection(f.customerID, domain.UtilityTypeElectricity, domain.ConnectionStatusSuspended)
	meter := f.store.AddMeter(suspended, "EL-0099")
	f.store.AddReading(domain.MeterReading{
		MeterID: meter, ReadingDate: day(2026, time.February, 28), ReadingType: domain.ReadingTypeActual,
		PreviousValue: dec("0"), CurrentValue: dec("10"), RecordedBy: "reader-7",
	})

	summary, err := f.billing.GeneratePendingBills(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Generated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)

	numbers := map[string]bool{}
	for _, b := range f.store.Bills() {
		numbers[b.BillNumber] = true
	}
	assert.Len(t, numbers, 2)

	again, err := f.billing.GeneratePendingBills(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Attempted)
	assert.Equal(t, 0, again.Generated)
	assert.Equal(t, 1, again.Failed)
}

func TestLateFee(t *testing.T) {
	ctx := context.Background()

	t.Run("Preview before the due date is zero", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()

		fee, err := f.billing.PreviewLateFee(ctx, bill.ID, day(2026, time.March, 30))
		require.NoError(t, err)
		assert.True(t, fee.IsZero())
	})

	t.Run("Apply is idempotent for the same day", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()
		asOf := day(2026, time.April, 10)

		fee, err := f.billing.PreviewLateFee(ctx, bill.ID, asOf)
		require.NoError(t, err)
		assert.True(t, fee.Equal(dec("40")))

		updated, changed, err := f.billing.ApplyLateFee(ctx, bill.ID, asOf)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, updated.LateFee.Equal(dec("40")))
		assert.True(t, updated.TotalAmount.Equal(dec("2040")))
		assert.True(t, updated.OutstandingBalance.Equal(dec("2040")))

		again, changed, err := f.billing.ApplyLateFee(ctx, bill.ID, asOf)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, again.TotalAmount.Equal(dec("2040")))
		assert.Equal(t, []events.EventType{events.BillGenerated, events.BillLateFeeApplied}, f.publisher.types())
		f.requireLedgerConsistent()
	})

	t.Run("Fee never compounds or shrinks", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()
		asOf := day(2026, time.April, 10)

		_, _, err := f.billing.ApplyLateFee(ctx, bill.ID, asOf)
		require.NoError(t, err)
		_, after, err := f.pay(bill.ID, "800")
		require.NoError(t, err)
		assert.True(t, after.OutstandingBalance.Equal(dec("1240")))

		// Principal is now 1200, so 2% is 24, below the 40 already applied.
		updated, changed, err := f.billing.ApplyLateFee(ctx, bill.ID, asOf.AddDate(0, 0, 5))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, updated.LateFee.Equal(dec("40")))
		f.requireLedgerConsistent()
	})

	t.Run("Paid bill owes nothing", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()
		_, _, err := f.pay(bill.ID, "2000")
		require.NoError(t, err)

		fee, err := f.billing.PreviewLateFee(ctx, bill.ID, day(2026, time.June, 1))
		require.NoError(t, err)
		assert.True(t, fee.IsZero())

		_, changed, err := f.billing.ApplyLateFee(ctx, bill.ID, day(2026, time.June, 1))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Overdue bill stays overdue", func(t *testing.T) {
		f := newFixture(t)
		bill := f.billFor()
		_, _, err := f.pay(bill.ID, "800")
		require.NoError(t, err)
		_, err = f.sweeper.Sweep(ctx, day(2026, time.April, 10))
		require.NoError(t, err)

		updated, changed, err := f.billing.ApplyLateFee(ctx, bill.ID, day(2026, time.April, 10))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, updated.LateFee.Equal(dec("24")))
		assert.True(t, updated.OutstandingBalance.Equal(dec("1224")))
		assert.Equal(t, domain.BillStatusOverdue, updated.Status)
	})

	t.Run("Unknown bill", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.billing.ApplyLateFee(ctx, 12345, day(2026, time.June, 1))
		assert.ErrorIs(t, err, domain.ErrBillNotFound)
	})
}

func TestListPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := f.billFor()
	_, _, err := f.pay(bill.ID, "500")
	require.NoError(t, err)
	_, _, err = f.pay(bill.ID, "250.50")
	require.NoError(t, err)

	ledger, err := f.billing.ListPayments(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "PAY-2026-000001", ledger[0].PaymentNumber)
	assert.Equal(t, "PAY-2026-000002", ledger[1].PaymentNumber)

	_, err = f.billing.ListPayments(ctx, 777)
	assert.ErrorIs(t, err, domain.ErrBillNotFound)
}
