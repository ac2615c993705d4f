package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/events"
	"utilbill-backend/internal/pricing"
	"utilbill-backend/internal/repository/memory"
	"utilbill-backend/internal/service"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture is one residential electricity customer with an active connection,
// a meter and a 10.00/kWh tariff. The clock starts on 2026-03-01.
type fixture struct {
	t            *testing.T
	store        *memory.Store
	publisher    *recordingPublisher
	now          time.Time
	customerID   int64
	connectionID int64
	meterID      int64
	tariffID     int64
	billingCfg   config.BillingConfig
	lateFees     *pricing.LateFeeCalculator

	billing  service.BillingService
	payments service.PaymentService
	readings service.ReadingService
	sweeper  service.OverdueSweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:         t,
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
		now:       time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC),
		billingCfg: config.BillingConfig{
			DefaultDueDays:      30,
			BillNumberPrefix:    "BILL",
			PaymentNumberPrefix: "PAY",
			BulkConcurrency:     4,
			PendingBatchSize:    100,
		},
		lateFees: pricing.NewLateFeeCalculator(pricing.CappedLateFee{
			Policy: pricing.PercentageLateFee{Percent: dec("2")},
			Max:    dec("500"),
		}, 0),
	}

	f.customerID = f.store.AddCustomer("Ada Lovelace", domain.CustomerClassResidential)
	f.connectionID = f.store.AddConnection(f.customerID, domain.UtilityTypeElectricity, domain.ConnectionStatusActive)
	f.meterID = f.store.AddMeter(f.connectionID, "EL-0001")
	f.tariffID = f.store.AddTariff(domain.TariffPlan{
		UtilityType:   domain.UtilityTypeElectricity,
		CustomerClass: domain.CustomerClassResidential,
		RatePerUnit:   dec("10.00"),
		FixedCharge:   decimal.Zero,
		EffectiveFrom: day(2020, time.January, 1),
		IsActive:      true,
	})

	f.build()
	return f
}

func (f *fixture) clock() time.Time { return f.now }

// build wires the services again, picking up any config change.
func (f *fixture) build() {
	f.billing = service.NewBillingService(f.store, f.billingCfg, f.lateFees, f.publisher, nil, f.clock)
	f.payments = service.NewPaymentService(f.store, f.billingCfg, f.publisher, nil, f.clock)
	f.readings = service.NewReadingService(f.store, f.clock)
	f.sweeper = service.NewOverdueSweeper(f.store, f.billing, f.billingCfg.LateFee.ApplyOnSweep, f.publisher, nil, f.clock)
}

func (f *fixture) addReading(date time.Time, previous, current string, readingType domain.ReadingType) int64 {
	return f.store.AddReading(domain.MeterReading{
		MeterID:       f.meterID,
		ReadingDate:   date,
		ReadingType:   readingType,
		PreviousValue: dec(previous),
		CurrentValue:  dec(current),
		RecordedBy:    "reader-7",
	})
}

// billFor generates the bill of a 200 kWh reading on 2026-02-28: total 2000.00,
// due 2026-03-30.
func (f *fixture) billFor() *domain.Bill {
	f.t.Helper()
	readingID := f.addReading(day(2026, time.February, 28), "1000", "1200", domain.ReadingTypeActual)
	bill, err := f.billing.GenerateBill(context.Background(), service.GenerateBillRequest{ReadingID: readingID})
	require.NoError(f.t, err)
	return bill
}

func (f *fixture) pay(billID int64, amount string) (*domain.Payment, *domain.Bill, error) {
	return f.payments.ApplyPayment(context.Background(), service.ApplyPaymentRequest{
		BillID:     billID,
		Amount:     dec(amount),
		Method:     domain.PaymentMethodCash,
		ReceivedBy: "cashier-1",
	})
}

// requireLedgerConsistent checks that every bill's amount paid equals the sum
// of its completed ledger entries and that outstanding = total - paid.
func (f *fixture) requireLedgerConsistent() {
	f.t.Helper()
	ledgers := map[int64][]domain.Payment{}
	for _, p := range f.store.Payments() {
		ledgers[p.BillID] = append(ledgers[p.BillID], p)
	}
	for _, b := range f.store.Bills() {
		paid := domain.SumCompleted(ledgers[b.ID])
		require.True(f.t, b.AmountPaid.Equal(paid), "bill %s paid %s, ledger %s", b.BillNumber, b.AmountPaid, paid)
		require.True(f.t, b.OutstandingBalance.Equal(b.TotalAmount.Sub(b.AmountPaid)),
			"bill %s outstanding %s != %s - %s", b.BillNumber, b.OutstandingBalance, b.TotalAmount, b.AmountPaid)
	}
}
