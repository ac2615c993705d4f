// Package memory is an in-process repository.Store used as the test store for
// service and job tests. It is not wired into any binary. Transactions are fully serialized: WithinTx holds the store
// lock, works on a private copy of the data and swaps it in on success.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"utilbill-backend/internal/domain"
	"utilbill-backend/internal/repository"
)

type seqKey struct {
	kind domain.SequenceKind
	year int
}

type state struct {
	customers   map[int64]domain.Customer
	connections map[int64]domain.ServiceConnection
	meters      map[int64]domain.Meter
	tariffs     map[int64]domain.TariffPlan
	readings    map[int64]domain.MeterReading
	bills       map[int64]domain.Bill
	payments    map[int64]domain.Payment
	sequences   map[seqKey]int64
	lastID      int64
}

func newState() *state {
	return &state{
		customers:   map[int64]domain.Customer{},
		connections: map[int64]domain.ServiceConnection{},
		meters:      map[int64]domain.Meter{},
		tariffs:     map[int64]domain.TariffPlan{},
		readings:    map[int64]domain.MeterReading{},
		bills:       map[int64]domain.Bill{},
		payments:    map[int64]domain.Payment{},
		sequences:   map[seqKey]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		customers:   maps.Clone(s.customers),
		connections: maps.Clone(s.connections),
		meters:      maps.Clone(s.meters),
		tariffs:     maps.Clone(s.tariffs),
		readings:    maps.Clone(s.readings),
		bills:       maps.Clone(s.bills),
		payments:    maps.Clone(s.payments),
		sequences:   maps.Clone(s.sequences),
		lastID:      s.lastID,
	}
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// Repos returns auto-committing repositories. It must not be called from
// inside a WithinTx callback.
func (s *Store) Repos() repository.Repositories {
	return newRepositories(func() (*state, func()) {
		s.mu.Lock()
		return s.st, s.mu.Unlock
	})
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	repos := newRepositories(func() (*state, func()) { return work, func() {} })
	if err := fn(repos); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddCustomer seeds an upstream customer record and returns its id.
func (s *Store) AddCustomer(name string, class domain.CustomerClass) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.nextID()
	s.st.customers[id] = domain.Customer{ID: id, Name: name, CustomerType: class}
	return id
}

func (s *Store) AddConnection(customerID int64, utility domain.UtilityType, status domain.ConnectionStatus) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.nextID()
	s.st.connections[id] = domain.ServiceConnection{ID: id, CustomerID: customerID, UtilityType: utility, Status: status}
	return id
}

// SetConnectionStatus changes the status of a seeded connection.
func (s *Store) SetConnectionStatus(connectionID int64, status domain.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.st.connections[connectionID]
	c.Status = status
	s.st.connections[connectionID] = c
}

func (s *Store) AddMeter(connectionID int64, serial string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.nextID()
	s.st.meters[id] = domain.Meter{ID: id, ConnectionID: connectionID, SerialNumber: serial}
	return id
}

func (s *Store) AddTariff(t domain.TariffPlan) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.st.nextID()
	s.st.tariffs[t.ID] = t
	return t.ID
}

// AddReading stores a reading without any validation, as an upstream
// collector would.
func (s *Store) AddReading(r domain.MeterReading) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.st.nextID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.st.readings[r.ID] = r
	return r.ID
}

// Payments returns a snapshot of every ledger entry, in id order.
func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.payments)
}

// Bills returns a snapshot of every bill, in id order.
func (s *Store) Bills() []domain.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.bills)
}
