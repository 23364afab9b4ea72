// Package memstore is an in-memory implementation of the repository chain
// for service tests. A transaction snapshots the whole store and restores it
// when the callback fails.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

type data struct {
	seq           map[string]int64
	profiles      map[int64]billing.BusinessProfile
	customers     map[int64]identity.Customer
	products      map[int64]identity.Product
	inventories   map[int64]ledger.Inventory
	inventoryLogs map[int64]ledger.InventoryLog
	books         map[int64]ledger.Book
	bookLogs      map[int64]ledger.BookLog
	purchases     map[int64]ledger.PurchaseLog
	invoices      map[int64]billing.Invoice
	quotations    map[int64]quotations.Quotation
	idempotency   map[string]struct{}
	audits        []shared.AuditLog
	seriesClaims  []SeriesClaim
}

func newData() *data {
	return &data{
		seq:           map[string]int64{},
		profiles:      map[int64]billing.BusinessProfile{},
		customers:     map[int64]identity.Customer{},
		products:      map[int64]identity.Product{},
		inventories:   map[int64]ledger.Inventory{},
		inventoryLogs: map[int64]ledger.InventoryLog{},
		books:         map[int64]ledger.Book{},
		bookLogs:      map[int64]ledger.BookLog{},
		purchases:     map[int64]ledger.PurchaseLog{},
		invoices:      map[int64]billing.Invoice{},
		quotations:    map[int64]quotations.Quotation{},
		idempotency:   map[string]struct{}{},
	}
}

func (d *data) clone() *data {
	return &data{
		seq:           maps.Clone(d.seq),
		profiles:      maps.Clone(d.profiles),
		customers:     maps.Clone(d.customers),
		products:      maps.Clone(d.products),
		inventories:   maps.Clone(d.inventories),
		inventoryLogs: maps.Clone(d.inventoryLogs),
		books:         maps.Clone(d.books),
		bookLogs:      maps.Clone(d.bookLogs),
		purchases:     maps.Clone(d.purchases),
		invoices:      maps.Clone(d.invoices),
		quotations:    maps.Clone(d.quotations),
		idempotency:   maps.Clone(d.idempotency),
		audits:        slices.Clone(d.audits),
		seriesClaims:  slices.Clone(d.seriesClaims),
	}
}

func (d *data) next(table string) int64 {
	d.seq[table]++
	return d.seq[table]
}

// Store holds every table in memory. Transactions are serialised.
type Store struct {
	mu     sync.Mutex
	d      *data
	faults map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{d: newData(), faults: map[string]error{}}
}

// Fail makes the named repository method return err until cleared with a nil err.
func (s *Store) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// WithTx runs fn against a snapshot-backed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, quotations.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.d.clone()
	if err := fn(ctx, &Tx{d: s.d, faults: s.faults}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Do runs fn outside any service, for seeding and inspection in tests.
func (s *Store) Do(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{d: s.d, faults: map[string]error{}})
}

// ListTenants returns every tenant owning an inventory or a book.
func (s *Store) ListTenants(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]struct{}{}
	for _, inv := range s.d.inventories {
		seen[inv.TenantID] = struct{}{}
	}
	for _, b := range s.d.books {
		seen[b.TenantID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// Audits returns the recorded audit entries.
func (s *Store) Audits() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.d.audits)
}

// Ledger adapts the store to ledger.RepositoryPort.
func (s *Store) Ledger() LedgerPort { return LedgerPort{s} }

// Identity adapts the store to identity.RepositoryPort.
func (s *Store) Identity() IdentityPort { return IdentityPort{s} }

// Billing adapts the store to billing.RepositoryPort.
func (s *Store) Billing() BillingPort { return BillingPort{s} }

type LedgerPort struct{ s *Store }

func (p LedgerPort) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx quotations.TxRepository) error { return fn(ctx, tx) })
}

func (p LedgerPort) ListTenants(ctx context.Context) ([]int64, error) { return p.s.ListTenants(ctx) }

type IdentityPort struct{ s *Store }

func (p IdentityPort) WithTx(ctx context.Context, fn func(context.Context, identity.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx quotations.TxRepository) error { return fn(ctx, tx) })
}

type BillingPort struct{ s *Store }

func (p BillingPort) WithTx(ctx context.Context, fn func(context.Context, billing.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx quotations.TxRepository) error { return fn(ctx, tx) })
}

// Tx implements quotations.TxRepository and every repository it embeds.
type Tx struct {
	d      *data
	faults map[string]error
}

var _ quotations.TxRepository = (*Tx)(nil)

func (t *Tx) fault(method string) error {
	return t.faults[method]
}

// SetProfile stores a business profile.
func (t *Tx) SetProfile(p billing.BusinessProfile) {
	t.d.profiles[p.TenantID] = p
}

func sortedBy[T any](m map[int64]T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, id := range slices.Sorted(maps.Keys(m)) {
		if keep(m[id]) {
			out = append(out, m[id])
		}
	}
	return out
}
