package memstore

import (
	"context"
	"slices"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
)

// SetProfile stores the business profile of a tenant.
func (s *Store) SetProfile(p billing.BusinessProfile) {
	s.Do(func(tx *Tx) { tx.SetProfile(p) })
}

// AddCustomer inserts a customer as-is.
func (s *Store) AddCustomer(c identity.Customer) identity.Customer {
	s.Do(func(tx *Tx) { c, _ = tx.InsertCustomer(context.Background(), c) })
	return c
}

// AddProduct inserts a product as-is.
func (s *Store) AddProduct(p identity.Product) identity.Product {
	s.Do(func(tx *Tx) { p, _ = tx.InsertProduct(context.Background(), p) })
	return p
}

// AddBook opens an empty book for a customer.
func (s *Store) AddBook(tenantID, customerID int64) ledger.Book {
	var b ledger.Book
	s.Do(func(tx *Tx) { b, _ = tx.CreateBook(context.Background(), tenantID, customerID) })
	return b
}

// AddInventory opens an empty inventory for a product.
func (s *Store) AddInventory(tenantID, productID, alertLevel int64) ledger.Inventory {
	var inv ledger.Inventory
	s.Do(func(tx *Tx) { inv, _ = tx.CreateInventory(context.Background(), tenantID, productID, alertLevel) })
	return inv
}

// Inventory returns the cached inventory of a product.
func (s *Store) Inventory(tenantID, productID int64) (ledger.Inventory, bool) {
	var (
		inv ledger.Inventory
		ok  bool
	)
	s.Do(func(tx *Tx) { inv, ok = tx.inventory(tenantID, productID) })
	return inv, ok
}

// Book returns the cached book of a customer.
func (s *Store) Book(tenantID, customerID int64) (ledger.Book, bool) {
	var (
		b   ledger.Book
		err error
	)
	s.Do(func(tx *Tx) { b, err = tx.GetBookByCustomerForUpdate(context.Background(), tenantID, customerID) })
	return b, err == nil
}

// InventoryLogs returns the entries of a product.
func (s *Store) InventoryLogs(tenantID, productID int64) []ledger.InventoryLog {
	var logs []ledger.InventoryLog
	s.Do(func(tx *Tx) { logs, _ = tx.ListInventoryLogs(context.Background(), tenantID, productID) })
	return logs
}

// BookLogs returns the entries of a book.
func (s *Store) BookLogs(tenantID, bookID int64) []ledger.BookLog {
	var logs []ledger.BookLog
	s.Do(func(tx *Tx) { logs, _ = tx.ListBookLogs(context.Background(), tenantID, bookID) })
	return logs
}

// Customers returns the customers of a tenant by id.
func (s *Store) Customers(tenantID int64) []identity.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBy(s.d.customers, func(c identity.Customer) bool { return c.TenantID == tenantID })
}

// Products returns the products of a tenant by id.
func (s *Store) Products(tenantID int64) []identity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBy(s.d.products, func(p identity.Product) bool { return p.TenantID == tenantID })
}

// SeriesClaim is one committed claim on a numbering series.
type SeriesClaim struct {
	Key    string
	Number int64
}

// SeriesClaims returns the committed series claims, in order.
func (s *Store) SeriesClaims() []SeriesClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.d.seriesClaims)
}
