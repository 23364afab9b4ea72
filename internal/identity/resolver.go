package identity

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
)

// Resolver finds or creates ledger subjects inside the caller's transaction.
type Resolver struct {
	normalizer Normalizer
	engine     *ledger.Engine
}

// NewResolver constructs Resolver.
func NewResolver(normalizer Normalizer, engine *ledger.Engine) *Resolver {
	if engine == nil {
		engine = ledger.NewEngine()
	}
	return &Resolver{normalizer: normalizer, engine: engine}
}

// FindOrCreateCustomer matches on name, address, phone and GST and creates the
// customer with its book only on a total miss. More than one match is refused.
func (r *Resolver) FindOrCreateCustomer(ctx context.Context, tx TxRepository, tenantID int64, key CustomerKey) (Customer, bool, error) {
	key = r.normalizer.CustomerKey(key)
	found, err := tx.FindCustomers(ctx, tenantID, key)
	if err != nil {
		return Customer{}, false, fmt.Errorf("find customer: %w", err)
	}
	switch len(found) {
	case 0:
	case 1:
		return found[0], false, nil
	default:
		return Customer{}, false, fmt.Errorf("%w: %q matched %d customers", ErrAmbiguousCustomer, key.Name, len(found))
	}

	c, err := r.createCustomer(ctx, tx, Customer{
		TenantID: tenantID,
		Name:     key.Name,
		Address:  key.Address,
		Phone:    key.Phone,
		GST:      key.GST,
	})
	if err != nil {
		return Customer{}, false, err
	}
	return c, true, nil
}

// RegisterCustomer is the relaxed bulk path: a tenant customer sharing the
// phone, email or GST blocks the insert instead of forking a new row.
func (r *Resolver) RegisterCustomer(ctx context.Context, tx TxRepository, tenantID int64, c Customer) (Customer, error) {
	c = r.normalizer.Customer(c)
	c.TenantID = tenantID
	collides, err := tx.CustomerCollides(ctx, tenantID, c.Phone, c.Email, c.GST)
	if err != nil {
		return Customer{}, fmt.Errorf("check customer collision: %w", err)
	}
	if collides {
		return Customer{}, fmt.Errorf("%w: %q", ErrDuplicateCustomer, c.Name)
	}
	return r.createCustomer(ctx, tx, c)
}

func (r *Resolver) createCustomer(ctx context.Context, tx TxRepository, c Customer) (Customer, error) {
	c, err := tx.InsertCustomer(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	c.UserID = CustomerUserID(c.TenantID, c.ID)
	if err := tx.SetCustomerUserID(ctx, c.TenantID, c.ID, c.UserID); err != nil {
		return Customer{}, fmt.Errorf("set customer userid: %w", err)
	}
	if _, err := tx.CreateBook(ctx, c.TenantID, c.ID); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// FindOrCreateProduct matches on model number, name, HSN and GST percentage.
// A match only has its rate refreshed; a miss creates the product and its inventory.
func (r *Resolver) FindOrCreateProduct(ctx context.Context, tx TxRepository, tenantID int64, p Product) (Product, bool, error) {
	return r.findOrCreateProduct(ctx, tx, tenantID, p, true)
}

// EnsureProduct is FindOrCreateProduct without the rate refresh, for repairs
// that replay an old invoice.
func (r *Resolver) EnsureProduct(ctx context.Context, tx TxRepository, tenantID int64, p Product) (Product, bool, error) {
	return r.findOrCreateProduct(ctx, tx, tenantID, p, false)
}

func (r *Resolver) findOrCreateProduct(ctx context.Context, tx TxRepository, tenantID int64, p Product, refreshRate bool) (Product, bool, error) {
	p = r.normalizer.Product(p)
	p.TenantID = tenantID
	ids, err := tx.FindProductIDs(ctx, tenantID, p.Key())
	if err != nil {
		return Product{}, false, fmt.Errorf("find product: %w", err)
	}
	switch len(ids) {
	case 0:
		created, err := tx.InsertProduct(ctx, p)
		if err != nil {
			return Product{}, false, err
		}
		if _, err := tx.CreateInventory(ctx, tenantID, created.ID, 0); err != nil {
			return Product{}, false, err
		}
		return created, true, nil
	case 1:
		if refreshRate {
			if err := tx.UpdateProductRate(ctx, tenantID, ids[0], p.RateWithGST); err != nil {
				return Product{}, false, fmt.Errorf("update product rate: %w", err)
			}
		}
		p.ID = ids[0]
		return p, false, nil
	default:
		return Product{}, false, fmt.Errorf("%w: model %q matched %d products", ledger.ErrAmbiguousProduct, p.ModelNo, len(ids))
	}
}

// RegisterProduct is the bulk path: an existing model number blocks the
// insert. The inventory is created with the alert level and an optional
// opening stock entry.
func (r *Resolver) RegisterProduct(ctx context.Context, tx TxRepository, tenantID int64, reg ProductRegistration) (Product, error) {
	p := r.normalizer.Product(reg.Product)
	p.TenantID = tenantID
	existing, err := tx.FindProductsByModel(ctx, tenantID, p.ModelNo)
	if err != nil {
		return Product{}, fmt.Errorf("find product by model: %w", err)
	}
	if len(existing) > 0 {
		return Product{}, fmt.Errorf("%w: %q", ErrDuplicateProduct, p.ModelNo)
	}
	p, err = tx.InsertProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	if _, err := tx.CreateInventory(ctx, tenantID, p.ID, reg.AlertLevel); err != nil {
		return Product{}, err
	}
	if reg.InitialStock != 0 {
		_, _, err := r.engine.AddStock(ctx, tx, ledger.StockEntry{
			TenantID:    tenantID,
			ProductID:   p.ID,
			Change:      reg.InitialStock,
			ChangeType:  ledger.InventoryPurchase,
			Description: ledger.DescInitialStock,
		})
		if err != nil {
			return Product{}, err
		}
	}
	return p, nil
}
