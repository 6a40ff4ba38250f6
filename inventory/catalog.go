package inventory

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// PRODUCTS
// =============================================================================

// CreateProduct adds a product to the catalog. An empty ID is generated.
func (r *Reconciler) CreateProduct(ctx context.Context, actor Actor, p Product) (created Product, err error) {
	defer r.track(ctx, "create_product", actor, time.Now(), &err)

	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" {
		p.ID = ProductID(r.newID())
	}
	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := Validate(p); err != nil {
		return Product{}, err
	}

	err = r.atomically(ctx, func(s Store, _ bool) error {
		if _, err := s.GetProduct(ctx, p.ID); err == nil {
			return &ValidationError{Field: "id", Reason: "already exists"}
		} else if !IsNotFound(err) {
			return err
		}
		if _, err := s.GetProductByCode(ctx, p.Code); err == nil {
			return ErrDuplicateCode
		} else if !IsNotFound(err) {
			return err
		}
		return s.PutProduct(ctx, p)
	})
	if err != nil {
		return Product{}, err
	}
	r.publish(ctx, r.event(EventProductCreated, actor, "", p, p.QuantityOnHand))
	return p, nil
}

func (r *Reconciler) GetProduct(ctx context.Context, id ProductID) (Product, error) {
	return r.store.GetProduct(ctx, id)
}

// FindProductByCode looks a product up by its scannable code.
func (r *Reconciler) FindProductByCode(ctx context.Context, code string) (Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Product{}, &ValidationError{Field: "code", Reason: "is required"}
	}
	return r.store.GetProductByCode(ctx, code)
}

func (r *Reconciler) ListProducts(ctx context.Context) ([]Product, error) {
	return r.store.ListProducts(ctx)
}

// DeleteProduct removes a product. Ledger entries that reference it are
// kept and show up in reports without a product name.
func (r *Reconciler) DeleteProduct(ctx context.Context, actor Actor, id ProductID) (err error) {
	defer r.track(ctx, "delete_product", actor, time.Now(), &err)

	p, err := r.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	r.publish(ctx, r.event(EventProductDeleted, actor, "", p, -p.QuantityOnHand))
	return nil
}

// =============================================================================
// SUPPLIERS
// =============================================================================

func (r *Reconciler) CreateSupplier(ctx context.Context, actor Actor, s Supplier) (created Supplier, err error) {
	defer r.track(ctx, "create_supplier", actor, time.Now(), &err)

	s.Name = strings.TrimSpace(s.Name)
	if s.ID == "" {
		s.ID = SupplierID(r.newID())
	}
	if err := Validate(s); err != nil {
		return Supplier{}, err
	}
	if err := r.store.PutSupplier(ctx, s); err != nil {
		return Supplier{}, err
	}
	return s, nil
}

// UpdateSupplier replaces an existing supplier's details.
func (r *Reconciler) UpdateSupplier(ctx context.Context, actor Actor, id SupplierID, s Supplier) (updated Supplier, err error) {
	defer r.track(ctx, "update_supplier", actor, time.Now(), &err)

	s.ID = id
	s.Name = strings.TrimSpace(s.Name)
	if err := Validate(s); err != nil {
		return Supplier{}, err
	}
	if _, err := r.store.GetSupplier(ctx, id); err != nil {
		return Supplier{}, err
	}
	if err := r.store.PutSupplier(ctx, s); err != nil {
		return Supplier{}, err
	}
	return s, nil
}

func (r *Reconciler) GetSupplier(ctx context.Context, id SupplierID) (Supplier, error) {
	return r.store.GetSupplier(ctx, id)
}

func (r *Reconciler) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return r.store.ListSuppliers(ctx)
}

func (r *Reconciler) DeleteSupplier(ctx context.Context, actor Actor, id SupplierID) (err error) {
	defer r.track(ctx, "delete_supplier", actor, time.Now(), &err)
	return r.store.DeleteSupplier(ctx, id)
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

func (r *Reconciler) ListInbound(ctx context.Context, f EntryFilter) ([]InboundEntry, error) {
	return r.store.ListInbound(ctx, f)
}

func (r *Reconciler) ListOutbound(ctx context.Context, f EntryFilter) ([]OutboundEntry, error) {
	return r.store.ListOutbound(ctx, f)
}

func (r *Reconciler) GetInbound(ctx context.Context, id EntryID) (InboundEntry, error) {
	return r.store.GetInbound(ctx, id)
}

func (r *Reconciler) GetOutbound(ctx context.Context, id EntryID) (OutboundEntry, error) {
	return r.store.GetOutbound(ctx, id)
}
