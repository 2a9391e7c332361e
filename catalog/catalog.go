/*
Package catalog manages categories and products: the reference data the
transaction engine sells against. It owns naming and pricing rules;
stock movement during checkout and reversal stays with the engine, while
manual stock corrections live here.

RULES:
  - Category names are unique case-insensitively, 1-50 characters.
  - Product names are unique case-insensitively within their category.
  - Prices are non-negative and bounded; a selling price below the
    purchase price is allowed (clearance) but never negative.
*/
package catalog

import (
	"context"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/pos-engine/ledger"
)

var maxPrice = decimal.NewFromInt(999999999)

// Store is the persistence surface for catalog management. The sqlite
// store satisfies it alongside the ledger interfaces.
type Store interface {
	Categories(ctx context.Context) ([]ledger.Category, error)
	CategoryByName(ctx context.Context, name string) (*ledger.Category, error)
	InsertCategory(ctx context.Context, c ledger.Category) (int64, error)
	UpdateCategory(ctx context.Context, c ledger.Category) (int64, error)

	// DeleteCategory cascades to the category's products. Returns the
	// number of category rows removed.
	DeleteCategory(ctx context.Context, id int64) (int64, error)

	// Products lists a category's products, or every product when
	// categoryID is zero.
	Products(ctx context.Context, categoryID int64) ([]ledger.Product, error)
	Product(ctx context.Context, id int64) (*ledger.Product, error)
	ProductByName(ctx context.Context, categoryID int64, name string) (*ledger.Product, error)
	InsertProduct(ctx context.Context, p ledger.Product) (int64, error)
	UpdateProduct(ctx context.Context, p ledger.Product) (int64, error)
	DeleteProduct(ctx context.Context, id int64) (int64, error)

	// AdjustStock applies a signed correction to a product's stock.
	AdjustStock(ctx context.Context, productID int64, delta decimal.Decimal) error
}

// Manager exposes validated catalog operations over a Store.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (m *Manager) Categories(ctx context.Context) ([]ledger.Category, error) {
	return m.store.Categories(ctx)
}

// AddCategory creates a category after checking name rules and
// case-insensitive uniqueness.
func (m *Manager) AddCategory(ctx context.Context, name, icon string) (*ledger.Category, error) {
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return nil, err
	}
	existing, err := m.store.CategoryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ValidationError{Field: "name", Reason: "category already exists"}
	}

	c := ledger.Category{Name: name, Icon: icon}
	c.ID, err = m.store.InsertCategory(ctx, c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RenameCategory updates a category's name and icon. The new name must
// not collide with a different category.
func (m *Manager) RenameCategory(ctx context.Context, id int64, name, icon string) error {
	if id <= 0 {
		return &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	name = strings.TrimSpace(name)
	if err := validateCategoryName(name); err != nil {
		return err
	}
	existing, err := m.store.CategoryByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != id {
		return &ledger.ValidationError{Field: "name", Reason: "category already exists"}
	}

	n, err := m.store.UpdateCategory(ctx, ledger.Category{ID: id, Name: name, Icon: icon})
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

// DeleteCategory removes a category and, by cascade, its products.
func (m *Manager) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	n, err := m.store.DeleteCategory(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (m *Manager) Products(ctx context.Context, categoryID int64) ([]ledger.Product, error) {
	if categoryID < 0 {
		return nil, &ledger.ValidationError{Field: "categoryId", Reason: "must not be negative"}
	}
	return m.store.Products(ctx, categoryID)
}

func (m *Manager) Product(ctx context.Context, id int64) (*ledger.Product, error) {
	if id <= 0 {
		return nil, &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	p, err := m.store.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &ledger.NotFoundError{Kind: "product", ID: id}
	}
	return p, nil
}

// AddProduct creates a product in a category. The name must be unique
// within the category, case-insensitively.
func (m *Manager) AddProduct(ctx context.Context, p ledger.Product) (*ledger.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	existing, err := m.store.ProductByName(ctx, p.CategoryID, p.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ValidationError{Field: "name", Reason: "product already exists in this category"}
	}

	p.ID, err = m.store.InsertProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct replaces a product's fields. Stock is not touched here;
// use AdjustStock for corrections.
func (m *Manager) UpdateProduct(ctx context.Context, p ledger.Product) error {
	if p.ID <= 0 {
		return &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := validateProduct(p); err != nil {
		return err
	}
	existing, err := m.store.ProductByName(ctx, p.CategoryID, p.Name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != p.ID {
		return &ledger.ValidationError{Field: "name", Reason: "product already exists in this category"}
	}

	n, err := m.store.UpdateProduct(ctx, p)
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "product", ID: p.ID}
	}
	return nil
}

func (m *Manager) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ledger.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	n, err := m.store.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "product", ID: id}
	}
	return nil
}

// AdjustStock applies a signed manual correction (received goods,
// shrinkage). The resulting stock must not go negative; the store
// enforces that with the same check checkout uses.
func (m *Manager) AdjustStock(ctx context.Context, productID int64, delta decimal.Decimal) (*ledger.Product, error) {
	if productID <= 0 {
		return nil, &ledger.ValidationError{Field: "productId", Reason: "must be a positive integer"}
	}
	if delta.IsZero() {
		return nil, &ledger.ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	if err := m.store.AdjustStock(ctx, productID, delta); err != nil {
		return nil, err
	}
	return m.Product(ctx, productID)
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateCategoryName(name string) error {
	if name == "" {
		return &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len([]rune(name)) > 50 {
		return &ledger.ValidationError{Field: "name", Reason: "must be at most 50 characters"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &ledger.ValidationError{Field: "name", Reason: "must not contain control characters"}
		}
	}
	return nil
}

func validateProduct(p ledger.Product) error {
	if p.CategoryID <= 0 {
		return &ledger.ValidationError{Field: "categoryId", Reason: "must be a positive integer"}
	}
	if p.Name == "" {
		return &ledger.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len([]rune(p.Name)) > 100 {
		return &ledger.ValidationError{Field: "name", Reason: "must be at most 100 characters"}
	}
	unit := strings.TrimSpace(p.Unit)
	if unit == "" || len([]rune(unit)) > 20 {
		return &ledger.ValidationError{Field: "unit", Reason: "must be 1-20 characters"}
	}
	for _, price := range []struct {
		field string
		value decimal.Decimal
	}{
		{"purchasePrice", p.PurchasePrice},
		{"sellingPrice", p.SellingPrice},
	} {
		if price.value.IsNegative() || price.value.GreaterThan(maxPrice) {
			return &ledger.ValidationError{Field: price.field, Reason: "must be between 0 and 999999999"}
		}
	}
	if p.Stock.IsNegative() {
		return &ledger.ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}
