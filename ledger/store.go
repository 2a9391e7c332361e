/*
store.go - Persistence interface between the engine and the database

PURPOSE:
  Defines what the engine needs from storage. The sqlite implementation
  satisfies both interfaces; inside WithTx the engine receives a Store
  bound to the open database transaction, so every read (including the
  balance read before a debit) and every write commit or roll back
  together.

ATOMICITY CONTRACT:
  WithTx is the only transaction concept in the system. The store
  serializes writers, so a balance read-modify-write inside one WithTx
  call can never interleave with another checkout for the same customer.

SEE ALSO:
  - engine.go: the only caller of the mutating methods
  - store/sqlite/sqlite.go: concrete implementation
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the row-level persistence surface the engine operates on.
// Implementations map rows to the typed records in types.go; untyped rows
// never cross this boundary.
type Store interface {
	// Product returns the product or nil if it no longer exists.
	Product(ctx context.Context, id int64) (*Product, error)

	// DecrementStock checks then decrements a product's stock inside the
	// current transaction. Returns InsufficientStockError when qty exceeds
	// the available stock.
	DecrementStock(ctx context.Context, productID int64, qty decimal.Decimal) error

	// IncrementStock restores stock during reversal.
	IncrementStock(ctx context.Context, productID int64, qty decimal.Decimal) error

	InsertSale(ctx context.Context, sale Sale) (int64, error)

	// LastSale returns the most recent sale for a product and sale type,
	// or nil if none exists.
	LastSale(ctx context.Context, productID int64, saleType SaleType) (*Sale, error)

	// SalesByBatch and SalesByDelivery return the line items of a batch or
	// delivery joined with product names, in insertion order.
	SalesByBatch(ctx context.Context, batchID string) ([]SaleLine, error)
	SalesByDelivery(ctx context.Context, deliveryID int64) ([]SaleLine, error)

	// BatchIDsByDelivery returns the distinct non-empty batch identifiers
	// among a delivery's sales.
	BatchIDsByDelivery(ctx context.Context, deliveryID int64) ([]string, error)

	DeleteSale(ctx context.Context, id int64) error
	DeleteSalesByBatch(ctx context.Context, batchID string) error
	DeleteSalesByDelivery(ctx context.Context, deliveryID int64) error

	InsertDelivery(ctx context.Context, createdAt time.Time) (int64, error)

	// DeleteDelivery returns the number of rows removed; zero means the
	// delivery did not exist.
	DeleteDelivery(ctx context.Context, id int64) (int64, error)

	Customer(ctx context.Context, id int64) (*Customer, error)
	CustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	InsertCustomer(ctx context.Context, c Customer) (int64, error)

	// SetCustomerBonus overwrites the running balance.
	SetCustomerBonus(ctx context.Context, customerID int64, points decimal.Decimal) error

	// AddCustomerBonus adjusts the running balance by a signed delta.
	AddCustomerBonus(ctx context.Context, customerID int64, delta decimal.Decimal) error

	InsertBonusTransaction(ctx context.Context, tx BonusTransaction) (int64, error)

	// BonusTransactionsForBatch returns the bonus rows whose delivery_id
	// matches (when non-nil) or whose batch_id is in batchIDs, deduplicated
	// by row id. DeleteBonusTransactionsForBatch removes the same set.
	BonusTransactionsForBatch(ctx context.Context, deliveryID *int64, batchIDs []string) ([]BonusTransaction, error)
	DeleteBonusTransactionsForBatch(ctx context.Context, deliveryID *int64, batchIDs []string) error

	BonusTransactionsByCustomer(ctx context.Context, customerID int64) ([]BonusTransaction, error)
	CountBonusTransactions(ctx context.Context, customerID int64) (int, error)

	// MonthlySpend sums purchase_amount over accrual rows in [from, to].
	MonthlySpend(ctx context.Context, customerID int64, from, to time.Time) (decimal.Decimal, error)

	// SumBonusAmount sums amount over rows of one type in [from, to].
	SumBonusAmount(ctx context.Context, txType BonusTxType, from, to time.Time) (decimal.Decimal, error)

	// TotalBonusBalance sums every customer's current balance.
	TotalBonusBalance(ctx context.Context) (decimal.Decimal, error)

	// PurchaseHistory returns the sales reachable from a customer's bonus
	// history via batch or delivery identifiers, newest first.
	PurchaseHistory(ctx context.Context, customerID int64) ([]PurchaseHistoryEntry, error)

	// Setting returns (value, true) when the key is set.
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// TxStore extends Store with the atomic unit every mutating engine
// operation runs in. If fn returns an error the transaction rolls back and
// no write from the call is retained.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
