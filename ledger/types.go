/*
Package ledger implements the transactional core of the point-of-sale
application: checkout, batch reversal, the customer bonus ledger and the
settings that drive cashback computation.

KEY CONCEPTS:
  - Sale: one immutable line item; the Sales created by a single checkout
    share a batch identifier.
  - Delivery: a header row grouping the Sales of an off-premises order.
  - BonusTransaction: append-only debit/accrual history per customer. The
    customer's bonus_points column is a running balance that must always
    equal the signed sum of this history.
  - Batch: all rows written by one checkout; reversal operates on the
    whole batch, never on individual lines.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every monetary computation; rounding
     happens only at the presentation boundary.
  2. Atomicity: every mutating operation runs inside a single store
     transaction (see TxStore in store.go).
  3. Type safety: rows are mapped to these records at the persistence
     boundary; business logic never sees raw columns.

SEE ALSO:
  - engine.go: checkout and reversal orchestration
  - bonus.go: cashback tiers and report windows
  - store/sqlite: the persistence implementation
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleType distinguishes in-store sales from delivery orders.
type SaleType string

const (
	SaleInstore  SaleType = "instore"
	SaleDelivery SaleType = "delivery"
)

// Valid reports whether the sale type is one of the two known values.
func (t SaleType) Valid() bool {
	return t == SaleInstore || t == SaleDelivery
}

// BonusTxType is the direction of a bonus ledger entry.
type BonusTxType string

const (
	BonusAccrual BonusTxType = "accrual"
	BonusDebit   BonusTxType = "debit"
)

func (t BonusTxType) Valid() bool {
	return t == BonusAccrual || t == BonusDebit
}

// ReportPeriod selects the window of a bonus report.
type ReportPeriod string

const (
	PeriodDay   ReportPeriod = "day"
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
)

// =============================================================================
// RECORDS
// =============================================================================

// Category groups products. Deleting a category cascades to its products.
type Category struct {
	ID   int64
	Name string
	Icon string
}

// Product is a catalog entry. Stock and prices are read by the engine at
// checkout time; management is the catalog package's concern.
type Product struct {
	ID            int64
	CategoryID    int64
	Name          string
	Unit          string
	Icon          string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	Stock         decimal.Decimal
}

// Sale is a single line item. Immutable once created; the only mutation
// path is deletion during batch reversal.
type Sale struct {
	ID         int64
	ProductID  int64
	Quantity   decimal.Decimal
	Date       time.Time
	SaleType   SaleType
	DeliveryID *int64
	BatchID    string
	Discount   decimal.Decimal // percent, [0,100]
}

// SaleLine is a sale joined with its product name, used when reporting
// which items a reversal removed.
type SaleLine struct {
	SaleID      int64
	ProductID   int64
	ProductName string
	Quantity    decimal.Decimal
	Discount    decimal.Decimal
}

// Delivery is the header row for an off-premises order. Its lines are the
// Sale rows referencing it.
type Delivery struct {
	ID        int64
	CreatedAt time.Time
}

// Customer carries the derived bonus balance.
type Customer struct {
	ID               int64
	Name             string
	Phone            string
	RegistrationDate time.Time
	BonusPoints      decimal.Decimal
}

// BonusTransaction is one append-only ledger entry. PurchaseAmount is set
// only on accrual rows and records the post-discount, post-debit amount
// the accrual was computed from.
type BonusTransaction struct {
	ID             int64
	CustomerID     int64
	Type           BonusTxType
	Amount         decimal.Decimal
	PurchaseAmount *decimal.Decimal
	Date           time.Time
	DeliveryID     *int64
	BatchID        string
}

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

// CartItem is one line of a checkout request.
type CartItem struct {
	ProductID int64
	Quantity  decimal.Decimal
	Discount  decimal.Decimal
}

// BonusInfo selects the bonus customer for a checkout and how many points
// to spend against the total.
type BonusInfo struct {
	CustomerID  int64
	DebitAmount decimal.Decimal
}

// CheckoutRequest is the full input of one checkout.
type CheckoutRequest struct {
	Items    []CartItem
	Bonus    *BonusInfo
	SaleType SaleType
}

// CheckoutResult reports the identifiers of a committed checkout.
type CheckoutResult struct {
	BatchID    string
	DeliveryID *int64
	Total      decimal.Decimal
}

// UndoResult reports what an undo removed. UndoneItems lists every product
// name in the reversed batch so the caller can tell the user more than one
// line was removed.
type UndoResult struct {
	UndoneBatch bool
	UndoneItems []string
}

// BonusReport aggregates the bonus ledger over a period.
type BonusReport struct {
	Accrued      decimal.Decimal
	Debited      decimal.Decimal
	TotalBalance decimal.Decimal
}

// CustomerDetails is a customer plus the size of their bonus history.
type CustomerDetails struct {
	Customer
	TransactionCount int
}

// PurchaseHistoryEntry is one sale from a customer's purchase history.
type PurchaseHistoryEntry struct {
	Date         time.Time
	BatchID      string
	DeliveryID   *int64
	ProductName  string
	Quantity     decimal.Decimal
	SellingPrice decimal.Decimal
}

// NewBatchID generates a batch identifier unique across all time:
// a millisecond timestamp plus a random suffix. Collisions would silently
// merge two unrelated batches, so the suffix is a full UUID.
func NewBatchID() string {
	return fmt.Sprintf("batch-%d-%s", time.Now().UnixMilli(), uuid.NewString())
}
