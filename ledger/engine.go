/*
engine.go - Transaction engine: checkout and compensating reversal

PURPOSE:
  Orchestrates the atomic multi-table writes of the ledger. A checkout
  writes Sales (optionally under a Delivery header), decrements stock,
  records bonus debit and accrual, and updates the customer balance - all
  inside one store transaction. Reversal reads the affected rows back,
  computes the inverse bonus adjustment, restores stock and deletes the
  rows in another single transaction.

INVARIANTS:
  - A customer's bonus_points always equals the signed sum of their
    BonusTransactions (accrual: +amount, debit: -amount).
  - The balance never goes negative; every debit is pre-checked inside
    the same transaction that performs it.
  - Partial effects are never observable: any failure rolls back every
    row written by the call.

ORDERING:
  Sale rows are inserted in cart order. The bonus debit is recorded
  strictly before the accrual; the reversal sums by type, so it is
  correct regardless of read-back order.

SEE ALSO:
  - bonus.go: tier selection used by step 5 of checkout
  - store/sqlite/sqlite.go: the transaction mechanism
*/
package ledger

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Engine coordinates ledger operations over a transactional store.
// It holds no mutable state of its own, so the store handle can be
// swapped between operations (after a restore) by constructing a new
// Engine - nothing is cached across calls.
type Engine struct {
	store TxStore
	now   func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store TxStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewEngineWithClock creates an engine with a fixed clock, for tests.
func NewEngineWithClock(store TxStore, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

// =============================================================================
// CHECKOUT
// =============================================================================

// Checkout turns a cart into a sale batch. On success every Sale row,
// the optional Delivery header, the bonus rows and the balance update
// are committed together; on any failure nothing is retained.
func (e *Engine) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	batchID := NewBatchID()
	result := &CheckoutResult{BatchID: batchID}

	err := e.store.WithTx(ctx, func(s Store) error {
		now := e.now()

		maxDiscount, hasMax, err := maxDiscount(ctx, s)
		if err != nil {
			return err
		}
		if hasMax {
			for i, item := range req.Items {
				if item.Discount.GreaterThan(maxDiscount) {
					return &ValidationError{
						Field:  fieldAt("items", i, "discount"),
						Reason: "exceeds the configured maximum discount",
					}
				}
			}
		}

		var deliveryID *int64
		if req.SaleType == SaleDelivery {
			id, err := s.InsertDelivery(ctx, now)
			if err != nil {
				return err
			}
			deliveryID = &id
		}

		total := decimal.Zero
		for _, item := range req.Items {
			product, err := s.Product(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				// A vanished product mid-checkout indicates data corruption;
				// abort the whole batch rather than skip the line.
				return &NotFoundError{Kind: "product", ID: item.ProductID}
			}

			if err := s.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}

			if _, err := s.InsertSale(ctx, Sale{
				ProductID:  item.ProductID,
				Quantity:   item.Quantity,
				Date:       now,
				SaleType:   req.SaleType,
				DeliveryID: deliveryID,
				BatchID:    batchID,
				Discount:   item.Discount,
			}); err != nil {
				return err
			}

			line := product.SellingPrice.
				Mul(item.Quantity).
				Mul(hundred.Sub(item.Discount)).
				Div(hundred)
			total = total.Add(line)
		}

		if req.Bonus != nil {
			if err := e.applyBonus(ctx, s, *req.Bonus, total, batchID, deliveryID, now); err != nil {
				return err
			}
		}

		result.DeliveryID = deliveryID
		result.Total = total
		return nil
	})
	if err != nil {
		log.Printf("checkout failed batch=%s: %v", batchID, err)
		return nil, err
	}
	return result, nil
}

// applyBonus performs step 5 of checkout: debit first, then accrual at
// the applicable tier, then one balance write. Runs inside the checkout's
// transaction so the balance read cannot race another checkout.
func (e *Engine) applyBonus(ctx context.Context, s Store, info BonusInfo, total decimal.Decimal, batchID string, deliveryID *int64, now time.Time) error {
	customer, err := s.Customer(ctx, info.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return &NotFoundError{Kind: "customer", ID: info.CustomerID}
	}

	balance := customer.BonusPoints

	if info.DebitAmount.IsPositive() {
		if info.DebitAmount.GreaterThan(balance) {
			return &InsufficientBonusError{
				CustomerID: info.CustomerID,
				Available:  balance,
				Requested:  info.DebitAmount,
			}
		}
		if _, err := s.InsertBonusTransaction(ctx, BonusTransaction{
			CustomerID: info.CustomerID,
			Type:       BonusDebit,
			Amount:     info.DebitAmount,
			Date:       now,
			DeliveryID: deliveryID,
			BatchID:    batchID,
		}); err != nil {
			return err
		}
		balance = balance.Sub(info.DebitAmount)
	}

	amountForAccrual := total.Sub(info.DebitAmount)
	if amountForAccrual.IsPositive() {
		percent, err := cashbackPercent(ctx, s, info.CustomerID, now)
		if err != nil {
			return err
		}
		accrual := amountForAccrual.Mul(percent).Div(hundred)
		if accrual.IsPositive() {
			purchase := amountForAccrual
			if _, err := s.InsertBonusTransaction(ctx, BonusTransaction{
				CustomerID:     info.CustomerID,
				Type:           BonusAccrual,
				Amount:         accrual,
				PurchaseAmount: &purchase,
				Date:           now,
				DeliveryID:     deliveryID,
				BatchID:        batchID,
			}); err != nil {
				return err
			}
			balance = balance.Add(accrual)
		}
	}

	return s.SetCustomerBonus(ctx, info.CustomerID, balance)
}

// =============================================================================
// REVERSAL
// =============================================================================

// CancelDelivery reverses an entire delivery: bonus rows matched by
// delivery_id or any of the delivery's batch identifiers are summed and
// deleted, the customer's balance is restored, stock is returned, and the
// Sale rows plus the Delivery header are removed. Cancelling a delivery
// that does not exist reports NotFoundError, never silent success.
func (e *Engine) CancelDelivery(ctx context.Context, deliveryID int64) error {
	if deliveryID <= 0 {
		return &ValidationError{Field: "deliveryId", Reason: "must be a positive integer"}
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		// Historical data occasionally lacks one key or the other, so the
		// reversal matches on both delivery_id and the batch set.
		batchIDs, err := s.BatchIDsByDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}

		if err := reverseBonus(ctx, s, &deliveryID, batchIDs); err != nil {
			return err
		}

		lines, err := s.SalesByDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if err := restoreStock(ctx, s, lines); err != nil {
			return err
		}
		if err := s.DeleteSalesByDelivery(ctx, deliveryID); err != nil {
			return err
		}

		n, err := s.DeleteDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{Kind: "delivery", ID: deliveryID}
		}
		return nil
	})
	if err != nil {
		log.Printf("cancel delivery failed delivery=%d: %v", deliveryID, err)
	}
	return err
}

// UndoLastSale reverses the most recent sale of a product. When that sale
// belongs to a batch the entire checkout is undone, not just the line;
// the result lists every removed product name so the caller can say so.
func (e *Engine) UndoLastSale(ctx context.Context, productID int64, saleType SaleType) (*UndoResult, error) {
	if productID <= 0 {
		return nil, &ValidationError{Field: "productId", Reason: "must be a positive integer"}
	}
	if !saleType.Valid() {
		return nil, &ValidationError{Field: "saleType", Reason: "must be instore or delivery"}
	}

	result := &UndoResult{}
	err := e.store.WithTx(ctx, func(s Store) error {
		sale, err := s.LastSale(ctx, productID, saleType)
		if err != nil {
			return err
		}
		if sale == nil {
			return &NotFoundError{Kind: "sale", ID: productID}
		}

		if sale.BatchID == "" {
			// Pre-batch historical row: remove just this line.
			if err := s.IncrementStock(ctx, sale.ProductID, sale.Quantity); err != nil {
				return err
			}
			return s.DeleteSale(ctx, sale.ID)
		}

		if err := reverseBonus(ctx, s, nil, []string{sale.BatchID}); err != nil {
			return err
		}

		lines, err := s.SalesByBatch(ctx, sale.BatchID)
		if err != nil {
			return err
		}
		if err := restoreStock(ctx, s, lines); err != nil {
			return err
		}
		names := make([]string, len(lines))
		for i, line := range lines {
			names[i] = line.ProductName
		}
		if err := s.DeleteSalesByBatch(ctx, sale.BatchID); err != nil {
			return err
		}

		result.UndoneBatch = true
		result.UndoneItems = names
		return nil
	})
	if err != nil {
		log.Printf("undo last sale failed product=%d type=%s: %v", productID, saleType, err)
		return nil, err
	}
	return result, nil
}

// reverseBonus exactly inverts the net bonus effect of a batch: points to
// return = sum of debits minus sum of accruals over the matched rows.
// A batch without bonus rows is not an error; the step is skipped.
func reverseBonus(ctx context.Context, s Store, deliveryID *int64, batchIDs []string) error {
	txs, err := s.BonusTransactionsForBatch(ctx, deliveryID, batchIDs)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	// A batch has at most one associated customer by construction.
	customerID := txs[0].CustomerID
	points := decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case BonusDebit:
			points = points.Add(tx.Amount)
		case BonusAccrual:
			points = points.Sub(tx.Amount)
		}
	}

	if !points.IsZero() {
		if err := s.AddCustomerBonus(ctx, customerID, points); err != nil {
			return err
		}
	}
	return s.DeleteBonusTransactionsForBatch(ctx, deliveryID, batchIDs)
}

func restoreStock(ctx context.Context, s Store, lines []SaleLine) error {
	for _, line := range lines {
		if err := s.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateCheckout(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	if !req.SaleType.Valid() {
		return &ValidationError{Field: "saleType", Reason: "must be instore or delivery"}
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return &ValidationError{Field: fieldAt("items", i, "productId"), Reason: "must be a positive integer"}
		}
		if !item.Quantity.IsPositive() {
			return &ValidationError{Field: fieldAt("items", i, "quantity"), Reason: "must be a positive number"}
		}
		if item.Discount.IsNegative() || item.Discount.GreaterThan(hundred) {
			return &ValidationError{Field: fieldAt("items", i, "discount"), Reason: "must be between 0 and 100"}
		}
	}
	if req.Bonus != nil {
		if req.Bonus.CustomerID <= 0 {
			return &ValidationError{Field: "bonusInfo.customerId", Reason: "must be a positive integer"}
		}
		if req.Bonus.DebitAmount.IsNegative() {
			return &ValidationError{Field: "bonusInfo.debitAmount", Reason: "must not be negative"}
		}
	}
	return nil
}

// maxDiscount reads the optional max_discount setting; a missing or
// invalid value means unlimited within [0,100].
func maxDiscount(ctx context.Context, s Store) (decimal.Decimal, bool, error) {
	value, ok, err := s.Setting(ctx, SettingMaxDiscount)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !ok {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() || d.GreaterThan(hundred) {
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

func fieldAt(prefix string, index int, name string) string {
	return prefix + "[" + strconv.Itoa(index) + "]." + name
}
