/*
bonus.go - Cashback tiers, monthly-spend aggregation and bonus reports

TIER SELECTION:
  A customer whose calendar-month spend has reached the premium threshold
  earns the premium percentage, otherwise the standard one. Monthly spend
  is the sum of purchase_amount over the customer's accrual rows dated
  within the current calendar month, local time, both endpoints inclusive.

REPORT WINDOWS:
  day   - today 00:00 .. now
  week  - most recent Monday 00:00 .. now
  month - day 1 of the current month 00:00 .. now
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// monthRange returns the first and last instant of asOf's calendar month
// in asOf's location.
func monthRange(asOf time.Time) (time.Time, time.Time) {
	loc := asOf.Location()
	start := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

// periodStart returns the start of the report window for now.
func periodStart(period ReportPeriod, now time.Time) time.Time {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch period {
	case PeriodWeek:
		// Shift back to the most recent Monday.
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return today
	}
}

// cashbackPercent picks the applicable percentage for a customer inside
// the current transaction. Settings fall back to their defaults when
// unset or invalid.
func cashbackPercent(ctx context.Context, s Store, customerID int64, now time.Time) (decimal.Decimal, error) {
	standard := settingOrDefault(ctx, s, SettingBonusPercentage, DefaultBonusPercentage)
	premium := settingOrDefault(ctx, s, SettingPremiumBonusPercentage, DefaultPremiumBonusPercentage)
	threshold := settingOrDefault(ctx, s, SettingPremiumThreshold, DefaultPremiumThreshold)

	from, to := monthRange(now)
	spend, err := s.MonthlySpend(ctx, customerID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if spend.GreaterThanOrEqual(threshold) {
		return premium, nil
	}
	return standard, nil
}

// MonthlySpend returns the customer's qualifying spend for the calendar
// month containing asOf. Zero when asOf is the zero time means "now".
func (e *Engine) MonthlySpend(ctx context.Context, customerID int64, asOf time.Time) (decimal.Decimal, error) {
	if customerID <= 0 {
		return decimal.Zero, &ValidationError{Field: "customerId", Reason: "must be a positive integer"}
	}
	if asOf.IsZero() {
		asOf = e.now()
	}
	from, to := monthRange(asOf)
	return e.store.MonthlySpend(ctx, customerID, from, to)
}

// Report sums accruals and debits over the period independently, plus the
// grand total of all customers' current balances.
func (e *Engine) Report(ctx context.Context, period ReportPeriod) (*BonusReport, error) {
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth:
	default:
		return nil, &ValidationError{Field: "period", Reason: "must be day, week or month"}
	}

	now := e.now()
	from := periodStart(period, now)

	accrued, err := e.store.SumBonusAmount(ctx, BonusAccrual, from, now)
	if err != nil {
		return nil, err
	}
	debited, err := e.store.SumBonusAmount(ctx, BonusDebit, from, now)
	if err != nil {
		return nil, err
	}
	total, err := e.store.TotalBonusBalance(ctx)
	if err != nil {
		return nil, err
	}

	return &BonusReport{Accrued: accrued, Debited: debited, TotalBalance: total}, nil
}

// AddManualTransaction records an accrual or debit outside a checkout
// (customer service adjustments) and updates the running balance in the
// same atomic unit. Debits are pre-checked so the balance never goes
// negative.
func (e *Engine) AddManualTransaction(ctx context.Context, customerID int64, txType BonusTxType, amount decimal.Decimal, purchaseAmount *decimal.Decimal) (*Customer, error) {
	if customerID <= 0 {
		return nil, &ValidationError{Field: "customerId", Reason: "must be a positive integer"}
	}
	if !txType.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "must be accrual or debit"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}
	if purchaseAmount != nil && purchaseAmount.IsNegative() {
		return nil, &ValidationError{Field: "purchaseAmount", Reason: "must not be negative"}
	}

	var updated *Customer
	err := e.store.WithTx(ctx, func(s Store) error {
		customer, err := s.Customer(ctx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return &NotFoundError{Kind: "customer", ID: customerID}
		}

		delta := amount
		if txType == BonusDebit {
			if amount.GreaterThan(customer.BonusPoints) {
				return &InsufficientBonusError{
					CustomerID: customerID,
					Available:  customer.BonusPoints,
					Requested:  amount,
				}
			}
			delta = amount.Neg()
		}

		if _, err := s.InsertBonusTransaction(ctx, BonusTransaction{
			CustomerID:     customerID,
			Type:           txType,
			Amount:         amount,
			PurchaseAmount: purchaseAmount,
			Date:           e.now(),
		}); err != nil {
			return err
		}
		if err := s.AddCustomerBonus(ctx, customerID, delta); err != nil {
			return err
		}

		updated, err = s.Customer(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
