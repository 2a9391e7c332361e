package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos-engine/ledger"
	"github.com/retailpoint/pos-engine/store/sqlite"
)

func seedAccrual(t *testing.T, store *sqlite.Store, customerID int64, amount int64, date time.Time) {
	t.Helper()
	_, err := store.InsertBonusTransaction(context.Background(), ledger.BonusTransaction{
		CustomerID: customerID,
		Type:       ledger.BonusAccrual,
		Amount:     decimal.NewFromInt(amount),
		Date:       date,
	})
	require.NoError(t, err)
	require.NoError(t, store.AddCustomerBonus(context.Background(), customerID, decimal.NewFromInt(amount)))
}

// =============================================================================
// REPORT WINDOWS
// =============================================================================

func TestReport_Day_CountsOnlyToday(t *testing.T) {
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110001", 0)

	seedAccrual(t, store, customerID, 10, testNow.Add(-time.Hour))
	seedAccrual(t, store, customerID, 99, testNow.AddDate(0, 0, -1))

	report, err := engine.Report(context.Background(), ledger.PeriodDay)
	require.NoError(t, err)
	assert.True(t, report.Accrued.Equal(decimal.NewFromInt(10)),
		"accrued = %s", report.Accrued)
	assert.True(t, report.TotalBalance.Equal(decimal.NewFromInt(109)),
		"total balance covers all time, not the window")
}

func TestReport_Week_StartsMostRecentMonday(t *testing.T) {
	// testNow is Wednesday June 11 2025; the window starts Monday June 9.
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110002", 0)

	monday := time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC)
	seedAccrual(t, store, customerID, 7, monday.Add(time.Hour))       // inside
	seedAccrual(t, store, customerID, 50, monday.Add(-2*time.Hour))   // Sunday, outside

	report, err := engine.Report(context.Background(), ledger.PeriodWeek)
	require.NoError(t, err)
	assert.True(t, report.Accrued.Equal(decimal.NewFromInt(7)),
		"accrued = %s", report.Accrued)
}

func TestReport_Month_StartsOnTheFirst(t *testing.T) {
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110003", 0)

	seedAccrual(t, store, customerID, 20, testNow.AddDate(0, 0, -9))  // June 2, inside
	seedAccrual(t, store, customerID, 80, testNow.AddDate(0, -1, 0))  // May, outside

	report, err := engine.Report(context.Background(), ledger.PeriodMonth)
	require.NoError(t, err)
	assert.True(t, report.Accrued.Equal(decimal.NewFromInt(20)))
}

func TestReport_InvalidPeriod_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Report(context.Background(), ledger.ReportPeriod("year"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// MONTHLY SPEND
// =============================================================================

func TestMonthlySpend_SumsOnlyCurrentCalendarMonth(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "+79991110004", 0)

	for _, tc := range []struct {
		purchase int64
		date     time.Time
	}{
		{300, testNow.AddDate(0, 0, -5)},  // this month
		{200, testNow.Add(-time.Hour)},    // this month
		{999, testNow.AddDate(0, -1, 0)},  // last month
	} {
		purchase := decimal.NewFromInt(tc.purchase)
		_, err := store.InsertBonusTransaction(ctx, ledger.BonusTransaction{
			CustomerID:     customerID,
			Type:           ledger.BonusAccrual,
			Amount:         decimal.NewFromInt(1),
			PurchaseAmount: &purchase,
			Date:           tc.date,
		})
		require.NoError(t, err)
	}

	spend, err := engine.MonthlySpend(ctx, customerID, time.Time{})
	require.NoError(t, err)
	assert.True(t, spend.Equal(decimal.NewFromInt(500)), "spend = %s", spend)
}

func TestMonthlySpend_IgnoresDebits(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "+79991110005", 100)

	_, err := store.InsertBonusTransaction(ctx, ledger.BonusTransaction{
		CustomerID: customerID,
		Type:       ledger.BonusDebit,
		Amount:     decimal.NewFromInt(40),
		Date:       testNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	spend, err := engine.MonthlySpend(ctx, customerID, time.Time{})
	require.NoError(t, err)
	assert.True(t, spend.IsZero())
}

// =============================================================================
// MANUAL TRANSACTIONS
// =============================================================================

func TestAddManualTransaction_Accrual(t *testing.T) {
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110006", 5)

	c, err := engine.AddManualTransaction(context.Background(), customerID,
		ledger.BonusAccrual, decimal.NewFromInt(15), nil)
	require.NoError(t, err)
	assert.True(t, c.BonusPoints.Equal(decimal.NewFromInt(20)))
	requireLedgerConsistent(t, store, customerID)
}

func TestAddManualTransaction_DebitExceedingBalance_Rejected(t *testing.T) {
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110007", 10)

	_, err := engine.AddManualTransaction(context.Background(), customerID,
		ledger.BonusDebit, decimal.NewFromInt(11), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBonus)

	assert.True(t, customerBalance(t, store, customerID).Equal(decimal.NewFromInt(10)))
	count, err := store.CountBonusTransactions(context.Background(), customerID)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected debit must not leave a ledger row")
}

func TestAddManualTransaction_DebitEqualToBalance_DrainsToZero(t *testing.T) {
	engine, store := newTestEngine(t)
	customerID := seedCustomer(t, store, "+79991110008", 10)

	c, err := engine.AddManualTransaction(context.Background(), customerID,
		ledger.BonusDebit, decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.True(t, c.BonusPoints.IsZero())
	requireLedgerConsistent(t, store, customerID)
}

func TestAddManualTransaction_UnknownCustomer_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.AddManualTransaction(context.Background(), 404,
		ledger.BonusAccrual, decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
