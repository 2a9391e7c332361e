package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos-engine/ledger"
	"github.com/retailpoint/pos-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func insertProduct(t *testing.T, store *sqlite.Store, name string, selling, purchase, stock int64) int64 {
	t.Helper()
	ctx := context.Background()
	categoryID, err := store.InsertCategory(ctx, ledger.Category{Name: name + " category"})
	require.NoError(t, err)
	id, err := store.InsertProduct(ctx, ledger.Product{
		CategoryID:    categoryID,
		Name:          name,
		Unit:          "pcs",
		PurchasePrice: decimal.NewFromInt(purchase),
		SellingPrice:  decimal.NewFromInt(selling),
		Stock:         decimal.NewFromInt(stock),
	})
	require.NoError(t, err)
	return id
}

func insertSale(t *testing.T, store *sqlite.Store, productID int64, qty int64, date time.Time, batchID string) {
	t.Helper()
	_, err := store.InsertSale(context.Background(), ledger.Sale{
		ProductID: productID,
		Quantity:  decimal.NewFromInt(qty),
		Date:      date,
		SaleType:  ledger.SaleInstore,
		BatchID:   batchID,
	})
	require.NoError(t, err)
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrations_Idempotent(t *testing.T) {
	// Opening the same file twice must not re-apply named migrations.
	path := filepath.Join(t.TempDir(), "pos.db")

	first, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sqlite.New(path)
	require.NoError(t, err)
	defer second.Close()

	// The migrated schema must accept the columns the migrations add.
	id := insertProduct(t, second, "Post-migration", 10, 5, 1)
	_, err = second.InsertSale(context.Background(), ledger.Sale{
		ProductID: id,
		Quantity:  decimal.NewFromInt(1),
		Date:      time.Now(),
		SaleType:  ledger.SaleInstore,
		BatchID:   "batch-x",
		Discount:  decimal.NewFromInt(5),
	})
	require.NoError(t, err)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestInsertCategory_DuplicateNameRejected(t *testing.T) {
	// Name uniqueness is case-insensitive and enforced by the schema,
	// not only by callers that check first.
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertCategory(ctx, ledger.Category{Name: "Drinks"})
	require.NoError(t, err)

	_, err = store.InsertCategory(ctx, ledger.Category{Name: "drinks"})
	require.ErrorIs(t, err, ledger.ErrValidation)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestUpdateCategory_DuplicateNameRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertCategory(ctx, ledger.Category{Name: "Drinks"})
	require.NoError(t, err)
	id, err := store.InsertCategory(ctx, ledger.Category{Name: "Snacks"})
	require.NoError(t, err)

	_, err = store.UpdateCategory(ctx, ledger.Category{ID: id, Name: "DRINKS"})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// SALES
// =============================================================================

func TestLastSale_PrefersLatestDate(t *testing.T) {
	// A backdated row inserted later must not win over the most recent
	// sale, whatever the row ids say.
	store := newTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, "Undo Item", 10, 5, 100)
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)

	insertSale(t, store, productID, 1, now, "b-current")
	insertSale(t, store, productID, 1, now.AddDate(0, 0, -3), "b-backdated")

	last, err := store.LastSale(ctx, productID, ledger.SaleInstore)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b-current", last.BatchID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_ErrorRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, "Tx Product", 10, 5, 10)

	sentinel := &ledger.ValidationError{Field: "x", Reason: "boom"}
	err := store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.DecrementStock(ctx, productID, decimal.NewFromInt(4)); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, ledger.ErrValidation, "fn errors pass through untouched")

	p, err := store.Product(ctx, productID)
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(decimal.NewFromInt(10)))
}

func TestWithTx_CommitPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, "Commit Product", 10, 5, 10)

	err := store.WithTx(ctx, func(s ledger.Store) error {
		return s.DecrementStock(ctx, productID, decimal.NewFromInt(4))
	})
	require.NoError(t, err)

	p, err := store.Product(ctx, productID)
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(decimal.NewFromInt(6)))
}

// =============================================================================
// BONUS ROW MATCHING
// =============================================================================

func TestBonusTransactionsForBatch_UnionWithoutDuplicates(t *testing.T) {
	// A row carrying both the delivery id and a listed batch id must
	// appear exactly once.
	store := newTestStore(t)
	ctx := context.Background()
	customerID, err := store.InsertCustomer(ctx, ledger.Customer{
		Name: "C", Phone: "+79990001122", RegistrationDate: time.Now(),
		BonusPoints: decimal.Zero,
	})
	require.NoError(t, err)

	deliveryID, err := store.InsertDelivery(ctx, time.Now())
	require.NoError(t, err)

	_, err = store.InsertBonusTransaction(ctx, ledger.BonusTransaction{
		CustomerID: customerID,
		Type:       ledger.BonusAccrual,
		Amount:     decimal.NewFromInt(5),
		Date:       time.Now(),
		DeliveryID: &deliveryID,
		BatchID:    "batch-a",
	})
	require.NoError(t, err)
	// Older row with only the batch key.
	_, err = store.InsertBonusTransaction(ctx, ledger.BonusTransaction{
		CustomerID: customerID,
		Type:       ledger.BonusDebit,
		Amount:     decimal.NewFromInt(2),
		Date:       time.Now(),
		BatchID:    "batch-a",
	})
	require.NoError(t, err)

	txs, err := store.BonusTransactionsForBatch(ctx, &deliveryID, []string{"batch-a"})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	require.NoError(t, store.DeleteBonusTransactionsForBatch(ctx, &deliveryID, []string{"batch-a"}))
	txs, err = store.BonusTransactionsForBatch(ctx, &deliveryID, []string{"batch-a"})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestBonusTransactionsForBatch_NoKeys_MatchesNothing(t *testing.T) {
	store := newTestStore(t)

	txs, err := store.BonusTransactionsForBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestFinancialSummary_AppliesDiscountToRevenueOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, "Report Item", 100, 60, 100)

	_, err := store.InsertSale(ctx, ledger.Sale{
		ProductID: productID,
		Quantity:  decimal.NewFromInt(2),
		Date:      time.Now(),
		SaleType:  ledger.SaleInstore,
		BatchID:   "batch-r",
		Discount:  decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	summary, err := store.FinancialSummary(ctx, sqlite.SalesFilter{})
	require.NoError(t, err)
	assert.True(t, summary.Revenue.Equal(decimal.NewFromInt(100)), "revenue = %s", summary.Revenue)
	assert.True(t, summary.Cost.Equal(decimal.NewFromInt(120)), "cost = %s", summary.Cost)
	assert.True(t, summary.Profit.Equal(decimal.NewFromInt(-20)))
	assert.Equal(t, 1, summary.SaleCount)
}

func TestSalesFilters_Compose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	inWindowID := insertProduct(t, store, "In Window", 10, 5, 100)
	insertSale(t, store, inWindowID, 1, now, "b1")
	insertSale(t, store, inWindowID, 1, now.AddDate(0, 0, -10), "b2")

	from := now.AddDate(0, 0, -1)
	summary, err := store.FinancialSummary(ctx, sqlite.SalesFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SaleCount)

	summary, err = store.FinancialSummary(ctx, sqlite.SalesFilter{SaleType: ledger.SaleDelivery})
	require.NoError(t, err)
	assert.Zero(t, summary.SaleCount)
}

func TestTopAndLeastProducts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	fastID := insertProduct(t, store, "Fast Seller", 10, 5, 100)
	slowID := insertProduct(t, store, "Slow Seller", 10, 5, 100)
	insertSale(t, store, fastID, 9, now, "b1")
	insertSale(t, store, slowID, 1, now, "b2")

	top, err := store.TopProducts(ctx, sqlite.SalesFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, fastID, top[0].ProductID)

	least, err := store.LeastProducts(ctx, sqlite.SalesFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, least, 1)
	assert.Equal(t, slowID, least[0].ProductID)
}

func TestAveragePerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	productID := insertProduct(t, store, "Daily Item", 10, 5, 100)
	insertSale(t, store, productID, 2, now, "b1")               // 20
	insertSale(t, store, productID, 4, now.AddDate(0, 0, -1), "b2") // 40

	avg, err := store.AveragePerDay(ctx, sqlite.SalesFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, avg.Days)
	assert.True(t, avg.AverageRevenue.Equal(decimal.NewFromInt(30)),
		"average = %s", avg.AverageRevenue)
}

func TestSalesList_NewestFirstWithProductFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	productID := insertProduct(t, store, "Listed Item", 10, 5, 100)
	insertSale(t, store, productID, 2, now.AddDate(0, 0, -1), "b-old")
	insertSale(t, store, productID, 3, now, "b-new")

	rows, err := store.SalesList(ctx, sqlite.SalesFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b-new", rows[0].BatchID)
	assert.Equal(t, "Listed Item", rows[0].ProductName)
	assert.Equal(t, "pcs", rows[0].Unit)
	assert.True(t, rows[0].SellingPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, rows[0].PurchasePrice.Equal(decimal.NewFromInt(5)))

	from := now.Add(-time.Hour)
	rows, err = store.SalesList(ctx, sqlite.SalesFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b-new", rows[0].BatchID)
}

func TestDeliveriesCount_WindowAndCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	productID := insertProduct(t, store, "Delivered Item", 10, 5, 100)

	inWindow, err := store.InsertDelivery(ctx, now)
	require.NoError(t, err)
	outOfWindow, err := store.InsertDelivery(ctx, now.AddDate(0, -1, 0))
	require.NoError(t, err)

	for _, deliveryID := range []int64{inWindow, outOfWindow} {
		id := deliveryID
		_, err = store.InsertSale(ctx, ledger.Sale{
			ProductID:  productID,
			Quantity:   decimal.NewFromInt(1),
			Date:       now,
			SaleType:   ledger.SaleDelivery,
			DeliveryID: &id,
			BatchID:    "b-del",
		})
		require.NoError(t, err)
	}

	// The window bounds the delivery's creation date, not the sale
	// dates inside it.
	from := now.AddDate(0, 0, -7)
	count, err := store.DeliveriesCount(ctx, sqlite.SalesFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.DeliveriesCount(ctx, sqlite.SalesFilter{From: &from, CategoryID: 9999})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDailyBreakdown_GroupsByWeekdayAndProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	// 2025-06-11 is a Wednesday; strftime('%w') reports it as 3.
	wednesday := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	teaID := insertProduct(t, store, "Tea", 10, 5, 100)
	coffeeID := insertProduct(t, store, "Coffee", 10, 5, 100)
	insertSale(t, store, teaID, 2, wednesday, "b1")
	insertSale(t, store, teaID, 3, wednesday, "b2")
	insertSale(t, store, coffeeID, 1, wednesday, "b3")

	rows, err := store.DailyBreakdown(ctx, sqlite.SalesFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 3, rows[0].Weekday)
	assert.Equal(t, "Tea", rows[0].ProductName, "heaviest seller first within the weekday")
	assert.True(t, rows[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "Coffee", rows[1].ProductName)
	assert.True(t, rows[1].Quantity.Equal(decimal.NewFromInt(1)))
}

// =============================================================================
// BACKUP AND RESTORE
// =============================================================================

func TestBackupAndRestore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "pos.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	productID := insertProduct(t, store, "Backed Up", 10, 5, 7)

	backupPath := filepath.Join(dir, "backup.db")
	require.NoError(t, store.Backup(ctx, backupPath))

	// Mutate after the backup, then restore.
	require.NoError(t, store.IncrementStock(ctx, productID, decimal.NewFromInt(100)))
	require.NoError(t, store.Restore(ctx, backupPath))

	p, err := store.Product(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Stock.Equal(decimal.NewFromInt(7)), "stock = %s", p.Stock)
}

func TestRestore_MissingFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "pos.db"))
	require.NoError(t, err)
	defer store.Close()

	err = store.Restore(context.Background(), filepath.Join(dir, "nope.db"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestBackup_InMemory_Rejected(t *testing.T) {
	store := newTestStore(t)

	err := store.Backup(context.Background(), filepath.Join(t.TempDir(), "out.db"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}
