/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.TxStore: row access plus the single-transaction atomic unit
  catalog.Store:  category and product management

CONCURRENCY:
  SQLite allows one writer at a time. A store-level mutex serializes
  WithTx calls and standalone writes, so a balance read-modify-write
  inside one transaction never interleaves with another checkout.
  Readers go straight to the connection; WAL mode keeps them unblocked.

TIME:
  Timestamps are stored as UTC text in a fixed-width layout so that
  string comparison in SQL matches chronological order.

MONEY:
  Columns are REAL so SUM() aggregation stays in SQL; values cross the
  boundary as decimal.Decimal and are rounded only for presentation.

MIGRATION:
  New() applies the base schema, then an ordered list of named
  migrations, recording each in schema_migrations and logging what it
  applied. See migrate.go.

SEE ALSO:
  - ledger/store.go: interface definitions
  - reports.go: sales aggregation with composed filters
  - backup.go: file-level backup and restore
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/pos-engine/ledger"
)

// timeLayout is fixed-width UTC so lexicographic order equals time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

// dbtx is satisfied by both *sql.DB and *sql.Tx; every query method runs
// against whichever the session is bound to.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session implements the row-level methods against a bound connection or
// open transaction.
type session struct {
	db dbtx
}

// Store implements ledger.TxStore and catalog.Store using SQLite.
type Store struct {
	session
	sqldb *sql.DB
	path  string
	mu    sync.Mutex // serializes writers; see package doc
}

// New opens (or creates) the database at path and brings the schema up to
// date. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	store := &Store{session: session{db: db}, sqldb: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite allows a single writer, and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqldb.Close()
}

// WithTx executes fn within one database transaction. Any error from fn
// rolls the transaction back and is returned unchanged, so typed errors
// from the engine survive the boundary.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	if err := fn(&session{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &ledger.StorageError{Op: "commit transaction", Err: err}
	}
	return nil
}

// =============================================================================
// PRODUCTS AND STOCK
// =============================================================================

const productColumns = `id, category_id, name, unit, icon, purchase_price, selling_price, stock`

func (s *session) Product(ctx context.Context, id int64) (*ledger.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (s *session) ProductByName(ctx context.Context, categoryID int64, name string) (*ledger.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE category_id = ? AND name = ? COLLATE NOCASE`,
		categoryID, name)
	return scanProduct(row)
}

func (s *session) Products(ctx context.Context, categoryID int64) ([]ledger.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY name COLLATE NOCASE`
	args := []any{}
	if categoryID > 0 {
		query = `SELECT ` + productColumns + ` FROM products WHERE category_id = ? ORDER BY name COLLATE NOCASE`
		args = append(args, categoryID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list products", Err: err}
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		var p ledger.Product
		var purchase, selling, stock float64
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Unit, &p.Icon, &purchase, &selling, &stock); err != nil {
			return nil, &ledger.StorageError{Op: "scan product", Err: err}
		}
		p.PurchasePrice = decimal.NewFromFloat(purchase)
		p.SellingPrice = decimal.NewFromFloat(selling)
		p.Stock = decimal.NewFromFloat(stock)
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *session) InsertProduct(ctx context.Context, p ledger.Product) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (category_id, name, unit, icon, purchase_price, selling_price, stock)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.CategoryID, p.Name, p.Unit, p.Icon,
		p.PurchasePrice.InexactFloat64(), p.SellingPrice.InexactFloat64(), p.Stock.InexactFloat64())
	if err != nil {
		return 0, &ledger.StorageError{Op: "insert product", Key: p.Name, Err: err}
	}
	return res.LastInsertId()
}

func (s *session) UpdateProduct(ctx context.Context, p ledger.Product) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET category_id = ?, name = ?, unit = ?, icon = ?,
		        purchase_price = ?, selling_price = ?
		 WHERE id = ?`,
		p.CategoryID, p.Name, p.Unit, p.Icon,
		p.PurchasePrice.InexactFloat64(), p.SellingPrice.InexactFloat64(), p.ID)
	if err != nil {
		return 0, &ledger.StorageError{Op: "update product", Key: p.Name, Err: err}
	}
	return res.RowsAffected()
}

func (s *session) DeleteProduct(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return 0, &ledger.StorageError{Op: "delete product", Err: err}
	}
	return res.RowsAffected()
}

// DecrementStock checks then decrements inside the current transaction;
// the mutex around WithTx makes the check-then-write race free.
func (s *session) DecrementStock(ctx context.Context, productID int64, qty decimal.Decimal) error {
	var stock float64
	err := s.db.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = ?`, productID).Scan(&stock)
	if err == sql.ErrNoRows {
		return &ledger.NotFoundError{Kind: "product", ID: productID}
	}
	if err != nil {
		return &ledger.StorageError{Op: "read stock", Err: err}
	}

	available := decimal.NewFromFloat(stock)
	if qty.GreaterThan(available) {
		return &ledger.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: qty,
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - ? WHERE id = ?`,
		qty.InexactFloat64(), productID)
	if err != nil {
		return &ledger.StorageError{Op: "decrement stock", Err: err}
	}
	return nil
}

func (s *session) IncrementStock(ctx context.Context, productID int64, qty decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock + ? WHERE id = ?`,
		qty.InexactFloat64(), productID)
	if err != nil {
		return &ledger.StorageError{Op: "increment stock", Err: err}
	}
	// A deleted product is not an error during reversal; the stock is
	// simply gone with it.
	_, _ = res.RowsAffected()
	return nil
}

// AdjustStock applies a signed manual correction, rejecting a result
// below zero.
func (s *session) AdjustStock(ctx context.Context, productID int64, delta decimal.Decimal) error {
	if delta.IsNegative() {
		return s.DecrementStock(ctx, productID, delta.Neg())
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM products WHERE id = ?`, productID).Scan(&exists)
	if err == sql.ErrNoRows {
		return &ledger.NotFoundError{Kind: "product", ID: productID}
	}
	if err != nil {
		return &ledger.StorageError{Op: "read product", Err: err}
	}
	return s.IncrementStock(ctx, productID, delta)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *session) Categories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon FROM categories ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list categories", Err: err}
	}
	defer rows.Close()

	var categories []ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon); err != nil {
			return nil, &ledger.StorageError{Op: "scan category", Err: err}
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *session) CategoryByName(ctx context.Context, name string) (*ledger.Category, error) {
	var c ledger.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, icon FROM categories WHERE name = ? COLLATE NOCASE`, name).
		Scan(&c.ID, &c.Name, &c.Icon)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "read category", Key: name, Err: err}
	}
	return &c, nil
}

func (s *session) InsertCategory(ctx context.Context, c ledger.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, icon) VALUES (?, ?)`, c.Name, c.Icon)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, &ledger.ValidationError{Field: "name", Reason: "category already exists"}
		}
		return 0, &ledger.StorageError{Op: "insert category", Key: c.Name, Err: err}
	}
	return res.LastInsertId()
}

func (s *session) UpdateCategory(ctx context.Context, c ledger.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, icon = ? WHERE id = ?`, c.Name, c.Icon, c.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, &ledger.ValidationError{Field: "name", Reason: "category already exists"}
		}
		return 0, &ledger.StorageError{Op: "update category", Key: c.Name, Err: err}
	}
	return res.RowsAffected()
}

// DeleteCategory relies on ON DELETE CASCADE to remove the category's
// products.
func (s *session) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return 0, &ledger.StorageError{Op: "delete category", Err: err}
	}
	return res.RowsAffected()
}

// =============================================================================
// SALES AND DELIVERIES
// =============================================================================

func (s *session) InsertSale(ctx context.Context, sale ledger.Sale) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sales (product_id, quantity, date, sale_type, delivery_id, batch_id, discount)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ProductID, sale.Quantity.InexactFloat64(), fmtTime(sale.Date),
		string(sale.SaleType), nullInt64(sale.DeliveryID), sale.BatchID,
		sale.Discount.InexactFloat64())
	if err != nil {
		return 0, &ledger.StorageError{Op: "insert sale", Key: sale.BatchID, Err: err}
	}
	return res.LastInsertId()
}

func (s *session) LastSale(ctx context.Context, productID int64, saleType ledger.SaleType) (*ledger.Sale, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, quantity, date, sale_type, delivery_id, batch_id, discount
		 FROM sales WHERE product_id = ? AND sale_type = ?
		 ORDER BY date DESC, id DESC LIMIT 1`,
		productID, string(saleType))

	var sale ledger.Sale
	var qty, discount float64
	var date string
	var deliveryID sql.NullInt64
	var saleTypeStr string
	err := row.Scan(&sale.ID, &sale.ProductID, &qty, &date, &saleTypeStr, &deliveryID, &sale.BatchID, &discount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "read last sale", Err: err}
	}
	sale.Quantity = decimal.NewFromFloat(qty)
	sale.Discount = decimal.NewFromFloat(discount)
	sale.Date = parseTime(date)
	sale.SaleType = ledger.SaleType(saleTypeStr)
	if deliveryID.Valid {
		sale.DeliveryID = &deliveryID.Int64
	}
	return &sale, nil
}

func (s *session) SalesByBatch(ctx context.Context, batchID string) ([]ledger.SaleLine, error) {
	return s.querySaleLines(ctx,
		`SELECT s.id, s.product_id, COALESCE(p.name, ''), s.quantity, s.discount
		 FROM sales s LEFT JOIN products p ON p.id = s.product_id
		 WHERE s.batch_id = ? ORDER BY s.id`, batchID)
}

func (s *session) SalesByDelivery(ctx context.Context, deliveryID int64) ([]ledger.SaleLine, error) {
	return s.querySaleLines(ctx,
		`SELECT s.id, s.product_id, COALESCE(p.name, ''), s.quantity, s.discount
		 FROM sales s LEFT JOIN products p ON p.id = s.product_id
		 WHERE s.delivery_id = ? ORDER BY s.id`, deliveryID)
}

func (s *session) querySaleLines(ctx context.Context, query string, args ...any) ([]ledger.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list sales", Err: err}
	}
	defer rows.Close()

	var lines []ledger.SaleLine
	for rows.Next() {
		var line ledger.SaleLine
		var qty, discount float64
		if err := rows.Scan(&line.SaleID, &line.ProductID, &line.ProductName, &qty, &discount); err != nil {
			return nil, &ledger.StorageError{Op: "scan sale", Err: err}
		}
		line.Quantity = decimal.NewFromFloat(qty)
		line.Discount = decimal.NewFromFloat(discount)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *session) BatchIDsByDelivery(ctx context.Context, deliveryID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT batch_id FROM sales WHERE delivery_id = ? AND batch_id <> ''`,
		deliveryID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list batch ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ledger.StorageError{Op: "scan batch id", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *session) DeleteSale(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return &ledger.StorageError{Op: "delete sale", Err: err}
	}
	return nil
}

func (s *session) DeleteSalesByBatch(ctx context.Context, batchID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE batch_id = ?`, batchID)
	if err != nil {
		return &ledger.StorageError{Op: "delete sales by batch", Key: batchID, Err: err}
	}
	return nil
}

func (s *session) DeleteSalesByDelivery(ctx context.Context, deliveryID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE delivery_id = ?`, deliveryID)
	if err != nil {
		return &ledger.StorageError{Op: "delete sales by delivery", Err: err}
	}
	return nil
}

func (s *session) InsertDelivery(ctx context.Context, createdAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (created_at) VALUES (?)`, fmtTime(createdAt))
	if err != nil {
		return 0, &ledger.StorageError{Op: "insert delivery", Err: err}
	}
	return res.LastInsertId()
}

func (s *session) DeleteDelivery(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	if err != nil {
		return 0, &ledger.StorageError{Op: "delete delivery", Err: err}
	}
	return res.RowsAffected()
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = `id, name, phone, registration_date, bonus_points`

func (s *session) Customer(ctx context.Context, id int64) (*ledger.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	return scanCustomer(row)
}

func (s *session) CustomerByPhone(ctx context.Context, phone string) (*ledger.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = ?`, phone)
	return scanCustomer(row)
}

func (s *session) InsertCustomer(ctx context.Context, c ledger.Customer) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, phone, registration_date, bonus_points)
		 VALUES (?, ?, ?, ?)`,
		c.Name, c.Phone, fmtTime(c.RegistrationDate), c.BonusPoints.InexactFloat64())
	if err != nil {
		return 0, &ledger.StorageError{Op: "insert customer", Key: c.Phone, Err: err}
	}
	return res.LastInsertId()
}

func (s *session) SetCustomerBonus(ctx context.Context, customerID int64, points decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE customers SET bonus_points = ? WHERE id = ?`,
		points.InexactFloat64(), customerID)
	if err != nil {
		return &ledger.StorageError{Op: "set customer bonus", Err: err}
	}
	return nil
}

func (s *session) AddCustomerBonus(ctx context.Context, customerID int64, delta decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE customers SET bonus_points = bonus_points + ? WHERE id = ?`,
		delta.InexactFloat64(), customerID)
	if err != nil {
		return &ledger.StorageError{Op: "add customer bonus", Err: err}
	}
	return nil
}

// =============================================================================
// BONUS TRANSACTIONS
// =============================================================================

func (s *session) InsertBonusTransaction(ctx context.Context, tx ledger.BonusTransaction) (int64, error) {
	var purchase any
	if tx.PurchaseAmount != nil {
		purchase = tx.PurchaseAmount.InexactFloat64()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bonus_transactions
		 (customer_id, transaction_type, amount, purchase_amount, transaction_date, delivery_id, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.CustomerID, string(tx.Type), tx.Amount.InexactFloat64(), purchase,
		fmtTime(tx.Date), nullInt64(tx.DeliveryID), tx.BatchID)
	if err != nil {
		return 0, &ledger.StorageError{Op: "insert bonus transaction", Key: tx.BatchID, Err: err}
	}
	return res.LastInsertId()
}

// batchPredicate matches bonus rows by delivery id or batch membership.
// Historical rows sometimes carry only one of the two keys, so the match
// is a union; a single query deduplicates by construction.
func batchPredicate(deliveryID *int64, batchIDs []string) (string, []any) {
	var clauses []string
	var args []any
	if deliveryID != nil {
		clauses = append(clauses, "delivery_id = ?")
		args = append(args, *deliveryID)
	}
	if len(batchIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(batchIDs)-1) + "?"
		clauses = append(clauses, "batch_id IN ("+placeholders+")")
		for _, id := range batchIDs {
			args = append(args, id)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " OR "), args
}

func (s *session) BonusTransactionsForBatch(ctx context.Context, deliveryID *int64, batchIDs []string) ([]ledger.BonusTransaction, error) {
	where, args := batchPredicate(deliveryID, batchIDs)
	if where == "" {
		return nil, nil
	}
	return s.queryBonusTransactions(ctx,
		`SELECT id, customer_id, transaction_type, amount, purchase_amount, transaction_date, delivery_id, batch_id
		 FROM bonus_transactions WHERE `+where+` ORDER BY id`, args...)
}

func (s *session) DeleteBonusTransactionsForBatch(ctx context.Context, deliveryID *int64, batchIDs []string) error {
	where, args := batchPredicate(deliveryID, batchIDs)
	if where == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM bonus_transactions WHERE `+where, args...)
	if err != nil {
		return &ledger.StorageError{Op: "delete bonus transactions", Err: err}
	}
	return nil
}

func (s *session) BonusTransactionsByCustomer(ctx context.Context, customerID int64) ([]ledger.BonusTransaction, error) {
	return s.queryBonusTransactions(ctx,
		`SELECT id, customer_id, transaction_type, amount, purchase_amount, transaction_date, delivery_id, batch_id
		 FROM bonus_transactions WHERE customer_id = ? ORDER BY id DESC`, customerID)
}

func (s *session) queryBonusTransactions(ctx context.Context, query string, args ...any) ([]ledger.BonusTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list bonus transactions", Err: err}
	}
	defer rows.Close()

	var txs []ledger.BonusTransaction
	for rows.Next() {
		var tx ledger.BonusTransaction
		var txType, date string
		var amount float64
		var purchase sql.NullFloat64
		var deliveryID sql.NullInt64
		var batchID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &txType, &amount, &purchase, &date, &deliveryID, &batchID); err != nil {
			return nil, &ledger.StorageError{Op: "scan bonus transaction", Err: err}
		}
		tx.Type = ledger.BonusTxType(txType)
		tx.Amount = decimal.NewFromFloat(amount)
		tx.Date = parseTime(date)
		if purchase.Valid {
			d := decimal.NewFromFloat(purchase.Float64)
			tx.PurchaseAmount = &d
		}
		if deliveryID.Valid {
			tx.DeliveryID = &deliveryID.Int64
		}
		tx.BatchID = batchID.String
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *session) CountBonusTransactions(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bonus_transactions WHERE customer_id = ?`, customerID).Scan(&n)
	if err != nil {
		return 0, &ledger.StorageError{Op: "count bonus transactions", Err: err}
	}
	return n, nil
}

func (s *session) MonthlySpend(ctx context.Context, customerID int64, from, to time.Time) (decimal.Decimal, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(purchase_amount), 0) FROM bonus_transactions
		 WHERE customer_id = ? AND transaction_type = ?
		   AND transaction_date >= ? AND transaction_date <= ?`,
		customerID, string(ledger.BonusAccrual), fmtTime(from), fmtTime(to)).Scan(&sum)
	if err != nil {
		return decimal.Zero, &ledger.StorageError{Op: "sum monthly spend", Err: err}
	}
	return decimal.NewFromFloat(sum), nil
}

func (s *session) SumBonusAmount(ctx context.Context, txType ledger.BonusTxType, from, to time.Time) (decimal.Decimal, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM bonus_transactions
		 WHERE transaction_type = ? AND transaction_date >= ? AND transaction_date <= ?`,
		string(txType), fmtTime(from), fmtTime(to)).Scan(&sum)
	if err != nil {
		return decimal.Zero, &ledger.StorageError{Op: "sum bonus amount", Err: err}
	}
	return decimal.NewFromFloat(sum), nil
}

func (s *session) TotalBonusBalance(ctx context.Context) (decimal.Decimal, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(bonus_points), 0) FROM customers`).Scan(&sum)
	if err != nil {
		return decimal.Zero, &ledger.StorageError{Op: "sum bonus balance", Err: err}
	}
	return decimal.NewFromFloat(sum), nil
}

// PurchaseHistory walks from the customer's bonus rows to the sales that
// produced them, via batch or delivery identifiers.
func (s *session) PurchaseHistory(ctx context.Context, customerID int64) ([]ledger.PurchaseHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.date, s.batch_id, s.delivery_id, COALESCE(p.name, ''), s.quantity, COALESCE(p.selling_price, 0)
		 FROM sales s LEFT JOIN products p ON p.id = s.product_id
		 WHERE s.batch_id IN (
		         SELECT DISTINCT batch_id FROM bonus_transactions
		         WHERE customer_id = ? AND batch_id IS NOT NULL AND batch_id <> '')
		    OR s.delivery_id IN (
		         SELECT DISTINCT delivery_id FROM bonus_transactions
		         WHERE customer_id = ? AND delivery_id IS NOT NULL)
		 ORDER BY s.date DESC, s.id DESC`,
		customerID, customerID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list purchase history", Err: err}
	}
	defer rows.Close()

	var entries []ledger.PurchaseHistoryEntry
	for rows.Next() {
		var e ledger.PurchaseHistoryEntry
		var date string
		var qty, price float64
		var deliveryID sql.NullInt64
		if err := rows.Scan(&date, &e.BatchID, &deliveryID, &e.ProductName, &qty, &price); err != nil {
			return nil, &ledger.StorageError{Op: "scan purchase history", Err: err}
		}
		e.Date = parseTime(date)
		e.Quantity = decimal.NewFromFloat(qty)
		e.SellingPrice = decimal.NewFromFloat(price)
		if deliveryID.Valid {
			e.DeliveryID = &deliveryID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *session) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &ledger.StorageError{Op: "read setting", Key: key, Err: err}
	}
	return value, true, nil
}

func (s *session) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return &ledger.StorageError{Op: "write setting", Key: key, Err: err}
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func scanProduct(row *sql.Row) (*ledger.Product, error) {
	var p ledger.Product
	var purchase, selling, stock float64
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Unit, &p.Icon, &purchase, &selling, &stock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "read product", Err: err}
	}
	p.PurchasePrice = decimal.NewFromFloat(purchase)
	p.SellingPrice = decimal.NewFromFloat(selling)
	p.Stock = decimal.NewFromFloat(stock)
	return &p, nil
}

func scanCustomer(row *sql.Row) (*ledger.Customer, error) {
	var c ledger.Customer
	var registered string
	var points float64
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &registered, &points)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StorageError{Op: "read customer", Err: err}
	}
	c.RegistrationDate = parseTime(registered)
	c.BonusPoints = decimal.NewFromFloat(points)
	return &c, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime tolerates plain RFC3339 for rows written by earlier versions.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
