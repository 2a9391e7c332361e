/*
reports.go - Sales aggregation with composed filters

Every report accepts the same SalesFilter; the WHERE clause is built once
by salesPredicate and shared across queries. Revenue applies the per-line
discount; cost does not, so profit reflects what the discount gave away.
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/pos-engine/ledger"
)

// SalesFilter narrows a report. Zero values mean "no constraint": nil
// times, zero category, empty sale type.
type SalesFilter struct {
	From       *time.Time
	To         *time.Time
	CategoryID int64
	SaleType   ledger.SaleType
}

// salesPredicate renders the filter into a WHERE fragment over sales s
// joined with products p. Always returns at least "1=1" so callers can
// append unconditionally.
func salesPredicate(f SalesFilter) (string, []any) {
	clauses := []string{"1=1"}
	var args []any

	if f.From != nil {
		clauses = append(clauses, "s.date >= ?")
		args = append(args, fmtTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "s.date <= ?")
		args = append(args, fmtTime(*f.To))
	}
	if f.CategoryID > 0 {
		clauses = append(clauses, "p.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.SaleType != "" {
		clauses = append(clauses, "s.sale_type = ?")
		args = append(args, string(f.SaleType))
	}
	return strings.Join(clauses, " AND "), args
}

// SaleRow is one sale joined with the product it was sold against, as
// returned by SalesList.
type SaleRow struct {
	ID            int64
	ProductID     int64
	ProductName   string
	Unit          string
	CategoryID    int64
	Quantity      decimal.Decimal
	Date          time.Time
	SaleType      ledger.SaleType
	Discount      decimal.Decimal
	SellingPrice  decimal.Decimal
	PurchasePrice decimal.Decimal
	DeliveryID    *int64
	BatchID       string
}

// SalesList returns the individual sales matching the filter, newest
// first.
func (s *session) SalesList(ctx context.Context, f SalesFilter) ([]SaleRow, error) {
	where, args := salesPredicate(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.product_id, p.name, p.unit, p.category_id,
		        s.quantity, s.date, s.sale_type, s.discount,
		        p.selling_price, p.purchase_price, s.delivery_id, s.batch_id
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where+`
		 ORDER BY s.date DESC, s.id DESC`, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list sales report", Err: err}
	}
	defer rows.Close()

	var result []SaleRow
	for rows.Next() {
		var row SaleRow
		var qty, discount, selling, purchase float64
		var date, saleType string
		var deliveryID sql.NullInt64
		err := rows.Scan(&row.ID, &row.ProductID, &row.ProductName, &row.Unit,
			&row.CategoryID, &qty, &date, &saleType, &discount,
			&selling, &purchase, &deliveryID, &row.BatchID)
		if err != nil {
			return nil, &ledger.StorageError{Op: "scan sale row", Err: err}
		}
		row.Quantity = decimal.NewFromFloat(qty)
		row.Discount = decimal.NewFromFloat(discount)
		row.SellingPrice = decimal.NewFromFloat(selling)
		row.PurchasePrice = decimal.NewFromFloat(purchase)
		row.Date = parseTime(date)
		row.SaleType = ledger.SaleType(saleType)
		if deliveryID.Valid {
			row.DeliveryID = &deliveryID.Int64
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeliveriesCount counts distinct deliveries whose creation date falls
// in the filter window. The category filter narrows to deliveries that
// contain at least one product of that category; the sale type is
// ignored, deliveries are delivery sales by definition.
func (s *session) DeliveriesCount(ctx context.Context, f SalesFilter) (int, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.From != nil {
		clauses = append(clauses, "d.created_at >= ?")
		args = append(args, fmtTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "d.created_at <= ?")
		args = append(args, fmtTime(*f.To))
	}
	if f.CategoryID > 0 {
		clauses = append(clauses, "p.category_id = ?")
		args = append(args, f.CategoryID)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT d.id)
		 FROM deliveries d
		 JOIN sales s ON s.delivery_id = d.id
		 JOIN products p ON p.id = s.product_id
		 WHERE `+strings.Join(clauses, " AND "), args...).Scan(&count)
	if err != nil {
		return 0, &ledger.StorageError{Op: "deliveries count", Err: err}
	}
	return count, nil
}

// WeekdayProductSales is one cell of the daily breakdown: how much of a
// product was sold on a given weekday. Weekday follows SQLite's
// strftime('%w'): 0 is Sunday.
type WeekdayProductSales struct {
	Weekday     int
	ProductName string
	Unit        string
	Quantity    decimal.Decimal
}

// DailyBreakdown groups sold quantity by weekday and product, heaviest
// sellers first within each weekday.
func (s *session) DailyBreakdown(ctx context.Context, f SalesFilter) ([]WeekdayProductSales, error) {
	where, args := salesPredicate(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT CAST(strftime('%w', s.date) AS INTEGER), p.name, p.unit,
		        SUM(s.quantity)
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where+`
		 GROUP BY strftime('%w', s.date), p.name, p.unit
		 ORDER BY 1, SUM(s.quantity) DESC`, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "daily breakdown report", Err: err}
	}
	defer rows.Close()

	var result []WeekdayProductSales
	for rows.Next() {
		var wp WeekdayProductSales
		var qty float64
		if err := rows.Scan(&wp.Weekday, &wp.ProductName, &wp.Unit, &qty); err != nil {
			return nil, &ledger.StorageError{Op: "scan daily breakdown", Err: err}
		}
		wp.Quantity = decimal.NewFromFloat(qty)
		result = append(result, wp)
	}
	return result, rows.Err()
}

// FinancialSummary aggregates revenue, cost and profit over the filter.
type FinancialSummary struct {
	Revenue   decimal.Decimal
	Cost      decimal.Decimal
	Profit    decimal.Decimal
	SaleCount int
}

func (s *session) FinancialSummary(ctx context.Context, f SalesFilter) (*FinancialSummary, error) {
	where, args := salesPredicate(f)
	var revenue, cost float64
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT
		    COALESCE(SUM(s.quantity * p.selling_price * (100 - s.discount) / 100), 0),
		    COALESCE(SUM(s.quantity * p.purchase_price), 0),
		    COUNT(s.id)
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where, args...).Scan(&revenue, &cost, &count)
	if err != nil {
		return nil, &ledger.StorageError{Op: "financial summary", Err: err}
	}

	r := decimal.NewFromFloat(revenue)
	c := decimal.NewFromFloat(cost)
	return &FinancialSummary{
		Revenue:   r,
		Cost:      c,
		Profit:    r.Sub(c),
		SaleCount: count,
	}, nil
}

// ProductSales is one row of a top or least sellers report.
type ProductSales struct {
	ProductID   int64
	ProductName string
	Quantity    decimal.Decimal
	Revenue     decimal.Decimal
}

// TopProducts returns the best sellers by quantity, descending.
func (s *session) TopProducts(ctx context.Context, f SalesFilter, limit int) ([]ProductSales, error) {
	return s.productSales(ctx, f, "DESC", limit)
}

// LeastProducts returns the slowest sellers by quantity, ascending.
// Products with no sales in the window do not appear at all.
func (s *session) LeastProducts(ctx context.Context, f SalesFilter, limit int) ([]ProductSales, error) {
	return s.productSales(ctx, f, "ASC", limit)
}

func (s *session) productSales(ctx context.Context, f SalesFilter, order string, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := salesPredicate(f)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name,
		        SUM(s.quantity),
		        SUM(s.quantity * p.selling_price * (100 - s.discount) / 100)
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where+`
		 GROUP BY p.id, p.name
		 ORDER BY SUM(s.quantity) `+order+`
		 LIMIT ?`, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "product sales report", Err: err}
	}
	defer rows.Close()

	var result []ProductSales
	for rows.Next() {
		var ps ProductSales
		var qty, revenue float64
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &qty, &revenue); err != nil {
			return nil, &ledger.StorageError{Op: "scan product sales", Err: err}
		}
		ps.Quantity = decimal.NewFromFloat(qty)
		ps.Revenue = decimal.NewFromFloat(revenue)
		result = append(result, ps)
	}
	return result, rows.Err()
}

// DailyAverage is revenue per distinct day with at least one sale.
type DailyAverage struct {
	Days           int
	AverageRevenue decimal.Decimal
}

func (s *session) AveragePerDay(ctx context.Context, f SalesFilter) (*DailyAverage, error) {
	where, args := salesPredicate(f)
	var days int
	var revenue float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT DATE(s.date)),
		        COALESCE(SUM(s.quantity * p.selling_price * (100 - s.discount) / 100), 0)
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where, args...).Scan(&days, &revenue)
	if err != nil {
		return nil, &ledger.StorageError{Op: "daily average report", Err: err}
	}

	avg := decimal.Zero
	if days > 0 {
		avg = decimal.NewFromFloat(revenue).Div(decimal.NewFromInt(int64(days)))
	}
	return &DailyAverage{Days: days, AverageRevenue: avg}, nil
}

// WeekdaySales is revenue per weekday; Weekday follows SQLite's
// strftime('%w'): 0 is Sunday.
type WeekdaySales struct {
	Weekday int
	Revenue decimal.Decimal
}

func (s *session) SalesByWeekday(ctx context.Context, f SalesFilter) ([]WeekdaySales, error) {
	where, args := salesPredicate(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT CAST(strftime('%w', s.date) AS INTEGER),
		        COALESCE(SUM(s.quantity * p.selling_price * (100 - s.discount) / 100), 0)
		 FROM sales s JOIN products p ON p.id = s.product_id
		 WHERE `+where+`
		 GROUP BY strftime('%w', s.date)
		 ORDER BY 1`, args...)
	if err != nil {
		return nil, &ledger.StorageError{Op: "weekday report", Err: err}
	}
	defer rows.Close()

	var result []WeekdaySales
	for rows.Next() {
		var ws WeekdaySales
		var revenue float64
		if err := rows.Scan(&ws.Weekday, &revenue); err != nil {
			return nil, &ledger.StorageError{Op: "scan weekday sales", Err: err}
		}
		ws.Revenue = decimal.NewFromFloat(revenue)
		result = append(result, ws)
	}
	return result, rows.Err()
}
