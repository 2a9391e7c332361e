/*
handlers.go - HTTP handler implementations

ERROR MAPPING:
  ValidationError           -> 400
  NotFoundError             -> 404
  InsufficientBonusError    -> 409
  InsufficientStockError    -> 409
  anything else             -> 500 (logged, generic message to client)

Every failure body is {"success": false, "message": "Failed to <verb>"},
with the typed error's detail appended for client errors. Internal errors
never leak driver detail to the client.

SEE ALSO:
  - dto.go: request/response types
  - server.go: routing
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/retailpoint/pos-engine/catalog"
	"github.com/retailpoint/pos-engine/ledger"
	"github.com/retailpoint/pos-engine/store/sqlite"
)

// Handler holds the application services the routes dispatch to.
type Handler struct {
	engine  *ledger.Engine
	catalog *catalog.Manager
	store   *sqlite.Store
}

func NewHandler(engine *ledger.Engine, cat *catalog.Manager, store *sqlite.Store) *Handler {
	return &Handler{engine: engine, catalog: cat, store: store}
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeFailure(w, "Failed to list categories", err)
		return
	}
	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, toCategoryDTO(c))
	}
	writeOK(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.catalog.AddCategory(r.Context(), req.Name, req.Icon)
	if err != nil {
		writeFailure(w, "Failed to create category", err)
		return
	}
	writeOK(w, http.StatusCreated, toCategoryDTO(*c))
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.catalog.RenameCategory(r.Context(), id, req.Name, req.Icon); err != nil {
		writeFailure(w, "Failed to update category", err)
		return
	}
	writeOK(w, http.StatusOK, CategoryDTO{ID: id, Name: req.Name, Icon: req.Icon})
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), id); err != nil {
		writeFailure(w, "Failed to delete category", err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeFailure(w, "Failed to list products",
				&ledger.ValidationError{Field: "categoryId", Reason: "must be an integer"})
			return
		}
		categoryID = parsed
	}

	products, err := h.catalog.Products(r.Context(), categoryID)
	if err != nil {
		writeFailure(w, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p))
	}
	writeOK(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		writeFailure(w, "Failed to get product", err)
		return
	}
	writeOK(w, http.StatusOK, toProductDTO(*p))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.catalog.AddProduct(r.Context(), productFromRequest(0, req))
	if err != nil {
		writeFailure(w, "Failed to create product", err)
		return
	}
	writeOK(w, http.StatusCreated, toProductDTO(*p))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.catalog.UpdateProduct(r.Context(), productFromRequest(id, req)); err != nil {
		writeFailure(w, "Failed to update product", err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		writeFailure(w, "Failed to delete product", err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req StockAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.catalog.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		writeFailure(w, "Failed to adjust stock", err)
		return
	}
	writeOK(w, http.StatusOK, toProductDTO(*p))
}

func productFromRequest(id int64, req ProductRequest) ledger.Product {
	return ledger.Product{
		ID:            id,
		CategoryID:    req.CategoryID,
		Name:          req.Name,
		Unit:          req.Unit,
		Icon:          req.Icon,
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		Stock:         req.Stock,
	}
}

// =============================================================================
// CHECKOUT AND SALES
// =============================================================================

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]ledger.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ledger.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Discount:  item.Discount,
		})
	}
	checkout := ledger.CheckoutRequest{
		Items:    items,
		SaleType: ledger.SaleType(req.SaleType),
	}
	if req.Bonus != nil {
		checkout.Bonus = &ledger.BonusInfo{
			CustomerID:  req.Bonus.CustomerID,
			DebitAmount: req.Bonus.DebitAmount,
		}
	}

	result, err := h.engine.Checkout(r.Context(), checkout)
	if err != nil {
		writeFailure(w, "Failed to complete checkout", err)
		return
	}
	writeOK(w, http.StatusCreated, CheckoutResultDTO{
		BatchID:    result.BatchID,
		DeliveryID: result.DeliveryID,
		Total:      result.Total.Round(2),
	})
}

func (h *Handler) CancelDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.CancelDelivery(r.Context(), id); err != nil {
		writeFailure(w, "Failed to cancel delivery", err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

func (h *Handler) UndoLastSale(w http.ResponseWriter, r *http.Request) {
	var req UndoSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.engine.UndoLastSale(r.Context(), req.ProductID, ledger.SaleType(req.SaleType))
	if err != nil {
		writeFailure(w, "Failed to undo sale", err)
		return
	}
	writeOK(w, http.StatusOK, UndoResultDTO{
		UndoneBatch: result.UndoneBatch,
		UndoneItems: result.UndoneItems,
	})
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.engine.CreateCustomer(r.Context(), req.Name, req.Phone)
	if err != nil {
		writeFailure(w, "Failed to create customer", err)
		return
	}
	writeOK(w, http.StatusCreated, toCustomerDTO(*c, nil))
}

func (h *Handler) FindCustomerByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	c, err := h.engine.FindCustomerByPhone(r.Context(), phone)
	if err != nil {
		writeFailure(w, "Failed to find customer", err)
		return
	}
	writeOK(w, http.StatusOK, toCustomerDTO(*c, nil))
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	details, err := h.engine.CustomerDetails(r.Context(), id)
	if err != nil {
		writeFailure(w, "Failed to get customer", err)
		return
	}
	writeOK(w, http.StatusOK, toCustomerDTO(details.Customer, &details.TransactionCount))
}

func (h *Handler) BonusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.engine.BonusHistory(r.Context(), id)
	if err != nil {
		writeFailure(w, "Failed to get bonus history", err)
		return
	}
	dtos := make([]BonusTransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toBonusTransactionDTO(tx))
	}
	writeOK(w, http.StatusOK, dtos)
}

func (h *Handler) PurchaseHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.engine.PurchaseHistory(r.Context(), id)
	if err != nil {
		writeFailure(w, "Failed to get purchase history", err)
		return
	}
	dtos := make([]PurchaseHistoryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toPurchaseHistoryDTO(e))
	}
	writeOK(w, http.StatusOK, dtos)
}

func (h *Handler) MonthlySpend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	spend, err := h.engine.MonthlySpend(r.Context(), id, time.Time{})
	if err != nil {
		writeFailure(w, "Failed to get monthly spend", err)
		return
	}
	writeOK(w, http.StatusOK, MonthlySpendDTO{CustomerID: id, Spend: spend.Round(2)})
}

func (h *Handler) AddManualBonus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ManualBonusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.engine.AddManualTransaction(r.Context(), id,
		ledger.BonusTxType(req.Type), req.Amount, req.PurchaseAmount)
	if err != nil {
		writeFailure(w, "Failed to add bonus transaction", err)
		return
	}
	writeOK(w, http.StatusCreated, toCustomerDTO(*c, nil))
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) BonusReport(w http.ResponseWriter, r *http.Request) {
	period := ledger.ReportPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = ledger.PeriodDay
	}
	report, err := h.engine.Report(r.Context(), period)
	if err != nil {
		writeFailure(w, "Failed to build bonus report", err)
		return
	}
	writeOK(w, http.StatusOK, BonusReportDTO{
		Period:       string(period),
		Accrued:      report.Accrued.Round(2),
		Debited:      report.Debited.Round(2),
		TotalBalance: report.TotalBalance.Round(2),
	})
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.store.SalesList(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to list sales", err)
		return
	}
	writeOK(w, http.StatusOK, toSaleRowDTOs(rows))
}

func (h *Handler) DeliveriesCount(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	count, err := h.store.DeliveriesCount(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to count deliveries", err)
		return
	}
	writeOK(w, http.StatusOK, DeliveriesCountDTO{Count: count})
}

func (h *Handler) DailyBreakdown(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.store.DailyBreakdown(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to build daily breakdown", err)
		return
	}
	dtos := make([]WeekdayProductSalesDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, WeekdayProductSalesDTO{
			Weekday:     row.Weekday,
			ProductName: row.ProductName,
			Unit:        row.Unit,
			Quantity:    row.Quantity,
		})
	}
	writeOK(w, http.StatusOK, dtos)
}

func (h *Handler) FinancialSummary(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	summary, err := h.store.FinancialSummary(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to build financial summary", err)
		return
	}
	writeOK(w, http.StatusOK, FinancialSummaryDTO{
		Revenue:   summary.Revenue.Round(2),
		Cost:      summary.Cost.Round(2),
		Profit:    summary.Profit.Round(2),
		SaleCount: summary.SaleCount,
	})
}

func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.store.TopProducts(r.Context(), filter, queryLimit(r))
	if err != nil {
		writeFailure(w, "Failed to build top products report", err)
		return
	}
	writeOK(w, http.StatusOK, toProductSalesDTOs(rows))
}

func (h *Handler) LeastProducts(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.store.LeastProducts(r.Context(), filter, queryLimit(r))
	if err != nil {
		writeFailure(w, "Failed to build least products report", err)
		return
	}
	writeOK(w, http.StatusOK, toProductSalesDTOs(rows))
}

func (h *Handler) AveragePerDay(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	avg, err := h.store.AveragePerDay(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to build daily average report", err)
		return
	}
	writeOK(w, http.StatusOK, DailyAverageDTO{
		Days:           avg.Days,
		AverageRevenue: avg.AverageRevenue.Round(2),
	})
}

func (h *Handler) SalesByWeekday(w http.ResponseWriter, r *http.Request) {
	filter, ok := salesFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.store.SalesByWeekday(r.Context(), filter)
	if err != nil {
		writeFailure(w, "Failed to build weekday report", err)
		return
	}
	dtos := make([]WeekdaySalesDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, WeekdaySalesDTO{Weekday: row.Weekday, Revenue: row.Revenue.Round(2)})
	}
	writeOK(w, http.StatusOK, dtos)
}

// salesFilter parses the shared report query parameters: from, to
// (RFC3339 or YYYY-MM-DD), categoryId, saleType.
func salesFilter(w http.ResponseWriter, r *http.Request) (sqlite.SalesFilter, bool) {
	var f sqlite.SalesFilter
	q := r.URL.Query()

	parse := func(name string) (*time.Time, bool) {
		raw := q.Get(name)
		if raw == "" {
			return nil, true
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t, true
		}
		if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
			return &t, true
		}
		writeFailure(w, "Failed to parse report filter",
			&ledger.ValidationError{Field: name, Reason: "must be an ISO-8601 date"})
		return nil, false
	}

	from, ok := parse("from")
	if !ok {
		return f, false
	}
	to, ok := parse("to")
	if !ok {
		return f, false
	}
	f.From, f.To = from, to

	if raw := q.Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeFailure(w, "Failed to parse report filter",
				&ledger.ValidationError{Field: "categoryId", Reason: "must be an integer"})
			return f, false
		}
		f.CategoryID = id
	}
	if raw := q.Get("saleType"); raw != "" {
		st := ledger.SaleType(raw)
		if !st.Valid() {
			writeFailure(w, "Failed to parse report filter",
				&ledger.ValidationError{Field: "saleType", Reason: "must be instore or delivery"})
			return f, false
		}
		f.SaleType = st
	}
	return f, true
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// =============================================================================
// SETTINGS AND ADMIN
// =============================================================================

func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := h.engine.Setting(r.Context(), key)
	if err != nil {
		writeFailure(w, "Failed to get setting", err)
		return
	}
	if !ok {
		writeFailure(w, "Failed to get setting", &ledger.NotFoundError{Kind: "setting", ID: 0})
		return
	}
	writeOK(w, http.StatusOK, SettingDTO{Key: key, Value: value})
}

func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req SettingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetSetting(r.Context(), key, req.Value); err != nil {
		writeFailure(w, "Failed to save setting", err)
		return
	}
	writeOK(w, http.StatusOK, SettingDTO{Key: key, Value: req.Value})
}

func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	var req BackupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeFailure(w, "Failed to back up database",
			&ledger.ValidationError{Field: "path", Reason: "must not be empty"})
		return
	}
	if err := h.store.Backup(r.Context(), req.Path); err != nil {
		writeFailure(w, "Failed to back up database", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"path": req.Path})
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	var req BackupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeFailure(w, "Failed to restore database",
			&ledger.ValidationError{Field: "path", Reason: "must not be empty"})
		return
	}
	if err := h.store.Restore(r.Context(), req.Path); err != nil {
		writeFailure(w, "Failed to restore database", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"path": req.Path})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, "Failed to parse request body",
			&ledger.ValidationError{Field: "body", Reason: "must be valid JSON"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeFailure(w, "Failed to parse identifier",
			&ledger.ValidationError{Field: name, Reason: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeFailure maps a typed error to an HTTP status and the uniform
// failure envelope. Client errors carry the typed detail; anything else
// is logged server-side and reported generically.
func writeFailure(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBonus), errors.Is(err, ledger.ErrInsufficientStock):
		status = http.StatusConflict
	}

	body := Envelope{Success: false, Message: message}
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
	} else {
		body.Message = message + ": " + err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
