/*
dto.go - Data Transfer Objects for API requests and responses

Every response uses the same envelope: {"success": true, "data": ...} on
success, {"success": false, "message": "Failed to ..."} on error. Money
crosses the boundary rounded to two decimal places; dates are ISO-8601.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

Validation lives in the engine and catalog packages, not here. DTOs are
pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/pos-engine/ledger"
	"github.com/retailpoint/pos-engine/store/sqlite"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type CategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type ProductDTO struct {
	ID            int64           `json:"id"`
	CategoryID    int64           `json:"categoryId"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Icon          string          `json:"icon,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	Stock         decimal.Decimal `json:"stock"`
}

type ProductRequest struct {
	CategoryID    int64           `json:"categoryId"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Icon          string          `json:"icon"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	Stock         decimal.Decimal `json:"stock"`
}

type StockAdjustmentRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// =============================================================================
// CHECKOUT AND SALES
// =============================================================================

type CartItemRequest struct {
	ProductID int64           `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
}

type BonusInfoRequest struct {
	CustomerID  int64           `json:"customerId"`
	DebitAmount decimal.Decimal `json:"debitAmount"`
}

type CheckoutRequestDTO struct {
	Items    []CartItemRequest `json:"items"`
	Bonus    *BonusInfoRequest `json:"bonusInfo,omitempty"`
	SaleType string            `json:"saleType"`
}

type CheckoutResultDTO struct {
	BatchID    string          `json:"batchId"`
	DeliveryID *int64          `json:"deliveryId,omitempty"`
	Total      decimal.Decimal `json:"total"`
}

type UndoSaleRequest struct {
	ProductID int64  `json:"productId"`
	SaleType  string `json:"saleType"`
}

type UndoResultDTO struct {
	UndoneBatch bool     `json:"undoneBatch"`
	UndoneItems []string `json:"undoneItems,omitempty"`
}

// =============================================================================
// CUSTOMERS AND BONUS
// =============================================================================

type CustomerDTO struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone"`
	RegistrationDate string          `json:"registrationDate"`
	BonusPoints      decimal.Decimal `json:"bonusPoints"`
	TransactionCount *int            `json:"transactionCount,omitempty"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type BonusTransactionDTO struct {
	ID             int64            `json:"id"`
	Type           string           `json:"type"`
	Amount         decimal.Decimal  `json:"amount"`
	PurchaseAmount *decimal.Decimal `json:"purchaseAmount,omitempty"`
	Date           string           `json:"date"`
	DeliveryID     *int64           `json:"deliveryId,omitempty"`
	BatchID        string           `json:"batchId,omitempty"`
}

type ManualBonusRequest struct {
	Type           string           `json:"type"`
	Amount         decimal.Decimal  `json:"amount"`
	PurchaseAmount *decimal.Decimal `json:"purchaseAmount,omitempty"`
}

type PurchaseHistoryDTO struct {
	Date         string          `json:"date"`
	BatchID      string          `json:"batchId,omitempty"`
	DeliveryID   *int64          `json:"deliveryId,omitempty"`
	ProductName  string          `json:"productName"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
}

type MonthlySpendDTO struct {
	CustomerID int64           `json:"customerId"`
	Spend      decimal.Decimal `json:"spend"`
}

// =============================================================================
// REPORTS AND SETTINGS
// =============================================================================

type BonusReportDTO struct {
	Period       string          `json:"period"`
	Accrued      decimal.Decimal `json:"accrued"`
	Debited      decimal.Decimal `json:"debited"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
}

type SaleRowDTO struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"productId"`
	ProductName   string          `json:"productName"`
	Unit          string          `json:"unit"`
	CategoryID    int64           `json:"categoryId"`
	Quantity      decimal.Decimal `json:"quantity"`
	Date          time.Time       `json:"date"`
	SaleType      string          `json:"saleType"`
	Discount      decimal.Decimal `json:"discount"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	DeliveryID    *int64          `json:"deliveryId,omitempty"`
	BatchID       string          `json:"batchId,omitempty"`
}

type DeliveriesCountDTO struct {
	Count int `json:"count"`
}

type WeekdayProductSalesDTO struct {
	Weekday     int             `json:"weekday"`
	ProductName string          `json:"productName"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type FinancialSummaryDTO struct {
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	SaleCount int             `json:"saleCount"`
}

type ProductSalesDTO struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    decimal.Decimal `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type DailyAverageDTO struct {
	Days           int             `json:"days"`
	AverageRevenue decimal.Decimal `json:"averageRevenue"`
}

type WeekdaySalesDTO struct {
	Weekday int             `json:"weekday"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SettingDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SettingRequest struct {
	Value string `json:"value"`
}

type BackupRequest struct {
	Path string `json:"path"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCategoryDTO(c ledger.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name, Icon: c.Icon}
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:            p.ID,
		CategoryID:    p.CategoryID,
		Name:          p.Name,
		Unit:          p.Unit,
		Icon:          p.Icon,
		PurchasePrice: p.PurchasePrice.Round(2),
		SellingPrice:  p.SellingPrice.Round(2),
		Stock:         p.Stock,
	}
}

func toCustomerDTO(c ledger.Customer, txCount *int) CustomerDTO {
	return CustomerDTO{
		ID:               c.ID,
		Name:             c.Name,
		Phone:            c.Phone,
		RegistrationDate: c.RegistrationDate.Format(time.RFC3339),
		BonusPoints:      c.BonusPoints.Round(2),
		TransactionCount: txCount,
	}
}

func toBonusTransactionDTO(tx ledger.BonusTransaction) BonusTransactionDTO {
	dto := BonusTransactionDTO{
		ID:         tx.ID,
		Type:       string(tx.Type),
		Amount:     tx.Amount.Round(2),
		Date:       tx.Date.Format(time.RFC3339),
		DeliveryID: tx.DeliveryID,
		BatchID:    tx.BatchID,
	}
	if tx.PurchaseAmount != nil {
		rounded := tx.PurchaseAmount.Round(2)
		dto.PurchaseAmount = &rounded
	}
	return dto
}

func toPurchaseHistoryDTO(e ledger.PurchaseHistoryEntry) PurchaseHistoryDTO {
	return PurchaseHistoryDTO{
		Date:         e.Date.Format(time.RFC3339),
		BatchID:      e.BatchID,
		DeliveryID:   e.DeliveryID,
		ProductName:  e.ProductName,
		Quantity:     e.Quantity,
		SellingPrice: e.SellingPrice.Round(2),
	}
}

func toSaleRowDTOs(rows []sqlite.SaleRow) []SaleRowDTO {
	dtos := make([]SaleRowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, SaleRowDTO{
			ID:            row.ID,
			ProductID:     row.ProductID,
			ProductName:   row.ProductName,
			Unit:          row.Unit,
			CategoryID:    row.CategoryID,
			Quantity:      row.Quantity,
			Date:          row.Date,
			SaleType:      string(row.SaleType),
			Discount:      row.Discount,
			SellingPrice:  row.SellingPrice.Round(2),
			PurchasePrice: row.PurchasePrice.Round(2),
			DeliveryID:    row.DeliveryID,
			BatchID:       row.BatchID,
		})
	}
	return dtos
}

func toProductSalesDTOs(rows []sqlite.ProductSales) []ProductSalesDTO {
	dtos := make([]ProductSalesDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ProductSalesDTO{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Quantity:    row.Quantity,
			Revenue:     row.Revenue.Round(2),
		})
	}
	return dtos
}
