package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos-engine/api"
	"github.com/retailpoint/pos-engine/catalog"
	"github.com/retailpoint/pos-engine/ledger"
	"github.com/retailpoint/pos-engine/store/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)

	engine := ledger.NewEngine(store)
	manager := catalog.NewManager(store)
	handler := api.NewHandler(engine, manager, store)

	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return server, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func seedCheckoutFixture(t *testing.T, store *sqlite.Store) (productID, customerID int64) {
	t.Helper()
	ctx := context.Background()

	catID, err := store.InsertCategory(ctx, ledger.Category{Name: "Fixtures"})
	require.NoError(t, err)
	productID, err = store.InsertProduct(ctx, ledger.Product{
		CategoryID:    catID,
		Name:          "Fixture Product",
		Unit:          "pcs",
		PurchasePrice: decimal.NewFromInt(50),
		SellingPrice:  decimal.NewFromInt(100),
		Stock:         decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	c, err := ledger.NewEngine(store).CreateCustomer(ctx, "Fixture Customer", "+79995554433")
	require.NoError(t, err)
	return productID, c.ID
}

// =============================================================================
// ENVELOPE AND STATUS MAPPING
// =============================================================================

func TestCheckout_HappyPath(t *testing.T) {
	server, store := newTestServer(t)
	productID, _ := seedCheckoutFixture(t, store)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/checkout", map[string]any{
		"items": []map[string]any{
			{"productId": productID, "quantity": 2},
		},
		"saleType": "instore",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["batchId"])
	assert.Equal(t, "200", fmt.Sprint(data["total"]))
}

func TestCheckout_InsufficientStock_Returns409Envelope(t *testing.T) {
	server, store := newTestServer(t)
	productID, _ := seedCheckoutFixture(t, store)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/checkout", map[string]any{
		"items": []map[string]any{
			{"productId": productID, "quantity": 999},
		},
		"saleType": "instore",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "Failed to complete checkout")
}

func TestCheckout_BadSaleType_Returns400(t *testing.T) {
	server, store := newTestServer(t)
	productID, _ := seedCheckoutFixture(t, store)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/checkout", map[string]any{
		"items": []map[string]any{
			{"productId": productID, "quantity": 1},
		},
		"saleType": "takeaway",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestCancelDelivery_Unknown_Returns404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodDelete, server.URL+"/api/deliveries/777", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "Failed to cancel delivery")
}

func TestCreateCustomer_InvalidPhone_Returns400(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/customers/", map[string]any{
		"name":  "Anna",
		"phone": "12345",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestCheckoutWithBonus_DebitTooLarge_Returns409(t *testing.T) {
	server, store := newTestServer(t)
	productID, customerID := seedCheckoutFixture(t, store)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/checkout", map[string]any{
		"items": []map[string]any{
			{"productId": productID, "quantity": 1},
		},
		"bonusInfo": map[string]any{
			"customerId":  customerID,
			"debitAmount": 50,
		},
		"saleType": "instore",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

// =============================================================================
// END TO END FLOWS
// =============================================================================

func TestDeliveryLifecycle_OverHTTP(t *testing.T) {
	server, store := newTestServer(t)
	productID, customerID := seedCheckoutFixture(t, store)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/checkout", map[string]any{
		"items": []map[string]any{
			{"productId": productID, "quantity": 3},
		},
		"bonusInfo": map[string]any{"customerId": customerID},
		"saleType":  "delivery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	deliveryID := int64(body["data"].(map[string]any)["deliveryId"].(float64))

	resp, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/deliveries/%d", server.URL, deliveryID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	p, err := store.Product(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(decimal.NewFromInt(10)), "stock restored")
	c, err := store.Customer(context.Background(), customerID)
	require.NoError(t, err)
	assert.True(t, c.BonusPoints.IsZero(), "accrual reversed")
}

func TestSettingsRoundTrip_OverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, server.URL+"/api/settings/bonus_percentage",
		map[string]any{"value": "3"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/settings/bonus_percentage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", body["data"].(map[string]any)["value"])

	resp, _ = doJSON(t, http.MethodPut, server.URL+"/api/settings/bonus_percentage",
		map[string]any{"value": "250"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCategoryCRUD_OverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/categories/",
		map[string]any{"name": "Drinks"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(body["data"].(map[string]any)["id"].(float64))

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/categories/",
		map[string]any{"name": "drinks"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "case-insensitive duplicate")

	resp, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/categories/%d", server.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/categories/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
}
