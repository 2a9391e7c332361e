package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos-engine/ledger"
)

func TestSetSetting_RecognizedKeys_RangeChecked(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		key   string
		value string
		valid bool
	}{
		{ledger.SettingBonusPercentage, "0", true},
		{ledger.SettingBonusPercentage, "100", true},
		{ledger.SettingBonusPercentage, "101", false},
		{ledger.SettingBonusPercentage, "-1", false},
		{ledger.SettingBonusPercentage, "abc", false},
		{ledger.SettingPremiumBonusPercentage, "200", true},
		{ledger.SettingPremiumBonusPercentage, "201", false},
		{ledger.SettingPremiumThreshold, "999999999", true},
		{ledger.SettingPremiumThreshold, "1000000000", false},
		{ledger.SettingMaxDiscount, "100", true},
		{ledger.SettingMaxDiscount, "100.5", false},
	}
	for _, tc := range cases {
		err := engine.SetSetting(ctx, tc.key, tc.value)
		if tc.valid {
			assert.NoError(t, err, "%s=%s", tc.key, tc.value)
		} else {
			assert.ErrorIs(t, err, ledger.ErrValidation, "%s=%s", tc.key, tc.value)
		}
	}
}

func TestSetSetting_UnrecognizedKey_StoredVerbatim(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.SetSetting(ctx, "receipt_footer", "Thank you!"))

	value, ok, err := engine.Setting(ctx, "receipt_footer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Thank you!", value)
}

func TestSetSetting_Overwrite(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.SetSetting(ctx, ledger.SettingBonusPercentage, "2"))
	require.NoError(t, engine.SetSetting(ctx, ledger.SettingBonusPercentage, "3"))

	value, ok, err := engine.Setting(ctx, ledger.SettingBonusPercentage)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", value)
}

func TestSetting_UnsetKey_ReportsAbsent(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, ok, err := engine.Setting(context.Background(), ledger.SettingMaxDiscount)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckout_UnsetPercentage_FallsBackToDefault(t *testing.T) {
	// No settings written at all: the default 1% must apply.
	engine, store := newTestEngine(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Default Rate", 100, 10)
	customerID := seedCustomer(t, store, "+79992220001", 0)

	_, err := engine.Checkout(ctx, ledger.CheckoutRequest{
		Items:    []ledger.CartItem{{ProductID: productID, Quantity: decimal.NewFromInt(1)}},
		Bonus:    &ledger.BonusInfo{CustomerID: customerID},
		SaleType: ledger.SaleInstore,
	})
	require.NoError(t, err)

	assert.True(t, customerBalance(t, store, customerID).Equal(decimal.NewFromInt(1)))
}

func TestCheckout_ZeroPercentage_NoAccrualRow(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	productID := seedProduct(t, store, "Zero Rate", 100, 10)
	customerID := seedCustomer(t, store, "+79992220002", 0)

	require.NoError(t, engine.SetSetting(ctx, ledger.SettingBonusPercentage, "0"))

	_, err := engine.Checkout(ctx, ledger.CheckoutRequest{
		Items:    []ledger.CartItem{{ProductID: productID, Quantity: decimal.NewFromInt(1)}},
		Bonus:    &ledger.BonusInfo{CustomerID: customerID},
		SaleType: ledger.SaleInstore,
	})
	require.NoError(t, err)

	count, err := store.CountBonusTransactions(ctx, customerID)
	require.NoError(t, err)
	assert.Zero(t, count, "a zero accrual must not be recorded")
}
