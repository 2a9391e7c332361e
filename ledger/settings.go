/*
settings.go - Recognized settings keys, ranges and defaults

Each recognized key has a closed numeric range. Setting an out-of-range
value is rejected before persisting; unrecognized keys are stored as
opaque strings. Reads at checkout time fall back to the default when a
key is unset or holds an invalid value, so a corrupted setting can never
propagate into cashback arithmetic.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Recognized settings keys.
const (
	SettingBonusPercentage        = "bonus_percentage"
	SettingPremiumBonusPercentage = "premium_bonus_percentage"
	SettingPremiumThreshold       = "premium_threshold_amount"
	SettingMaxDiscount            = "max_discount"
)

// Defaults applied when a key is unset or invalid.
var (
	DefaultBonusPercentage        = decimal.NewFromInt(1)
	DefaultPremiumBonusPercentage = decimal.NewFromInt(5)
	DefaultPremiumThreshold       = decimal.NewFromInt(100000)
)

// settingRange is the closed numeric range of one recognized key.
type settingRange struct {
	min decimal.Decimal
	max decimal.Decimal
}

var settingRanges = map[string]settingRange{
	SettingBonusPercentage:        {decimal.Zero, decimal.NewFromInt(100)},
	SettingPremiumBonusPercentage: {decimal.Zero, decimal.NewFromInt(200)},
	SettingPremiumThreshold:       {decimal.Zero, decimal.NewFromInt(999999999)},
	SettingMaxDiscount:            {decimal.Zero, decimal.NewFromInt(100)},
}

// normalizeSetting validates value against the key's range when the key is
// recognized and returns the canonical string form. Unrecognized keys pass
// through untouched.
func normalizeSetting(key, value string) (string, error) {
	r, recognized := settingRanges[key]
	if !recognized {
		return value, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return "", &ValidationError{Field: key, Reason: "must be a number"}
	}
	if d.LessThan(r.min) || d.GreaterThan(r.max) {
		return "", &ValidationError{
			Field:  key,
			Reason: fmt.Sprintf("must be between %s and %s", r.min, r.max),
		}
	}
	return d.String(), nil
}

// settingOrDefault reads a recognized numeric key inside the current
// transaction, falling back to def when unset, unparsable or out of range.
func settingOrDefault(ctx context.Context, s Store, key string, def decimal.Decimal) decimal.Decimal {
	value, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return def
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return def
	}
	if r, recognized := settingRanges[key]; recognized {
		if d.LessThan(r.min) || d.GreaterThan(r.max) {
			return def
		}
	}
	return d
}

// Setting returns the raw stored value; ok is false when the key was never
// set. Callers provide their own default, never nil into arithmetic.
func (e *Engine) Setting(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	return e.store.Setting(ctx, key)
}

// SetSetting validates and persists a settings value.
func (e *Engine) SetSetting(ctx context.Context, key, value string) error {
	if key == "" || len(key) > 100 {
		return &ValidationError{Field: "key", Reason: "must be 1-100 characters"}
	}
	normalized, err := normalizeSetting(key, value)
	if err != nil {
		return err
	}
	return e.store.SetSetting(ctx, key, normalized)
}
