package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDateISO(t *testing.T) {
	iso, ok := NormalizeDate("2025-01-02", "")
	assert.True(t, ok)
	assert.Equal(t, "2025-01-02", iso)
}

func TestNormalizeDateProbeList(t *testing.T) {
	iso, ok := NormalizeDate("02-Jan-2025", "")
	assert.True(t, ok)
	assert.Equal(t, "2025-01-02", iso)
}

func TestNormalizeDateUnparseable(t *testing.T) {
	_, ok := NormalizeDate("not a date", "")
	assert.False(t, ok)
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	iso, ok := NormalizeDate("2025-03-14", "")
	assert.True(t, ok)
	iso2, ok := NormalizeDate(iso, "")
	assert.True(t, ok)
	assert.Equal(t, iso, iso2)
}

func TestNormalizeAmountWithCurrencySymbol(t *testing.T) {
	amt, ok := NormalizeAmount("$1,234.56")
	assert.True(t, ok)
	assert.InDelta(t, 1234.56, amt.Value, 1e-9)
	assert.Equal(t, "USD", amt.Currency)
}

func TestNormalizeAmountWithTrailingCode(t *testing.T) {
	amt, ok := NormalizeAmount("1,500.00 THB")
	assert.True(t, ok)
	assert.InDelta(t, 1500.00, amt.Value, 1e-9)
	assert.Equal(t, "THB", amt.Currency)
}

func TestNormalizeAmountFallbackToSubstring(t *testing.T) {
	amt, ok := NormalizeAmount("balance approx 42.50 units")
	assert.True(t, ok)
	assert.InDelta(t, 42.50, amt.Value, 1e-9)
}

func TestNormalizeAmountUnparseable(t *testing.T) {
	_, ok := NormalizeAmount("no numbers here")
	assert.False(t, ok)
}

func TestMaskValuePreservesLengthAndTail(t *testing.T) {
	masked := MaskValue("123456789012", "X", 4)
	assert.Equal(t, "XXXXXXXX9012", masked)
	assert.Len(t, masked, len("123456789012"))
}

func TestMaskValueShorterThanShowLast(t *testing.T) {
	masked := MaskValue("12", "X", 4)
	assert.Equal(t, "12", masked)
}

func TestWalkTreeNormalizesDateAndAmountFields(t *testing.T) {
	tree := map[string]interface{}{
		"balances": map[string]interface{}{
			"opening_balance": map[string]interface{}{"value": "$1,000.00", "confidence": 0.9},
		},
		"period": map[string]interface{}{
			"start_date": map[string]interface{}{"value": "01/02/2025", "confidence": 0.8},
		},
	}

	out := WalkTree(tree, "", DefaultOptions).(map[string]interface{})
	balances := out["balances"].(map[string]interface{})
	opening := balances["opening_balance"].(map[string]interface{})
	assert.Equal(t, 1000.0, opening["value"])

	period := out["period"].(map[string]interface{})
	start := period["start_date"].(map[string]interface{})
	// DD/MM/YYYY is probed before MM/DD/YYYY, so 01/02/2025 is 1 February.
	assert.Equal(t, "2025-02-01", start["value"])
}

func TestWalkTreeIsIdempotent(t *testing.T) {
	tree := map[string]interface{}{
		"balances": map[string]interface{}{
			"opening_balance": map[string]interface{}{"value": "$1,000.00", "confidence": 0.9},
		},
	}
	first := WalkTree(tree, "", DefaultOptions)
	second := WalkTree(first, "", DefaultOptions)
	assert.Equal(t, first, second)
}

func TestWalkTreeMasksAccountNumber(t *testing.T) {
	tree := map[string]interface{}{
		"account": map[string]interface{}{
			"account_number": map[string]interface{}{"value": "123456789012", "confidence": 0.95},
		},
	}
	out := WalkTree(tree, "", DefaultOptions).(map[string]interface{})
	account := out["account"].(map[string]interface{})
	number := account["account_number"].(map[string]interface{})
	assert.Equal(t, "XXXXXXXX9012", number["value"])
}

func TestWalkTreeAppliesDefaultCurrencyToAmountFieldsWithoutOneOfTheirOwn(t *testing.T) {
	tree := map[string]interface{}{
		"balances": map[string]interface{}{
			"opening_balance": map[string]interface{}{"value": "1000.00", "confidence": 0.9},
		},
	}
	opts := DefaultOptions
	opts.DefaultCurrency = "EUR"

	out := WalkTree(tree, "", opts).(map[string]interface{})
	balances := out["balances"].(map[string]interface{})
	opening := balances["opening_balance"].(map[string]interface{})
	assert.Equal(t, "EUR", opening["currency"])
}

func TestDetectCurrencyFallsBackToUSD(t *testing.T) {
	tree := map[string]interface{}{"balances": map[string]interface{}{}}
	assert.Equal(t, "USD", DetectCurrency(tree, "no currency mentioned"))
}

func TestDetectCurrencyFindsLeaf(t *testing.T) {
	tree := map[string]interface{}{
		"bank": map[string]interface{}{
			"currency": map[string]interface{}{"value": "eur", "confidence": 1.0},
		},
	}
	assert.Equal(t, "EUR", DetectCurrency(tree, ""))
}
