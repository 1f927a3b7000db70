package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fieldObj(value interface{}, confidence float64) map[string]interface{} {
	return map[string]interface{}{"value": value, "confidence": confidence}
}

func TestSplitExtractionTreeBuildsCustomerAndBank(t *testing.T) {
	tree := map[string]interface{}{
		"account": map[string]interface{}{
			"holder_name":    fieldObj("Jane Doe", 0.95),
			"account_number": fieldObj("XXXXXXXX9012", 0.9),
		},
		"bank": map[string]interface{}{
			"name":     fieldObj("First Bank", 0.9),
			"currency": fieldObj("USD", 1.0),
		},
		"period": map[string]interface{}{
			"start_date": fieldObj("2025-01-01", 0.9),
			"end_date":   fieldObj("2025-01-31", 0.9),
		},
		"balances": map[string]interface{}{
			"opening_balance": fieldObj(17500.0, 0.9),
			"closing_balance": fieldObj(15000.0, 0.9),
		},
		"transactions": []interface{}{
			map[string]interface{}{
				"date":        fieldObj("2025-01-02", 0.9),
				"description": fieldObj("Grocery", 0.8),
				"debit":       fieldObj(500.0, 0.9),
				"balance":     fieldObj(17000.0, 0.9),
			},
		},
	}

	customer, bank, transactions := splitExtractionTree(tree)

	assert.NotNil(t, customer)
	assert.Equal(t, "Jane Doe", customer.HolderName)
	assert.Equal(t, "XXXXXXXX9012", customer.AccountNumberMasked)

	assert.NotNil(t, bank)
	assert.Equal(t, "First Bank", bank.Name)
	assert.Equal(t, "USD", bank.Currency)
	assert.InDelta(t, 17500.0, bank.OpeningBalance, 1e-9)
	assert.NotNil(t, bank.PeriodStart)

	assert.Len(t, transactions, 1)
	assert.Equal(t, "Grocery", transactions[0].Description)
	assert.InDelta(t, 500.0, transactions[0].Debit, 1e-9)
	if assert.NotNil(t, transactions[0].Balance) {
		assert.InDelta(t, 17000.0, *transactions[0].Balance, 1e-9)
	}
}

func TestSplitExtractionTreeLeavesBalanceNilWhenNotExtracted(t *testing.T) {
	tree := map[string]interface{}{
		"transactions": []interface{}{
			map[string]interface{}{
				"date":        fieldObj("2025-01-02", 0.9),
				"description": fieldObj("Unknown fee", 0.8),
				"debit":       fieldObj(2.0, 0.9),
			},
		},
	}
	_, _, transactions := splitExtractionTree(tree)
	assert.Len(t, transactions, 1)
	assert.Nil(t, transactions[0].Balance)
}

func TestSplitExtractionTreeHandlesMissingGroups(t *testing.T) {
	customer, bank, transactions := splitExtractionTree(map[string]interface{}{})
	assert.Nil(t, customer)
	assert.Nil(t, bank)
	assert.Nil(t, transactions)
}

func TestSplitExtractionTreeDefaultsCurrencyToUSD(t *testing.T) {
	tree := map[string]interface{}{
		"bank": map[string]interface{}{
			"name": fieldObj("Some Bank", 0.9),
		},
	}
	_, bank, _ := splitExtractionTree(tree)
	assert.Equal(t, "USD", bank.Currency)
}

func TestFloatFieldParsesStringAmount(t *testing.T) {
	group := map[string]interface{}{"amount": fieldObj("$1,234.56", 0.9)}
	value, conf := floatField(group, "amount")
	assert.InDelta(t, 1234.56, value, 1e-9)
	assert.InDelta(t, 0.9, conf, 1e-9)
}

func TestFloatFieldPtrReturnsNilWhenFieldAbsent(t *testing.T) {
	value, conf := floatFieldPtr(map[string]interface{}{}, "balance")
	assert.Nil(t, value)
	assert.Equal(t, 0.0, conf)
}

func TestFloatFieldPtrReturnsPointerWhenPresent(t *testing.T) {
	group := map[string]interface{}{"balance": fieldObj(17000.0, 0.9)}
	value, conf := floatFieldPtr(group, "balance")
	if assert.NotNil(t, value) {
		assert.InDelta(t, 17000.0, *value, 1e-9)
	}
	assert.InDelta(t, 0.9, conf, 1e-9)
}

func TestDateFieldRejectsUnparseableDate(t *testing.T) {
	group := map[string]interface{}{"date": fieldObj("not-a-date", 0.5)}
	d, _ := dateField(group, "date")
	assert.Nil(t, d)
}
