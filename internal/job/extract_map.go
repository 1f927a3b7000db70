package job

import (
	"time"

	"github.com/bosocmputer/statementpipeline/internal/normalize"
	"github.com/bosocmputer/statementpipeline/internal/store"
)

// splitExtractionTree maps the canonical, normalized extraction tree into
// the relational rows the Store persists. Every leaf it reads is a field
// object. A missing group yields no row (nil customer or bank, no
// transactions); within a row, missing dates and transaction balances stay
// nil, missing strings are empty, and other missing amounts read as 0.
func splitExtractionTree(data map[string]interface{}) (*store.Customer, *store.Bank, []store.Transaction) {
	var customer *store.Customer
	if account, ok := groupOf(data, "account"); ok {
		holder, holderConf := stringField(account, "holder_name")
		accountNum, accountConf := stringField(account, "account_number")
		accountType, typeConf := stringField(account, "account_type")
		customer = &store.Customer{
			HolderName:          holder,
			AccountNumberMasked: accountNum,
			AccountType:         accountType,
			Confidences: map[string]interface{}{
				"holder_name":     holderConf,
				"account_number":  accountConf,
				"account_type":    typeConf,
			},
		}
	}

	var bank *store.Bank
	if bankGroup, ok := groupOf(data, "bank"); ok {
		name, nameConf := stringField(bankGroup, "name")
		branch, branchConf := stringField(bankGroup, "branch")
		currency, currConf := stringField(bankGroup, "currency")
		if currency == "" {
			currency = "USD"
		}

		bank = &store.Bank{
			Name:     name,
			Branch:   branch,
			Currency: currency,
			Confidences: map[string]interface{}{
				"name":     nameConf,
				"branch":   branchConf,
				"currency": currConf,
			},
		}

		if period, ok := groupOf(data, "period"); ok {
			bank.PeriodStart, _ = dateField(period, "start_date")
			bank.PeriodEnd, _ = dateField(period, "end_date")
		}
		if balances, ok := groupOf(data, "balances"); ok {
			bank.OpeningBalance, _ = floatField(balances, "opening_balance")
			bank.ClosingBalance, _ = floatField(balances, "closing_balance")
			bank.TotalDebits, _ = floatField(balances, "total_debits")
			bank.TotalCredits, _ = floatField(balances, "total_credits")
		}
	}

	var transactions []store.Transaction
	if raw, ok := data["transactions"].([]interface{}); ok {
		for _, item := range raw {
			row, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			date, dateConf := dateField(row, "date")
			desc, descConf := stringField(row, "description")
			debit, debitConf := floatField(row, "debit")
			credit, creditConf := floatField(row, "credit")
			balance, balanceConf := floatFieldPtr(row, "balance")
			txnType, _ := stringField(row, "type")
			reference, _ := stringField(row, "reference")

			rawCols, _ := row["raw"].(map[string]interface{})

			transactions = append(transactions, store.Transaction{
				Date:        date,
				Description: desc,
				Debit:       debit,
				Credit:      credit,
				Balance:     balance,
				Type:        txnType,
				Reference:   reference,
				Confidences: map[string]interface{}{
					"date":        dateConf,
					"description": descConf,
					"debit":       debitConf,
					"credit":      creditConf,
					"balance":     balanceConf,
				},
				Raw: rawCols,
			})
		}
	}

	return customer, bank, transactions
}

func groupOf(data map[string]interface{}, key string) (map[string]interface{}, bool) {
	g, ok := data[key].(map[string]interface{})
	return g, ok
}

// fieldValueAndConfidence reads one field object {value, confidence, ...}
// from group[key]. Non-field-object values (plain strings the model emitted
// without wrapping) are tolerated with confidence 0, matching the
// orchestrator's tolerance for partial model compliance.
func fieldValueAndConfidence(group map[string]interface{}, key string) (interface{}, float64) {
	raw, ok := group[key]
	if !ok {
		return nil, 0
	}
	field, ok := raw.(map[string]interface{})
	if !ok {
		return raw, 0
	}
	if !normalize.IsFieldObject(field) {
		return field, 0
	}
	conf, _ := field["confidence"].(float64)
	return field["value"], conf
}

func stringField(group map[string]interface{}, key string) (string, float64) {
	v, conf := fieldValueAndConfidence(group, key)
	s, _ := v.(string)
	return s, conf
}

func floatField(group map[string]interface{}, key string) (float64, float64) {
	v, conf := fieldValueAndConfidence(group, key)
	switch n := v.(type) {
	case float64:
		return n, conf
	case string:
		if amt, ok := normalize.NormalizeAmount(n); ok {
			return amt.Value, conf
		}
	}
	return 0, conf
}

// floatFieldPtr is like floatField but preserves "field absent" as nil
// rather than coercing it to 0, for columns the CSV export is allowed to
// leave blank (e.g. a transaction's running balance).
func floatFieldPtr(group map[string]interface{}, key string) (*float64, float64) {
	if _, ok := group[key]; !ok {
		return nil, 0
	}
	v, conf := fieldValueAndConfidence(group, key)
	switch n := v.(type) {
	case float64:
		return &n, conf
	case string:
		if amt, ok := normalize.NormalizeAmount(n); ok {
			return &amt.Value, conf
		}
	}
	return nil, conf
}

func dateField(group map[string]interface{}, key string) (*time.Time, float64) {
	v, conf := fieldValueAndConfidence(group, key)
	s, _ := v.(string)
	if s == "" {
		return nil, conf
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, conf
	}
	return nil, conf
}
