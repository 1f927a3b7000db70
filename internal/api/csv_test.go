package api

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/statementpipeline/internal/store"
)

func TestBuildCSVHappyPath(t *testing.T) {
	d1 := date(t, "2025-01-02")
	d2 := date(t, "2025-01-05")
	bal1, bal2 := 17000.0, 20000.0
	record := &store.Record{
		Job: store.Job{ID: "abc123"},
		Customer: &store.Customer{
			HolderName:          "Jane Doe",
			AccountNumberMasked: "XXXXXXXX9012",
			AccountType:         "Checking",
		},
		Bank: &store.Bank{
			Name:           "First Bank",
			Branch:         "Downtown",
			Currency:       "USD",
			PeriodStart:    &d1,
			PeriodEnd:      &d2,
			OpeningBalance: 17500,
			ClosingBalance: 15000,
		},
		Transactions: []store.Transaction{
			{Date: &d1, Description: "Grocery", Debit: 500, Balance: &bal1},
			{Date: &d2, Description: "Paycheck", Credit: 3000, Balance: &bal2},
		},
	}

	csv := BuildCSV(record)

	assert.True(t, strings.HasPrefix(csv, "Bank Statement Export\n\n"))
	assert.Contains(t, csv, "Bank Name:,First Bank\n")
	assert.Contains(t, csv, "Account Number:,XXXXXXXX9012\n")
	assert.Contains(t, csv, "Statement Period:,2025-01-02 to 2025-01-05\n")
	assert.Contains(t, csv, "TRANSACTIONS\n")
	assert.Contains(t, csv, "2025-01-02,Grocery,500.00,0.00,17000.00\n")
	assert.Contains(t, csv, "SUMMARY\n")
	assert.Contains(t, csv, "Final Balance:,15000.00\n")
}

func TestBuildCSVDefaultsMissingFieldsToNA(t *testing.T) {
	record := &store.Record{Job: store.Job{ID: "xyz"}}
	csv := BuildCSV(record)
	assert.Contains(t, csv, "Bank Name:,N/A\n")
	assert.Contains(t, csv, "Account Holder:,N/A\n")
	assert.Contains(t, csv, "Currency:,USD\n")
}

func TestBuildCSVEscapesCommasInDescription(t *testing.T) {
	d := date(t, "2025-01-02")
	record := &store.Record{
		Transactions: []store.Transaction{
			{Date: &d, Description: "Coffee, Tea & Co", Debit: 5},
		},
	}
	csv := BuildCSV(record)
	assert.Contains(t, csv, `"Coffee, Tea & Co"`)
}

func TestBuildCSVLeavesBalanceBlankWhenNotExtracted(t *testing.T) {
	d := date(t, "2025-01-02")
	record := &store.Record{
		Transactions: []store.Transaction{
			{Date: &d, Description: "Unknown fee", Debit: 2},
		},
	}
	csv := BuildCSV(record)
	assert.Contains(t, csv, "2025-01-02,Unknown fee,2.00,0.00,\n")
}

func TestCSVFilenameFormat(t *testing.T) {
	assert.Equal(t, "statement_abc123_20250801.csv", CSVFilename("abc123", "20250801"))
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	assert.NoError(t, err)
	return d
}
