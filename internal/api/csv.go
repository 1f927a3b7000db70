package api

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/statementpipeline/internal/store"
)

// BuildCSV renders a completed job's record into the exact CSV layout
// downstream tooling expects: header block, transaction table, summary.
func BuildCSV(record *store.Record) string {
	var b strings.Builder

	b.WriteString("Bank Statement Export\n\n")

	bankName, branch, currency := "N/A", "N/A", "USD"
	if record.Bank != nil {
		bankName = orNA(record.Bank.Name)
		branch = orNA(record.Bank.Branch)
		if record.Bank.Currency != "" {
			currency = record.Bank.Currency
		}
	}
	fmt.Fprintf(&b, "Bank Name:,%s\n", bankName)
	fmt.Fprintf(&b, "Branch:,%s\n", branch)
	fmt.Fprintf(&b, "Currency:,%s\n\n", currency)

	holder, accountNumber, accountType := "N/A", "N/A", "N/A"
	if record.Customer != nil {
		holder = orNA(record.Customer.HolderName)
		accountNumber = orNA(record.Customer.AccountNumberMasked)
		accountType = orNA(record.Customer.AccountType)
	}
	fmt.Fprintf(&b, "Account Holder:,%s\n", holder)
	fmt.Fprintf(&b, "Account Number:,%s\n", accountNumber)
	fmt.Fprintf(&b, "Account Type:,%s\n\n", accountType)

	periodStart, periodEnd := "N/A", "N/A"
	var opening, closing float64
	if record.Bank != nil {
		if record.Bank.PeriodStart != nil {
			periodStart = record.Bank.PeriodStart.Format("2006-01-02")
		}
		if record.Bank.PeriodEnd != nil {
			periodEnd = record.Bank.PeriodEnd.Format("2006-01-02")
		}
		opening = record.Bank.OpeningBalance
		closing = record.Bank.ClosingBalance
	}
	fmt.Fprintf(&b, "Statement Period:,%s to %s\n", periodStart, periodEnd)
	fmt.Fprintf(&b, "Opening Balance:,%.2f\n", opening)
	fmt.Fprintf(&b, "Closing Balance:,%.2f\n\n", closing)

	b.WriteString("TRANSACTIONS\n")
	b.WriteString("Date,Description,Debit,Credit,Balance\n")

	var totalDebits, totalCredits float64
	for _, txn := range record.Transactions {
		date := ""
		if txn.Date != nil {
			date = txn.Date.Format("2006-01-02")
		}
		balance := ""
		if txn.Balance != nil {
			balance = fmt.Sprintf("%.2f", *txn.Balance)
		}
		fmt.Fprintf(&b, "%s,%s,%.2f,%.2f,%s\n", date, csvEscape(txn.Description), txn.Debit, txn.Credit, balance)
		totalDebits += txn.Debit
		totalCredits += txn.Credit
	}
	b.WriteString("\n")

	b.WriteString("SUMMARY\n")
	fmt.Fprintf(&b, "Total Debits:,%.2f\n", totalDebits)
	fmt.Fprintf(&b, "Total Credits:,%.2f\n", totalCredits)
	fmt.Fprintf(&b, "Final Balance:,%.2f\n", closing)

	return b.String()
}

// CSVFilename is statement_<id>_<YYYYMMDD>.csv, per the export contract.
func CSVFilename(jobID string, dateStamp string) string {
	return fmt.Sprintf("statement_%s_%s.csv", jobID, dateStamp)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
