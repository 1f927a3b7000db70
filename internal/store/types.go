package store

import "time"

// JobState is one of the four states a Job's lifecycle can be in. The
// observed sequence is always a prefix of [Pending, Processing, Completed]
// or [Pending, Processing, Failed].
type JobState string

const (
	StatePending    JobState = "Pending"
	StateProcessing JobState = "Processing"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// Job is the row owning a statement's blob, customer, bank, transactions,
// and processing log via cascading delete.
type Job struct {
	ID                   string
	OriginalFilename     string
	BlobPath             string
	Hash                 string
	ByteSize             int64
	State                JobState
	CreatedAt            time.Time
	ProcessingStarted    *time.Time
	ProcessingCompleted  *time.Time
	Error                string
	DurationMS           int64
	PageCount            int
	TransactionCount     int
	OverallConfidence    float64
	InputTokens          int
	OutputTokens         int
	TotalTokens          int
	CostUSD              float64
}

// Customer is 1:1 with Job.
type Customer struct {
	HolderName           string
	AccountNumberMasked  string
	AccountType          string
	Email                string
	Phone                string
	Confidences          map[string]interface{}
}

// Bank is 1:1 with Job.
type Bank struct {
	Name          string
	Branch        string
	Currency      string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	OpeningBalance float64
	ClosingBalance float64
	TotalDebits    float64
	TotalCredits   float64
	Confidences    map[string]interface{}
}

// Transaction is 1:N with Job, ordered by date for queries.
type Transaction struct {
	ID          int64
	Date        *time.Time
	Description string
	Debit       float64
	Credit      float64
	Balance     *float64
	Type        string
	Reference   string
	CheckNumber string
	Category    string
	Page        int
	BBox        []interface{}
	Confidences map[string]interface{}
	Raw         map[string]interface{}
}

// ProcessingLogEntry is one append-only ProcessingLog row.
type ProcessingLogEntry struct {
	Step       string
	Status     string
	StartedAt  time.Time
	DurationMS int64
	Metadata   map[string]interface{}
	Seq        int
}

// Record is the full persisted view of one job, returned by Get.
type Record struct {
	Job          Job
	Customer     *Customer
	Bank         *Bank
	Transactions []Transaction
	Logs         []ProcessingLogEntry
}

// CompletionInput bundles everything JobController writes in the single
// transaction that moves a job to Completed.
type CompletionInput struct {
	Customer         *Customer
	Bank             *Bank
	Transactions     []Transaction
	Logs             []ProcessingLogEntry
	PageCount        int
	TransactionCount int
	OverallConf      float64
	DurationMS       int64
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CostUSD          float64
}
