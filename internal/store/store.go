// Package store implements the relational schema and transactional
// read/write operations backing a Job's full lifecycle. Postgres via pgx
// replaces the teacher's MongoDB persistence: the schema here leans on
// foreign-key cascades and a unique index that a document store cannot
// express natively.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the pool is reachable.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate runs every pending embedded migration via goose, using a plain
// database/sql connection since goose doesn't speak pgx's native interface.
func Migrate(databaseURL string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("store: open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// FindByHash returns the job matching hash, if one exists.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, original_filename, blob_path, hash, byte_size, state, created_at
		FROM job WHERE hash = $1`, hash)

	var j Job
	err := row.Scan(&j.ID, &j.OriginalFilename, &j.BlobPath, &j.Hash, &j.ByteSize, &j.State, &j.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by hash: %w", err)
	}
	return &j, nil
}

// CreateJob inserts a new job row in Pending state.
func (s *Store) CreateJob(ctx context.Context, id, filename, blobPath, hash string, size int64) (*Job, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO job (id, original_filename, blob_path, hash, byte_size, state)
		VALUES ($1, $2, $3, $4, $5, $6)`, id, filename, blobPath, hash, size, StatePending)
	if err != nil {
		return nil, fmt.Errorf("store: create job: %w", err)
	}
	return &Job{ID: id, OriginalFilename: filename, BlobPath: blobPath, Hash: hash, ByteSize: size, State: StatePending}, nil
}

// MarkProcessing transactionally moves Pending -> Processing and stamps
// processing_started.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE job SET state = $1, processing_started = now()
		WHERE id = $2 AND state = $3`, StateProcessing, jobID, StatePending)
	if err != nil {
		return fmt.Errorf("store: mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: job %s not in Pending state", jobID)
	}
	return nil
}

// Complete writes Customer/Bank/Transaction/ProcessingLog rows and moves the
// job to Completed, all inside one transaction. No job ever transitions
// Completed -> Failed or back, enforced by the WHERE clause on the final
// UPDATE.
func (s *Store) Complete(ctx context.Context, jobID string, in CompletionInput) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.Customer != nil {
		confJSON, _ := json.Marshal(in.Customer.Confidences)
		_, err = tx.Exec(ctx, `INSERT INTO customer (job_id, holder_name, account_number_masked, account_type, email, phone, confidences)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, in.Customer.HolderName, in.Customer.AccountNumberMasked, in.Customer.AccountType, in.Customer.Email, in.Customer.Phone, confJSON)
		if err != nil {
			return fmt.Errorf("store: insert customer: %w", err)
		}
	}

	if in.Bank != nil {
		confJSON, _ := json.Marshal(in.Bank.Confidences)
		_, err = tx.Exec(ctx, `INSERT INTO bank (job_id, name, branch, currency, period_start, period_end, opening_balance, closing_balance, total_debits, total_credits, confidences)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			jobID, in.Bank.Name, in.Bank.Branch, in.Bank.Currency, in.Bank.PeriodStart, in.Bank.PeriodEnd,
			in.Bank.OpeningBalance, in.Bank.ClosingBalance, in.Bank.TotalDebits, in.Bank.TotalCredits, confJSON)
		if err != nil {
			return fmt.Errorf("store: insert bank: %w", err)
		}
	}

	for _, txn := range in.Transactions {
		bboxJSON, _ := json.Marshal(txn.BBox)
		confJSON, _ := json.Marshal(txn.Confidences)
		rawJSON, _ := json.Marshal(txn.Raw)
		_, err = tx.Exec(ctx, `INSERT INTO transaction (job_id, date, description, debit, credit, balance, type, reference, check_number, category, page, bbox, confidences, raw)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			jobID, txn.Date, txn.Description, txn.Debit, txn.Credit, txn.Balance, txn.Type, txn.Reference,
			txn.CheckNumber, txn.Category, txn.Page, bboxJSON, confJSON, rawJSON)
		if err != nil {
			return fmt.Errorf("store: insert transaction: %w", err)
		}
	}

	for _, l := range in.Logs {
		metaJSON, _ := json.Marshal(l.Metadata)
		_, err = tx.Exec(ctx, `INSERT INTO processing_log (job_id, step, status, started_at, duration_ms, metadata, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, l.Step, l.Status, l.StartedAt, l.DurationMS, metaJSON, l.Seq)
		if err != nil {
			return fmt.Errorf("store: insert processing log: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE job SET state = $1, processing_completed = now(), page_count = $2,
		transaction_count = $3, overall_confidence = $4, duration_ms = $5,
		input_tokens = $6, output_tokens = $7, total_tokens = $8, cost_usd = $9
		WHERE id = $10 AND state = $11`,
		StateCompleted, in.PageCount, in.TransactionCount, in.OverallConf, in.DurationMS,
		in.InputTokens, in.OutputTokens, in.TotalTokens, in.CostUSD, jobID, StateProcessing)
	if err != nil {
		return fmt.Errorf("store: update job to completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: job %s not in Processing state, refusing to complete", jobID)
	}

	return tx.Commit(ctx)
}

// Fail moves a job to Failed, recording the joined error string and
// remaining ProcessingLog entries. No Customer/Bank/Transaction rows are
// written on this path.
func (s *Store) Fail(ctx context.Context, jobID string, errMsg string, logs []ProcessingLogEntry, durationMS int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range logs {
		metaJSON, _ := json.Marshal(l.Metadata)
		_, err = tx.Exec(ctx, `INSERT INTO processing_log (job_id, step, status, started_at, duration_ms, metadata, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, l.Step, l.Status, l.StartedAt, l.DurationMS, metaJSON, l.Seq)
		if err != nil {
			return fmt.Errorf("store: insert processing log: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE job SET state = $1, processing_completed = now(), error = $2, duration_ms = $3
		WHERE id = $4 AND state = $5`, StateFailed, errMsg, durationMS, jobID, StateProcessing)
	if err != nil {
		return fmt.Errorf("store: update job to failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: job %s not in Processing state, refusing to fail", jobID)
	}

	return tx.Commit(ctx)
}

// Status returns the lightweight state/error view of a job.
func (s *Store) Status(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, state, COALESCE(error, ''), processing_started, processing_completed, COALESCE(duration_ms, 0)
		FROM job WHERE id = $1`, id)

	var j Job
	err := row.Scan(&j.ID, &j.State, &j.Error, &j.ProcessingStarted, &j.ProcessingCompleted, &j.DurationMS)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: status: %w", err)
	}
	return &j, nil
}

// Get returns the full persisted record for one job.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	job, err := s.getJob(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}

	rec := &Record{Job: *job}

	rec.Customer, err = s.getCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Bank, err = s.getBank(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Transactions, err = s.getTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Logs, err = s.getLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) getJob(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, original_filename, blob_path, hash, byte_size, state, created_at,
		processing_started, processing_completed, COALESCE(error, ''), COALESCE(duration_ms, 0),
		COALESCE(page_count, 0), COALESCE(transaction_count, 0), COALESCE(overall_confidence, 0),
		input_tokens, output_tokens, total_tokens, cost_usd
		FROM job WHERE id = $1`, id)

	var j Job
	err := row.Scan(&j.ID, &j.OriginalFilename, &j.BlobPath, &j.Hash, &j.ByteSize, &j.State, &j.CreatedAt,
		&j.ProcessingStarted, &j.ProcessingCompleted, &j.Error, &j.DurationMS,
		&j.PageCount, &j.TransactionCount, &j.OverallConfidence,
		&j.InputTokens, &j.OutputTokens, &j.TotalTokens, &j.CostUSD)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return &j, nil
}

func (s *Store) getCustomer(ctx context.Context, jobID string) (*Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT holder_name, account_number_masked, account_type, COALESCE(email, ''), COALESCE(phone, ''), confidences
		FROM customer WHERE job_id = $1`, jobID)

	var c Customer
	var confJSON []byte
	err := row.Scan(&c.HolderName, &c.AccountNumberMasked, &c.AccountType, &c.Email, &c.Phone, &confJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get customer: %w", err)
	}
	_ = json.Unmarshal(confJSON, &c.Confidences)
	return &c, nil
}

func (s *Store) getBank(ctx context.Context, jobID string) (*Bank, error) {
	row := s.pool.QueryRow(ctx, `SELECT name, branch, currency, period_start, period_end, opening_balance, closing_balance, total_debits, total_credits, confidences
		FROM bank WHERE job_id = $1`, jobID)

	var b Bank
	var confJSON []byte
	err := row.Scan(&b.Name, &b.Branch, &b.Currency, &b.PeriodStart, &b.PeriodEnd, &b.OpeningBalance, &b.ClosingBalance, &b.TotalDebits, &b.TotalCredits, &confJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get bank: %w", err)
	}
	_ = json.Unmarshal(confJSON, &b.Confidences)
	return &b, nil
}

func (s *Store) getTransactions(ctx context.Context, jobID string) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, date, description, debit, credit, balance, COALESCE(type, ''), COALESCE(reference, ''),
		COALESCE(check_number, ''), COALESCE(category, ''), COALESCE(page, 0), bbox, confidences, raw
		FROM transaction WHERE job_id = $1 ORDER BY date ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: get transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var bboxJSON, confJSON, rawJSON []byte
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.Debit, &t.Credit, &t.Balance, &t.Type, &t.Reference,
			&t.CheckNumber, &t.Category, &t.Page, &bboxJSON, &confJSON, &rawJSON); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		_ = json.Unmarshal(bboxJSON, &t.BBox)
		_ = json.Unmarshal(confJSON, &t.Confidences)
		_ = json.Unmarshal(rawJSON, &t.Raw)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) getLogs(ctx context.Context, jobID string) ([]ProcessingLogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT step, status, started_at, duration_ms, metadata, seq
		FROM processing_log WHERE job_id = $1 ORDER BY seq ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: get logs: %w", err)
	}
	defer rows.Close()

	var out []ProcessingLogEntry
	for rows.Next() {
		var l ProcessingLogEntry
		var metaJSON []byte
		if err := rows.Scan(&l.Step, &l.Status, &l.StartedAt, &l.DurationMS, &metaJSON, &l.Seq); err != nil {
			return nil, fmt.Errorf("store: scan log: %w", err)
		}
		_ = json.Unmarshal(metaJSON, &l.Metadata)
		out = append(out, l)
	}
	return out, rows.Err()
}

// List returns a page of jobs ordered by creation time, newest first, plus
// the total row count.
func (s *Store) List(ctx context.Context, skip, limit int) ([]Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM job`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count jobs: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT id, original_filename, state, created_at, COALESCE(page_count, 0),
		COALESCE(transaction_count, 0), COALESCE(overall_confidence, 0)
		FROM job ORDER BY created_at DESC OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.OriginalFilename, &j.State, &j.CreatedAt, &j.PageCount, &j.TransactionCount, &j.OverallConfidence); err != nil {
			return nil, 0, fmt.Errorf("store: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// Delete removes a job row; cascading foreign keys take care of
// Customer/Bank/Transaction/ProcessingLog. Blob deletion is the caller's
// responsibility (the Store has no knowledge of the blobstore).
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: job %s not found", id)
	}
	return nil
}

// SweepStaleProcessing marks Processing rows older than threshold as
// Failed("interrupted"), recovering from a prior crash mid-pipeline.
func (s *Store) SweepStaleProcessing(ctx context.Context, threshold time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE job SET state = $1, error = 'interrupted', processing_completed = now()
		WHERE state = $2 AND processing_started < $3`,
		StateFailed, StateProcessing, time.Now().Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("store: sweep stale processing: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
