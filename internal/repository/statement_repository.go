package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

type StatementRepository interface {
	BulkInsert(ctx context.Context, lines []domain.StatementLine) error
	GetByID(ctx context.Context, id int64) (*domain.StatementLine, error)
	ListByStatus(ctx context.Context, companyCode string, statuses []domain.PostingStatus, startDate, endDate time.Time) ([]domain.StatementLine, error)
	ListForPosting(ctx context.Context, companyCode string) ([]domain.StatementLine, error)
	ListForPairing(ctx context.Context, companyCode string) ([]domain.StatementLine, error)
	ClaimForUpdate(ctx context.Context, tx DBTX, id int64) (*domain.StatementLine, bool, error)
	UpdateOutcome(ctx context.Context, tx DBTX, line *domain.StatementLine) error
}

type statementRepository struct {
	db *sql.DB
}

func NewStatementRepository(db *sql.DB) StatementRepository {
	return &statementRepository{db: db}
}

const statementColumns = `
	id, company_code, transaction_date, deposit_amount, withdrawal_amount,
	balance, currency, bank_name, account_name, account_number, description,
	imported_at, row_sequence, posting_status, voucher_id, voucher_number,
	matched_rule_id, cleared_item_id, posting_run_id, error_text
`

func (r *statementRepository) BulkInsert(ctx context.Context, lines []domain.StatementLine) error {
	if len(lines) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to begin transaction")
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO statement_lines (
			company_code, transaction_date, deposit_amount, withdrawal_amount,
			balance, currency, bank_name, account_name, account_number,
			description, imported_at, row_sequence, posting_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending')
		ON CONFLICT (company_code, account_number, transaction_date, row_sequence) DO NOTHING
	`)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to prepare statement")
		return err
	}
	defer stmt.Close()

	for _, line := range lines {
		_, err = stmt.ExecContext(ctx,
			line.CompanyCode,
			line.TransactionDate,
			line.DepositAmount,
			line.WithdrawalAmount,
			line.Balance,
			line.Currency,
			line.BankName,
			line.AccountName,
			line.AccountNumber,
			line.Description,
			line.ImportedAt,
			line.RowSequence,
		)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("row_sequence", line.RowSequence).Error("Failed to insert statement line")
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to commit transaction")
		return err
	}
	return nil
}

func (r *statementRepository) GetByID(ctx context.Context, id int64) (*domain.StatementLine, error) {
	query := `SELECT ` + statementColumns + ` FROM statement_lines WHERE id = $1`

	line, err := scanStatement(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("statement line not found")
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get statement line")
		return nil, err
	}
	return line, nil
}

func (r *statementRepository) ListByStatus(ctx context.Context, companyCode string, statuses []domain.PostingStatus, startDate, endDate time.Time) ([]domain.StatementLine, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM statement_lines
		WHERE company_code = $1
		  AND posting_status = ANY($2)
		  AND transaction_date >= $3 AND transaction_date <= $4
		ORDER BY transaction_date, row_sequence
	`

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, query, companyCode, pq.Array(values), startDate, endDate)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query statement lines")
		return nil, err
	}
	defer rows.Close()

	return collectStatements(rows)
}

// ListForPosting returns the claim candidates, ordered by transaction date
// then original statement order. needs_rule rows come back too: they are
// re-evaluated every batch and post once the rule set catches up. Terminal
// rows are excluded, which is what makes batch replays idempotent.
func (r *statementRepository) ListForPosting(ctx context.Context, companyCode string) ([]domain.StatementLine, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM statement_lines
		WHERE company_code = $1 AND posting_status IN ('pending', 'needs_rule')
		ORDER BY transaction_date, row_sequence
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query pending statement lines")
		return nil, err
	}
	defer rows.Close()

	return collectStatements(rows)
}

// ListForPairing also includes needs_rule rows so an unpaired fee can find a
// neighbor that is still waiting for a rule.
func (r *statementRepository) ListForPairing(ctx context.Context, companyCode string) ([]domain.StatementLine, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM statement_lines
		WHERE company_code = $1 AND posting_status IN ('pending', 'needs_rule')
		ORDER BY transaction_date, row_sequence
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query pairing candidates")
		return nil, err
	}
	defer rows.Close()

	return collectStatements(rows)
}

// ClaimForUpdate locks one processable row. needs_rule rows qualify so a
// paired fee waiting for a rule can still ride along with its principal. A
// row already taken by a concurrent worker is skipped rather than waited on.
func (r *statementRepository) ClaimForUpdate(ctx context.Context, tx DBTX, id int64) (*domain.StatementLine, bool, error) {
	query := `
		SELECT ` + statementColumns + `
		FROM statement_lines
		WHERE id = $1 AND posting_status IN ('pending', 'needs_rule')
		FOR UPDATE SKIP LOCKED
	`

	line, err := scanStatement(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("line_id", id).Error("Failed to claim statement line")
		return nil, false, err
	}
	return line, true, nil
}

func (r *statementRepository) UpdateOutcome(ctx context.Context, tx DBTX, line *domain.StatementLine) error {
	query := `
		UPDATE statement_lines
		SET posting_status = $1, voucher_id = $2, voucher_number = $3,
			matched_rule_id = $4, cleared_item_id = $5, posting_run_id = $6,
			error_text = $7
		WHERE id = $8
	`

	_, err := tx.ExecContext(ctx, query,
		line.PostingStatus,
		line.VoucherID,
		line.VoucherNumber,
		line.MatchedRuleID,
		line.ClearedItemID,
		line.PostingRunID,
		line.ErrorText,
		line.ID,
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("line_id", line.ID).Error("Failed to update statement line outcome")
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatement(row rowScanner) (*domain.StatementLine, error) {
	var line domain.StatementLine
	err := row.Scan(
		&line.ID,
		&line.CompanyCode,
		&line.TransactionDate,
		&line.DepositAmount,
		&line.WithdrawalAmount,
		&line.Balance,
		&line.Currency,
		&line.BankName,
		&line.AccountName,
		&line.AccountNumber,
		&line.Description,
		&line.ImportedAt,
		&line.RowSequence,
		&line.PostingStatus,
		&line.VoucherID,
		&line.VoucherNumber,
		&line.MatchedRuleID,
		&line.ClearedItemID,
		&line.PostingRunID,
		&line.ErrorText,
	)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func collectStatements(rows *sql.Rows) ([]domain.StatementLine, error) {
	var lines []domain.StatementLine
	for rows.Next() {
		line, err := scanStatement(rows)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan statement line")
			continue
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}
