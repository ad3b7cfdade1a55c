package repository

import (
	"context"
	"database/sql"
	"fmt"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.PostingRun) error
	UpdateRun(ctx context.Context, run *domain.PostingRun) error
	GetRunByRunID(ctx context.Context, runID string) (*domain.PostingRun, error)
	BulkCreateItems(ctx context.Context, items []domain.RunItem) error
	ListItems(ctx context.Context, runID string) ([]domain.RunItem, error)
	CreateTasks(ctx context.Context, tasks []domain.ConfirmationTask) error
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) CreateRun(ctx context.Context, run *domain.PostingRun) error {
	query := `
		INSERT INTO posting_runs (
			run_id, company_code, status, total_processed, total_posted,
			total_linked, total_skipped, total_needs_rule,
			total_duplicate_suspected, total_failed, triggered_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		run.RunID, run.CompanyCode, run.Status,
		run.TotalProcessed, run.TotalPosted, run.TotalLinked, run.TotalSkipped,
		run.TotalNeedsRule, run.TotalDuplicateSuspected, run.TotalFailed,
		run.TriggeredBy,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)

	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to create posting run")
		return err
	}
	return nil
}

func (r *runRepository) UpdateRun(ctx context.Context, run *domain.PostingRun) error {
	query := `
		UPDATE posting_runs
		SET status = $1, total_processed = $2, total_posted = $3,
			total_linked = $4, total_skipped = $5, total_needs_rule = $6,
			total_duplicate_suspected = $7, total_failed = $8,
			error_message = $9, updated_at = NOW()
		WHERE run_id = $10
	`

	_, err := r.db.ExecContext(ctx, query,
		run.Status, run.TotalProcessed, run.TotalPosted, run.TotalLinked,
		run.TotalSkipped, run.TotalNeedsRule, run.TotalDuplicateSuspected,
		run.TotalFailed, run.ErrorMessage, run.RunID,
	)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to update posting run")
		return err
	}
	return nil
}

func (r *runRepository) GetRunByRunID(ctx context.Context, runID string) (*domain.PostingRun, error) {
	query := `
		SELECT id, run_id, company_code, status, total_processed, total_posted,
			   total_linked, total_skipped, total_needs_rule,
			   total_duplicate_suspected, total_failed, error_message,
			   triggered_by, created_at, updated_at
		FROM posting_runs
		WHERE run_id = $1
	`

	var run domain.PostingRun
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &run.RunID, &run.CompanyCode, &run.Status,
		&run.TotalProcessed, &run.TotalPosted, &run.TotalLinked,
		&run.TotalSkipped, &run.TotalNeedsRule, &run.TotalDuplicateSuspected,
		&run.TotalFailed, &run.ErrorMessage, &run.TriggeredBy,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("posting run not found")
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get posting run")
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) BulkCreateItems(ctx context.Context, items []domain.RunItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to begin transaction")
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posting_run_items (run_id, line_id, status, voucher_number, error_text)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to prepare statement")
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.RunID, item.LineID, item.Status, item.VoucherNumber, item.ErrorText); err != nil {
			logger.GetLogger().WithError(err).WithField("line_id", item.LineID).Error("Failed to insert run item")
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to commit transaction")
		return err
	}
	return nil
}

func (r *runRepository) ListItems(ctx context.Context, runID string) ([]domain.RunItem, error) {
	query := `
		SELECT id, run_id, line_id, status, voucher_number, error_text, created_at
		FROM posting_run_items
		WHERE run_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query run items")
		return nil, err
	}
	defer rows.Close()

	var items []domain.RunItem
	for rows.Next() {
		var item domain.RunItem
		if err := rows.Scan(&item.ID, &item.RunID, &item.LineID, &item.Status, &item.VoucherNumber, &item.ErrorText, &item.CreatedAt); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan run item")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *runRepository) CreateTasks(ctx context.Context, tasks []domain.ConfirmationTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to begin transaction")
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO confirmation_tasks (run_id, user_id, summary)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to prepare statement")
		return err
	}
	defer stmt.Close()

	for _, task := range tasks {
		if _, err := stmt.ExecContext(ctx, task.RunID, task.UserID, task.Summary); err != nil {
			logger.GetLogger().WithError(err).WithField("user_id", task.UserID).Error("Failed to insert confirmation task")
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to commit transaction")
		return err
	}
	return nil
}
