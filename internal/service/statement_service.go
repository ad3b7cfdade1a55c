package service

import (
	"context"
	"fmt"
	"time"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/parser"
	"autopost-engine/internal/repository"
	"autopost-engine/pkg/logger"
)

type StatementService interface {
	ImportCSV(ctx context.Context, companyCode, filePath string) (int, error)
	BulkCreate(ctx context.Context, lines []domain.StatementLine) error
	GetByID(ctx context.Context, id int64) (*domain.StatementLine, error)
	ListByStatus(ctx context.Context, companyCode string, statuses []domain.PostingStatus, startDate, endDate time.Time) ([]domain.StatementLine, error)
}

type statementService struct {
	repo      repository.StatementRepository
	batchSize int
}

func NewStatementService(repo repository.StatementRepository, batchSize int) StatementService {
	return &statementService{repo: repo, batchSize: batchSize}
}

func (s *statementService) ImportCSV(ctx context.Context, companyCode, filePath string) (int, error) {
	if companyCode == "" {
		return 0, fmt.Errorf("company code is required")
	}

	p := parser.NewCSVStatementParser(companyCode)
	imported := 0

	err := p.Parse(filePath, s.batchSize, func(batch []domain.StatementLine) error {
		if err := s.repo.BulkInsert(ctx, batch); err != nil {
			return err
		}
		imported += len(batch)
		return nil
	})
	if err != nil {
		return imported, err
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"company_code": companyCode,
		"file":         filePath,
		"imported":     imported,
	}).Info("Statement import completed")
	return imported, nil
}

func (s *statementService) BulkCreate(ctx context.Context, lines []domain.StatementLine) error {
	for i := range lines {
		if err := validateLine(&lines[i]); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if lines[i].ImportedAt.IsZero() {
			lines[i].ImportedAt = time.Now()
		}
		lines[i].PostingStatus = domain.StatusPending
	}
	return s.repo.BulkInsert(ctx, lines)
}

func (s *statementService) GetByID(ctx context.Context, id int64) (*domain.StatementLine, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *statementService) ListByStatus(ctx context.Context, companyCode string, statuses []domain.PostingStatus, startDate, endDate time.Time) ([]domain.StatementLine, error) {
	if companyCode == "" {
		return nil, fmt.Errorf("company code is required")
	}
	if len(statuses) == 0 {
		statuses = []domain.PostingStatus{
			domain.StatusPending, domain.StatusNeedsRule, domain.StatusSkipped,
			domain.StatusPosted, domain.StatusLinked,
			domain.StatusDuplicateSuspected, domain.StatusFailed,
		}
	}
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date cannot be after end date")
	}
	return s.repo.ListByStatus(ctx, companyCode, statuses, startDate, endDate)
}

func validateLine(line *domain.StatementLine) error {
	if line.CompanyCode == "" {
		return fmt.Errorf("company code is required")
	}
	if line.TransactionDate.IsZero() {
		return fmt.Errorf("transaction date is required")
	}
	if line.RowSequence <= 0 {
		return fmt.Errorf("row sequence is required")
	}
	if line.DepositAmount.IsNegative() {
		return fmt.Errorf("deposit amount must not be negative")
	}
	if line.WithdrawalAmount.IsPositive() {
		return fmt.Errorf("withdrawal amount must be stored as a negative magnitude")
	}
	return nil
}
