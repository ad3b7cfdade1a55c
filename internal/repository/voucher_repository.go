package repository

import (
	"context"
	"database/sql"

	"autopost-engine/internal/detector"
	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

// VoucherQueryRepository reads the voucher store. The ledger service owns
// writes; this engine only searches what is already posted. It satisfies
// detector.VoucherSearchSource and resolver.PostingHistorySource.
type VoucherQueryRepository interface {
	FindManualCandidates(ctx context.Context, q detector.CandidateQuery) ([]domain.VoucherCandidate, error)
	FindAccountByHistory(ctx context.Context, companyCode, bankAccountCode string, side domain.Side, keyword string) (string, bool, error)
}

type voucherQueryRepository struct {
	db *sql.DB
}

func NewVoucherQueryRepository(db *sql.DB) VoucherQueryRepository {
	return &voucherQueryRepository{db: db}
}

func (r *voucherQueryRepository) FindManualCandidates(ctx context.Context, q detector.CandidateQuery) ([]domain.VoucherCandidate, error) {
	query := `
		SELECT v.id, v.voucher_no, v.posting_date, SUM(l.amount) AS bank_sum
		FROM vouchers v
		JOIN voucher_lines l ON l.voucher_id = v.id
		WHERE v.company_code = $1
		  AND v.entry_source = 'manual'
		  AND l.account_code = $2
		  AND l.side = $3
		  AND v.posting_date >= $4 AND v.posting_date <= $5
		  AND ($6 = 0 OR EXISTS (
				SELECT 1 FROM voucher_lines p
				WHERE p.voucher_id = v.id AND p.partner_id = $6
		  ))
		GROUP BY v.id, v.voucher_no, v.posting_date
		HAVING SUM(l.amount) = $7
		ORDER BY v.posting_date, v.id
	`

	rows, err := r.db.QueryContext(ctx, query,
		q.CompanyCode, q.BankAccountCode, q.Side,
		q.DateFrom, q.DateTo, q.PartnerID, q.Amount,
	)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query manual voucher candidates")
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.VoucherCandidate
	for rows.Next() {
		var c domain.VoucherCandidate
		if err := rows.Scan(&c.VoucherID, &c.Number, &c.PostingDate, &c.BankSum); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan voucher candidate")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// FindAccountByHistory returns the account a prior posted voucher used for
// the same counterparty keyword: a line on the requested side whose note or
// summary carries the keyword, with the bank account on the opposite leg.
// Most recent posting date wins, then largest amount.
func (r *voucherQueryRepository) FindAccountByHistory(ctx context.Context, companyCode, bankAccountCode string, side domain.Side, keyword string) (string, bool, error) {
	query := `
		SELECT l.account_code
		FROM vouchers v
		JOIN voucher_lines l ON l.voucher_id = v.id
		WHERE v.company_code = $1
		  AND l.side = $2
		  AND (l.note ILIKE '%' || $3 || '%' OR v.summary ILIKE '%' || $3 || '%')
		  AND EXISTS (
				SELECT 1 FROM voucher_lines b
				WHERE b.voucher_id = v.id
				  AND b.account_code = $4
				  AND b.side = $5
		  )
		ORDER BY v.posting_date DESC, l.amount DESC
		LIMIT 1
	`

	var accountCode string
	err := r.db.QueryRowContext(ctx, query, companyCode, side, keyword, bankAccountCode, side.Opposite()).Scan(&accountCode)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query posting history")
		return "", false, err
	}
	return accountCode, true, nil
}
