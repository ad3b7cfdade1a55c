package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/reservation"
	"autopost-engine/pkg/logger"
)

// OpenItemRepository reads open-item candidates and applies reservations.
// Construct it over a transaction for the locked commit path, over the bare
// DB for previews. It satisfies reservation.CandidateSource.
type OpenItemRepository interface {
	reservation.CandidateSource
	ApplyReservation(ctx context.Context, res *domain.Reservation) error
}

type openItemRepository struct {
	db DBTX
}

func NewOpenItemRepository(db DBTX) OpenItemRepository {
	return &openItemRepository{db: db}
}

const openItemColumns = `
	id, company_code, account_code, partner_id, residual_amount,
	doc_date, payment_date, voucher_id, voucher_line_no, cleared
`

func (r *openItemRepository) ListOpenItems(ctx context.Context, q reservation.CandidateQuery) ([]domain.OpenItem, error) {
	query := `
		SELECT ` + openItemColumns + `
		FROM open_items
		WHERE company_code = $1 AND account_code = $2
		  AND NOT cleared AND residual_amount > 0
		  AND ($3 = 0 OR partner_id = $3)
		ORDER BY COALESCE(payment_date, doc_date), residual_amount, id
	`
	if q.Lock {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	rows, err := r.db.QueryContext(ctx, query, q.CompanyCode, q.AccountCode, q.PartnerID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query open items")
		return nil, err
	}
	defer rows.Close()

	var items []domain.OpenItem
	for rows.Next() {
		var item domain.OpenItem
		err := rows.Scan(
			&item.ID, &item.CompanyCode, &item.AccountCode, &item.PartnerID,
			&item.Residual, &item.DocDate, &item.PaymentDate,
			&item.VoucherID, &item.VoucherLineNo, &item.Cleared,
		)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan open item")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *openItemRepository) FindByPartnerAmount(ctx context.Context, companyCode string, partnerID int64, amount decimal.Decimal, cutoff time.Time, limit int) ([]domain.OpenItem, error) {
	query := `
		SELECT ` + openItemColumns + `
		FROM open_items
		WHERE company_code = $1 AND partner_id = $2
		  AND NOT cleared AND residual_amount = $3
		  AND COALESCE(payment_date, doc_date) <= $4
		ORDER BY COALESCE(payment_date, doc_date), id
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode, partnerID, amount, cutoff, limit)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query open items by partner and amount")
		return nil, err
	}
	defer rows.Close()

	var items []domain.OpenItem
	for rows.Next() {
		var item domain.OpenItem
		err := rows.Scan(
			&item.ID, &item.CompanyCode, &item.AccountCode, &item.PartnerID,
			&item.Residual, &item.DocDate, &item.PaymentDate,
			&item.VoucherID, &item.VoucherLineNo, &item.Cleared,
		)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan open item")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ApplyReservation decrements each reserved item's residual by the applied
// amount, flipping cleared at zero. The guard on residual_amount keeps
// residuals non-negative even if a concurrent writer slipped past the lock.
func (r *openItemRepository) ApplyReservation(ctx context.Context, res *domain.Reservation) error {
	for _, item := range res.Items {
		result, err := r.db.ExecContext(ctx, `
			UPDATE open_items
			SET residual_amount = residual_amount - $1,
				cleared = (residual_amount - $1 <= 0)
			WHERE id = $2 AND residual_amount >= $1
		`, item.Applied, item.OpenItemID)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("open_item_id", item.OpenItemID).Error("Failed to apply reservation")
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("open item %d residual changed under reservation", item.OpenItemID)
		}
	}
	return nil
}
