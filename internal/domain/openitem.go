package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenItem is an outstanding receivable/payable residual awaiting
// settlement. Residuals only ever decrease; this engine never creates one.
type OpenItem struct {
	ID            int64           `json:"id" db:"id"`
	CompanyCode   string          `json:"company_code" db:"company_code"`
	AccountCode   string          `json:"account_code" db:"account_code"`
	PartnerID     int64           `json:"partner_id" db:"partner_id"`
	Residual      decimal.Decimal `json:"residual_amount" db:"residual_amount"`
	DocDate       time.Time       `json:"doc_date" db:"doc_date"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty" db:"payment_date"`
	VoucherID     int64           `json:"voucher_id" db:"voucher_id"`
	VoucherLineNo int             `json:"voucher_line_no" db:"voucher_line_no"`
	Cleared       bool            `json:"cleared" db:"cleared"`
}

// DueDate is the FIFO sort key: payment date when present, else doc date.
func (o *OpenItem) DueDate() time.Time {
	if o.PaymentDate != nil {
		return *o.PaymentDate
	}
	return o.DocDate
}

// ReservedItem is one open item selected for clearing with the amount
// applied against its residual.
type ReservedItem struct {
	OpenItemID    int64           `json:"open_item_id"`
	VoucherID     int64           `json:"voucher_id"`
	VoucherLineNo int             `json:"voucher_line_no"`
	AccountCode   string          `json:"account_code"`
	Applied       decimal.Decimal `json:"applied"`
}

// Reservation is the transient result of open-item matching. It is produced
// and consumed within the same database transaction.
type Reservation struct {
	Items []ReservedItem  `json:"items"`
	Total decimal.Decimal `json:"total"`
}
