package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the debit/credit side of a voucher line.
type Side string

const (
	SideDebit  Side = "DR"
	SideCredit Side = "CR"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// VoucherLine is one ordered line of a voucher draft.
type VoucherLine struct {
	LineNo           int              `json:"line_no"`
	AccountCode      string           `json:"account_code"`
	Side             Side             `json:"side"`
	Amount           decimal.Decimal  `json:"amount"`
	PartnerKind      CounterpartyKind `json:"partner_kind,omitempty"`
	PartnerID        int64            `json:"partner_id,omitempty"`
	DepartmentCode   string           `json:"department_code,omitempty"`
	PaymentDate      *time.Time       `json:"payment_date,omitempty"`
	Note             string           `json:"note,omitempty"`
	Clearing         bool             `json:"clearing,omitempty"`
	ClearedVoucherID int64            `json:"cleared_voucher_id,omitempty"`
	ClearedLineNo    int              `json:"cleared_line_no,omitempty"`
	ClearedItemID    int64            `json:"cleared_item_id,omitempty"`
}

// VoucherDraft is a balanced double-entry document handed to the ledger
// service for persistence.
type VoucherDraft struct {
	CompanyCode string          `json:"company_code"`
	PostingDate time.Time       `json:"posting_date"`
	VoucherType string          `json:"voucher_type"`
	Currency    string          `json:"currency"`
	Summary     string          `json:"summary"`
	Lines       []VoucherLine   `json:"lines"`
}

func (d *VoucherDraft) DebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		if l.Side == SideDebit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

func (d *VoucherDraft) CreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		if l.Side == SideCredit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// Balanced reports whether debits equal credits.
func (d *VoucherDraft) Balanced() bool {
	return d.DebitTotal().Equal(d.CreditTotal())
}

// CreatedVoucher is the ledger service's answer to a successful create.
type CreatedVoucher struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

// VoucherCandidate is an aggregate row used by the existing-voucher
// detector: one manually entered voucher with its bank-account line sum.
type VoucherCandidate struct {
	VoucherID   int64           `json:"voucher_id"`
	Number      string          `json:"number"`
	PostingDate time.Time       `json:"posting_date"`
	BankSum     decimal.Decimal `json:"bank_sum"`
}
