package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PostingStatus tracks a statement line through the auto-posting pipeline.
// Every status except pending is terminal; a line never moves backwards.
type PostingStatus string

const (
	StatusPending            PostingStatus = "pending"
	StatusNeedsRule          PostingStatus = "needs_rule"
	StatusSkipped            PostingStatus = "skipped"
	StatusPosted             PostingStatus = "posted"
	StatusLinked             PostingStatus = "linked"
	StatusDuplicateSuspected PostingStatus = "duplicate_suspected"
	StatusFailed             PostingStatus = "failed"
)

// Terminal reports whether the status cannot change within a posting run.
// needs_rule lines are re-evaluated on later runs when the rule set changes.
func (s PostingStatus) Terminal() bool {
	return s == StatusPosted || s == StatusLinked
}

// Direction is the cash-movement direction of a statement line.
type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// StatementLine is one imported bank-statement row.
type StatementLine struct {
	ID               int64           `json:"id" db:"id"`
	CompanyCode      string          `json:"company_code" db:"company_code"`
	TransactionDate  time.Time       `json:"transaction_date" db:"transaction_date"`
	DepositAmount    decimal.Decimal `json:"deposit_amount" db:"deposit_amount"`
	WithdrawalAmount decimal.Decimal `json:"withdrawal_amount" db:"withdrawal_amount"` // stored as a negative magnitude
	Balance          decimal.Decimal `json:"balance" db:"balance"`
	Currency         string          `json:"currency" db:"currency"`
	BankName         string          `json:"bank_name" db:"bank_name"`
	AccountName      string          `json:"account_name" db:"account_name"`
	AccountNumber    string          `json:"account_number" db:"account_number"`
	Description      string          `json:"description" db:"description"`
	ImportedAt       time.Time       `json:"imported_at" db:"imported_at"`
	RowSequence      int             `json:"row_sequence" db:"row_sequence"` // original statement order, stable sort key
	PostingStatus    PostingStatus   `json:"posting_status" db:"posting_status"`
	VoucherID        *int64          `json:"voucher_id,omitempty" db:"voucher_id"`
	VoucherNumber    *string         `json:"voucher_number,omitempty" db:"voucher_number"`
	MatchedRuleID    *int64          `json:"matched_rule_id,omitempty" db:"matched_rule_id"`
	ClearedItemID    *int64          `json:"cleared_item_id,omitempty" db:"cleared_item_id"`
	PostingRunID     *string         `json:"posting_run_id,omitempty" db:"posting_run_id"`
	ErrorText        *string         `json:"error_text,omitempty" db:"error_text"`
}

// Direction derives the cash direction from the explicit deposit/withdrawal
// fields, falling back to the sign of the net amount only when both are zero.
func (l *StatementLine) Direction() Direction {
	if l.DepositAmount.IsPositive() {
		return DirectionDeposit
	}
	if l.WithdrawalAmount.IsNegative() {
		return DirectionWithdrawal
	}
	if l.DepositAmount.Add(l.WithdrawalAmount).IsNegative() {
		return DirectionWithdrawal
	}
	return DirectionDeposit
}

// Amount returns the positive magnitude of the line regardless of direction.
func (l *StatementLine) Amount() decimal.Decimal {
	if l.Direction() == DirectionWithdrawal {
		return l.WithdrawalAmount.Abs()
	}
	return l.DepositAmount
}

// IsFee reports whether the description marks the line as a bank fee.
func (l *StatementLine) IsFee(keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(l.Description, kw) {
			return true
		}
	}
	return false
}
