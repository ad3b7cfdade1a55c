// Package detector checks whether a manually entered voucher already
// represents a cash movement, so statement imports link to it instead of
// double-posting.
package detector

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
)

// Date window widths: deposits must land on the exact date, withdrawals get
// slack for payment timing.
const withdrawalWindowDays = 5

// VoucherSearchSource finds manually entered vouchers whose lines on the
// bank account, with the expected side, sum to the amount within the window.
// PartnerID zero means no counterparty restriction.
type VoucherSearchSource interface {
	FindManualCandidates(ctx context.Context, q CandidateQuery) ([]domain.VoucherCandidate, error)
}

// CandidateQuery narrows the manual-voucher search.
type CandidateQuery struct {
	CompanyCode     string
	BankAccountCode string
	Side            domain.Side
	Amount          decimal.Decimal
	DateFrom        time.Time
	DateTo          time.Time
	PartnerID       int64
}

// Outcome classifies the detection result.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeLinked
	OutcomeDuplicateSuspected
)

// Result carries the detection outcome and, when linked, the voucher.
type Result struct {
	Outcome Outcome
	Voucher *domain.VoucherCandidate
}

// Detector searches for an existing manual voucher for a statement line.
type Detector struct {
	src VoucherSearchSource
}

func New(src VoucherSearchSource) *Detector {
	return &Detector{src: src}
}

// Detect looks for the movement among manual vouchers. The gross amount
// (transaction plus paired fee) is tried before the bare amount, and a
// counterparty-scoped pass runs before the sum-only pass. A withdrawal links
// to the nearest-dated candidate; a deposit with more than one equally valid
// candidate is deferred to human review rather than guessed.
func (d *Detector) Detect(ctx context.Context, line *domain.StatementLine, bankAccountCode string, feeAmount decimal.Decimal, partnerID int64) (*Result, error) {
	direction := line.Direction()

	side := domain.SideDebit // deposits appear on the bank account's debit side
	window := 0
	if direction == domain.DirectionWithdrawal {
		side = domain.SideCredit
		window = withdrawalWindowDays
	}

	amounts := []decimal.Decimal{line.Amount()}
	if feeAmount.IsPositive() {
		amounts = []decimal.Decimal{line.Amount().Add(feeAmount), line.Amount()}
	}

	partnerIDs := []int64{partnerID, 0}
	if partnerID == 0 {
		partnerIDs = []int64{0}
	}

	for _, amount := range amounts {
		for _, pid := range partnerIDs {
			candidates, err := d.src.FindManualCandidates(ctx, CandidateQuery{
				CompanyCode:     line.CompanyCode,
				BankAccountCode: bankAccountCode,
				Side:            side,
				Amount:          amount,
				DateFrom:        line.TransactionDate.AddDate(0, 0, -window),
				DateTo:          line.TransactionDate.AddDate(0, 0, window),
				PartnerID:       pid,
			})
			if err != nil {
				return nil, err
			}
			if len(candidates) == 0 {
				continue
			}

			if direction == domain.DirectionDeposit && len(candidates) > 1 {
				return &Result{Outcome: OutcomeDuplicateSuspected}, nil
			}

			best := nearest(candidates, line.TransactionDate)
			return &Result{Outcome: OutcomeLinked, Voucher: best}, nil
		}
	}

	return &Result{Outcome: OutcomeNone}, nil
}

func nearest(candidates []domain.VoucherCandidate, target time.Time) *domain.VoucherCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		di := absDuration(candidates[i].PostingDate.Sub(target))
		dj := absDuration(candidates[j].PostingDate.Sub(target))
		return di < dj
	})
	return &candidates[0]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
