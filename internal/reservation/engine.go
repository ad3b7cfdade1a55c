// Package reservation finds sets of outstanding open items whose residuals
// sum to a cash movement within tolerance, and reserves them for clearing.
package reservation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

// CandidateSource reads open-item candidates. Lock selects FOR UPDATE SKIP
// LOCKED when committing; previews read without locks.
type CandidateSource interface {
	ListOpenItems(ctx context.Context, q CandidateQuery) ([]domain.OpenItem, error)
	FindByPartnerAmount(ctx context.Context, companyCode string, partnerID int64, amount decimal.Decimal, cutoff time.Time, limit int) ([]domain.OpenItem, error)
}

// CandidateQuery filters open items for one account, optionally by partner.
// Results come back FIFO ordered: payment-date-or-doc-date ascending, then
// residual amount.
type CandidateQuery struct {
	CompanyCode string
	AccountCode string
	PartnerID   int64
	Lock        bool
}

// Params describes one reservation attempt.
type Params struct {
	CompanyCode string
	AccountCode string // empty when the rule does not pin an account
	PartnerID   int64
	Amount      decimal.Decimal
	Tolerance   decimal.Decimal
	Cutoff      time.Time
	Lock        bool
}

// Engine walks the matching tiers over open-item candidates.
type Engine struct {
	src      CandidateSource
	maxItems int // combination search cap
}

func NewEngine(src CandidateSource, maxCombinationItems int) *Engine {
	if maxCombinationItems < 1 {
		maxCombinationItems = 6
	}
	return &Engine{src: src, maxItems: maxCombinationItems}
}

// Reserve returns the first tier's result: single exact match, FIFO
// accumulation, then bounded combination search. When no account is pinned
// and the partner is known, a same-amount lookup across all accounts is
// tried instead, accepted only when exactly one item qualifies.
func (e *Engine) Reserve(ctx context.Context, p Params) (*domain.Reservation, bool, error) {
	if p.AccountCode == "" {
		if p.PartnerID == 0 {
			return nil, false, nil
		}
		return e.widened(ctx, p)
	}

	candidates, err := e.src.ListOpenItems(ctx, CandidateQuery{
		CompanyCode: p.CompanyCode,
		AccountCode: p.AccountCode,
		PartnerID:   p.PartnerID,
		Lock:        p.Lock,
	})
	if err != nil {
		return nil, false, err
	}

	open := candidates[:0:0]
	for _, item := range candidates {
		if item.Residual.IsPositive() && !item.Cleared {
			open = append(open, item)
		}
	}
	if len(open) == 0 {
		return nil, false, nil
	}

	if res, ok := singleMatch(open, p.Amount, p.Tolerance); ok {
		return res, true, nil
	}
	if res, ok := fifoAccumulate(open, p.Amount, p.Tolerance); ok {
		return res, true, nil
	}
	if res, ok := e.combinationSearch(open, p.Amount, p.Tolerance); ok {
		return res, true, nil
	}
	return nil, false, nil
}

// widened accepts a cross-account candidate only when it is unambiguous.
func (e *Engine) widened(ctx context.Context, p Params) (*domain.Reservation, bool, error) {
	items, err := e.src.FindByPartnerAmount(ctx, p.CompanyCode, p.PartnerID, p.Amount, p.Cutoff, 2)
	if err != nil {
		return nil, false, err
	}
	if len(items) != 1 {
		if len(items) > 1 {
			logger.GetLogger().WithFields(map[string]interface{}{
				"partner_id": p.PartnerID,
				"amount":     p.Amount.String(),
			}).Info("Cross-account open-item lookup ambiguous, no reservation")
		}
		return nil, false, nil
	}
	return build([]domain.OpenItem{items[0]}, p.Amount), true, nil
}

// singleMatch picks the first candidate (FIFO order) whose residual is
// within tolerance of the amount.
func singleMatch(items []domain.OpenItem, amount, tolerance decimal.Decimal) (*domain.Reservation, bool) {
	for _, item := range items {
		if item.Residual.Sub(amount).Abs().LessThanOrEqual(tolerance) {
			return build([]domain.OpenItem{item}, amount), true
		}
	}
	return nil, false
}

// fifoAccumulate walks candidates in order accumulating residuals, accepting
// as soon as the running sum is within tolerance. Overshooting beyond
// amount+tolerance before matching aborts the tier.
func fifoAccumulate(items []domain.OpenItem, amount, tolerance decimal.Decimal) (*domain.Reservation, bool) {
	sum := decimal.Zero
	var picked []domain.OpenItem

	for _, item := range items {
		sum = sum.Add(item.Residual)
		picked = append(picked, item)

		if sum.Sub(amount).Abs().LessThanOrEqual(tolerance) {
			return build(picked, amount), true
		}
		if sum.GreaterThan(amount.Add(tolerance)) {
			return nil, false
		}
	}
	return nil, false
}

// combinationSearch is a bounded depth-first search over candidate subsets
// minimizing |sum - amount|. The first exact hit short-circuits; any subset
// within tolerance is acceptable.
func (e *Engine) combinationSearch(items []domain.OpenItem, amount, tolerance decimal.Decimal) (*domain.Reservation, bool) {
	var (
		bestPick []int
		bestDiff decimal.Decimal
		haveBest bool
		exact    bool
	)

	var dfs func(start int, pick []int, sum decimal.Decimal)
	dfs = func(start int, pick []int, sum decimal.Decimal) {
		if exact {
			return
		}

		diff := sum.Sub(amount).Abs()
		if len(pick) > 0 && diff.LessThanOrEqual(tolerance) {
			if !haveBest || diff.LessThan(bestDiff) {
				bestPick = append([]int(nil), pick...)
				bestDiff = diff
				haveBest = true
				if diff.IsZero() {
					exact = true
				}
			}
		}

		if len(pick) >= e.maxItems {
			return
		}
		// Residuals are positive, so an overshot branch cannot recover.
		if sum.GreaterThan(amount.Add(tolerance)) {
			return
		}

		for i := start; i < len(items); i++ {
			next := sum.Add(items[i].Residual)
			if next.GreaterThan(amount.Add(tolerance)) {
				continue
			}
			dfs(i+1, append(pick, i), next)
			if exact {
				return
			}
		}
	}
	dfs(0, nil, decimal.Zero)

	if !haveBest {
		return nil, false
	}

	picked := make([]domain.OpenItem, 0, len(bestPick))
	for _, i := range bestPick {
		picked = append(picked, items[i])
	}
	return build(picked, amount), true
}

// build turns picked items into a reservation. When the raw residual sum
// overshoots the amount, the last item's applied amount is trimmed down so
// the total equals the amount exactly.
func build(items []domain.OpenItem, amount decimal.Decimal) *domain.Reservation {
	res := &domain.Reservation{Total: decimal.Zero}
	for _, item := range items {
		res.Items = append(res.Items, domain.ReservedItem{
			OpenItemID:    item.ID,
			VoucherID:     item.VoucherID,
			VoucherLineNo: item.VoucherLineNo,
			AccountCode:   item.AccountCode,
			Applied:       item.Residual,
		})
		res.Total = res.Total.Add(item.Residual)
	}

	if res.Total.GreaterThan(amount) && len(res.Items) > 0 {
		last := &res.Items[len(res.Items)-1]
		last.Applied = last.Applied.Sub(res.Total.Sub(amount))
		res.Total = amount
	}
	return res
}
