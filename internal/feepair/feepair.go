// Package feepair pairs bank-fee statement lines with the adjacent payment
// or deposit line they belong to, so both post as one voucher.
package feepair

import (
	"sort"

	"autopost-engine/internal/domain"
)

// Pairing maps a fee line id to the principal line id it is merged into.
type Pairing map[int64]int64

// PrincipalOf returns the principal for a fee line, if paired.
func (p Pairing) PrincipalOf(feeID int64) (int64, bool) {
	id, ok := p[feeID]
	return id, ok
}

// FeeOf returns the fee paired with a principal line, if any.
func (p Pairing) FeeOf(principalID int64) (int64, bool) {
	for fee, principal := range p {
		if principal == principalID {
			return fee, true
		}
	}
	return 0, false
}

// Pair runs the adjacency pairing once over a batch. Lines are grouped by
// (account number, transaction date) and walked in original statement order.
// For each unpaired fee the nearest non-fee line with a non-zero amount is
// searched forward first, then backward; scanning in a direction stops at
// the first intervening fee, so a fee only ever pairs with its immediately
// adjacent movement. A fee with no eligible neighbor stays unpaired.
func Pair(lines []*domain.StatementLine, isFee func(*domain.StatementLine) bool) Pairing {
	groups := make(map[groupKey][]*domain.StatementLine)
	for _, line := range lines {
		key := groupKey{
			accountNumber: line.AccountNumber,
			date:          line.TransactionDate.Format("2006-01-02"),
		}
		groups[key] = append(groups[key], line)
	}

	pairing := make(Pairing)
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].RowSequence < group[j].RowSequence
		})
		pairGroup(group, isFee, pairing)
	}
	return pairing
}

type groupKey struct {
	accountNumber string
	date          string
}

func pairGroup(group []*domain.StatementLine, isFee func(*domain.StatementLine) bool, pairing Pairing) {
	paired := make(map[int64]bool)

	for i, line := range group {
		if !isFee(line) || paired[line.ID] {
			continue
		}

		if principal := scan(group, i, +1, isFee, paired); principal != nil {
			pairing[line.ID] = principal.ID
			paired[line.ID] = true
			paired[principal.ID] = true
			continue
		}
		if principal := scan(group, i, -1, isFee, paired); principal != nil {
			pairing[line.ID] = principal.ID
			paired[line.ID] = true
			paired[principal.ID] = true
		}
	}
}

func scan(group []*domain.StatementLine, from, step int, isFee func(*domain.StatementLine) bool, paired map[int64]bool) *domain.StatementLine {
	for i := from + step; i >= 0 && i < len(group); i += step {
		candidate := group[i]
		if isFee(candidate) {
			return nil // another fee breaks adjacency
		}
		if paired[candidate.ID] || candidate.Amount().IsZero() {
			continue
		}
		return candidate
	}
	return nil
}
