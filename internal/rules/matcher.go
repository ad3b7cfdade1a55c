// Package rules evaluates the ordered declarative rule list against
// statement lines. Rule definitions are owned by the external rule service;
// this package only decides which rule, if any, applies.
package rules

import (
	"strings"

	"autopost-engine/internal/domain"
)

// Match returns the first rule whose predicate tree evaluates true for the
// line. Rules are tried in list order; a rule with an empty matcher matches
// everything.
func Match(rules []*domain.PostingRule, line *domain.StatementLine) (*domain.PostingRule, bool) {
	for _, rule := range rules {
		if Matches(&rule.Matcher, line) {
			return rule, true
		}
	}
	return nil, false
}

// Matches evaluates a single predicate tree. All set clauses are ANDed.
func Matches(m *domain.RuleMatcher, line *domain.StatementLine) bool {
	if m.Always {
		return true
	}

	if m.TransactionType != "" && line.Direction() != m.TransactionType {
		return false
	}

	for _, kw := range m.DescriptionContains {
		if !strings.Contains(line.Description, kw) {
			return false
		}
	}

	if len(m.DescriptionContainsAny) > 0 && !containsAny(line.Description, m.DescriptionContainsAny) {
		return false
	}

	if m.DescriptionRe != nil && !m.DescriptionRe.MatchString(line.Description) {
		return false
	}

	if len(m.BankNameIn) > 0 && !member(line.BankName, m.BankNameIn) {
		return false
	}

	if len(m.AccountNameIn) > 0 && !member(line.AccountName, m.AccountNameIn) {
		return false
	}

	if m.AccountNumberEquals != "" && line.AccountNumber != m.AccountNumberEquals {
		return false
	}

	amount := line.Amount()
	if m.AmountMin != nil && amount.LessThan(*m.AmountMin) {
		return false
	}
	if m.AmountMax != nil && amount.GreaterThan(*m.AmountMax) {
		return false
	}

	if m.CurrencyEquals != "" && line.Currency != m.CurrencyEquals {
		return false
	}

	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func member(s string, values []string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}
