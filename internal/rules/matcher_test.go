package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"autopost-engine/internal/domain"
)

func deposit(description string, amount float64) *domain.StatementLine {
	return &domain.StatementLine{
		DepositAmount: decimal.NewFromFloat(amount),
		Description:   description,
		BankName:      "みずほ銀行",
		AccountNumber: "1234567",
		Currency:      "JPY",
	}
}

func withdrawal(description string, amount float64) *domain.StatementLine {
	return &domain.StatementLine{
		WithdrawalAmount: decimal.NewFromFloat(-amount),
		Description:      description,
		BankName:         "みずほ銀行",
		Currency:         "JPY",
	}
}

func mustRule(t *testing.T, id int64, matcherJSON, actionJSON string) *domain.PostingRule {
	t.Helper()
	rule, err := domain.ParseRule(id, int(id), []byte(matcherJSON), []byte(actionJSON))
	assert.NoError(t, err)
	return rule
}

const minimalAction = `{"debitAccount":"1110","creditAccount":"4100"}`

func TestMatch_FirstMatchWins(t *testing.T) {
	ruleSet := []*domain.PostingRule{
		mustRule(t, 1, `{"descriptionContains":["家賃"]}`, minimalAction),
		mustRule(t, 2, `{"transactionType":"deposit"}`, minimalAction),
		mustRule(t, 3, `{"always":true}`, minimalAction),
	}

	rule, ok := Match(ruleSet, deposit("家賃 1月分", 100000))
	assert.True(t, ok)
	assert.Equal(t, int64(1), rule.ID)

	rule, ok = Match(ruleSet, deposit("売上入金", 5000))
	assert.True(t, ok)
	assert.Equal(t, int64(2), rule.ID)

	rule, ok = Match(ruleSet, withdrawal("電気料金", 5000))
	assert.True(t, ok)
	assert.Equal(t, int64(3), rule.ID)
}

func TestMatch_NoRuleMatches(t *testing.T) {
	ruleSet := []*domain.PostingRule{
		mustRule(t, 1, `{"transactionType":"deposit"}`, minimalAction),
	}

	_, ok := Match(ruleSet, withdrawal("振込", 3000))
	assert.False(t, ok)

	_, ok = Match(nil, deposit("振込", 3000))
	assert.False(t, ok)
}

func TestMatches_ClausesAreANDed(t *testing.T) {
	rule := mustRule(t, 1, `{
		"transactionType": "deposit",
		"descriptionContains": ["振込", "ヤマダ"],
		"amountMin": "1000",
		"amountMax": "50000"
	}`, minimalAction)

	assert.True(t, Matches(&rule.Matcher, deposit("振込 ヤマダ商事", 10000)))

	// One keyword missing.
	assert.False(t, Matches(&rule.Matcher, deposit("振込 タナカ", 10000)))
	// Wrong direction.
	assert.False(t, Matches(&rule.Matcher, withdrawal("振込 ヤマダ商事", 10000)))
	// Below the amount floor; boundary values are inclusive.
	assert.False(t, Matches(&rule.Matcher, deposit("振込 ヤマダ商事", 999)))
	assert.True(t, Matches(&rule.Matcher, deposit("振込 ヤマダ商事", 1000)))
	assert.True(t, Matches(&rule.Matcher, deposit("振込 ヤマダ商事", 50000)))
	assert.False(t, Matches(&rule.Matcher, deposit("振込 ヤマダ商事", 50001)))
}

func TestMatches_DescriptionContainsAny(t *testing.T) {
	rule := mustRule(t, 1, `{"descriptionContainsAny":["電気","ガス","水道"]}`, minimalAction)

	assert.True(t, Matches(&rule.Matcher, withdrawal("ガス料金", 4000)))
	assert.False(t, Matches(&rule.Matcher, withdrawal("通信費", 4000)))
}

func TestMatches_DescriptionRegex(t *testing.T) {
	rule := mustRule(t, 1, `{"descriptionRegex":"^給与.*[0-9]月分$"}`, minimalAction)

	assert.True(t, Matches(&rule.Matcher, withdrawal("給与 3月分", 250000)))
	assert.False(t, Matches(&rule.Matcher, withdrawal("給与支払", 250000)))
}

func TestMatches_BankAndAccountFields(t *testing.T) {
	rule := mustRule(t, 1, `{
		"bankNameIn": ["みずほ銀行", "三井住友銀行"],
		"accountNumberEquals": "1234567",
		"currencyEquals": "JPY"
	}`, minimalAction)

	assert.True(t, Matches(&rule.Matcher, deposit("入金", 100)))

	other := deposit("入金", 100)
	other.BankName = "楽天銀行"
	assert.False(t, Matches(&rule.Matcher, other))

	other = deposit("入金", 100)
	other.AccountNumber = "7654321"
	assert.False(t, Matches(&rule.Matcher, other))
}

func TestMatches_EmptyMatcherMatchesEverything(t *testing.T) {
	rule := mustRule(t, 1, `{}`, minimalAction)

	assert.True(t, Matches(&rule.Matcher, deposit("anything", 1)))
	assert.True(t, Matches(&rule.Matcher, withdrawal("anything", 1)))
}
