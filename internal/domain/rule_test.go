package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseRule_Valid(t *testing.T) {
	matcher := `{"transactionType":"deposit","descriptionRegex":"^振込"}`
	action := `{
		"debitAccount": "currentBankAccount",
		"creditAccount": "4100",
		"counterparty": {"type": "customer", "assignLine": "credit"},
		"settlement": {"enabled": true, "line": "credit", "tolerance": "100"}
	}`

	rule, err := ParseRule(7, 1, []byte(matcher), []byte(action))
	assert.NoError(t, err)
	assert.Equal(t, int64(7), rule.ID)
	assert.NotNil(t, rule.Matcher.DescriptionRe)
	assert.Equal(t, KindList{KindCustomer}, rule.Action.Counterparty.Types)
	assert.True(t, rule.Action.Settlement.Tolerance.Equal(decimal.NewFromInt(100)))
}

func TestParseRule_TypeAcceptsArray(t *testing.T) {
	action := `{
		"debitAccount": "1110",
		"creditAccount": "4100",
		"counterparty": {"type": ["customer", "vendor"], "assignLine": "debit"}
	}`

	rule, err := ParseRule(1, 1, nil, []byte(action))
	assert.NoError(t, err)
	assert.Equal(t, KindList{KindCustomer, KindVendor}, rule.Action.Counterparty.Types)
}

func TestParseRule_LegacyBankSentinelNormalized(t *testing.T) {
	rule, err := ParseRule(1, 1, nil, []byte(`{"debitAccount":"{{bank}}","creditAccount":"4110"}`))
	assert.NoError(t, err)
	assert.Equal(t, "currentBankAccount", rule.Action.DebitAccount)
}

func TestParseRule_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		matcher string
		action  string
	}{
		{"missing debit account", `{}`, `{"creditAccount":"4100"}`},
		{"missing credit account", `{}`, `{"debitAccount":"1110"}`},
		{"bad regex", `{"descriptionRegex":"["}`, `{"debitAccount":"1110","creditAccount":"4100"}`},
		{"bad transaction type", `{"transactionType":"transfer"}`, `{"debitAccount":"1110","creditAccount":"4100"}`},
		{"min above max", `{"amountMin":"100","amountMax":"50"}`, `{"debitAccount":"1110","creditAccount":"4100"}`},
		{"bad posting date", `{}`, `{"debitAccount":"1110","creditAccount":"4100","postingDate":"tomorrow"}`},
		{"unknown counterparty kind", `{}`, `{"debitAccount":"1110","creditAccount":"4100","counterparty":{"type":"supplier","assignLine":"debit"}}`},
		{"bad assign line", `{}`, `{"debitAccount":"1110","creditAccount":"4100","counterparty":{"type":"customer","assignLine":"both"}}`},
		{"bad settlement line", `{}`, `{"debitAccount":"1110","creditAccount":"4100","settlement":{"enabled":true,"line":"middle"}}`},
		{"negative tolerance", `{}`, `{"debitAccount":"1110","creditAccount":"4100","settlement":{"enabled":true,"line":"debit","tolerance":"-1"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRule(1, 1, []byte(tc.matcher), []byte(tc.action))
			assert.Error(t, err)
			assert.IsType(t, &ConfigError{}, err)
		})
	}
}

func TestRuleAction_ResolvePostingDate(t *testing.T) {
	transactionDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	importedAt := time.Date(2025, 3, 20, 9, 30, 0, 0, time.UTC)
	now := time.Date(2025, 4, 1, 15, 45, 0, 0, time.UTC)

	line := &StatementLine{TransactionDate: transactionDate, ImportedAt: importedAt}

	for _, selector := range []string{"", PostingDateTransaction} {
		action := &RuleAction{PostingDate: selector}
		got, err := action.ResolvePostingDate(line, now)
		assert.NoError(t, err)
		assert.Equal(t, transactionDate, got)
	}

	action := &RuleAction{PostingDate: PostingDateToday}
	got, err := action.ResolvePostingDate(line, now)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), got)

	action = &RuleAction{PostingDate: PostingDateImported}
	got, err = action.ResolvePostingDate(line, now)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), got)

	action = &RuleAction{PostingDate: "2025-06-30"}
	got, err = action.ResolvePostingDate(line, now)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), got)
}

func TestStatementLine_DirectionAndAmount(t *testing.T) {
	dep := &StatementLine{DepositAmount: decimal.NewFromInt(500)}
	assert.Equal(t, DirectionDeposit, dep.Direction())
	assert.True(t, dep.Amount().Equal(decimal.NewFromInt(500)))

	wd := &StatementLine{WithdrawalAmount: decimal.NewFromInt(-300)}
	assert.Equal(t, DirectionWithdrawal, wd.Direction())
	assert.True(t, wd.Amount().Equal(decimal.NewFromInt(300)))
}

func TestStatementLine_IsFee(t *testing.T) {
	keywords := []string{"振込手数料", "手数料"}

	fee := &StatementLine{Description: "振込手数料"}
	assert.True(t, fee.IsFee(keywords))

	transfer := &StatementLine{Description: "振込 ヤマダ商事"}
	assert.False(t, transfer.IsFee(keywords))

	assert.False(t, fee.IsFee(nil))
}
