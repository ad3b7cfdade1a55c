package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"autopost-engine/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	err := os.WriteFile(path, []byte(content), 0644)
	assert.NoError(t, err)
	return path
}

func collect(t *testing.T, path string, batchSize int) []domain.StatementLine {
	t.Helper()
	var lines []domain.StatementLine
	err := NewCSVStatementParser("C001").Parse(path, batchSize, func(batch []domain.StatementLine) error {
		lines = append(lines, batch...)
		return nil
	})
	assert.NoError(t, err)
	return lines
}

func TestParse_JapaneseHeaders(t *testing.T) {
	path := writeCSV(t, `取引日,入金額,出金額,残高,摘要,銀行名,口座番号
2025/03/14,"1,250,000",,"3,400,000",振込 ｱﾙﾌｧｼｮｳｼﾞ,みずほ銀行,1234567
2025/03/15,,¥5250,"3,394,750",振込手数料,みずほ銀行,1234567
`)

	lines := collect(t, path, 100)
	assert.Len(t, lines, 2)

	first := lines[0]
	assert.Equal(t, "C001", first.CompanyCode)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), first.TransactionDate)
	assert.True(t, first.DepositAmount.Equal(decimal.NewFromInt(1250000)))
	assert.True(t, first.WithdrawalAmount.IsZero())
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(3400000)))
	assert.Equal(t, "振込 ｱﾙﾌｧｼｮｳｼﾞ", first.Description)
	assert.Equal(t, "みずほ銀行", first.BankName)
	assert.Equal(t, "1234567", first.AccountNumber)
	assert.Equal(t, "JPY", first.Currency)
	assert.Equal(t, 1, first.RowSequence)
	assert.Equal(t, domain.StatusPending, first.PostingStatus)

	// Withdrawals are normalized to a negative magnitude.
	second := lines[1]
	assert.True(t, second.WithdrawalAmount.Equal(decimal.NewFromInt(-5250)))
	assert.Equal(t, domain.DirectionWithdrawal, second.Direction())
	assert.Equal(t, 2, second.RowSequence)
}

func TestParse_EnglishHeaders(t *testing.T) {
	path := writeCSV(t, `transaction_date,deposit_amount,withdrawal_amount,balance,description,currency
2025-03-14,50000,,100000,TRANSFER ALPHA,USD
`)

	lines := collect(t, path, 100)
	assert.Len(t, lines, 1)
	assert.Equal(t, "USD", lines[0].Currency)
	assert.True(t, lines[0].DepositAmount.Equal(decimal.NewFromInt(50000)))
}

func TestParse_DateFormats(t *testing.T) {
	path := writeCSV(t, `取引日,入金額,摘要
2025-03-14,100,a
2025/03/14,100,b
2025.03.14,100,c
20250314,100,d
2025年03月14日,100,e
`)

	lines := collect(t, path, 100)
	assert.Len(t, lines, 5)
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, line := range lines {
		assert.Equal(t, want, line.TransactionDate)
	}
}

func TestParse_PreSignedWithdrawalKept(t *testing.T) {
	path := writeCSV(t, `取引日,出金額,摘要
2025/03/14,-5250,振込手数料
`)

	lines := collect(t, path, 100)
	assert.Len(t, lines, 1)
	assert.True(t, lines[0].WithdrawalAmount.Equal(decimal.NewFromInt(-5250)))
}

func TestParse_MalformedRowsSkippedButSequenceAdvances(t *testing.T) {
	path := writeCSV(t, `取引日,入金額,摘要
2025/03/14,100,ok
bad-date,100,skipped
2025/03/16,100,ok too
`)

	lines := collect(t, path, 100)
	assert.Len(t, lines, 2)
	// The skipped row still consumes a sequence number so pairing order
	// reflects the physical file.
	assert.Equal(t, 1, lines[0].RowSequence)
	assert.Equal(t, 3, lines[1].RowSequence)
}

func TestParse_Batching(t *testing.T) {
	path := writeCSV(t, `取引日,入金額,摘要
2025/03/14,100,a
2025/03/14,200,b
2025/03/14,300,c
`)

	var batchSizes []int
	err := NewCSVStatementParser("C001").Parse(path, 2, func(batch []domain.StatementLine) error {
		batchSizes = append(batchSizes, len(batch))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 1}, batchSizes)
}

func TestParse_MissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, `入金額,出金額,残高
100,,100
`)

	err := NewCSVStatementParser("C001").Parse(path, 100, func([]domain.StatementLine) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid CSV format")
}

func TestParse_MissingAmountColumns(t *testing.T) {
	path := writeCSV(t, `取引日,摘要
2025/03/14,振込
`)

	err := NewCSVStatementParser("C001").Parse(path, 100, func([]domain.StatementLine) error { return nil })
	assert.Error(t, err)
}

func TestParse_FileNotFound(t *testing.T) {
	err := NewCSVStatementParser("C001").Parse("/nonexistent/statement.csv", 100, func([]domain.StatementLine) error { return nil })
	assert.Error(t, err)
}
