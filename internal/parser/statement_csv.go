package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

// StatementParser parses bank statement files into statement lines.
type StatementParser interface {
	Parse(filePath string, batchSize int, callback func([]domain.StatementLine) error) error
}

// CSVStatementParser implements a streaming CSV parser. Column headers may
// be Japanese bank-feed names or their English equivalents.
type CSVStatementParser struct {
	companyCode string
	now         func() time.Time
}

func NewCSVStatementParser(companyCode string) *CSVStatementParser {
	return &CSVStatementParser{companyCode: companyCode, now: time.Now}
}

// Parse reads the file in streaming mode and hands batches to the callback.
// Malformed rows are logged and skipped; the import keeps going.
func (p *CSVStatementParser) Parse(filePath string, batchSize int, callback func([]domain.StatementLine) error) error {
	file, err := os.Open(filePath)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file", filePath).Error("Failed to open file")
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to read CSV header")
		return fmt.Errorf("failed to read header: %w", err)
	}

	columns := mapColumns(header)
	if err := validateColumns(columns); err != nil {
		return err
	}

	importedAt := p.now()
	batch := make([]domain.StatementLine, 0, batchSize)
	rowSequence := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.GetLogger().WithError(err).WithField("row", rowSequence+1).Warn("Failed to read CSV row, skipping")
			rowSequence++
			continue
		}

		rowSequence++

		line, err := p.parseRecord(record, columns, rowSequence, importedAt)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("row", rowSequence).Warn("Failed to parse record, skipping")
			continue
		}

		batch = append(batch, *line)

		if len(batch) >= batchSize {
			if err := callback(batch); err != nil {
				return err
			}
			batch = make([]domain.StatementLine, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := callback(batch); err != nil {
			return err
		}
	}
	return nil
}

func (p *CSVStatementParser) parseRecord(record []string, columns map[string]int, rowSequence int, importedAt time.Time) (*domain.StatementLine, error) {
	get := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(get("transaction_date"))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction date %q: %w", get("transaction_date"), err)
	}

	deposit, err := parseAmount(get("deposit_amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid deposit amount: %w", err)
	}
	withdrawal, err := parseAmount(get("withdrawal_amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid withdrawal amount: %w", err)
	}
	// Withdrawals are stored as a negative magnitude regardless of how the
	// feed signs them.
	if withdrawal.IsPositive() {
		withdrawal = withdrawal.Neg()
	}

	balance, err := parseAmount(get("balance"))
	if err != nil {
		return nil, fmt.Errorf("invalid balance: %w", err)
	}

	currency := get("currency")
	if currency == "" {
		currency = "JPY"
	}

	return &domain.StatementLine{
		CompanyCode:      p.companyCode,
		TransactionDate:  date,
		DepositAmount:    deposit,
		WithdrawalAmount: withdrawal,
		Balance:          balance,
		Currency:         currency,
		BankName:         get("bank_name"),
		AccountName:      get("account_name"),
		AccountNumber:    get("account_number"),
		Description:      get("description"),
		ImportedAt:       importedAt,
		RowSequence:      rowSequence,
		PostingStatus:    domain.StatusPending,
	}, nil
}

// columnAliases maps canonical column names to the headers seen in bank
// feeds.
var columnAliases = map[string][]string{
	"transaction_date":  {"transaction_date", "date", "取引日", "日付"},
	"deposit_amount":    {"deposit_amount", "deposit", "入金額", "入金"},
	"withdrawal_amount": {"withdrawal_amount", "withdrawal", "出金額", "出金", "支払金額"},
	"balance":           {"balance", "残高"},
	"currency":          {"currency", "通貨"},
	"bank_name":         {"bank_name", "銀行名", "金融機関"},
	"account_name":      {"account_name", "口座名義", "口座名"},
	"account_number":    {"account_number", "口座番号"},
	"description":       {"description", "memo", "摘要", "備考", "取引内容"},
}

func mapColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		for canonical, aliases := range columnAliases {
			for _, alias := range aliases {
				if name == strings.ToLower(alias) {
					index[canonical] = i
				}
			}
		}
	}
	return index
}

func validateColumns(columns map[string]int) error {
	for _, required := range []string{"transaction_date", "description"} {
		if _, ok := columns[required]; !ok {
			return fmt.Errorf("invalid CSV format: missing required column %q", required)
		}
	}
	if _, deposit := columns["deposit_amount"]; !deposit {
		if _, withdrawal := columns["withdrawal_amount"]; !withdrawal {
			return fmt.Errorf("invalid CSV format: need a deposit or withdrawal column")
		}
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	cleaned := strings.NewReplacer(",", "", "¥", "", "\\", "").Replace(s)
	return decimal.NewFromString(cleaned)
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006年01月02日",
}

func parseDate(s string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", s)
}
