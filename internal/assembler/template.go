package assembler

import (
	"strings"

	"autopost-engine/internal/domain"
)

// ExpandTemplate substitutes statement-line placeholders in free-text
// templates from rule actions.
func ExpandTemplate(template string, line *domain.StatementLine) string {
	if template == "" {
		return line.Description
	}

	r := strings.NewReplacer(
		"{description}", line.Description,
		"{bankName}", line.BankName,
		"{accountName}", line.AccountName,
		"{accountNumber}", line.AccountNumber,
		"{amount}", line.Amount().String(),
		"{transactionDate}", line.TransactionDate.Format("2006-01-02"),
		"{balance}", line.Balance.String(),
		"{currency}", line.Currency,
	)
	return r.Replace(template)
}
