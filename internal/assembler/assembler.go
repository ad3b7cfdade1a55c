// Package assembler builds the balanced debit/credit line set of a voucher
// from the resolved attributes of a statement line.
package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/resolver"
)

// AccountFieldRuleSource fetches per-account field behavior from account
// master data. A nil rule means no constraint.
type AccountFieldRuleSource interface {
	GetAccountFieldRule(ctx context.Context, accountCode string) (*domain.AccountFieldRule, error)
}

// Input carries everything the assembler needs for one voucher.
type Input struct {
	Line            *domain.StatementLine
	Action          *domain.RuleAction
	PostingDate     time.Time
	DebitAccount    string // resolved code
	CreditAccount   string // resolved code
	BankSide        domain.Side
	BankAccountCode string
	Counterparty    *resolver.Resolved
	Reservation     *domain.Reservation
	SettlementSide  domain.Side // zero value when no settlement applies
	Fee             *domain.StatementLine
	FeeAccount      string
	TaxAccount      string
}

// Assembler builds voucher drafts.
type Assembler struct {
	fieldRules AccountFieldRuleSource
	taxRate    decimal.Decimal
}

func New(fieldRules AccountFieldRuleSource, taxRate decimal.Decimal) *Assembler {
	return &Assembler{fieldRules: fieldRules, taxRate: taxRate}
}

// SplitTax splits a gross fee into net and consumption tax:
// net = round(gross / (1+rate)), tax = gross - net.
func SplitTax(gross, rate decimal.Decimal) (net, tax decimal.Decimal) {
	net = gross.Div(decimal.NewFromInt(1).Add(rate)).Round(0)
	tax = gross.Sub(net)
	return net, tax
}

// Build produces the balanced line set. The bank leg carries whatever
// balances the counter and fee lines, which by construction is the sum of
// the principal and any paired fee.
func (a *Assembler) Build(ctx context.Context, in Input) (*domain.VoucherDraft, error) {
	principal := in.Line.Amount()
	if !principal.IsPositive() {
		return nil, fmt.Errorf("assemble voucher: non-positive amount %s", principal)
	}

	counterSide := in.BankSide.Opposite()
	counterAccount := in.DebitAccount
	if counterSide == domain.SideCredit {
		counterAccount = in.CreditAccount
	}

	var debits, credits []domain.VoucherLine

	appendLine := func(l domain.VoucherLine) {
		if l.Side == domain.SideDebit {
			debits = append(debits, l)
		} else {
			credits = append(credits, l)
		}
	}

	counterNote := in.Action.DebitNote
	if counterSide == domain.SideCredit {
		counterNote = in.Action.CreditNote
	}
	counterNote = ExpandTemplate(counterNote, in.Line)

	// Counter leg: one clearing line per reserved item, or a plain line.
	if in.Reservation != nil && in.SettlementSide == counterSide && len(in.Reservation.Items) > 0 {
		remainder := principal.Sub(in.Reservation.Total)
		for i, item := range in.Reservation.Items {
			amount := item.Applied
			account := item.AccountCode
			if account == "" {
				account = counterAccount
			}
			// A payment difference within tolerance rides on the last
			// settlement line so the voucher still balances.
			if i == len(in.Reservation.Items)-1 {
				amount = amount.Add(remainder)
			}
			appendLine(domain.VoucherLine{
				AccountCode:      account,
				Side:             counterSide,
				Amount:           amount,
				Note:             counterNote,
				Clearing:         true,
				ClearedVoucherID: item.VoucherID,
				ClearedLineNo:    item.VoucherLineNo,
				ClearedItemID:    item.OpenItemID,
			})
		}
	} else {
		appendLine(domain.VoucherLine{
			AccountCode: counterAccount,
			Side:        counterSide,
			Amount:      principal,
			Note:        counterNote,
		})
	}

	// Paired fee, split into net and consumption tax when a tax account is
	// configured. Fee lines always sit on the debit side.
	if in.Fee != nil {
		gross := in.Fee.Amount()
		feeAccount := in.FeeAccount
		if feeAccount == "" {
			return nil, fmt.Errorf("assemble voucher: paired fee without bankFeeAccountCode")
		}

		if in.TaxAccount != "" {
			net, tax := SplitTax(gross, a.taxRate)
			appendLine(domain.VoucherLine{AccountCode: feeAccount, Side: domain.SideDebit, Amount: net, Note: in.Fee.Description})
			if tax.IsPositive() {
				appendLine(domain.VoucherLine{AccountCode: in.TaxAccount, Side: domain.SideDebit, Amount: tax, Note: in.Fee.Description})
			}
		} else {
			appendLine(domain.VoucherLine{AccountCode: feeAccount, Side: domain.SideDebit, Amount: gross, Note: in.Fee.Description})
		}
	}

	// Bank leg balances the rest.
	debitTotal, creditTotal := sum(debits), sum(credits)
	var bankAmount decimal.Decimal
	if in.BankSide == domain.SideDebit {
		bankAmount = creditTotal.Sub(debitTotal)
	} else {
		bankAmount = debitTotal.Sub(creditTotal)
	}
	if !bankAmount.IsPositive() {
		return nil, fmt.Errorf("assemble voucher: bank leg would be %s", bankAmount)
	}
	bankAccount := in.DebitAccount
	if in.BankSide == domain.SideCredit {
		bankAccount = in.CreditAccount
	}
	if in.BankAccountCode != "" {
		bankAccount = in.BankAccountCode
	}
	appendLine(domain.VoucherLine{AccountCode: bankAccount, Side: in.BankSide, Amount: bankAmount})

	lines := append(debits, credits...)
	for i := range lines {
		lines[i].LineNo = i + 1
	}

	if err := a.applyCounterparty(lines, in); err != nil {
		return nil, err
	}
	if err := a.applyPaymentDates(ctx, lines, in.Line.TransactionDate); err != nil {
		return nil, err
	}

	currency := in.Action.Currency
	if currency == "" {
		currency = in.Line.Currency
	}
	voucherType := in.Action.VoucherType
	if voucherType == "" {
		voucherType = "transfer"
	}

	draft := &domain.VoucherDraft{
		CompanyCode: in.Line.CompanyCode,
		PostingDate: in.PostingDate,
		VoucherType: voucherType,
		Currency:    currency,
		Summary:     ExpandTemplate(in.Action.SummaryTemplate, in.Line),
		Lines:       lines,
	}

	if !draft.Balanced() {
		return nil, fmt.Errorf("assemble voucher: unbalanced draft, debit %s credit %s", draft.DebitTotal(), draft.CreditTotal())
	}
	return draft, nil
}

func (a *Assembler) applyCounterparty(lines []domain.VoucherLine, in Input) error {
	if in.Counterparty == nil {
		return nil
	}

	side := domain.SideDebit
	if in.Counterparty.AssignLine == "credit" {
		side = domain.SideCredit
	}
	for i := range lines {
		if lines[i].Side == side {
			lines[i].PartnerKind = in.Counterparty.Kind
			lines[i].PartnerID = in.Counterparty.ID
		}
	}
	return nil
}

// applyPaymentDates fills or clears each line's payment date per the
// account's field rule.
func (a *Assembler) applyPaymentDates(ctx context.Context, lines []domain.VoucherLine, transactionDate time.Time) error {
	for i := range lines {
		rule, err := a.fieldRules.GetAccountFieldRule(ctx, lines[i].AccountCode)
		if err != nil {
			return fmt.Errorf("account field rule for %s: %w", lines[i].AccountCode, err)
		}
		if rule == nil {
			continue
		}
		switch {
		case rule.PaymentDateHidden:
			lines[i].PaymentDate = nil
		case rule.PaymentDateRequired:
			d := transactionDate
			lines[i].PaymentDate = &d
		}
	}
	return nil
}

func sum(lines []domain.VoucherLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
