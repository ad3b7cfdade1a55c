// Package resolver turns the symbolic references of a rule action (account
// descriptors, counterparty specs) into concrete master-data records.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/textnorm"
	"autopost-engine/pkg/logger"
)

// BankAccountDescriptor is the sentinel account descriptor resolved against
// the statement's own bank account.
const BankAccountDescriptor = "currentBankAccount"

// ResolutionError is a fatal per-row failure: the descriptor could not be
// turned into an account code.
type ResolutionError struct {
	Descriptor string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("account resolution failed for %q: %s", e.Descriptor, e.Reason)
}

// BankAccountSource lists the configured bank accounts of a company.
type BankAccountSource interface {
	ListBankAccounts(ctx context.Context, companyCode string) ([]domain.BankAccount, error)
}

// PostingHistorySource searches prior posted vouchers for the account a
// human previously chose for the same counterparty keyword.
type PostingHistorySource interface {
	FindAccountByHistory(ctx context.Context, companyCode, bankAccountCode string, side domain.Side, keyword string) (string, bool, error)
}

// AccountResolver resolves account descriptors for one company, caching the
// bank-account list with a bounded TTL.
type AccountResolver struct {
	banks    BankAccountSource
	history  PostingHistorySource
	cache    *TTLCache[[]domain.BankAccount]
	norm     *textnorm.Normalizer
	suspense map[string]bool
}

func NewAccountResolver(
	banks BankAccountSource,
	history PostingHistorySource,
	norm *textnorm.Normalizer,
	suspenseAccounts []string,
	cacheTTL time.Duration,
	clock Clock,
) *AccountResolver {
	suspense := make(map[string]bool, len(suspenseAccounts))
	for _, code := range suspenseAccounts {
		suspense[code] = true
	}
	return &AccountResolver{
		banks:    banks,
		history:  history,
		cache:    NewTTLCache[[]domain.BankAccount](cacheTTL, clock),
		norm:     norm,
		suspense: suspense,
	}
}

// ResolveBankAccount resolves the sentinel descriptor against configured
// bank accounts: account-number equality, then bank-name equality, then
// holder-name containment in the statement's account-name field.
func (r *AccountResolver) ResolveBankAccount(ctx context.Context, companyCode string, line *domain.StatementLine) (*domain.BankAccount, error) {
	accounts, err := r.cache.GetOrLoad(ctx, companyCode, func(ctx context.Context) ([]domain.BankAccount, error) {
		return r.banks.ListBankAccounts(ctx, companyCode)
	})
	if err != nil {
		return nil, fmt.Errorf("load bank accounts: %w", err)
	}

	number := normalizeAccountNumber(line.AccountNumber)
	for i := range accounts {
		if number != "" && normalizeAccountNumber(accounts[i].AccountNumber) == number {
			return &accounts[i], nil
		}
	}

	for i := range accounts {
		if line.BankName != "" && accounts[i].BankName == line.BankName {
			return &accounts[i], nil
		}
	}

	holderTarget := textnorm.Fold(line.AccountName)
	for i := range accounts {
		holder := textnorm.Fold(accounts[i].HolderName)
		if holder != "" && strings.Contains(holderTarget, holder) {
			return &accounts[i], nil
		}
	}

	return nil, &ResolutionError{
		Descriptor: BankAccountDescriptor,
		Reason:     fmt.Sprintf("no bank account matches number %q, bank %q or holder %q", line.AccountNumber, line.BankName, line.AccountName),
	}
}

// Resolve turns a descriptor into a concrete account code. The sentinel
// resolves via the bank-account lookup; a literal suspense code is first
// replaced by the account history learning found for the same counterparty
// keyword, the literal code otherwise.
func (r *AccountResolver) Resolve(ctx context.Context, descriptor, companyCode, bankAccountCode string, line *domain.StatementLine, side domain.Side) (string, error) {
	if descriptor == "" {
		return "", &ResolutionError{Descriptor: descriptor, Reason: "empty descriptor"}
	}

	if descriptor == BankAccountDescriptor {
		account, err := r.ResolveBankAccount(ctx, companyCode, line)
		if err != nil {
			return "", err
		}
		return account.AccountCode, nil
	}

	if r.suspense[descriptor] && bankAccountCode != "" {
		if learned, ok := r.learnFromHistory(ctx, companyCode, bankAccountCode, line, side); ok {
			return learned, nil
		}
	}

	return descriptor, nil
}

// learnFromHistory looks for a prior posted voucher where the same
// counterparty keyword appears on this side with the bank account on the
// opposite leg. The most recent, largest match wins.
func (r *AccountResolver) learnFromHistory(ctx context.Context, companyCode, bankAccountCode string, line *domain.StatementLine, side domain.Side) (string, bool) {
	keyword := r.norm.ExtractPhrase(line.Description)
	if keyword == "" {
		return "", false
	}

	account, found, err := r.history.FindAccountByHistory(ctx, companyCode, bankAccountCode, side, keyword)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("keyword", keyword).Warn("Posting-history lookup failed")
		return "", false
	}
	if !found {
		return "", false
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"keyword":         keyword,
		"learned_account": account,
	}).Info("Suspense account replaced from posting history")
	return account, true
}

func normalizeAccountNumber(s string) string {
	var b strings.Builder
	for _, r := range textnorm.Fold(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
