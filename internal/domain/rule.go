package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// ConfigError reports an invalid rule definition. Definitions are validated
// once at load, never at each use.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rule definition: %s: %s", e.Field, e.Reason)
}

// CounterpartyKind identifies which master-data store a counterparty
// reference points at.
type CounterpartyKind string

const (
	KindCustomer CounterpartyKind = "customer"
	KindVendor   CounterpartyKind = "vendor"
	KindEmployee CounterpartyKind = "employee"
)

// KindList accepts either a single string or an array of strings in JSON.
type KindList []CounterpartyKind

func (k *KindList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*k = KindList{CounterpartyKind(single)}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("counterparty type must be a string or string array")
	}
	kinds := make(KindList, 0, len(many))
	for _, s := range many {
		kinds = append(kinds, CounterpartyKind(s))
	}
	*k = kinds
	return nil
}

// RuleMatcher is the predicate tree of a posting rule. All set clauses are
// ANDed; a matcher with no clauses matches everything.
type RuleMatcher struct {
	Always                 bool             `json:"always,omitempty"`
	TransactionType        Direction        `json:"transactionType,omitempty"`
	DescriptionContains    []string         `json:"descriptionContains,omitempty"`
	DescriptionContainsAny []string         `json:"descriptionContainsAny,omitempty"`
	DescriptionRegex       string           `json:"descriptionRegex,omitempty"`
	BankNameIn             []string         `json:"bankNameIn,omitempty"`
	AccountNameIn          []string         `json:"accountNameIn,omitempty"`
	AccountNumberEquals    string           `json:"accountNumberEquals,omitempty"`
	AmountMin              *decimal.Decimal `json:"amountMin,omitempty"`
	AmountMax              *decimal.Decimal `json:"amountMax,omitempty"`
	CurrencyEquals         string           `json:"currencyEquals,omitempty"`

	// DescriptionRe is compiled from DescriptionRegex during ParseRule.
	DescriptionRe *regexp.Regexp `json:"-"`
}

// CounterpartySpec configures counterparty resolution for a rule action.
type CounterpartySpec struct {
	Types           KindList         `json:"type"`
	Code            string           `json:"code,omitempty"`
	NameContains    string           `json:"nameContains,omitempty"`
	EmploymentTypes []string         `json:"employmentTypes,omitempty"`
	ActiveOnly      bool             `json:"activeOnly,omitempty"`
	AssignLine      string           `json:"assignLine"` // debit or credit
	FallbackType    CounterpartyKind `json:"fallbackType,omitempty"`
	FallbackCode    string           `json:"fallbackCode,omitempty"`
}

// SettlementSpec configures open-item clearing for a rule action.
type SettlementSpec struct {
	Enabled         bool              `json:"enabled"`
	Line            string            `json:"line"` // debit or credit
	AccountCode     string            `json:"accountCode,omitempty"`
	PartnerID       int64             `json:"partnerId,omitempty"`
	UseCounterparty bool              `json:"useCounterparty,omitempty"`
	Partner         *CounterpartySpec `json:"partner,omitempty"`
	Tolerance       *decimal.Decimal  `json:"tolerance,omitempty"`
	RequireMatch    bool              `json:"requireMatch,omitempty"`
	FallbackAccount string            `json:"fallbackAccount,omitempty"`
	FallbackLine    string            `json:"fallbackLine,omitempty"`
	PlatformGroup   string            `json:"platformGroup,omitempty"`
}

// NotificationSpec addresses the post-run confirmation task.
type NotificationSpec struct {
	TargetRole   string `json:"targetRole,omitempty"`
	TargetUserID int64  `json:"targetUserId,omitempty"`
}

// Posting-date selectors understood by RuleAction.PostingDate. Anything else
// must parse as an ISO date.
const (
	PostingDateToday       = "today"
	PostingDateImported    = "importedDate"
	PostingDateTransaction = "transactionDate"
)

// RuleAction describes what to post when the matcher fires.
type RuleAction struct {
	DebitAccount        string            `json:"debitAccount"`
	CreditAccount       string            `json:"creditAccount"`
	SummaryTemplate     string            `json:"summaryTemplate,omitempty"`
	PostingDate         string            `json:"postingDate,omitempty"`
	Currency            string            `json:"currency,omitempty"`
	DebitNote           string            `json:"debitNote,omitempty"`
	CreditNote          string            `json:"creditNote,omitempty"`
	VoucherType         string            `json:"voucherType,omitempty"`
	Counterparty        *CounterpartySpec `json:"counterparty,omitempty"`
	Settlement          *SettlementSpec   `json:"settlement,omitempty"`
	BankFeeAccountCode  string            `json:"bankFeeAccountCode,omitempty"`
	InputTaxAccountCode string            `json:"inputTaxAccountCode,omitempty"`
	Notification        *NotificationSpec `json:"notification,omitempty"`
}

// PostingRule is one entry of the ordered rule list. Rules are immutable
// inputs owned by the external rule service.
type PostingRule struct {
	ID       int64       `json:"id" db:"id"`
	Priority int         `json:"priority" db:"priority"`
	Matcher  RuleMatcher `json:"matcher"`
	Action   RuleAction  `json:"action"`
}

// ParseRule decodes and validates a rule definition. Invalid definitions are
// rejected here so the posting loop never sees one.
func ParseRule(id int64, priority int, matcherJSON, actionJSON []byte) (*PostingRule, error) {
	rule := &PostingRule{ID: id, Priority: priority}

	if len(matcherJSON) > 0 {
		if err := json.Unmarshal(matcherJSON, &rule.Matcher); err != nil {
			return nil, &ConfigError{Field: "matcher", Reason: err.Error()}
		}
	}
	if err := json.Unmarshal(actionJSON, &rule.Action); err != nil {
		return nil, &ConfigError{Field: "action", Reason: err.Error()}
	}

	if err := validateMatcher(&rule.Matcher); err != nil {
		return nil, err
	}
	if err := validateAction(&rule.Action); err != nil {
		return nil, err
	}
	return rule, nil
}

func validateMatcher(m *RuleMatcher) error {
	switch m.TransactionType {
	case "", DirectionDeposit, DirectionWithdrawal:
	default:
		return &ConfigError{Field: "matcher.transactionType", Reason: "must be deposit or withdrawal"}
	}

	if m.DescriptionRegex != "" {
		re, err := regexp.Compile(m.DescriptionRegex)
		if err != nil {
			return &ConfigError{Field: "matcher.descriptionRegex", Reason: err.Error()}
		}
		m.DescriptionRe = re
	}

	if m.AmountMin != nil && m.AmountMax != nil && m.AmountMin.GreaterThan(*m.AmountMax) {
		return &ConfigError{Field: "matcher.amountMin", Reason: "amountMin exceeds amountMax"}
	}
	return nil
}

func validateAction(a *RuleAction) error {
	if a.DebitAccount == "" {
		return &ConfigError{Field: "action.debitAccount", Reason: "required"}
	}
	if a.CreditAccount == "" {
		return &ConfigError{Field: "action.creditAccount", Reason: "required"}
	}

	// Older rule definitions spell the bank-account sentinel as {{bank}}.
	if a.DebitAccount == "{{bank}}" {
		a.DebitAccount = "currentBankAccount"
	}
	if a.CreditAccount == "{{bank}}" {
		a.CreditAccount = "currentBankAccount"
	}

	switch a.PostingDate {
	case "", PostingDateToday, PostingDateImported, PostingDateTransaction:
	default:
		if _, err := time.Parse("2006-01-02", a.PostingDate); err != nil {
			return &ConfigError{Field: "action.postingDate", Reason: "must be today, importedDate, transactionDate or an ISO date"}
		}
	}

	if cp := a.Counterparty; cp != nil {
		if len(cp.Types) == 0 && cp.FallbackType == "" {
			return &ConfigError{Field: "action.counterparty.type", Reason: "required"}
		}
		for _, kind := range cp.Types {
			if !validKind(kind) {
				return &ConfigError{Field: "action.counterparty.type", Reason: fmt.Sprintf("unknown kind %q", kind)}
			}
		}
		if cp.FallbackType != "" && !validKind(cp.FallbackType) {
			return &ConfigError{Field: "action.counterparty.fallbackType", Reason: fmt.Sprintf("unknown kind %q", cp.FallbackType)}
		}
		if cp.AssignLine != "debit" && cp.AssignLine != "credit" {
			return &ConfigError{Field: "action.counterparty.assignLine", Reason: "must be debit or credit"}
		}
	}

	if st := a.Settlement; st != nil && st.Enabled {
		if st.Line != "debit" && st.Line != "credit" {
			return &ConfigError{Field: "action.settlement.line", Reason: "must be debit or credit"}
		}
		if st.Tolerance != nil && st.Tolerance.IsNegative() {
			return &ConfigError{Field: "action.settlement.tolerance", Reason: "must not be negative"}
		}
		if st.FallbackLine != "" && st.FallbackLine != "debit" && st.FallbackLine != "credit" {
			return &ConfigError{Field: "action.settlement.fallbackLine", Reason: "must be debit or credit"}
		}
	}
	return nil
}

func validKind(k CounterpartyKind) bool {
	return k == KindCustomer || k == KindVendor || k == KindEmployee
}

// ResolvePostingDate evaluates the posting-date selector for a line.
func (a *RuleAction) ResolvePostingDate(line *StatementLine, now time.Time) (time.Time, error) {
	switch a.PostingDate {
	case "", PostingDateTransaction:
		return line.TransactionDate, nil
	case PostingDateToday:
		return now.Truncate(24 * time.Hour), nil
	case PostingDateImported:
		return line.ImportedAt.Truncate(24 * time.Hour), nil
	default:
		return time.Parse("2006-01-02", a.PostingDate)
	}
}
