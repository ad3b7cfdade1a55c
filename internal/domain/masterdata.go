package domain

import "time"

// BankAccount is a configured company bank account.
type BankAccount struct {
	ID            int64  `json:"id" db:"id"`
	CompanyCode   string `json:"company_code" db:"company_code"`
	AccountCode   string `json:"account_code" db:"account_code"`
	BankName      string `json:"bank_name" db:"bank_name"`
	HolderName    string `json:"holder_name" db:"holder_name"`
	AccountNumber string `json:"account_number" db:"account_number"`
	Active        bool   `json:"active" db:"active"`
}

// Partner is a trading partner (customer and/or vendor) master record.
type Partner struct {
	ID         int64  `json:"id" db:"id"`
	Code       string `json:"code" db:"code"`
	Name       string `json:"name" db:"name"`
	NameKana   string `json:"name_kana" db:"name_kana"`
	ShortName  string `json:"short_name" db:"short_name"`
	IsCustomer bool   `json:"is_customer" db:"is_customer"`
	IsVendor   bool   `json:"is_vendor" db:"is_vendor"`
}

// HasKind reports whether the partner's type flags cover the given kind.
func (p *Partner) HasKind(kind CounterpartyKind) bool {
	switch kind {
	case KindCustomer:
		return p.IsCustomer
	case KindVendor:
		return p.IsVendor
	default:
		return false
	}
}

// ContractPeriod is one employment interval; a nil To means open-ended.
type ContractPeriod struct {
	From time.Time  `json:"from"`
	To   *time.Time `json:"to,omitempty"`
}

func (c ContractPeriod) ActiveOn(date time.Time) bool {
	if date.Before(c.From) {
		return false
	}
	return c.To == nil || !date.After(*c.To)
}

// Employee is an employee master record.
type Employee struct {
	ID              int64            `json:"id" db:"id"`
	Code            string           `json:"code" db:"code"`
	Name            string           `json:"name" db:"name"`
	NameKana        string           `json:"name_kana" db:"name_kana"`
	EmploymentType  string           `json:"employment_type" db:"employment_type"`
	ContractPeriods []ContractPeriod `json:"contract_periods"`
}

// ActiveOn reports whether any contract period covers the date.
func (e *Employee) ActiveOn(date time.Time) bool {
	for _, p := range e.ContractPeriods {
		if p.ActiveOn(date) {
			return true
		}
	}
	return false
}

// AccountFieldRule controls per-account voucher field behavior fetched from
// account master data.
type AccountFieldRule struct {
	AccountCode         string `json:"account_code" db:"account_code"`
	PaymentDateRequired bool   `json:"payment_date_required" db:"payment_date_required"`
	PaymentDateHidden   bool   `json:"payment_date_hidden" db:"payment_date_hidden"`
}
