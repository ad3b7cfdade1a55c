package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

// MasterDataRepository reads the accounts/partners/employees stores. All
// methods are read-only; master data is owned elsewhere.
type MasterDataRepository interface {
	ListBankAccounts(ctx context.Context, companyCode string) ([]domain.BankAccount, error)
	FindPartnerByCode(ctx context.Context, code string) (*domain.Partner, error)
	SearchPartners(ctx context.Context, nameFragment string, limit int) ([]domain.Partner, error)
	FindEmployeeByCode(ctx context.Context, code string) (*domain.Employee, error)
	SearchEmployees(ctx context.Context, nameFragment string, limit int) ([]domain.Employee, error)
	GetAccountFieldRule(ctx context.Context, accountCode string) (*domain.AccountFieldRule, error)
	ListRules(ctx context.Context, companyCode string) ([]*domain.PostingRule, error)
	ListUserIDsByRole(ctx context.Context, companyCode, role string) ([]int64, error)
}

type masterDataRepository struct {
	db *sql.DB
}

func NewMasterDataRepository(db *sql.DB) MasterDataRepository {
	return &masterDataRepository{db: db}
}

func (r *masterDataRepository) ListBankAccounts(ctx context.Context, companyCode string) ([]domain.BankAccount, error) {
	query := `
		SELECT id, company_code, account_code, bank_name, holder_name, account_number, active
		FROM bank_accounts
		WHERE company_code = $1 AND active
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query bank accounts")
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		var a domain.BankAccount
		if err := rows.Scan(&a.ID, &a.CompanyCode, &a.AccountCode, &a.BankName, &a.HolderName, &a.AccountNumber, &a.Active); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan bank account")
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *masterDataRepository) FindPartnerByCode(ctx context.Context, code string) (*domain.Partner, error) {
	query := `
		SELECT id, code, name, name_kana, short_name, is_customer, is_vendor
		FROM partners
		WHERE code = $1
	`

	var p domain.Partner
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.ID, &p.Code, &p.Name, &p.NameKana, &p.ShortName, &p.IsCustomer, &p.IsVendor,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get partner")
		return nil, err
	}
	return &p, nil
}

func (r *masterDataRepository) SearchPartners(ctx context.Context, nameFragment string, limit int) ([]domain.Partner, error) {
	query := `
		SELECT id, code, name, name_kana, short_name, is_customer, is_vendor
		FROM partners
		WHERE name ILIKE '%' || $1 || '%'
		   OR name_kana ILIKE '%' || $1 || '%'
		   OR short_name ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, nameFragment, limit)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to search partners")
		return nil, err
	}
	defer rows.Close()

	var partners []domain.Partner
	for rows.Next() {
		var p domain.Partner
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.NameKana, &p.ShortName, &p.IsCustomer, &p.IsVendor); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan partner")
			continue
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (r *masterDataRepository) FindEmployeeByCode(ctx context.Context, code string) (*domain.Employee, error) {
	query := `
		SELECT id, code, name, name_kana, employment_type
		FROM employees
		WHERE code = $1
	`

	var e domain.Employee
	err := r.db.QueryRowContext(ctx, query, code).Scan(&e.ID, &e.Code, &e.Name, &e.NameKana, &e.EmploymentType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get employee")
		return nil, err
	}

	if err := r.loadContracts(ctx, []*domain.Employee{&e}); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *masterDataRepository) SearchEmployees(ctx context.Context, nameFragment string, limit int) ([]domain.Employee, error) {
	query := `
		SELECT id, code, name, name_kana, employment_type
		FROM employees
		WHERE name ILIKE '%' || $1 || '%' OR name_kana ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, nameFragment, limit)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to search employees")
		return nil, err
	}
	defer rows.Close()

	var employees []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Code, &e.Name, &e.NameKana, &e.EmploymentType); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan employee")
			continue
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*domain.Employee, len(employees))
	for i := range employees {
		refs[i] = &employees[i]
	}
	if err := r.loadContracts(ctx, refs); err != nil {
		return nil, err
	}
	return employees, nil
}

func (r *masterDataRepository) loadContracts(ctx context.Context, employees []*domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}

	ids := make([]int64, len(employees))
	byID := make(map[int64]*domain.Employee, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
		byID[e.ID] = e
	}

	query := `
		SELECT employee_id, period_from, period_to
		FROM employee_contracts
		WHERE employee_id = ANY($1)
		ORDER BY employee_id, period_from
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query employee contracts")
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			employeeID int64
			period     domain.ContractPeriod
		)
		if err := rows.Scan(&employeeID, &period.From, &period.To); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan employee contract")
			continue
		}
		if e, ok := byID[employeeID]; ok {
			e.ContractPeriods = append(e.ContractPeriods, period)
		}
	}
	return rows.Err()
}

func (r *masterDataRepository) GetAccountFieldRule(ctx context.Context, accountCode string) (*domain.AccountFieldRule, error) {
	query := `
		SELECT account_code, payment_date_required, payment_date_hidden
		FROM account_field_rules
		WHERE account_code = $1
	`

	var rule domain.AccountFieldRule
	err := r.db.QueryRowContext(ctx, query, accountCode).Scan(&rule.AccountCode, &rule.PaymentDateRequired, &rule.PaymentDateHidden)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to get account field rule")
		return nil, err
	}
	return &rule, nil
}

// ListRules loads and validates the ordered rule list. An invalid definition
// fails the whole load; the posting loop must never see one.
func (r *masterDataRepository) ListRules(ctx context.Context, companyCode string) ([]*domain.PostingRule, error) {
	query := `
		SELECT id, priority, matcher, action
		FROM posting_rules
		WHERE company_code = $1 AND active
		ORDER BY priority, id
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query posting rules")
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PostingRule
	for rows.Next() {
		var (
			id                  int64
			priority            int
			matcherJSON, action []byte
		)
		if err := rows.Scan(&id, &priority, &matcherJSON, &action); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan posting rule")
			return nil, err
		}

		rule, err := domain.ParseRule(id, priority, matcherJSON, action)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", id, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *masterDataRepository) ListUserIDsByRole(ctx context.Context, companyCode, role string) ([]int64, error) {
	query := `
		SELECT user_id
		FROM user_roles
		WHERE company_code = $1 AND role = $2
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query, companyCode, role)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query user roles")
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
