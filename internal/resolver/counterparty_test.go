package resolver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/textnorm"
)

type fakePartnerSource struct {
	partners []domain.Partner
}

func (f *fakePartnerSource) FindPartnerByCode(ctx context.Context, code string) (*domain.Partner, error) {
	for i := range f.partners {
		if f.partners[i].Code == code {
			return &f.partners[i], nil
		}
	}
	return nil, nil
}

func (f *fakePartnerSource) SearchPartners(ctx context.Context, nameFragment string, limit int) ([]domain.Partner, error) {
	var out []domain.Partner
	for _, p := range f.partners {
		if len(out) >= limit {
			break
		}
		if strings.Contains(textnorm.Fold(p.Name), nameFragment) ||
			strings.Contains(textnorm.Fold(p.NameKana), nameFragment) ||
			strings.Contains(textnorm.Fold(p.ShortName), nameFragment) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeEmployeeSource struct {
	employees []domain.Employee
}

func (f *fakeEmployeeSource) FindEmployeeByCode(ctx context.Context, code string) (*domain.Employee, error) {
	for i := range f.employees {
		if f.employees[i].Code == code {
			return &f.employees[i], nil
		}
	}
	return nil, nil
}

func (f *fakeEmployeeSource) SearchEmployees(ctx context.Context, nameFragment string, limit int) ([]domain.Employee, error) {
	var out []domain.Employee
	for _, e := range f.employees {
		if len(out) >= limit {
			break
		}
		if strings.Contains(textnorm.Fold(e.Name), nameFragment) || strings.Contains(textnorm.Fold(e.NameKana), nameFragment) {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestResolver(partners []domain.Partner, employees []domain.Employee) *CounterpartyResolver {
	norm := textnorm.New(
		[]string{"株式会社", "（株）", "(株)", "カ）", "カ)"},
		[]string{"振込", "フリコミ"},
	)
	return NewCounterpartyResolver(&fakePartnerSource{partners: partners}, &fakeEmployeeSource{employees: employees}, norm, DefaultFuzzyConfig())
}

func depositLine(description string) *domain.StatementLine {
	return &domain.StatementLine{
		DepositAmount:   decimal.NewFromInt(10000),
		Description:     description,
		TransactionDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func withdrawalLine(description string) *domain.StatementLine {
	return &domain.StatementLine{
		WithdrawalAmount: decimal.NewFromInt(-10000),
		Description:      description,
	}
}

func TestResolve_ExactCodeTyped(t *testing.T) {
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsCustomer: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		Code:       "P001",
		AssignLine: "credit",
	}

	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 アルファ"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindCustomer, resolved.Kind)
	assert.Equal(t, int64(1), resolved.ID)
	assert.Equal(t, "credit", resolved.AssignLine)
	assert.False(t, resolved.Relaxed)
}

func TestResolve_RelaxedCodeIgnoresTypeFlags(t *testing.T) {
	// The partner exists but its customer flag is wrong; the relaxed tier
	// still accepts it, marked low-confidence.
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsVendor: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		Code:       "P001",
		AssignLine: "credit",
	}

	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 アルファ"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), resolved.ID)
	assert.True(t, resolved.Relaxed)
}

func TestResolve_FuzzyMatch(t *testing.T) {
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "株式会社アルファ商事", IsCustomer: true},
		{ID: 2, Code: "P002", Name: "ベータ物産", IsCustomer: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		AssignLine: "credit",
	}

	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 アルファ商事"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), resolved.ID)
}

func TestResolve_FuzzyDeterministic(t *testing.T) {
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsCustomer: true},
		{ID: 2, Code: "P002", Name: "アルファ工業", IsCustomer: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		AssignLine: "credit",
	}
	line := depositLine("振込 アルファ商事")

	first, ok, err := r.Resolve(context.Background(), spec, line)
	assert.NoError(t, err)
	assert.True(t, ok)
	for i := 0; i < 5; i++ {
		again, ok, err := r.Resolve(context.Background(), spec, line)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestResolve_TieIsNoMatch(t *testing.T) {
	// Two candidates with identical names score the same; the gap rule
	// rejects the tie instead of guessing.
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsCustomer: true},
		{ID: 2, Code: "P002", Name: "アルファ商事", IsCustomer: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		AssignLine: "credit",
	}

	_, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 アルファ商事"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_FuzzyRelaxedNeedsHigherScore(t *testing.T) {
	// Wrong type flags push the match into the relaxed tier, which holds it
	// to the 0.75 floor. An exact name still clears it.
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsVendor: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindCustomer},
		AssignLine: "credit",
	}

	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 アルファ商事"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, resolved.Relaxed)
}

func TestResolve_FallbackCode(t *testing.T) {
	r := newTestResolver([]domain.Partner{
		{ID: 9, Code: "MISC", Name: "諸口", IsCustomer: true},
	}, nil)

	spec := &domain.CounterpartySpec{
		Types:        domain.KindList{domain.KindCustomer},
		NameContains: "存在しない",
		AssignLine:   "credit",
		FallbackType: domain.KindCustomer,
		FallbackCode: "MISC",
	}

	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("振込 ガンマ"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), resolved.ID)
}

func TestResolve_EmployeeFilters(t *testing.T) {
	until := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	r := newTestResolver(nil, []domain.Employee{
		{
			ID: 1, Code: "E001", Name: "ヤマダタロウ", EmploymentType: "full_time",
			ContractPeriods: []domain.ContractPeriod{{From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}},
		},
		{
			ID: 2, Code: "E002", Name: "ヤマダジロウ", EmploymentType: "contractor",
			ContractPeriods: []domain.ContractPeriod{{From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: &until}},
		},
	})

	spec := &domain.CounterpartySpec{
		Types:           domain.KindList{domain.KindEmployee},
		Code:            "E002",
		EmploymentTypes: []string{"full_time"},
		AssignLine:      "debit",
	}

	// Wrong employment type: the typed tier rejects the code match.
	_, ok, err := r.Resolve(context.Background(), spec, depositLine("立替精算 ヤマダ"))
	assert.NoError(t, err)
	assert.False(t, ok)

	// Expired contract with activeOnly: rejected on the transaction date.
	spec = &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindEmployee},
		Code:       "E002",
		ActiveOnly: true,
		AssignLine: "debit",
	}
	_, ok, err = r.Resolve(context.Background(), spec, depositLine("立替精算 ヤマダ"))
	assert.NoError(t, err)
	assert.False(t, ok)

	spec = &domain.CounterpartySpec{
		Types:      domain.KindList{domain.KindEmployee},
		Code:       "E001",
		ActiveOnly: true,
		AssignLine: "debit",
	}
	resolved, ok, err := r.Resolve(context.Background(), spec, depositLine("立替精算 ヤマダ"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), resolved.ID)
}

func TestResolve_InferredFromDirection(t *testing.T) {
	partners := []domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsCustomer: true},
		{ID: 2, Code: "P002", Name: "ベータ物産", IsVendor: true},
	}
	r := newTestResolver(partners, nil)

	// A deposit infers a customer.
	resolved, ok, err := r.Resolve(context.Background(), nil, depositLine("振込 アルファ商事"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindCustomer, resolved.Kind)
	assert.Equal(t, int64(1), resolved.ID)

	// A withdrawal infers a vendor.
	resolved, ok, err = r.Resolve(context.Background(), nil, withdrawalLine("振込 ベータ物産"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindVendor, resolved.Kind)

	// A deposit never resolves to a vendor-only partner by inference.
	_, ok, err = r.Resolve(context.Background(), nil, depositLine("振込 ベータ物産"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_EmptyDescriptionNoInference(t *testing.T) {
	r := newTestResolver([]domain.Partner{
		{ID: 1, Code: "P001", Name: "アルファ商事", IsCustomer: true},
	}, nil)

	_, ok, err := r.Resolve(context.Background(), nil, depositLine("振込"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestScore_Thresholds(t *testing.T) {
	r := newTestResolver(nil, nil)

	input := r.norm.Normalize("アルファ商事")
	tokens := strings.Fields(input)

	assert.Equal(t, 1.0, r.score(input, tokens, "アルファ商事"))
	assert.Equal(t, 0.95, r.score(input, tokens, "アルファ商事 東京支店"))
	assert.Equal(t, 0.0, r.score(input, tokens, ""))

	// Token overlap (1 of 2) plus the substring bonus.
	latin := r.norm.Normalize("ALPHA TRADING")
	latinTokens := strings.Fields(latin)
	assert.InDelta(t, 0.55, r.score(latin, latinTokens, "ALPHA LOGISTICS"), 1e-9)
}
