package resolver

import (
	"context"
	"sort"
	"strings"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/textnorm"
	"autopost-engine/pkg/logger"
)

// FuzzyConfig carries the heuristic thresholds of tier-3 matching. The
// defaults are inherited values, kept as configuration so they can be
// recalibrated against real data.
type FuzzyConfig struct {
	MinScore        float64 // top candidate acceptance floor
	MinScoreRelaxed float64 // floor when type flags were ignored
	MinGap          float64 // required lead over the runner-up
	CandidateLimit  int     // textual pre-filter cap
}

func DefaultFuzzyConfig() FuzzyConfig {
	return FuzzyConfig{
		MinScore:        0.60,
		MinScoreRelaxed: 0.75,
		MinGap:          0.12,
		CandidateLimit:  50,
	}
}

// PartnerSource reads trading-partner master data.
type PartnerSource interface {
	FindPartnerByCode(ctx context.Context, code string) (*domain.Partner, error)
	SearchPartners(ctx context.Context, nameFragment string, limit int) ([]domain.Partner, error)
}

// EmployeeSource reads employee master data.
type EmployeeSource interface {
	FindEmployeeByCode(ctx context.Context, code string) (*domain.Employee, error)
	SearchEmployees(ctx context.Context, nameFragment string, limit int) ([]domain.Employee, error)
}

// Resolved is a successfully resolved counterparty reference.
type Resolved struct {
	Kind       domain.CounterpartyKind
	ID         int64
	Name       string
	AssignLine string
	Relaxed    bool // matched while ignoring master-data type flags
}

// CounterpartyResolver resolves partner and employee references from rule
// specs and statement text.
type CounterpartyResolver struct {
	partners  PartnerSource
	employees EmployeeSource
	norm      *textnorm.Normalizer
	cfg       FuzzyConfig
}

func NewCounterpartyResolver(partners PartnerSource, employees EmployeeSource, norm *textnorm.Normalizer, cfg FuzzyConfig) *CounterpartyResolver {
	if cfg.CandidateLimit <= 0 {
		cfg = DefaultFuzzyConfig()
	}
	return &CounterpartyResolver{partners: partners, employees: employees, norm: norm, cfg: cfg}
}

// Resolve walks the resolution tiers for the spec, stopping at the first
// success. A nil spec infers a plausible one from the line direction
// (customer for deposits, vendor for withdrawals) and tries only the fuzzy
// tier; a deposit never resolves as a vendor and vice versa. The boolean is
// false when no tier produced a confident match; ambiguity is treated as no
// match, never guessed.
func (r *CounterpartyResolver) Resolve(ctx context.Context, spec *domain.CounterpartySpec, line *domain.StatementLine) (*Resolved, bool, error) {
	if spec == nil {
		return r.resolveInferred(ctx, line)
	}

	phrase := r.expandKeyword(spec.NameContains, line)

	// Tier 1: exact code scoped by type flags.
	if spec.Code != "" {
		for _, kind := range spec.Types {
			resolved, ok, err := r.byCodeTyped(ctx, kind, spec, line)
			if err != nil {
				return nil, false, err
			}
			if ok {
				resolved.AssignLine = spec.AssignLine
				return resolved, true, nil
			}
		}

		// Tier 2: exact code ignoring type flags. Master data flags are
		// sometimes plain wrong; accept but log as lower confidence.
		for _, kind := range spec.Types {
			if kind == domain.KindEmployee {
				continue
			}
			partner, err := r.partners.FindPartnerByCode(ctx, spec.Code)
			if err != nil {
				return nil, false, err
			}
			if partner != nil {
				logger.GetLogger().WithFields(map[string]interface{}{
					"partner_code":        spec.Code,
					"relaxed_type_filter": true,
				}).Warn("Counterparty matched with relaxed type filter")
				return &Resolved{Kind: kind, ID: partner.ID, Name: partner.Name, AssignLine: spec.AssignLine, Relaxed: true}, true, nil
			}
			break
		}
	}

	// Tier 3: fuzzy token-overlap match.
	for _, kind := range spec.Types {
		resolved, ok, err := r.fuzzy(ctx, kind, phrase, spec, line)
		if err != nil {
			return nil, false, err
		}
		if ok {
			resolved.AssignLine = spec.AssignLine
			return resolved, true, nil
		}
	}

	// Tier 4: literal fallback from config.
	if spec.FallbackType != "" && spec.FallbackCode != "" {
		resolved, ok, err := r.byCodeRelaxed(ctx, spec.FallbackType, spec.FallbackCode)
		if err != nil {
			return nil, false, err
		}
		if ok {
			resolved.AssignLine = spec.AssignLine
			return resolved, true, nil
		}
	}

	return nil, false, nil
}

func (r *CounterpartyResolver) resolveInferred(ctx context.Context, line *domain.StatementLine) (*Resolved, bool, error) {
	kind := domain.KindCustomer
	if line.Direction() == domain.DirectionWithdrawal {
		kind = domain.KindVendor
	}

	phrase := r.norm.ExtractPhrase(line.Description)
	if phrase == "" {
		return nil, false, nil
	}

	resolved, ok, err := r.fuzzy(ctx, kind, phrase, nil, line)
	if err != nil || !ok {
		return nil, ok, err
	}
	return resolved, true, nil
}

func (r *CounterpartyResolver) byCodeTyped(ctx context.Context, kind domain.CounterpartyKind, spec *domain.CounterpartySpec, line *domain.StatementLine) (*Resolved, bool, error) {
	switch kind {
	case domain.KindEmployee:
		employee, err := r.employees.FindEmployeeByCode(ctx, spec.Code)
		if err != nil {
			return nil, false, err
		}
		if employee == nil || !r.employeeEligible(employee, spec, line) {
			return nil, false, nil
		}
		return &Resolved{Kind: kind, ID: employee.ID, Name: employee.Name}, true, nil
	default:
		partner, err := r.partners.FindPartnerByCode(ctx, spec.Code)
		if err != nil {
			return nil, false, err
		}
		if partner == nil || !partner.HasKind(kind) {
			return nil, false, nil
		}
		return &Resolved{Kind: kind, ID: partner.ID, Name: partner.Name}, true, nil
	}
}

func (r *CounterpartyResolver) byCodeRelaxed(ctx context.Context, kind domain.CounterpartyKind, code string) (*Resolved, bool, error) {
	if kind == domain.KindEmployee {
		employee, err := r.employees.FindEmployeeByCode(ctx, code)
		if err != nil || employee == nil {
			return nil, false, err
		}
		return &Resolved{Kind: kind, ID: employee.ID, Name: employee.Name}, true, nil
	}

	partner, err := r.partners.FindPartnerByCode(ctx, code)
	if err != nil || partner == nil {
		return nil, false, err
	}
	return &Resolved{Kind: kind, ID: partner.ID, Name: partner.Name}, true, nil
}

// scored is one fuzzy candidate with its best column score.
type scored struct {
	id    int64
	name  string
	score float64
}

func (r *CounterpartyResolver) fuzzy(ctx context.Context, kind domain.CounterpartyKind, phrase string, spec *domain.CounterpartySpec, line *domain.StatementLine) (*Resolved, bool, error) {
	input := r.norm.Normalize(phrase)
	if input == "" {
		return nil, false, nil
	}
	inputTokens := strings.Fields(input)
	fragment := inputTokens[0]

	if kind == domain.KindEmployee {
		candidates, err := r.employees.SearchEmployees(ctx, fragment, r.cfg.CandidateLimit)
		if err != nil {
			return nil, false, err
		}

		var list []scored
		for i := range candidates {
			if spec != nil && !r.employeeEligible(&candidates[i], spec, line) {
				continue
			}
			s := r.bestScore(input, inputTokens, candidates[i].Name, candidates[i].NameKana)
			list = append(list, scored{id: candidates[i].ID, name: candidates[i].Name, score: s})
		}
		if best, ok := pickBest(list, r.cfg.MinScore, r.cfg.MinGap); ok {
			return &Resolved{Kind: kind, ID: best.id, Name: best.name}, true, nil
		}
		return nil, false, nil
	}

	candidates, err := r.partners.SearchPartners(ctx, fragment, r.cfg.CandidateLimit)
	if err != nil {
		return nil, false, err
	}

	var typed, all []scored
	for i := range candidates {
		s := r.bestScore(input, inputTokens, candidates[i].Name, candidates[i].NameKana, candidates[i].ShortName)
		entry := scored{id: candidates[i].ID, name: candidates[i].Name, score: s}
		all = append(all, entry)
		if candidates[i].HasKind(kind) {
			typed = append(typed, entry)
		}
	}

	if best, ok := pickBest(typed, r.cfg.MinScore, r.cfg.MinGap); ok {
		return &Resolved{Kind: kind, ID: best.id, Name: best.name}, true, nil
	}

	// An inferred kind must never cross-match the other kind's partners.
	if spec == nil {
		return nil, false, nil
	}

	// Relaxed retry ignoring type flags, held to the higher floor.
	if best, ok := pickBest(all, r.cfg.MinScoreRelaxed, r.cfg.MinGap); ok {
		logger.GetLogger().WithFields(map[string]interface{}{
			"partner_name":        best.name,
			"relaxed_type_filter": true,
		}).Warn("Fuzzy counterparty matched with relaxed type filter")
		return &Resolved{Kind: kind, ID: best.id, Name: best.name, Relaxed: true}, true, nil
	}

	return nil, false, nil
}

// pickBest accepts the top candidate only when it clears the floor and
// leads the runner-up by the configured gap. A tie is no match.
func pickBest(list []scored, minScore, minGap float64) (scored, bool) {
	if len(list) == 0 {
		return scored{}, false
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	top := list[0]
	if top.score < minScore {
		return scored{}, false
	}
	if len(list) > 1 && top.score-list[1].score < minGap {
		return scored{}, false
	}
	return top, true
}

func (r *CounterpartyResolver) bestScore(input string, inputTokens []string, names ...string) float64 {
	best := 0.0
	for _, name := range names {
		if s := r.score(input, inputTokens, name); s > best {
			best = s
		}
	}
	return best
}

func (r *CounterpartyResolver) score(input string, inputTokens []string, candidate string) float64 {
	cand := r.norm.Normalize(candidate)
	if cand == "" {
		return 0
	}
	if cand == input {
		return 1.0
	}
	if strings.Contains(cand, input) || strings.Contains(input, cand) {
		return 0.95
	}

	s := textnorm.TokenOverlap(inputTokens, strings.Fields(cand))
	for _, t := range inputTokens {
		if strings.Contains(cand, t) {
			s += 0.05
			break
		}
	}
	if s > 0.94 {
		s = 0.94
	}
	return s
}

func (r *CounterpartyResolver) employeeEligible(e *domain.Employee, spec *domain.CounterpartySpec, line *domain.StatementLine) bool {
	if len(spec.EmploymentTypes) > 0 {
		found := false
		for _, t := range spec.EmploymentTypes {
			if e.EmploymentType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if spec.ActiveOnly && !e.ActiveOn(line.TransactionDate) {
		return false
	}
	return true
}

// expandKeyword substitutes the {description} placeholder with the phrase
// extracted from the statement description.
func (r *CounterpartyResolver) expandKeyword(template string, line *domain.StatementLine) string {
	phrase := r.norm.ExtractPhrase(line.Description)
	if template == "" {
		return phrase
	}
	return strings.ReplaceAll(template, "{description}", phrase)
}
