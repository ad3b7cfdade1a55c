package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autopost-engine/internal/assembler"
	"autopost-engine/internal/config"
	"autopost-engine/internal/detector"
	"autopost-engine/internal/domain"
	"autopost-engine/internal/events"
	"autopost-engine/internal/feepair"
	"autopost-engine/internal/ledger"
	"autopost-engine/internal/repository"
	"autopost-engine/internal/reservation"
	"autopost-engine/internal/resolver"
	"autopost-engine/internal/rules"
	"autopost-engine/internal/textnorm"
	"autopost-engine/pkg/logger"
)

// PreviewRequest asks for a dry-run reservation lookup. Nothing is locked or
// mutated; the result shows which open items a posting run would clear.
type PreviewRequest struct {
	CompanyCode string           `json:"company_code" binding:"required"`
	AccountCode string           `json:"account_code"`
	PartnerID   int64            `json:"partner_id"`
	Amount      decimal.Decimal  `json:"amount" binding:"required"`
	Tolerance   *decimal.Decimal `json:"tolerance,omitempty"`
	Cutoff      *time.Time       `json:"cutoff,omitempty"`
}

type PostingService interface {
	ExecuteRun(ctx context.Context, companyCode string, triggeredBy int64) (*domain.PostingRun, error)
	PreviewReservation(ctx context.Context, req PreviewRequest) (*domain.Reservation, bool, error)
	GetRun(ctx context.Context, runID string) (*domain.PostingRun, error)
	ListRunItems(ctx context.Context, runID string) ([]domain.RunItem, error)
}

// OpenItemRepositoryFactory builds an open-item repository bound to a
// transaction (locked commit path) or the bare DB (preview path).
type OpenItemRepositoryFactory func(db repository.DBTX) repository.OpenItemRepository

type postingService struct {
	db         repository.DBTX
	txm        repository.TxManager
	statements repository.StatementRepository
	master     repository.MasterDataRepository
	vouchers   repository.VoucherQueryRepository
	runs       repository.RunRepository
	openItems  OpenItemRepositoryFactory
	ledger     ledger.Service
	publisher  events.Publisher

	norm      *textnorm.Normalizer
	accounts  *resolver.AccountResolver
	parties   *resolver.CounterpartyResolver
	detect    *detector.Detector
	assemble  *assembler.Assembler
	cfg       config.PostingConfig
}

func NewPostingService(
	db repository.DBTX,
	txm repository.TxManager,
	statements repository.StatementRepository,
	master repository.MasterDataRepository,
	vouchers repository.VoucherQueryRepository,
	runs repository.RunRepository,
	openItems OpenItemRepositoryFactory,
	ledgerSvc ledger.Service,
	publisher events.Publisher,
	cfg config.PostingConfig,
) PostingService {
	norm := textnorm.New(cfg.CorporateMarkers, cfg.NoiseWords)
	return &postingService{
		db:         db,
		txm:        txm,
		statements: statements,
		master:     master,
		vouchers:   vouchers,
		runs:       runs,
		openItems:  openItems,
		ledger:     ledgerSvc,
		publisher:  publisher,
		norm:       norm,
		accounts:   resolver.NewAccountResolver(master, vouchers, norm, cfg.SuspenseAccounts, cfg.CacheTTL, resolver.SystemClock),
		parties:    resolver.NewCounterpartyResolver(master, master, norm, resolver.DefaultFuzzyConfig()),
		detect:     detector.New(vouchers),
		assemble:   assembler.New(master, cfg.ConsumptionTaxRate),
		cfg:        cfg,
	}
}

// rowOutcome is the computed result for one claimed line before it is
// written back.
type rowOutcome struct {
	status        domain.PostingStatus
	rule          *domain.PostingRule
	voucher       *domain.CreatedVoucher
	clearedItemID *int64
}

// rowResult is what one processed row contributes to the run aggregate.
type rowResult struct {
	items []domain.RunItem
	rule  *domain.PostingRule
}

// ExecuteRun processes every pending statement line of a company. Each line
// is claimed and finalized in its own database transaction, so a crashed run
// loses at most the row in flight and a replay picks up the remainder.
func (s *postingService) ExecuteRun(ctx context.Context, companyCode string, triggeredBy int64) (*domain.PostingRun, error) {
	run := &domain.PostingRun{
		RunID:       uuid.New().String(),
		CompanyCode: companyCode,
		Status:      domain.RunProcessing,
		TriggeredBy: triggeredBy,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create posting run: %w", err)
	}

	log := logger.GetLogger().WithFields(map[string]interface{}{
		"run_id":       run.RunID,
		"company_code": companyCode,
	})

	ruleSet, err := s.master.ListRules(ctx, companyCode)
	if err != nil {
		return nil, s.failRun(ctx, run, fmt.Errorf("load posting rules: %w", err))
	}

	pending, err := s.statements.ListForPosting(ctx, companyCode)
	if err != nil {
		return nil, s.failRun(ctx, run, fmt.Errorf("list pending lines: %w", err))
	}

	pairable, err := s.statements.ListForPairing(ctx, companyCode)
	if err != nil {
		return nil, s.failRun(ctx, run, fmt.Errorf("list pairing candidates: %w", err))
	}
	pairing := s.pairFees(pairable)

	log.WithFields(map[string]interface{}{
		"pending_lines": len(pending),
		"fee_pairs":     len(pairing),
	}).Info("Posting run started")

	now := time.Now()
	var results []rowResult
	for i := range pending {
		line := &pending[i]

		// Fee lines never post on their own. A paired fee rides its
		// principal's transaction; an unpaired one stays pending until a
		// later run gives it a neighbor.
		if line.IsFee(s.cfg.FeeKeywords) {
			continue
		}

		feeID, _ := pairing.FeeOf(line.ID)
		result := s.processLine(ctx, run.RunID, line.ID, feeID, ruleSet, now)
		results = append(results, result)
		for _, item := range result.items {
			run.Count(item.Status)
		}
	}

	run.Status = domain.RunCompleted
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		log.WithError(err).Error("Failed to finalize posting run")
	}

	var items []domain.RunItem
	for _, result := range results {
		items = append(items, result.items...)
	}
	if err := s.runs.BulkCreateItems(ctx, items); err != nil {
		log.WithError(err).Error("Failed to persist run items")
	}

	if run.TotalProcessed > 0 {
		s.createConfirmationTasks(ctx, run, results)
	}
	s.publishCompleted(ctx, run)

	log.WithFields(map[string]interface{}{
		"total_processed": run.TotalProcessed,
		"total_posted":    run.TotalPosted,
		"total_failed":    run.TotalFailed,
	}).Info("Posting run completed")
	return run, nil
}

func (s *postingService) failRun(ctx context.Context, run *domain.PostingRun, cause error) error {
	msg := cause.Error()
	run.Status = domain.RunFailed
	run.ErrorMessage = &msg
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", run.RunID).Error("Failed to mark posting run as failed")
	}
	return cause
}

// pairFees runs adjacency pairing over everything still eligible, not just
// the pending set, so a fee can find a principal that is waiting for a rule.
func (s *postingService) pairFees(lines []domain.StatementLine) feepair.Pairing {
	refs := make([]*domain.StatementLine, len(lines))
	for i := range lines {
		refs[i] = &lines[i]
	}
	return feepair.Pair(refs, func(l *domain.StatementLine) bool {
		return l.IsFee(s.cfg.FeeKeywords)
	})
}

// processLine claims, decides and finalizes one statement line in a single
// transaction. Failures roll the transaction back and record the failed
// status in a fresh one, so a failed row never leaves partial writes behind.
func (s *postingService) processLine(ctx context.Context, runID string, lineID, feeID int64, ruleSet []*domain.PostingRule, now time.Time) rowResult {
	var result rowResult
	var rowErr error

	err := s.txm.InTx(ctx, func(tx repository.DBTX) error {
		line, ok, err := s.statements.ClaimForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if !ok {
			return nil // taken by a concurrent worker, or no longer pending
		}

		var fee *domain.StatementLine
		if feeID != 0 {
			fee, _, err = s.statements.ClaimForUpdate(ctx, tx, feeID)
			if err != nil {
				return err
			}
		}

		out, err := s.post(ctx, tx, line, fee, ruleSet, now)
		if err != nil {
			rowErr = err
			return err
		}

		result.rule = out.rule
		result.items, err = s.applyOutcome(ctx, tx, runID, line, fee, out)
		return err
	})

	if err != nil {
		if rowErr == nil {
			rowErr = err
		}
		return s.markFailed(ctx, runID, lineID, rowErr)
	}
	return result
}

// post runs the decision pipeline for one claimed line: rule match, account
// and counterparty resolution, open-item reservation, existing-voucher
// detection, then voucher assembly and creation.
func (s *postingService) post(ctx context.Context, tx repository.DBTX, line, fee *domain.StatementLine, ruleSet []*domain.PostingRule, now time.Time) (*rowOutcome, error) {
	if !line.Amount().IsPositive() {
		return &rowOutcome{status: domain.StatusSkipped}, nil
	}

	rule, matched := rules.Match(ruleSet, line)
	if !matched {
		return &rowOutcome{status: domain.StatusNeedsRule}, nil
	}
	action := &rule.Action

	postingDate, err := action.ResolvePostingDate(line, now)
	if err != nil {
		return nil, fmt.Errorf("rule %d posting date: %w", rule.ID, err)
	}

	sentinelUsed := action.DebitAccount == resolver.BankAccountDescriptor ||
		action.CreditAccount == resolver.BankAccountDescriptor

	bankCode := ""
	bankAccount, bankErr := s.accounts.ResolveBankAccount(ctx, line.CompanyCode, line)
	if bankErr != nil {
		if sentinelUsed {
			return nil, bankErr
		}
		logger.GetLogger().WithError(bankErr).WithField("line_id", line.ID).Warn("Bank account not identified, skipping voucher detection")
	} else {
		bankCode = bankAccount.AccountCode
	}

	debitCode, err := s.accounts.Resolve(ctx, action.DebitAccount, line.CompanyCode, bankCode, line, domain.SideDebit)
	if err != nil {
		return nil, err
	}
	creditCode, err := s.accounts.Resolve(ctx, action.CreditAccount, line.CompanyCode, bankCode, line, domain.SideCredit)
	if err != nil {
		return nil, err
	}

	bankSide := domain.SideDebit
	switch {
	case action.DebitAccount == resolver.BankAccountDescriptor:
		bankSide = domain.SideDebit
	case action.CreditAccount == resolver.BankAccountDescriptor:
		bankSide = domain.SideCredit
	case line.Direction() == domain.DirectionWithdrawal:
		bankSide = domain.SideCredit
	}

	counterparty, _, err := s.parties.Resolve(ctx, action.Counterparty, line)
	if err != nil {
		return nil, fmt.Errorf("resolve counterparty: %w", err)
	}

	res, settlementSide, err := s.reserve(ctx, tx, line, action, counterparty, postingDate, &debitCode, &creditCode)
	if err != nil {
		return nil, err
	}

	// Existing-voucher detection runs before anything is mutated: a linked
	// or suspected-duplicate row must leave open items untouched.
	var feeAmount decimal.Decimal
	if fee != nil {
		feeAmount = fee.Amount()
	}
	if bankCode != "" {
		var partnerID int64
		if counterparty != nil {
			partnerID = counterparty.ID
		}
		detection, err := s.detect.Detect(ctx, line, bankCode, feeAmount, partnerID)
		if err != nil {
			return nil, fmt.Errorf("detect existing voucher: %w", err)
		}
		switch detection.Outcome {
		case detector.OutcomeDuplicateSuspected:
			return &rowOutcome{status: domain.StatusDuplicateSuspected, rule: rule}, nil
		case detector.OutcomeLinked:
			return &rowOutcome{
				status: domain.StatusLinked,
				rule:   rule,
				voucher: &domain.CreatedVoucher{
					ID:     detection.Voucher.VoucherID,
					Number: detection.Voucher.Number,
				},
			}, nil
		}
	}

	draft, err := s.assemble.Build(ctx, assembler.Input{
		Line:            line,
		Action:          action,
		PostingDate:     postingDate,
		DebitAccount:    debitCode,
		CreditAccount:   creditCode,
		BankSide:        bankSide,
		BankAccountCode: bankCode,
		Counterparty:    counterparty,
		Reservation:     res,
		SettlementSide:  settlementSide,
		Fee:             fee,
		FeeAccount:      action.BankFeeAccountCode,
		TaxAccount:      action.InputTaxAccountCode,
	})
	if err != nil {
		return nil, err
	}

	// The ledger call is not transactional with this row: if the reservation
	// write below fails, the transaction rolls back but the voucher stays.
	// The replay then flags the row as an existing-voucher link.
	created, err := s.ledger.CreateVoucher(ctx, draft)
	if err != nil {
		return nil, err
	}

	out := &rowOutcome{status: domain.StatusPosted, rule: rule, voucher: created}
	if res != nil {
		if err := s.openItems(tx).ApplyReservation(ctx, res); err != nil {
			return nil, err
		}
		if len(res.Items) == 1 {
			id := res.Items[0].OpenItemID
			out.clearedItemID = &id
		}
	}
	return out, nil
}

// reserve runs the open-item matching tiers when the rule enables
// settlement. When no pinned account is configured and a partner is known,
// a cross-account same-amount lookup widens the search. With no match,
// requireMatch fails the row and fallbackAccount redirects the settlement
// line to a plain posting.
func (s *postingService) reserve(
	ctx context.Context,
	tx repository.DBTX,
	line *domain.StatementLine,
	action *domain.RuleAction,
	counterparty *resolver.Resolved,
	postingDate time.Time,
	debitCode, creditCode *string,
) (*domain.Reservation, domain.Side, error) {
	st := action.Settlement
	if st == nil || !st.Enabled {
		return nil, "", nil
	}

	side := domain.SideDebit
	lineAccount := debitCode
	if st.Line == "credit" {
		side = domain.SideCredit
		lineAccount = creditCode
	}

	partnerID, err := s.settlementPartner(ctx, st, counterparty, line)
	if err != nil {
		return nil, "", err
	}

	tolerance := s.cfg.DefaultTolerance
	if st.Tolerance != nil {
		tolerance = *st.Tolerance
	}

	accountCode := st.AccountCode
	if accountCode == "" {
		accountCode = *lineAccount
	}

	engine := reservation.NewEngine(s.openItems(tx), s.cfg.MaxCombinationItems)
	params := reservation.Params{
		CompanyCode: line.CompanyCode,
		AccountCode: accountCode,
		PartnerID:   partnerID,
		Amount:      line.Amount(),
		Tolerance:   tolerance,
		Cutoff:      postingDate,
		Lock:        true,
	}

	res, ok, err := engine.Reserve(ctx, params)
	if err != nil {
		return nil, "", err
	}
	if !ok && st.AccountCode == "" && partnerID != 0 {
		params.AccountCode = ""
		res, ok, err = engine.Reserve(ctx, params)
		if err != nil {
			return nil, "", err
		}
	}

	if !ok {
		if st.RequireMatch {
			return nil, "", fmt.Errorf("no open items matched amount %s on account %s", line.Amount(), accountCode)
		}
		if st.FallbackAccount != "" {
			fallbackSide := st.Line
			if st.FallbackLine != "" {
				fallbackSide = st.FallbackLine
			}
			if fallbackSide == "credit" {
				*creditCode = st.FallbackAccount
			} else {
				*debitCode = st.FallbackAccount
			}
		}
		return nil, "", nil
	}
	return res, side, nil
}

// settlementPartner picks the partner scope of the open-item search: a
// literal id, the already-resolved counterparty, or a dedicated partner spec.
func (s *postingService) settlementPartner(ctx context.Context, st *domain.SettlementSpec, counterparty *resolver.Resolved, line *domain.StatementLine) (int64, error) {
	if st.PartnerID != 0 {
		return st.PartnerID, nil
	}
	if st.UseCounterparty {
		if counterparty == nil {
			return 0, nil
		}
		return counterparty.ID, nil
	}
	if st.Partner != nil {
		resolved, ok, err := s.parties.Resolve(ctx, st.Partner, line)
		if err != nil {
			return 0, fmt.Errorf("resolve settlement partner: %w", err)
		}
		if ok {
			return resolved.ID, nil
		}
	}
	return 0, nil
}

// applyOutcome writes the decided status back inside the row transaction.
// A paired fee inherits posted, linked and duplicate_suspected outcomes; for
// everything else it stays pending for a later run.
func (s *postingService) applyOutcome(ctx context.Context, tx repository.DBTX, runID string, line, fee *domain.StatementLine, out *rowOutcome) ([]domain.RunItem, error) {
	stamp := func(l *domain.StatementLine) {
		l.PostingStatus = out.status
		l.PostingRunID = &runID
		l.ErrorText = nil
		if out.rule != nil {
			id := out.rule.ID
			l.MatchedRuleID = &id
		}
		if out.voucher != nil {
			l.VoucherID = &out.voucher.ID
			l.VoucherNumber = &out.voucher.Number
		}
	}

	stamp(line)
	line.ClearedItemID = out.clearedItemID
	if err := s.statements.UpdateOutcome(ctx, tx, line); err != nil {
		return nil, err
	}
	items := []domain.RunItem{runItem(runID, line)}

	if fee != nil {
		switch out.status {
		case domain.StatusPosted, domain.StatusLinked, domain.StatusDuplicateSuspected:
			stamp(fee)
			if err := s.statements.UpdateOutcome(ctx, tx, fee); err != nil {
				return nil, err
			}
			items = append(items, runItem(runID, fee))
		}
	}
	return items, nil
}

// markFailed records a row failure in a fresh transaction, after the
// decision transaction rolled back.
func (s *postingService) markFailed(ctx context.Context, runID string, lineID int64, cause error) rowResult {
	logger.GetLogger().WithError(cause).WithFields(map[string]interface{}{
		"run_id":  runID,
		"line_id": lineID,
	}).Error("Statement line failed to post")

	var result rowResult
	err := s.txm.InTx(ctx, func(tx repository.DBTX) error {
		line, ok, err := s.statements.ClaimForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		msg := cause.Error()
		line.PostingStatus = domain.StatusFailed
		line.PostingRunID = &runID
		line.ErrorText = &msg
		if err := s.statements.UpdateOutcome(ctx, tx, line); err != nil {
			return err
		}
		result.items = []domain.RunItem{runItem(runID, line)}
		return nil
	})
	if err != nil {
		logger.GetLogger().WithError(err).WithField("line_id", lineID).Error("Failed to record row failure")
	}
	return result
}

func runItem(runID string, line *domain.StatementLine) domain.RunItem {
	return domain.RunItem{
		RunID:         runID,
		LineID:        line.ID,
		Status:        line.PostingStatus,
		VoucherNumber: line.VoucherNumber,
		ErrorText:     line.ErrorText,
	}
}

// createConfirmationTasks asks the users addressed by the matched rules to
// review the run; without any addressed target the trigger user is asked.
func (s *postingService) createConfirmationTasks(ctx context.Context, run *domain.PostingRun, results []rowResult) {
	targets := make(map[int64]bool)
	roles := make(map[string]bool)

	for _, result := range results {
		if result.rule == nil || result.rule.Action.Notification == nil {
			continue
		}
		n := result.rule.Action.Notification
		if n.TargetUserID != 0 {
			targets[n.TargetUserID] = true
		}
		if n.TargetRole != "" {
			roles[n.TargetRole] = true
		}
	}

	for role := range roles {
		ids, err := s.master.ListUserIDsByRole(ctx, run.CompanyCode, role)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("role", role).Warn("Failed to resolve notification role")
			continue
		}
		for _, id := range ids {
			targets[id] = true
		}
	}

	if len(targets) == 0 {
		targets[run.TriggeredBy] = true
	}

	summary := fmt.Sprintf(
		"Auto-posting run %s: %d processed, %d posted, %d linked, %d need a rule, %d duplicate suspected, %d failed, %d skipped",
		run.RunID, run.TotalProcessed, run.TotalPosted, run.TotalLinked,
		run.TotalNeedsRule, run.TotalDuplicateSuspected, run.TotalFailed, run.TotalSkipped,
	)

	tasks := make([]domain.ConfirmationTask, 0, len(targets))
	for userID := range targets {
		tasks = append(tasks, domain.ConfirmationTask{RunID: run.RunID, UserID: userID, Summary: summary})
	}
	if err := s.runs.CreateTasks(ctx, tasks); err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", run.RunID).Error("Failed to create confirmation tasks")
	}
}

func (s *postingService) publishCompleted(ctx context.Context, run *domain.PostingRun) {
	event := events.RunCompletedEvent{
		RunID:                   run.RunID,
		CompanyCode:             run.CompanyCode,
		TotalProcessed:          run.TotalProcessed,
		TotalPosted:             run.TotalPosted,
		TotalLinked:             run.TotalLinked,
		TotalSkipped:            run.TotalSkipped,
		TotalNeedsRule:          run.TotalNeedsRule,
		TotalDuplicateSuspected: run.TotalDuplicateSuspected,
		TotalFailed:             run.TotalFailed,
		CompletedAt:             time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", run.RunID).Warn("Failed to publish run-completed event")
	}
}

// PreviewReservation runs the matching tiers without locks or writes.
func (s *postingService) PreviewReservation(ctx context.Context, req PreviewRequest) (*domain.Reservation, bool, error) {
	tolerance := s.cfg.DefaultTolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}
	cutoff := time.Now()
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}

	engine := reservation.NewEngine(s.openItems(s.db), s.cfg.MaxCombinationItems)
	return engine.Reserve(ctx, reservation.Params{
		CompanyCode: req.CompanyCode,
		AccountCode: req.AccountCode,
		PartnerID:   req.PartnerID,
		Amount:      req.Amount,
		Tolerance:   tolerance,
		Cutoff:      cutoff,
		Lock:        false,
	})
}

func (s *postingService) GetRun(ctx context.Context, runID string) (*domain.PostingRun, error) {
	return s.runs.GetRunByRunID(ctx, runID)
}

func (s *postingService) ListRunItems(ctx context.Context, runID string) ([]domain.RunItem, error) {
	return s.runs.ListItems(ctx, runID)
}
