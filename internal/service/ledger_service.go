package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// LedgerServiceImpl implements ports.LedgerService. Every balance change takes
// the wallet row lock, writes its transactions and commits in one database
// transaction.
type LedgerServiceImpl struct {
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	upgradeRepo ports.UpgradeRepository
	transactor  ports.DBTransactor
	cache       ports.IdempotencyCache
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. cache may be nil.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	upgradeRepo ports.UpgradeRepository,
	transactor ports.DBTransactor,
	cache ports.IdempotencyCache,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		upgradeRepo: upgradeRepo,
		transactor:  transactor,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     m,
		log:         log,
	}
}

// Apply credits or debits a wallet exactly once per reference.
func (s *LedgerServiceImpl) Apply(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	if err := validateApply(&req); err != nil {
		return nil, err
	}

	// Layer 1: Redis replay check
	if res, err := s.fromCache(ctx, req); res != nil || err != nil {
		return res, err
	}

	// Layer 2: locked write
	res, err := s.apply(ctx, req)
	if errors.Is(err, ports.ErrUniqueViolation) {
		// A concurrent request with the same reference committed first.
		res, err = s.replayCommitted(ctx, req)
	}
	if err != nil {
		s.metrics.LedgerTransaction(string(req.Channel), string(req.Direction), string(apperror.KindOf(err)))
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	s.metrics.LedgerTransaction(string(req.Channel), string(req.Direction), "completed")
	s.storeCache(ctx, req.Reference, res)

	s.log.Info().
		Str("tx_id", res.Transaction.ID.String()).
		Str("wallet_id", req.WalletID.String()).
		Str("direction", string(req.Direction)).
		Str("channel", string(req.Channel)).
		Int64("amount", req.Amount).
		Int64("fee", req.Fee).
		Msg("ledger entry applied")
	return res, nil
}

func validateApply(req *ports.ApplyRequest) error {
	if req.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if req.Fee < 0 {
		return apperror.Validation("fee must not be negative")
	}
	if !req.Direction.IsValid() {
		return apperror.Validation("direction must be credit or debit")
	}
	if req.Reference == "" {
		return apperror.Validation("reference is required")
	}
	if req.Kind == "" {
		req.Kind = domain.TransactionKindPayment
	}
	return nil
}

func (s *LedgerServiceImpl) apply(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, req.WalletID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	// A committed reference replays whatever the wallet's status is now.
	existing, err := s.txRepo.GetByReferenceTx(ctx, dbTx, req.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check reference: %w", err))
	}
	if existing != nil {
		return s.replay(ctx, existing, req, func(ref string) (*domain.Transaction, error) {
			return s.txRepo.GetByReferenceTx(ctx, dbTx, ref)
		})
	}
	if !wallet.CanTransact() {
		return nil, apperror.ErrWalletNotActive(string(wallet.Status), wallet.LinkedAccountRef)
	}

	if req.Guard != nil {
		if err := req.Guard(ctx, dbTx, wallet); err != nil {
			return nil, err
		}
	}

	afterMain, final, err := nextBalance(wallet.Balance, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	settlement := domain.SettlementStatusNotRequired
	if req.Kind == domain.TransactionKindPayment && req.Channel.RequiresSettlement() {
		settlement = domain.SettlementStatusPending
	}
	main := &domain.Transaction{
		ID:               uuid.New(),
		Reference:        req.Reference,
		WalletID:         wallet.ID,
		BusinessID:       wallet.BusinessID,
		Direction:        req.Direction,
		Amount:           req.Amount,
		Channel:          req.Channel,
		Kind:             req.Kind,
		Status:           domain.TransactionStatusCompleted,
		BalanceAfter:     afterMain,
		Metadata:         req.Metadata,
		SettlementStatus: settlement,
		CreatedAt:        now,
		ProcessedAt:      &now,
	}

	var fee *domain.Transaction
	if req.Fee > 0 {
		fee = &domain.Transaction{
			ID:                  uuid.New(),
			Reference:           domain.FeeReference(req.Reference),
			WalletID:            wallet.ID,
			BusinessID:          wallet.BusinessID,
			Direction:           domain.DirectionDebit,
			Amount:              req.Fee,
			Channel:             req.Channel,
			Kind:                domain.TransactionKindFee,
			Status:              domain.TransactionStatusCompleted,
			LinkedTransactionID: &main.ID,
			BalanceAfter:        final,
			SettlementStatus:    domain.SettlementStatusNotRequired,
			CreatedAt:           now,
			ProcessedAt:         &now,
		}
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, final); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.createTx(ctx, dbTx, main); err != nil {
		return nil, err
	}
	if fee != nil {
		if err := s.createTx(ctx, dbTx, fee); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.ApplyResult{Transaction: main, Fee: fee, Balance: final}, nil
}

func (s *LedgerServiceImpl) createTx(ctx context.Context, dbTx pgx.Tx, t *domain.Transaction) error {
	if err := s.txRepo.Create(ctx, dbTx, t); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return err
		}
		return apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}
	return nil
}

// nextBalance returns the balance after the main entry and after the fee.
func nextBalance(balance int64, req ports.ApplyRequest) (int64, int64, error) {
	if req.Direction == domain.DirectionDebit {
		required := req.Amount + req.Fee
		if required < req.Amount || balance < required {
			return 0, 0, apperror.ErrInsufficientBalance(balance, required)
		}
		return balance - req.Amount, balance - required, nil
	}
	if req.Amount > math.MaxInt64-balance {
		return 0, 0, apperror.ErrInvalidAmount()
	}
	credited := balance + req.Amount
	if credited < req.Fee {
		return 0, 0, apperror.ErrInsufficientBalance(credited, req.Fee)
	}
	return credited, credited - req.Fee, nil
}

// replay returns the stored outcome for a reference already written, or a
// duplicate-reference error when the request differs from the original.
func (s *LedgerServiceImpl) replay(
	ctx context.Context,
	existing *domain.Transaction,
	req ports.ApplyRequest,
	lookup func(ref string) (*domain.Transaction, error),
) (*ports.ApplyResult, error) {
	if !existing.SameIntent(req.WalletID, req.Amount, req.Direction) {
		return nil, apperror.ErrDuplicateReference(req.Reference)
	}
	fee, err := lookup(domain.FeeReference(existing.Reference))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load fee entry: %w", err))
	}
	res := &ports.ApplyResult{Transaction: existing, Fee: fee, Balance: existing.BalanceAfter, Replayed: true}
	if fee != nil {
		res.Balance = fee.BalanceAfter
	}
	s.log.Debug().Str("reference", req.Reference).Msg("ledger replay")
	return res, nil
}

func (s *LedgerServiceImpl) replayCommitted(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	existing, err := s.txRepo.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reload reference: %w", err))
	}
	if existing == nil {
		return nil, apperror.InternalError(fmt.Errorf("reference %s conflicted but is not visible", req.Reference))
	}
	return s.replay(ctx, existing, req, func(ref string) (*domain.Transaction, error) {
		return s.txRepo.GetByReference(ctx, ref)
	})
}

func (s *LedgerServiceImpl) fromCache(ctx context.Context, req ports.ApplyRequest) (*ports.ApplyResult, error) {
	if s.cache == nil {
		return nil, nil
	}
	raw, err := s.cache.Get(ctx, req.Reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", req.Reference).Msg("idempotency cache read failed")
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}
	var res ports.ApplyResult
	if err := json.Unmarshal(raw, &res); err != nil || res.Transaction == nil {
		s.log.Warn().Str("reference", req.Reference).Msg("idempotency cache entry unreadable")
		return nil, nil
	}
	if !res.Transaction.SameIntent(req.WalletID, req.Amount, req.Direction) {
		return nil, apperror.ErrDuplicateReference(req.Reference)
	}
	res.Replayed = true
	return &res, nil
}

func (s *LedgerServiceImpl) storeCache(ctx context.Context, reference string, res *ports.ApplyResult) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, reference, raw, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("idempotency cache write failed")
	}
}

// GetBalance returns the wallet's current balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, apperror.ErrWalletNotFound()
	}
	return wallet.Balance, nil
}

// History returns one page of transactions, newest first.
func (s *LedgerServiceImpl) History(ctx context.Context, params ports.TransactionListParams) (*ports.HistoryPage, error) {
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}
	if params.Limit > maxHistoryLimit {
		params.Limit = maxHistoryLimit
	}
	if params.WalletID != nil {
		wallet, err := s.walletRepo.GetByID(ctx, *params.WalletID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
		}
		if wallet == nil || (params.BusinessID != nil && wallet.BusinessID != *params.BusinessID) {
			return nil, apperror.ErrWalletNotFound()
		}
	}

	limit := params.Limit
	params.Limit = limit + 1
	txs, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}

	page := &ports.HistoryPage{Transactions: txs}
	if len(txs) > limit {
		page.Transactions = txs[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = &ports.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

// OpenUpgrade inserts a requested workflow while holding the wallet lock.
func (s *LedgerServiceImpl) OpenUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, workflow.WalletID)
	if err != nil {
		return apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil || wallet.BusinessID != workflow.BusinessID {
		return apperror.ErrWalletNotFound()
	}
	if wallet.Status.IsTerminal() {
		return apperror.ErrWalletNotActive(string(wallet.Status), wallet.LinkedAccountRef)
	}

	open, err := s.upgradeRepo.GetOpenByWallet(ctx, wallet.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check open upgrade: %w", err))
	}
	if open != nil {
		return apperror.ErrUpgradeInProgress()
	}
	if err := s.upgradeRepo.CreateTx(ctx, dbTx, workflow); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return apperror.ErrUpgradeInProgress()
		}
		return apperror.InternalError(fmt.Errorf("create workflow: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return apperror.ErrUpgradeInProgress()
		}
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// FreezeForUpgrade suspends the wallet and snapshots its balance into the
// workflow under the wallet lock. Calling it on a frozen workflow is a no-op.
func (s *LedgerServiceImpl) FreezeForUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error {
	if workflow.Frozen {
		return nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, workflow.WalletID)
	if err != nil {
		return apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}
	switch wallet.Status {
	case domain.WalletStatusActive:
		if err := s.walletRepo.UpdateStatus(ctx, dbTx, wallet.ID, domain.WalletStatusSuspended, nil); err != nil {
			return apperror.InternalError(fmt.Errorf("suspend wallet: %w", err))
		}
	case domain.WalletStatusSuspended:
	default:
		return apperror.ErrWalletNotActive(string(wallet.Status), wallet.LinkedAccountRef)
	}

	next := *workflow
	amount := wallet.Balance
	next.TransferAmount = &amount
	next.Frozen = true
	if err := s.upgradeRepo.UpdateTx(ctx, dbTx, &next); err != nil {
		return apperror.InternalError(fmt.Errorf("update workflow: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	*workflow = next
	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("workflow_id", workflow.ID.String()).
		Int64("balance", amount).
		Msg("wallet frozen for upgrade")
	return nil
}

// FinalizeUpgrade writes the transfer-out debit, zeroes the balance and marks
// both the wallet and the workflow upgraded in one transaction.
func (s *LedgerServiceImpl) FinalizeUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error {
	if workflow.State != domain.UpgradeStateBalanceTransferred || !workflow.Frozen ||
		workflow.TransferAmount == nil || workflow.AccountRef == nil {
		return apperror.ErrUpgradeInvalidState(string(workflow.State))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, workflow.WalletID)
	if err != nil {
		return apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}
	if wallet.Status != domain.WalletStatusSuspended {
		return apperror.ErrWalletNotActive(string(wallet.Status), wallet.LinkedAccountRef)
	}
	amount := *workflow.TransferAmount
	if wallet.Balance != amount {
		return apperror.InternalError(fmt.Errorf("frozen balance moved from %d to %d", amount, wallet.Balance))
	}

	now := time.Now().UTC()
	if amount > 0 {
		out := &domain.Transaction{
			ID:         uuid.New(),
			Reference:  workflow.TransferReference(),
			WalletID:   wallet.ID,
			BusinessID: wallet.BusinessID,
			Direction:  domain.DirectionDebit,
			Amount:     amount,
			Channel:    domain.ChannelUpgrade,
			Kind:       domain.TransactionKindUpgradeTransfer,
			Status:     domain.TransactionStatusCompleted,
			Metadata: map[string]string{
				"account_ref": *workflow.AccountRef,
				"workflow_id": workflow.ID.String(),
			},
			SettlementRef:    workflow.TransferRef,
			SettlementStatus: domain.SettlementStatusSettled,
			CreatedAt:        now,
			ProcessedAt:      &now,
		}
		if err := s.txRepo.Create(ctx, dbTx, out); err != nil {
			return apperror.InternalError(fmt.Errorf("create transfer-out: %w", err))
		}
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, 0); err != nil {
			return apperror.InternalError(fmt.Errorf("zero balance: %w", err))
		}
	}
	if err := s.walletRepo.UpdateStatus(ctx, dbTx, wallet.ID, domain.WalletStatusUpgraded, workflow.AccountRef); err != nil {
		return apperror.InternalError(fmt.Errorf("mark wallet upgraded: %w", err))
	}

	next := *workflow
	next.State = domain.UpgradeStateUpgraded
	next.CompletedAt = &now
	next.ClearAlert()
	if err := s.upgradeRepo.UpdateTx(ctx, dbTx, &next); err != nil {
		return apperror.InternalError(fmt.Errorf("update workflow: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	*workflow = next
	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("workflow_id", workflow.ID.String()).
		Str("account_ref", *workflow.AccountRef).
		Int64("amount", amount).
		Msg("wallet upgraded")
	return nil
}
