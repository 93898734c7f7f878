package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UpgradeOptions tune the upgrade worker.
type UpgradeOptions struct {
	Retry       RetryPolicy
	StepTimeout time.Duration
	BatchSize   int
}

// UpgradeServiceImpl implements ports.UpgradeService. Each workflow is a durable
// state machine; collaborator calls are memoized so a resumed workflow never
// repeats a bank operation that already succeeded.
type UpgradeServiceImpl struct {
	upgradeRepo ports.UpgradeRepository
	walletRepo  ports.WalletRepository
	idempRepo   ports.IdempotencyRepository
	ledger      ports.LedgerService
	bank        ports.BankAccountService
	kyc         ports.KYCService
	audit       ports.AuditService
	opts        UpgradeOptions
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewUpgradeService creates a new UpgradeServiceImpl. audit may be nil.
func NewUpgradeService(
	upgradeRepo ports.UpgradeRepository,
	walletRepo ports.WalletRepository,
	idempRepo ports.IdempotencyRepository,
	ledger ports.LedgerService,
	bank ports.BankAccountService,
	kyc ports.KYCService,
	audit ports.AuditService,
	opts UpgradeOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) *UpgradeServiceImpl {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &UpgradeServiceImpl{
		upgradeRepo: upgradeRepo,
		walletRepo:  walletRepo,
		idempRepo:   idempRepo,
		ledger:      ledger,
		bank:        bank,
		kyc:         kyc,
		audit:       audit,
		opts:        opts,
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Request starts an upgrade and drives it as far as the collaborators allow.
// Collaborator failures leave the workflow parked with an alert rather than
// failing the request.
func (s *UpgradeServiceImpl) Request(ctx context.Context, businessID, walletID uuid.UUID) (*domain.UpgradeWorkflow, error) {
	now := s.now()
	wf := &domain.UpgradeWorkflow{
		ID:         uuid.New(),
		WalletID:   walletID,
		BusinessID: businessID,
		State:      domain.UpgradeStateRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.ledger.OpenUpgrade(ctx, wf); err != nil {
		return nil, err
	}
	s.metrics.UpgradeTransition(string(wf.State))
	s.log.Info().Str("workflow_id", wf.ID.String()).Str("wallet_id", walletID.String()).Msg("upgrade requested")

	if s.audit != nil {
		s.audit.Log(ctx, newAuditEntry(&businessID, domain.AuditActionUpgradeRequest, "upgrade", wf.ID.String(),
			map[string]any{"wallet_id": walletID}, ""))
	}

	if _, err := s.advance(ctx, wf); err != nil && apperror.KindOf(err) != apperror.KindCollaboratorUnavailable {
		return nil, err
	}
	return wf, nil
}

// Get returns a workflow owned by businessID.
func (s *UpgradeServiceImpl) Get(ctx context.Context, businessID, workflowID uuid.UUID) (*domain.UpgradeWorkflow, error) {
	wf, err := s.upgradeRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get workflow: %w", err))
	}
	if wf == nil || wf.BusinessID != businessID {
		return nil, apperror.ErrNotFound("Upgrade")
	}
	return wf, nil
}

// Advance drives one workflow forward until it completes or has to wait.
func (s *UpgradeServiceImpl) Advance(ctx context.Context, workflowID uuid.UUID) (*domain.UpgradeWorkflow, error) {
	wf, err := s.upgradeRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get workflow: %w", err))
	}
	if wf == nil {
		return nil, apperror.ErrNotFound("Upgrade")
	}
	return s.advance(ctx, wf)
}

// KYCCompleted moves the wallet's parked workflow past the KYC gate.
func (s *UpgradeServiceImpl) KYCCompleted(ctx context.Context, customerRef string) (*domain.UpgradeWorkflow, error) {
	walletID, err := uuid.Parse(customerRef)
	if err != nil {
		return nil, apperror.Validation("unknown customer reference")
	}
	wf, err := s.upgradeRepo.GetOpenByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get open workflow: %w", err))
	}
	if wf == nil {
		return nil, apperror.ErrNotFound("Upgrade")
	}
	if wf.State == domain.UpgradeStateRequested || wf.State == domain.UpgradeStateKYCPending {
		if err := s.transition(ctx, wf, domain.UpgradeStateKYCComplete); err != nil {
			return nil, err
		}
	}
	return s.advance(ctx, wf)
}

// RunPending advances every open workflow once. Failures are recorded on the
// workflow and do not stop the batch.
func (s *UpgradeServiceImpl) RunPending(ctx context.Context) (int, error) {
	open, err := s.upgradeRepo.ListOpen(ctx, s.now(), s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list open workflows: %w", err)
	}

	moved := 0
	for i := range open {
		wf := &open[i]
		before := wf.State
		if _, err := s.advance(ctx, wf); err != nil {
			s.log.Warn().Err(err).Str("workflow_id", wf.ID.String()).Str("state", string(wf.State)).Msg("upgrade step failed")
		}
		if wf.State != before {
			moved++
		}
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
	}
	return moved, nil
}

// advance runs steps until the workflow is upgraded or blocked on KYC.
func (s *UpgradeServiceImpl) advance(ctx context.Context, wf *domain.UpgradeWorkflow) (*domain.UpgradeWorkflow, error) {
	for !wf.State.IsTerminal() {
		var err error
		switch wf.State {
		case domain.UpgradeStateRequested:
			err = s.transition(ctx, wf, domain.UpgradeStateKYCPending)

		case domain.UpgradeStateKYCPending:
			var done bool
			done, err = s.checkKYC(ctx, wf)
			if err == nil && !done {
				return wf, nil
			}

		case domain.UpgradeStateKYCComplete:
			err = s.createAccount(ctx, wf)

		case domain.UpgradeStateAccountCreated:
			err = s.transferBalance(ctx, wf)

		case domain.UpgradeStateBalanceTransferred:
			err = s.finalize(ctx, wf)

		default:
			return wf, apperror.ErrUpgradeInvalidState(string(wf.State))
		}
		if err != nil {
			return wf, err
		}
	}
	return wf, nil
}

func (s *UpgradeServiceImpl) checkKYC(ctx context.Context, wf *domain.UpgradeWorkflow) (bool, error) {
	stepCtx, cancel := s.stepContext(ctx)
	status, err := s.kyc.Status(stepCtx, wf.WalletID.String())
	cancel()
	if err != nil {
		return false, s.fail(ctx, wf, apperror.ErrCollaboratorUnavailable("KYC service", err))
	}
	switch status {
	case domain.KYCStatusVerified:
		return true, s.transition(ctx, wf, domain.UpgradeStateKYCComplete)
	case domain.KYCStatusRejected:
		if wf.LastError == nil || *wf.LastError != "kyc rejected" {
			msg := "kyc rejected"
			wf.LastError = &msg
			if err := s.save(ctx, wf); err != nil {
				return false, err
			}
			s.log.Warn().Str("workflow_id", wf.ID.String()).Msg("upgrade parked: kyc rejected")
		}
	}
	return false, nil
}

func (s *UpgradeServiceImpl) createAccount(ctx context.Context, wf *domain.UpgradeWorkflow) error {
	wallet, err := s.walletRepo.GetByID(ctx, wf.WalletID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}
	customer := ports.CustomerInfo{
		WalletID:   wallet.ID,
		BusinessID: wallet.BusinessID,
		Name:       wallet.CustomerName,
		Phone:      wallet.CustomerPhone,
		Email:      wallet.CustomerEmail,
	}

	key := wf.CreateAccountKey()
	ref, err := s.memoized(ctx, wf, key, "bank account service", func(ctx context.Context) (string, error) {
		return s.bank.CreateAccount(ctx, customer, key)
	})
	if err != nil {
		return err
	}
	wf.AccountRef = &ref
	return s.transition(ctx, wf, domain.UpgradeStateAccountCreated)
}

func (s *UpgradeServiceImpl) transferBalance(ctx context.Context, wf *domain.UpgradeWorkflow) error {
	if err := s.ledger.FreezeForUpgrade(ctx, wf); err != nil {
		return err
	}
	if wf.AccountRef == nil || wf.TransferAmount == nil {
		return apperror.ErrUpgradeInvalidState(string(wf.State))
	}

	if amount := *wf.TransferAmount; amount > 0 {
		key := wf.TransferInKey()
		accountRef := *wf.AccountRef
		ref, err := s.memoized(ctx, wf, key, "bank account service", func(ctx context.Context) (string, error) {
			return s.bank.TransferIn(ctx, accountRef, amount, key)
		})
		if err != nil {
			return err
		}
		wf.TransferRef = &ref
	}
	return s.transition(ctx, wf, domain.UpgradeStateBalanceTransferred)
}

func (s *UpgradeServiceImpl) finalize(ctx context.Context, wf *domain.UpgradeWorkflow) error {
	if err := s.ledger.FinalizeUpgrade(ctx, wf); err != nil {
		return err
	}
	s.metrics.UpgradeTransition(string(wf.State))
	if s.audit != nil {
		s.audit.Log(ctx, newAuditEntry(&wf.BusinessID, domain.AuditActionUpgradeAdvance, "upgrade", wf.ID.String(),
			map[string]any{"state": wf.State, "account_ref": *wf.AccountRef}, ""))
	}
	return nil
}

// memoized runs call with retries unless a previous run already stored its result.
func (s *UpgradeServiceImpl) memoized(
	ctx context.Context,
	wf *domain.UpgradeWorkflow,
	key, collaborator string,
	call func(ctx context.Context) (string, error),
) (string, error) {
	stored, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("read step memo: %w", err))
	}
	if stored != nil {
		var ref string
		if err := json.Unmarshal(stored.ResponseJSON, &ref); err != nil {
			return "", apperror.InternalError(fmt.Errorf("decode step memo: %w", err))
		}
		return ref, nil
	}

	ref, err := backoff.Retry(ctx, func() (string, error) {
		stepCtx, cancel := s.stepContext(ctx)
		defer cancel()
		return call(stepCtx)
	},
		backoff.WithBackOff(s.opts.Retry.backOff()),
		backoff.WithMaxTries(s.opts.Retry.attempts()),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn().Err(err).Str("workflow_id", wf.ID.String()).Str("step", key).Dur("retry_in", next).Msg("upgrade step retrying")
		}),
	)
	if err != nil {
		return "", s.fail(ctx, wf, apperror.ErrCollaboratorUnavailable(collaborator, err))
	}

	body, _ := json.Marshal(ref)
	if err := s.idempRepo.Save(ctx, &domain.IdempotencyLog{
		Key:          key,
		ResourceID:   wf.ID,
		ResponseJSON: body,
		CreatedAt:    s.now(),
	}); err != nil {
		// The collaborator dedupes on key, so a lost memo only costs a repeat call.
		s.log.Warn().Err(err).Str("workflow_id", wf.ID.String()).Str("step", key).Msg("failed to memoize upgrade step")
	}
	return ref, nil
}

func (s *UpgradeServiceImpl) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StepTimeout)
}

// fail raises the workflow's standing alert and returns cause.
func (s *UpgradeServiceImpl) fail(ctx context.Context, wf *domain.UpgradeWorkflow, cause error) error {
	if !wf.Alert {
		s.metrics.UpgradeAlert(true)
	}
	wf.RaiseAlert(cause)
	if err := s.save(ctx, wf); err != nil {
		s.log.Error().Err(err).Str("workflow_id", wf.ID.String()).Msg("failed to record upgrade alert")
	}
	s.log.Error().Err(cause).
		Str("workflow_id", wf.ID.String()).
		Str("state", string(wf.State)).
		Int("attempts", wf.Attempts).
		Msg("upgrade step exhausted retries")
	return cause
}

func (s *UpgradeServiceImpl) transition(ctx context.Context, wf *domain.UpgradeWorkflow, next domain.UpgradeState) error {
	if wf.State.Next() != next && !(wf.State == domain.UpgradeStateRequested && next == domain.UpgradeStateKYCComplete) {
		return apperror.ErrUpgradeInvalidState(string(wf.State))
	}
	if wf.Alert {
		s.metrics.UpgradeAlert(false)
	}
	wf.ClearAlert()
	wf.State = next
	if err := s.save(ctx, wf); err != nil {
		return err
	}
	s.metrics.UpgradeTransition(string(next))
	s.log.Info().Str("workflow_id", wf.ID.String()).Str("state", string(next)).Msg("upgrade advanced")
	return nil
}

func (s *UpgradeServiceImpl) save(ctx context.Context, wf *domain.UpgradeWorkflow) error {
	if err := s.upgradeRepo.Update(ctx, wf); err != nil {
		return apperror.InternalError(fmt.Errorf("update workflow: %w", err))
	}
	return nil
}
