package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	accessTokenDigits   = 6
	accessTokenAttempts = 10
)

var accessTokenSpace = big.NewInt(1_000_000)

// WalletDefaults are applied when a wallet is created without explicit caps.
type WalletDefaults struct {
	Currency     string
	DailyLimit   int64
	MonthlyLimit int64
}

type walletService struct {
	walletRepo  ports.WalletRepository
	upgradeRepo ports.UpgradeRepository
	transactor  ports.DBTransactor
	audit       ports.AuditService
	defaults    WalletDefaults
	log         zerolog.Logger
	newToken    func() (string, error)
}

// NewWalletService creates a new wallet management service. audit may be nil.
func NewWalletService(
	walletRepo ports.WalletRepository,
	upgradeRepo ports.UpgradeRepository,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	defaults WalletDefaults,
	log zerolog.Logger,
) ports.WalletService {
	return &walletService{
		walletRepo:  walletRepo,
		upgradeRepo: upgradeRepo,
		transactor:  transactor,
		audit:       audit,
		defaults:    defaults,
		log:         log,
		newToken:    generateAccessToken,
	}
}

// Create opens a wallet with a fresh numeric access token.
func (s *walletService) Create(ctx context.Context, req ports.CreateWalletRequest) (*domain.Wallet, error) {
	daily, monthly := s.defaults.DailyLimit, s.defaults.MonthlyLimit
	if req.DailyLimit != nil {
		daily = *req.DailyLimit
	}
	if req.MonthlyLimit != nil {
		monthly = *req.MonthlyLimit
	}
	if daily < 0 || monthly < 0 {
		return nil, apperror.Validation("limits must not be negative")
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:            uuid.New(),
		BusinessID:    req.BusinessID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Currency:      s.defaults.Currency,
		DailyLimit:    daily,
		MonthlyLimit:  monthly,
		Status:        domain.WalletStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for attempt := 0; attempt < accessTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("generate access token: %w", err))
		}
		wallet.AccessToken = token

		err = s.walletRepo.Create(ctx, wallet)
		if err == nil {
			s.log.Info().Str("wallet_id", wallet.ID.String()).Str("business_id", req.BusinessID.String()).Msg("wallet created")
			s.record(ctx, req.BusinessID, domain.AuditActionWalletCreate, wallet.ID, nil)
			return wallet, nil
		}
		if !errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
		s.log.Debug().Int("attempt", attempt+1).Msg("access token collision, retrying")
	}
	return nil, apperror.ErrAccessTokenExhausted()
}

// Get returns a wallet owned by businessID.
func (s *walletService) Get(ctx context.Context, businessID, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil || wallet.BusinessID != businessID {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

func (s *walletService) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, 0, apperror.Validation("unknown wallet status")
	}
	wallets, total, err := s.walletRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return wallets, total, nil
}

// UpdateLimits changes the caps; nil leaves a cap unchanged and zero removes it.
func (s *walletService) UpdateLimits(ctx context.Context, businessID, walletID uuid.UUID, dailyLimit, monthlyLimit *int64) (*domain.Wallet, error) {
	if (dailyLimit != nil && *dailyLimit < 0) || (monthlyLimit != nil && *monthlyLimit < 0) {
		return nil, apperror.Validation("limits must not be negative")
	}

	return s.locked(ctx, businessID, walletID, func(tx *lockedUpdate, wallet *domain.Wallet) error {
		if wallet.Status.IsTerminal() {
			return apperror.ErrWalletNotActive(string(wallet.Status), wallet.LinkedAccountRef)
		}
		if dailyLimit != nil {
			wallet.DailyLimit = *dailyLimit
		}
		if monthlyLimit != nil {
			wallet.MonthlyLimit = *monthlyLimit
		}
		if err := s.walletRepo.UpdateLimits(ctx, tx.tx, wallet.ID, wallet.DailyLimit, wallet.MonthlyLimit); err != nil {
			return apperror.InternalError(fmt.Errorf("update limits: %w", err))
		}
		tx.action = domain.AuditActionWalletLimits
		tx.details = map[string]any{"daily_limit": wallet.DailyLimit, "monthly_limit": wallet.MonthlyLimit}
		return nil
	})
}

// ChangeStatus suspends, resumes or closes a wallet. Upgrades only happen
// through the upgrade workflow.
func (s *walletService) ChangeStatus(ctx context.Context, businessID, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	if !status.IsValid() {
		return nil, apperror.Validation("unknown wallet status")
	}

	return s.locked(ctx, businessID, walletID, func(tx *lockedUpdate, wallet *domain.Wallet) error {
		if status == domain.WalletStatusUpgraded {
			return apperror.ErrInvalidStatusTransition(string(wallet.Status), string(status))
		}
		if wallet.Status == status {
			return nil
		}
		from := wallet.Status
		if !wallet.CanTransitionTo(status) {
			return apperror.ErrInvalidStatusTransition(string(wallet.Status), string(status))
		}

		open, err := s.upgradeRepo.GetOpenByWallet(ctx, wallet.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check open upgrade: %w", err))
		}
		switch status {
		case domain.WalletStatusActive:
			if open != nil && open.Frozen {
				return apperror.ErrUpgradeInProgress()
			}
		case domain.WalletStatusClosed:
			if wallet.Balance != 0 {
				return apperror.ErrWalletHasBalance(wallet.Balance)
			}
			if open != nil {
				return apperror.ErrUpgradeInProgress()
			}
		}

		if err := s.walletRepo.UpdateStatus(ctx, tx.tx, wallet.ID, status, nil); err != nil {
			return apperror.InternalError(fmt.Errorf("update status: %w", err))
		}
		tx.action = domain.AuditActionWalletStatus
		tx.details = map[string]any{"from": from, "to": status}
		wallet.Status = status
		return nil
	})
}

// lockedUpdate carries the open transaction and the audit entry to record after commit.
type lockedUpdate struct {
	tx      pgx.Tx
	action  domain.AuditAction
	details map[string]any
}

// locked runs fn with the wallet row locked and commits when fn succeeds.
func (s *walletService) locked(ctx context.Context, businessID, walletID uuid.UUID, fn func(*lockedUpdate, *domain.Wallet) error) (*domain.Wallet, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil || wallet.BusinessID != businessID {
		return nil, apperror.ErrWalletNotFound()
	}

	scope := &lockedUpdate{tx: tx}
	if err := fn(scope, wallet); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if scope.action != "" {
		s.record(ctx, businessID, scope.action, wallet.ID, scope.details)
	}
	return wallet, nil
}

func (s *walletService) record(ctx context.Context, businessID uuid.UUID, action domain.AuditAction, walletID uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, newAuditEntry(&businessID, action, "wallet", walletID.String(), details, ""))
}

// generateAccessToken returns a uniformly random 6-digit code.
func generateAccessToken() (string, error) {
	n, err := rand.Int(rand.Reader, accessTokenSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", accessTokenDigits, n.Int64()), nil
}
