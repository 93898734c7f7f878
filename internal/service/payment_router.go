package service

import (
	"context"
	"fmt"
	"time"

	"phantom-ledger/config"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// AmountRules bound a single payment in minor units.
type AmountRules struct {
	Minimum         int64
	Maximum         int64
	ChannelMaximums map[domain.Channel]int64
}

// NewAmountRules parses the ledger's major-unit amount config.
func NewAmountRules(cfg config.LedgerConfig) (AmountRules, error) {
	minimum, err := cfg.ToMinor(cfg.MinimumAmount)
	if err != nil {
		return AmountRules{}, fmt.Errorf("minimum amount: %w", err)
	}
	maximum, err := cfg.ToMinor(cfg.MaximumAmount)
	if err != nil {
		return AmountRules{}, fmt.Errorf("maximum amount: %w", err)
	}
	rules := AmountRules{Minimum: minimum, Maximum: maximum, ChannelMaximums: make(map[domain.Channel]int64)}
	for ch, v := range cfg.ChannelMaximums {
		m, err := cfg.ToMinor(v)
		if err != nil {
			return AmountRules{}, fmt.Errorf("maximum for %s: %w", ch, err)
		}
		rules.ChannelMaximums[domain.Channel(ch)] = m
	}
	return rules, nil
}

// Range returns the inclusive bounds for channel. A zero maximum is unbounded.
func (r AmountRules) Range(channel domain.Channel) (int64, int64) {
	minimum := r.Minimum
	if minimum < 1 {
		minimum = 1
	}
	maximum := r.Maximum
	if m, ok := r.ChannelMaximums[channel]; ok && m > 0 && (maximum == 0 || m < maximum) {
		maximum = m
	}
	return minimum, maximum
}

func (r AmountRules) check(channel domain.Channel, amount int64) error {
	minimum, maximum := r.Range(channel)
	if amount < minimum || (maximum > 0 && amount > maximum) {
		return apperror.ErrAmountOutOfRange(amount, minimum, maximum)
	}
	return nil
}

// PaymentRouterImpl implements ports.PaymentRouter.
type PaymentRouterImpl struct {
	walletRepo ports.WalletRepository
	ledger     ports.LedgerService
	limits     ports.LimitPolicy
	fees       *FeeSchedule
	rules      AmountRules
	settlement ports.SettlementService
	audit      ports.AuditService
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewPaymentRouter creates a new PaymentRouterImpl. settlement and audit may be nil.
func NewPaymentRouter(
	walletRepo ports.WalletRepository,
	ledger ports.LedgerService,
	limits ports.LimitPolicy,
	fees *FeeSchedule,
	rules AmountRules,
	settlement ports.SettlementService,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PaymentRouterImpl {
	return &PaymentRouterImpl{
		walletRepo: walletRepo,
		ledger:     ledger,
		limits:     limits,
		fees:       fees,
		rules:      rules,
		settlement: settlement,
		audit:      audit,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// Process validates a channel payload, resolves its wallet and applies it.
func (s *PaymentRouterImpl) Process(ctx context.Context, payload domain.ChannelPayload) (*ports.PaymentResult, error) {
	if !payload.Channel.IsExternal() {
		return nil, apperror.ErrUnsupportedChannel(string(payload.Channel))
	}
	if !payload.Direction.IsValid() {
		return nil, apperror.Validation("direction must be credit or debit")
	}
	if payload.Reference == "" {
		return nil, apperror.Validation("reference is required")
	}

	wallet, err := s.resolveWallet(ctx, payload)
	if err != nil {
		return nil, err
	}
	if payload.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := s.rules.check(payload.Channel, payload.Amount); err != nil {
		return nil, err
	}

	res, err := s.ledger.Apply(ctx, ports.ApplyRequest{
		WalletID:  wallet.ID,
		Amount:    payload.Amount,
		Direction: payload.Direction,
		Channel:   payload.Channel,
		Reference: payload.Reference,
		Kind:      domain.TransactionKindPayment,
		Fee:       s.fees.Fee(payload.Channel, payload.Amount),
		Metadata:  payload.Metadata,
		Guard:     s.limitGuard(payload.Direction, payload.Amount),
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("wallet_id", wallet.ID.String()).
			Str("channel", string(payload.Channel)).
			Str("reference", payload.Reference).
			Msg("payment rejected")
		return nil, err
	}

	result := &ports.PaymentResult{ApplyResult: *res}
	if res.Replayed {
		return result, nil
	}

	if s.settlement != nil && res.Transaction.SettlementStatus == domain.SettlementStatusPending {
		if err := s.settlement.Enqueue(ctx, res.Transaction); err != nil {
			// The entry stays settlement-pending; RetryDue queues it once RetryAfter passes.
			s.log.Error().Err(err).Str("tx_id", res.Transaction.ID.String()).Msg("settlement enqueue failed")
		} else {
			result.SettlementQueued = true
		}
	}

	s.record(ctx, wallet.BusinessID, domain.AuditActionPayment, res.Transaction.ID.String(), map[string]any{
		"reference": payload.Reference,
		"channel":   payload.Channel,
		"direction": payload.Direction,
		"amount":    payload.Amount,
	})
	return result, nil
}

// resolveWallet finds the target wallet by id or access token. When both are
// given they must name the same wallet.
func (s *PaymentRouterImpl) resolveWallet(ctx context.Context, payload domain.ChannelPayload) (*domain.Wallet, error) {
	ref := payload.Wallet
	if ref.IsEmpty() {
		return nil, apperror.Validation("wallet id or access token is required")
	}

	var wallet *domain.Wallet
	var err error
	byToken := ref.AccessToken != "" && (ref.ID == nil || payload.Channel.ResolvesByAccessToken())
	if byToken {
		wallet, err = s.walletRepo.GetByAccessToken(ctx, ref.AccessToken)
	} else {
		wallet, err = s.walletRepo.GetByID(ctx, *ref.ID)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if ref.ID != nil && *ref.ID != wallet.ID {
		return nil, apperror.Validation("wallet id and access token name different wallets")
	}
	if ref.AccessToken != "" && ref.AccessToken != wallet.AccessToken {
		return nil, apperror.Validation("wallet id and access token name different wallets")
	}
	if payload.BusinessID != nil && *payload.BusinessID != wallet.BusinessID {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// limitGuard checks the caps under the wallet lock for directions that count.
func (s *PaymentRouterImpl) limitGuard(direction domain.Direction, amount int64) ports.Guard {
	if s.limits == nil || !s.limits.Counts(direction) {
		return nil
	}
	return func(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
		decision, err := s.limits.Check(ctx, tx, wallet, amount, s.now())
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check limits: %w", err))
		}
		if decision.Allowed {
			return nil
		}
		s.metrics.LimitDenied(string(decision.Reason))
		if decision.Reason == ports.LimitReasonMonthly {
			return apperror.ErrMonthlyLimitExceeded(decision.Cap, decision.Used, decision.Requested)
		}
		return apperror.ErrDailyLimitExceeded(decision.Cap, decision.Used, decision.Requested)
	}
}

// Transfer moves funds between two wallets of the same business as a debit
// leg and a credit leg. A credit leg that fails is compensated on the source.
func (s *PaymentRouterImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.From == req.To {
		return nil, apperror.Validation("cannot transfer to the same wallet")
	}
	if req.Reference == "" {
		return nil, apperror.Validation("reference is required")
	}
	from, err := s.ownedWallet(ctx, req.BusinessID, req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.ownedWallet(ctx, req.BusinessID, req.To)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := s.rules.check(domain.ChannelPhantomWallet, req.Amount); err != nil {
		return nil, err
	}

	fee := s.fees.Fee(domain.ChannelPhantomWallet, req.Amount)
	debit, err := s.ledger.Apply(ctx, ports.ApplyRequest{
		WalletID:  from.ID,
		Amount:    req.Amount,
		Direction: domain.DirectionDebit,
		Channel:   domain.ChannelPhantomWallet,
		Reference: req.Reference + ":out",
		Fee:       fee,
		Metadata:  withCounterparty(req.Metadata, to.ID.String()),
		Guard:     s.limitGuard(domain.DirectionDebit, req.Amount),
	})
	if err != nil {
		return nil, err
	}

	credit, err := s.ledger.Apply(ctx, ports.ApplyRequest{
		WalletID:  to.ID,
		Amount:    req.Amount,
		Direction: domain.DirectionCredit,
		Channel:   domain.ChannelPhantomWallet,
		Reference: req.Reference + ":in",
		Metadata:  withCounterparty(req.Metadata, from.ID.String()),
		Guard:     s.limitGuard(domain.DirectionCredit, req.Amount),
	})
	if err != nil {
		s.compensate(ctx, req, from.ID, req.Amount+fee, err)
		return nil, err
	}

	s.record(ctx, req.BusinessID, domain.AuditActionTransfer, req.Reference, map[string]any{
		"from":   from.ID,
		"to":     to.ID,
		"amount": req.Amount,
	})
	return &ports.TransferResult{Debit: debit, Credit: credit}, nil
}

func (s *PaymentRouterImpl) compensate(ctx context.Context, req ports.TransferRequest, from uuid.UUID, amount int64, cause error) {
	_, err := s.ledger.Apply(ctx, ports.ApplyRequest{
		WalletID:  from,
		Amount:    amount,
		Direction: domain.DirectionCredit,
		Channel:   domain.ChannelPhantomWallet,
		Reference: domain.ReversalReference(req.Reference),
		Kind:      domain.TransactionKindReversal,
		Metadata:  map[string]string{"reason": apperror.Code(cause)},
	})
	if err != nil {
		s.log.Error().Err(err).
			AnErr("cause", cause).
			Str("reference", req.Reference).
			Str("wallet_id", from.String()).
			Msg("transfer reversal failed, source wallet needs manual correction")
		return
	}
	s.log.Warn().Err(cause).Str("reference", req.Reference).Msg("transfer credit leg failed, debit reversed")
}

func (s *PaymentRouterImpl) ownedWallet(ctx context.Context, businessID, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil || wallet.BusinessID != businessID {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

func withCounterparty(meta map[string]string, counterparty string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["counterparty_wallet_id"] = counterparty
	return out
}

func (s *PaymentRouterImpl) record(ctx context.Context, businessID uuid.UUID, action domain.AuditAction, resourceID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, newAuditEntry(&businessID, action, "transaction", resourceID, details, ""))
}
