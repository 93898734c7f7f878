package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryPolicy configures exponential backoff for collaborator calls.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts == 0 {
		return 1
	}
	return p.MaxAttempts
}

// SettlementOptions tune the settlement outbox.
type SettlementOptions struct {
	Currency   string
	Retry      RetryPolicy
	RetryAfter time.Duration // delay before the worker picks up an undelivered row
	BatchSize  int
}

// settlementService implements ports.SettlementService with a durable outbox:
// every completed payment gets a delivery row before the async publish starts.
type settlementService struct {
	deliveryRepo ports.SettlementRepository
	txRepo       ports.TransactionRepository
	businessRepo ports.BusinessRepository
	publisher    ports.SettlementPublisher
	opts         SettlementOptions
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time
}

// NewSettlementService creates a new settlement service.
func NewSettlementService(
	deliveryRepo ports.SettlementRepository,
	txRepo ports.TransactionRepository,
	businessRepo ports.BusinessRepository,
	publisher ports.SettlementPublisher,
	opts SettlementOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) ports.SettlementService {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &settlementService{
		deliveryRepo: deliveryRepo,
		txRepo:       txRepo,
		businessRepo: businessRepo,
		publisher:    publisher,
		opts:         opts,
		metrics:      m,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records the outbox row and delivers it asynchronously with retries.
func (s *settlementService) Enqueue(ctx context.Context, transaction *domain.Transaction) error {
	// The worker only claims the row if the in-process attempt has not finished by then.
	delivery, event, err := s.queue(ctx, transaction, s.now().Add(s.opts.RetryAfter))
	if err != nil {
		return err
	}

	// Fire async with retries
	go s.deliver(context.WithoutCancel(ctx), delivery, event)
	return nil
}

// queue builds the settlement event for transaction and writes its outbox row.
func (s *settlementService) queue(ctx context.Context, transaction *domain.Transaction, retryAt time.Time) (*domain.SettlementDelivery, domain.SettlementEvent, error) {
	business, err := s.businessRepo.GetByID(ctx, transaction.BusinessID)
	if err != nil {
		s.log.Error().Err(err).Str("business_id", transaction.BusinessID.String()).Msg("settlement: failed to fetch business")
		return nil, domain.SettlementEvent{}, err
	}
	if business == nil {
		return nil, domain.SettlementEvent{}, fmt.Errorf("business %s not found", transaction.BusinessID)
	}

	event := domain.SettlementEvent{
		EventID:              uuid.NewString(),
		TransactionID:        transaction.ID.String(),
		Reference:            transaction.Reference,
		WalletID:             transaction.WalletID.String(),
		BusinessID:           transaction.BusinessID.String(),
		SettlementAccountRef: business.SettlementAccountRef,
		Direction:            transaction.Direction,
		Kind:                 string(transaction.Kind),
		Channel:              transaction.Channel,
		Amount:               transaction.Amount,
		Currency:             s.opts.Currency,
		OccurredAt:           transaction.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, event, fmt.Errorf("marshal settlement event: %w", err)
	}

	now := s.now()
	delivery := &domain.SettlementDelivery{
		ID:            uuid.New(),
		TransactionID: transaction.ID,
		BusinessID:    transaction.BusinessID,
		Payload:       string(payload),
		Status:        domain.DeliveryStatusPending,
		NextRetryAt:   &retryAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deliveryRepo.Create(ctx, delivery); err != nil {
		return nil, event, fmt.Errorf("create settlement delivery: %w", err)
	}
	return delivery, event, nil
}

// RetryDue redelivers outbox rows whose retry time has passed, then queues and
// delivers payments that committed without an outbox row. It returns the
// number delivered.
func (s *settlementService) RetryDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.deliveryRepo.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}

	delivered := 0
	for i := range due {
		d := &due[i]
		var event domain.SettlementEvent
		if err := json.Unmarshal([]byte(d.Payload), &event); err != nil {
			s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("settlement: unreadable payload")
			continue
		}
		if s.deliver(ctx, d, event) {
			delivered++
		}
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
	}

	// Enqueue gets RetryAfter to write its row before a payment counts as orphaned.
	orphans, err := s.deliveryRepo.ListUnqueued(ctx, now.Add(-s.opts.RetryAfter), s.opts.BatchSize)
	if err != nil {
		return delivered, fmt.Errorf("list unqueued settlements: %w", err)
	}
	for i := range orphans {
		t := &orphans[i]
		d, event, err := s.queue(ctx, t, now.Add(s.opts.RetryAfter))
		if err != nil {
			s.log.Error().Err(err).Str("tx_id", t.ID.String()).Msg("settlement: failed to queue orphaned payment")
			continue
		}
		s.log.Warn().Str("tx_id", t.ID.String()).Str("reference", t.Reference).Msg("settlement: queued payment missing from outbox")
		if s.deliver(ctx, d, event) {
			delivered++
		}
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}

// deliver publishes with exponential backoff and records the outcome. It never
// touches the ledger entry beyond its settlement fields.
func (s *settlementService) deliver(ctx context.Context, d *domain.SettlementDelivery, event domain.SettlementEvent) bool {
	log := s.log.With().
		Str("tx_id", d.TransactionID.String()).
		Str("sink", s.publisher.Name()).
		Logger()

	ref, err := backoff.Retry(ctx, func() (string, error) {
		d.Attempt++
		return s.publisher.Publish(ctx, event)
	},
		backoff.WithBackOff(s.opts.Retry.backOff()),
		backoff.WithMaxTries(s.opts.Retry.attempts()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Int("attempt", d.Attempt).Dur("retry_in", next).Msg("settlement: delivery failed")
		}),
	)

	now := s.now()
	d.UpdatedAt = now
	if err != nil {
		msg := err.Error()
		retryAt := now.Add(s.opts.RetryAfter)
		d.Status = domain.DeliveryStatusFailed
		d.LastError = &msg
		d.NextRetryAt = &retryAt
		if uerr := s.deliveryRepo.Update(ctx, d); uerr != nil {
			log.Error().Err(uerr).Msg("settlement: failed to record failure")
		}
		if uerr := s.txRepo.UpdateSettlement(ctx, d.TransactionID, nil, domain.SettlementStatusFailed); uerr != nil {
			log.Error().Err(uerr).Msg("settlement: failed to mark transaction")
		}
		s.metrics.SettlementDelivery("failed")
		log.Error().Err(err).Int("attempt", d.Attempt).Time("next_retry_at", retryAt).Msg("settlement: all retry attempts exhausted")
		return false
	}

	d.Status = domain.DeliveryStatusDelivered
	d.SettlementRef = &ref
	d.LastError = nil
	d.NextRetryAt = nil
	if uerr := s.deliveryRepo.Update(ctx, d); uerr != nil {
		log.Error().Err(uerr).Msg("settlement: failed to record delivery")
	}
	if uerr := s.txRepo.UpdateSettlement(ctx, d.TransactionID, &ref, domain.SettlementStatusSettled); uerr != nil {
		log.Error().Err(uerr).Msg("settlement: failed to mark transaction")
	}
	s.metrics.SettlementDelivery("delivered")
	log.Info().Int("attempt", d.Attempt).Str("settlement_ref", ref).Msg("settlement: delivered")
	return true
}
