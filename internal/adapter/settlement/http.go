package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"phantom-ledger/internal/adapter/collab"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

type notifyResponse struct {
	SettlementRef string `json:"settlement_ref"`
}

// HTTPNotifier POSTs each event to the settlement endpoint, signed with
// HMAC-SHA256 over "<timestamp>.<body>".
type HTTPNotifier struct {
	api    *collab.Client
	sigSvc ports.SignatureService
	secret string
	now    func() time.Time
}

func NewHTTPNotifier(api *collab.Client, sigSvc ports.SignatureService, secret string) *HTTPNotifier {
	return &HTTPNotifier{api: api, sigSvc: sigSvc, secret: secret, now: time.Now}
}

func (n *HTTPNotifier) Name() string { return "http" }

func (n *HTTPNotifier) Publish(ctx context.Context, event domain.SettlementEvent) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal settlement event: %w", err)
	}
	ts := strconv.FormatInt(n.now().Unix(), 10)

	var out notifyResponse
	err = n.api.Do(ctx, collab.Request{
		Method:         http.MethodPost,
		Path:           "",
		IdempotencyKey: event.EventID,
		RawBody:        body,
		Headers: map[string]string{
			"X-Event-Type": eventType,
			"X-Timestamp":  ts,
			"X-Signature":  n.sigSvc.Sign(n.secret, ts+"."+string(body)),
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.SettlementRef == "" {
		return event.EventID, nil
	}
	return out.SettlementRef, nil
}

// LogSink only logs events. It is the development default when no broker or
// endpoint is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, event domain.SettlementEvent) (string, error) {
	s.log.Info().
		Str("event_id", event.EventID).
		Str("transaction_id", event.TransactionID).
		Str("wallet_id", event.WalletID).
		Str("settlement_account_ref", event.SettlementAccountRef).
		Str("direction", string(event.Direction)).
		Int64("amount", event.Amount).
		Str("currency", event.Currency).
		Msg("settlement event")
	return "log/" + event.EventID, nil
}
