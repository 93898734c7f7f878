package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/metrics"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for channel API authentication
	HeaderAccessKey = "X-Access-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderRequestID = "X-Request-ID"

	maxTimestampDrift = 60 * time.Second
	nonceTTL          = 2 * maxTimestampDrift

	// Context keys
	CtxBusinessID = "business_id"
	CtxBusiness   = "business"
	CtxEmail      = "email"
)

// BusinessID returns the authenticated business, if any.
func BusinessID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxBusinessID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// MaxBodySize caps request bodies. Reads past the cap fail and the
// request is rejected with 413.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// Metrics records request latency by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// HMACAuth authenticates channel adapters and business servers.
// Pipeline: timestamp -> business lookup -> nonce -> signature.
func HMACAuth(
	businessRepo ports.BusinessRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := c.GetHeader(HeaderAccessKey)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if accessKey == "" || signature == "" || timestampStr == "" || nonce == "" {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}

		timestamp, ok := freshTimestamp(timestampStr)
		if !ok {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		business, err := businessRepo.GetByAccessKey(c.Request.Context(), accessKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch business")
			abort(c, apperror.InternalError(err))
			return
		}
		if business == nil {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}
		if !business.IsActive() {
			abort(c, apperror.ErrBusinessSuspended())
			return
		}

		if !checkNonce(c, nonceStore, business.ID.String(), nonce, log) {
			return
		}

		secretKey, err := encSvc.Decrypt(business.SecretKeyEnc)
		if err != nil {
			log.Error().Err(err).Str("business_id", business.ID.String()).Msg("failed to decrypt business secret key")
			abort(c, apperror.ErrEncryptionFailure(err))
			return
		}

		body, ok := readBody(c)
		if !ok {
			return
		}

		canonical := sigSvc.BuildCanonicalString(c.Request.Method, c.Request.URL.Path, timestamp, nonce, string(body))
		if !sigSvc.Verify(secretKey, canonical, signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		c.Set(CtxBusinessID, business.ID)
		c.Set(CtxBusiness, business)
		c.Next()
	}
}

// WebhookAuth verifies provider callbacks signed with a shared secret over
// "<timestamp>.<body>". Nonces are scoped per provider.
func WebhookAuth(provider, secret string, sigSvc ports.SignatureService, nonceStore ports.NonceStore, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)
		if secret == "" || signature == "" || timestampStr == "" || nonce == "" {
			abort(c, apperror.ErrInvalidSignature())
			return
		}
		if _, ok := freshTimestamp(timestampStr); !ok {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		body, ok := readBody(c)
		if !ok {
			return
		}
		if !sigSvc.Verify(secret, timestampStr+"."+string(body), signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}
		if !checkNonce(c, nonceStore, "webhook:"+provider, nonce, log) {
			return
		}
		c.Next()
	}
}

// JWTAuth validates dashboard bearer tokens.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("rejected dashboard token")
			abort(c, apperror.ErrInvalidToken())
			return
		}

		c.Set(CtxBusinessID, claims.BusinessID)
		c.Set(CtxEmail, claims.Email)
		c.Next()
	}
}

// AuditDenied records authentication and signature failures with the caller's IP.
// Successful writes are audited by the services themselves.
func AuditDenied(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}
		details, _ := json.Marshal(map[string]string{
			"error_code": c.GetString(response.ErrorCodeKey),
			"access_key": maskKey(c.GetHeader(HeaderAccessKey)),
		})

		var businessID *uuid.UUID
		if id, ok := BusinessID(c); ok {
			businessID = &id
		}
		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			BusinessID:   businessID,
			Action:       domain.AuditActionAccessDenied,
			ResourceType: "route",
			ResourceID:   c.Request.Method + " " + c.Request.URL.Path,
			Details:      string(details),
			IPAddress:    c.ClientIP(),
		})
	}
}

// RequestLogger logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn().Str("error_code", c.GetString(response.ErrorCodeKey))
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery turns panics into SYS_001 responses.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).
					Str("request_id", c.GetString(response.RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

func freshTimestamp(raw string) (int64, bool) {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	drift := time.Since(time.Unix(ts, 0))
	return ts, drift <= maxTimestampDrift && drift >= -maxTimestampDrift
}

// checkNonce fails open when the store is unreachable; the timestamp window
// still bounds replays.
func checkNonce(c *gin.Context, store ports.NonceStore, scope, nonce string, log zerolog.Logger) bool {
	isNew, err := store.CheckAndSet(c.Request.Context(), scope, nonce, nonceTTL)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Msg("nonce store error, allowing request")
		return true
	}
	if !isNew {
		abort(c, apperror.ErrNonceUsed())
		return false
	}
	return true
}

func readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, apperror.New("PAY_002", "Request body too large or unreadable", http.StatusRequestEntityTooLarge))
		return nil, false
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, true
}

func maskKey(k string) string {
	if len(k) <= 6 {
		return k
	}
	return k[:6] + "..."
}
