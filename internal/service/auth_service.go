package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService for business accounts.
type AuthServiceImpl struct {
	businessRepo ports.BusinessRepository
	hashSvc      ports.HashService
	encSvc       ports.EncryptionService
	tokenSvc     ports.TokenService
	audit        ports.AuditService
	log          zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl. audit may be nil.
func NewAuthService(
	businessRepo ports.BusinessRepository,
	hashSvc ports.HashService,
	encSvc ports.EncryptionService,
	tokenSvc ports.TokenService,
	audit ports.AuditService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		businessRepo: businessRepo,
		hashSvc:      hashSvc,
		encSvc:       encSvc,
		tokenSvc:     tokenSvc,
		audit:        audit,
		log:          log,
	}
}

// Register creates a business with a fresh HMAC key pair.
// The plaintext secret is returned once and only stored encrypted.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.businessRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check email: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	accessKey, err := generateRandomHex(16)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access key: %w", err))
	}
	accessKey = "pk_" + accessKey

	secretKey, err := generateRandomHex(32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret key: %w", err))
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	secretKeyEnc, err := s.encSvc.Encrypt(secretKey)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt secret key: %w", err))
	}

	now := time.Now().UTC()
	business := &domain.Business{
		ID:                   uuid.New(),
		Name:                 req.Name,
		Email:                email,
		Phone:                req.Phone,
		SettlementAccountRef: req.SettlementAccountRef,
		PasswordHash:         passwordHash,
		AccessKey:            accessKey,
		SecretKeyEnc:         secretKeyEnc,
		Status:               domain.BusinessStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.businessRepo.Create(ctx, business); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.ErrEmailExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create business: %w", err))
	}

	s.log.Info().Str("business_id", business.ID.String()).Msg("business registered")
	if s.audit != nil {
		s.audit.Log(ctx, newAuditEntry(&business.ID, domain.AuditActionRegister, "business", business.ID.String(), nil, ""))
	}

	return &ports.RegisterResponse{
		BusinessID: business.ID,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}, nil
}

// Login validates credentials and returns a dashboard JWT.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	business, err := s.businessRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find business: %w", err))
	}
	if business == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, business.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	if !business.IsActive() {
		return "", time.Time{}, apperror.ErrBusinessSuspended()
	}

	token, expiry, err := s.tokenSvc.Generate(business.ID, business.Email)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	if s.audit != nil {
		s.audit.Log(ctx, newAuditEntry(&business.ID, domain.AuditActionLogin, "business", business.ID.String(), nil, ""))
	}
	return token, expiry, nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
