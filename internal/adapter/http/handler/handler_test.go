package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/adapter/http/middleware"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/internal/core/ports/mocks"
	"phantom-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testMoney = dto.Money{MinorUnits: 2}

// newContext builds a test context. A non-nil businessID plays the part of
// the auth middleware.
func newContext(method, path string, body any, businessID *uuid.UUID, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if businessID != nil {
		c.Set(middleware.CtxBusinessID, *businessID)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func testWallet(businessID uuid.UUID) *domain.Wallet {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Wallet{
		ID:            uuid.New(),
		BusinessID:    businessID,
		CustomerName:  "Mpho Dube",
		CustomerPhone: "+26771000000",
		Balance:       125050,
		Currency:      "BWP",
		DailyLimit:    1000000,
		MonthlyLimit:  5000000,
		Status:        domain.WalletStatusActive,
		AccessToken:   "482913",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testTransaction(walletID uuid.UUID, ref string, amount, balanceAfter int64) *domain.Transaction {
	return &domain.Transaction{
		ID:               uuid.New(),
		Reference:        ref,
		WalletID:         walletID,
		Direction:        domain.DirectionCredit,
		Amount:           amount,
		Channel:          domain.ChannelUSSD,
		Kind:             domain.TransactionKindPayment,
		Status:           domain.TransactionStatusCompleted,
		BalanceAfter:     balanceAfter,
		SettlementStatus: domain.SettlementStatusPending,
		CreatedAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// --- Auth Handler Tests ---

func TestRegister_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	businessID := uuid.New()
	mockAuth.EXPECT().Register(gomock.Any(), ports.RegisterRequest{
		Name:                 "Kgosi Traders",
		Email:                "ops@kgosi.co.bw",
		Phone:                "+26772000000",
		Password:             "password123",
		SettlementAccountRef: "FNB-0001",
	}).Return(&ports.RegisterResponse{
		BusinessID: businessID,
		AccessKey:  "pk_test",
		SecretKey:  "sk_test",
	}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{
		Name:                 " Kgosi Traders ",
		Email:                "ops@kgosi.co.bw",
		Phone:                "+26772000000",
		Password:             "password123",
		SettlementAccountRef: "FNB-0001",
	}, nil)
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, businessID.String(), data["business_id"])
	assert.Equal(t, "pk_test", data["access_key"])
	assert.Equal(t, "sk_test", data["secret_key"])
}

func TestRegister_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewAuthHandler(mocks.NewMockAuthService(ctrl))

	for _, body := range []any{
		map[string]string{},
		dto.RegisterRequest{Name: "x", Email: "not-an-email", Phone: "+26772000000", Password: "password123", SettlementAccountRef: "FNB-1"},
		dto.RegisterRequest{Name: "x", Email: "a@b.co", Phone: "call me", Password: "password123", SettlementAccountRef: "FNB-1"},
		dto.RegisterRequest{Name: "x", Email: "a@b.co", Phone: "+26772000000", Password: "short", SettlementAccountRef: "FNB-1"},
	} {
		c, w := newContext(http.MethodPost, "/api/v1/auth/register", body, nil)
		h.Register(c)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestRegister_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	mockAuth.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrEmailExists())

	c, w := newContext(http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{
		Name: "Kgosi", Email: "ops@kgosi.co.bw", Phone: "+26772000000", Password: "password123", SettlementAccountRef: "FNB-0001",
	}, nil)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AUTH_002", decodeErrorCode(t, w))
}

func TestLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mocks.NewMockAuthService(ctrl)
	h := NewAuthHandler(mockAuth)

	expiry := time.Unix(1772400000, 0)
	mockAuth.EXPECT().Login(gomock.Any(), "ops@kgosi.co.bw", "password123").Return("jwt-token", expiry, nil)
	mockAuth.EXPECT().Login(gomock.Any(), "ops@kgosi.co.bw", "wrong-pass").Return("", time.Time{}, apperror.ErrInvalidCredentials())

	c, w := newContext(http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "ops@kgosi.co.bw", Password: "password123"}, nil)
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "jwt-token", data["token"])
	assert.Equal(t, float64(1772400000), data["expiry"])

	c, w = newContext(http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "ops@kgosi.co.bw", Password: "wrong-pass"}, nil)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_001", decodeErrorCode(t, w))
}

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	rd := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgres").AnyTimes()
	rd.EXPECT().Name().Return("redis").AnyTimes()

	pg.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	gomock.InOrder(
		rd.EXPECT().Ping(gomock.Any()).Return(nil),
		rd.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused")),
	)

	handler := HealthCheck(pg, rd)

	c, w := newContext(http.MethodGet, "/health", nil, nil)
	handler(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	c, w = newContext(http.MethodGet, "/health", nil, nil)
	handler(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

// --- Wallet Handler Tests ---

type walletMocks struct {
	wallets *mocks.MockWalletService
	ledger  *mocks.MockLedgerService
	router  *mocks.MockPaymentRouter
}

func newWalletHandler(t *testing.T) (*WalletHandler, walletMocks) {
	ctrl := gomock.NewController(t)
	m := walletMocks{
		wallets: mocks.NewMockWalletService(ctrl),
		ledger:  mocks.NewMockLedgerService(ctrl),
		router:  mocks.NewMockPaymentRouter(ctrl),
	}
	return NewWalletHandler(m.wallets, m.ledger, m.router, testMoney), m
}

func TestWalletCreate(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	wallet := testWallet(businessID)

	daily, monthly := int64(250000), int64(1000000)
	m.wallets.EXPECT().Create(gomock.Any(), ports.CreateWalletRequest{
		BusinessID:    businessID,
		CustomerName:  "Mpho Dube",
		CustomerPhone: "+26771000000",
		DailyLimit:    &daily,
		MonthlyLimit:  &monthly,
	}).Return(wallet, nil)

	dailyStr, monthlyStr := "2500.00", "10000"
	c, w := newContext(http.MethodPost, "/api/v1/wallets", dto.CreateWalletRequest{
		CustomerName:  "Mpho Dube",
		CustomerPhone: "+26771000000",
		DailyLimit:    &dailyStr,
		MonthlyLimit:  &monthlyStr,
	}, &businessID)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, wallet.ID.String(), data["id"])
	assert.Equal(t, "1250.50", data["balance"])
	assert.Equal(t, "10000.00", data["daily_limit"])
	assert.Equal(t, "482913", data["access_token"])
}

func TestWalletCreate_RejectsBadInput(t *testing.T) {
	h, _ := newWalletHandler(t)
	businessID := uuid.New()

	precise := "10.001"
	c, w := newContext(http.MethodPost, "/api/v1/wallets", dto.CreateWalletRequest{
		CustomerName: "Mpho", CustomerPhone: "+26771000000", DailyLimit: &precise,
	}, &businessID)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// no authenticated business
	c, w = newContext(http.MethodPost, "/api/v1/wallets", dto.CreateWalletRequest{CustomerName: "Mpho", CustomerPhone: "+26771000000"}, nil)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletList_Paging(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	suspended := domain.WalletStatusSuspended

	m.wallets.EXPECT().List(gomock.Any(), ports.WalletListParams{
		BusinessID: businessID, Status: &suspended, Page: 2, PageSize: 20,
	}).Return([]domain.Wallet{*testWallet(businessID)}, int64(21), nil)

	c, w := newContext(http.MethodGet, "/api/v1/wallets?page=2&page_size=500&status=suspended", nil, &businessID)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(21), data["total"])
	assert.Equal(t, float64(2), data["total_pages"])
	assert.Len(t, data["items"], 1)
}

func TestWalletGet_NotFound(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID, walletID := uuid.New(), uuid.New()
	m.wallets.EXPECT().Get(gomock.Any(), businessID, walletID).Return(nil, apperror.ErrWalletNotFound())

	c, w := newContext(http.MethodGet, "/api/v1/wallets/"+walletID.String(), nil, &businessID, gin.Param{Key: "id", Value: walletID.String()})
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WAL_001", decodeErrorCode(t, w))

	c, w = newContext(http.MethodGet, "/api/v1/wallets/nope", nil, &businessID, gin.Param{Key: "id", Value: "nope"})
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletUpdateLimitsAndStatus(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	wallet := testWallet(businessID)
	param := gin.Param{Key: "id", Value: wallet.ID.String()}

	// empty update
	c, w := newContext(http.MethodPatch, "/limits", dto.UpdateLimitsRequest{}, &businessID, param)
	h.UpdateLimits(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	zero := int64(0)
	m.wallets.EXPECT().UpdateLimits(gomock.Any(), businessID, wallet.ID, &zero, nil).Return(wallet, nil)
	unlimited := "0"
	c, w = newContext(http.MethodPatch, "/limits", dto.UpdateLimitsRequest{DailyLimit: &unlimited}, &businessID, param)
	h.UpdateLimits(c)
	assert.Equal(t, http.StatusOK, w.Code)

	m.wallets.EXPECT().ChangeStatus(gomock.Any(), businessID, wallet.ID, domain.WalletStatusClosed).
		Return(nil, apperror.ErrWalletHasBalance(wallet.Balance))
	c, w = newContext(http.MethodPatch, "/status", dto.ChangeStatusRequest{Status: "closed"}, &businessID, param)
	h.ChangeStatus(c)
	assert.Equal(t, "WAL_005", decodeErrorCode(t, w))

	c, w = newContext(http.MethodPatch, "/status", dto.ChangeStatusRequest{Status: "upgraded"}, &businessID, param)
	h.ChangeStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code, "upgrades go through the workflow")
}

func TestWalletBalance(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	wallet := testWallet(businessID)

	m.wallets.EXPECT().Get(gomock.Any(), businessID, wallet.ID).Return(wallet, nil)
	m.ledger.EXPECT().GetBalance(gomock.Any(), wallet.ID).Return(int64(500), nil)

	c, w := newContext(http.MethodGet, "/balance", nil, &businessID, gin.Param{Key: "id", Value: wallet.ID.String()})
	h.Balance(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "5.00", data["balance"])
	assert.Equal(t, "BWP", data["currency"])
}

func TestWalletHistory(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	wallet := testWallet(businessID)
	param := gin.Param{Key: "id", Value: wallet.ID.String()}
	tx := testTransaction(wallet.ID, "ussd-001", 2500, 2500)
	next := &ports.Cursor{CreatedAt: tx.CreatedAt, ID: tx.ID}

	m.wallets.EXPECT().Get(gomock.Any(), businessID, wallet.ID).Return(wallet, nil).Times(3)
	m.ledger.EXPECT().History(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p ports.TransactionListParams) (*ports.HistoryPage, error) {
			assert.Equal(t, wallet.ID, *p.WalletID)
			assert.Equal(t, 10, p.Limit)
			assert.Equal(t, domain.DirectionCredit, *p.Direction)
			assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.From.UTC())
			assert.Nil(t, p.Cursor)
			return &ports.HistoryPage{Transactions: []domain.Transaction{*tx}, NextCursor: next}, nil
		})

	c, w := newContext(http.MethodGet, "/tx?limit=10&direction=credit&from=2026-03-01T00:00:00Z", nil, &businessID, param)
	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, dto.EncodeCursor(next), data["next_cursor"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "25.00", items[0].(map[string]any)["amount"])

	c, w = newContext(http.MethodGet, "/tx?cursor=%21%21", nil, &businessID, param)
	h.History(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext(http.MethodGet, "/tx?limit=5000", nil, &businessID, param)
	h.History(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletTopUpAndPayout(t *testing.T) {
	h, m := newWalletHandler(t)
	businessID := uuid.New()
	walletID := uuid.New()
	param := gin.Param{Key: "id", Value: walletID.String()}
	tx := testTransaction(walletID, "topup-1", 10000, 10000)

	m.router.EXPECT().Process(gomock.Any(), domain.ChannelPayload{
		Channel:    domain.ChannelPhantomWallet,
		Amount:     10000,
		Wallet:     domain.WalletRef{ID: &walletID},
		Direction:  domain.DirectionCredit,
		Reference:  "topup-1",
		BusinessID: &businessID,
	}).Return(&ports.PaymentResult{ApplyResult: ports.ApplyResult{Transaction: tx, Balance: 10000}}, nil)

	c, w := newContext(http.MethodPost, "/topup", dto.FundsRequest{Amount: "100", Reference: "topup-1"}, &businessID, param)
	h.TopUp(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "100.00", decodeData(t, w)["balance"])

	m.router.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p domain.ChannelPayload) (*ports.PaymentResult, error) {
			assert.Equal(t, domain.DirectionDebit, p.Direction)
			assert.Equal(t, domain.ChannelEFT, p.Channel)
			return nil, apperror.ErrInsufficientBalance(10000, 20500)
		})
	c, w = newContext(http.MethodPost, "/payout", dto.FundsRequest{Amount: "200", Reference: "payout-1", Channel: "eft"}, &businessID, param)
	h.Payout(c)
	assert.Equal(t, "PAY_001", decodeErrorCode(t, w))
}

// --- Payment Handler Tests ---

func TestChannelPayment(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := mocks.NewMockPaymentRouter(ctrl)
	h := NewPaymentHandler(router, testMoney)
	businessID := uuid.New()
	walletID := uuid.New()
	tx := testTransaction(walletID, "ussd-001", 4900, 4900)
	fee := testTransaction(walletID, "ussd-001:fee", 150, 4750)
	fee.Direction = domain.DirectionDebit
	fee.Kind = domain.TransactionKindFee

	gomock.InOrder(
		router.EXPECT().Process(gomock.Any(), domain.ChannelPayload{
			Channel:    domain.ChannelUSSD,
			Amount:     4900,
			Wallet:     domain.WalletRef{ID: &walletID, AccessToken: "482913"},
			Direction:  domain.DirectionCredit,
			Reference:  "ussd-001",
			Metadata:   map[string]string{"msisdn": "+26771000000"},
			BusinessID: &businessID,
		}).Return(&ports.PaymentResult{ApplyResult: ports.ApplyResult{Transaction: tx, Fee: fee, Balance: 4750}, SettlementQueued: true}, nil),
		router.EXPECT().Process(gomock.Any(), gomock.Any()).
			Return(&ports.PaymentResult{ApplyResult: ports.ApplyResult{Transaction: tx, Fee: fee, Balance: 4750, Replayed: true}}, nil),
	)

	id := walletID.String()
	req := dto.ChannelPaymentRequest{
		Channel:     "ussd",
		WalletID:    &id,
		AccessToken: "482913",
		Direction:   "credit",
		Amount:      "49.00",
		Reference:   "ussd-001",
		Metadata:    map[string]string{"msisdn": "+26771000000"},
	}

	c, w := newContext(http.MethodPost, "/api/v1/channel/payments", req, &businessID)
	h.ChannelPayment(c)
	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "47.50", data["balance"])
	assert.Equal(t, true, data["settlement_queued"])
	assert.Equal(t, "1.50", data["fee"].(map[string]any)["amount"])

	c, w = newContext(http.MethodPost, "/api/v1/channel/payments", req, &businessID)
	h.ChannelPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["replayed"])
}

func TestChannelPayment_LimitDenied(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := mocks.NewMockPaymentRouter(ctrl)
	h := NewPaymentHandler(router, testMoney)
	businessID := uuid.New()

	router.EXPECT().Process(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrDailyLimitExceeded(500000, 490000, 15000))

	c, w := newContext(http.MethodPost, "/api/v1/channel/payments", dto.ChannelPaymentRequest{
		Channel: "mobile_money", AccessToken: "482913", Direction: "debit", Amount: "150", Reference: "mm-9",
	}, &businessID)
	h.ChannelPayment(c)

	assert.Equal(t, "LIM_001", decodeErrorCode(t, w))
	assert.Contains(t, w.Body.String(), `"cap"`)
}

func TestTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := mocks.NewMockPaymentRouter(ctrl)
	h := NewPaymentHandler(router, testMoney)
	businessID, from, to := uuid.New(), uuid.New(), uuid.New()

	out := testTransaction(from, "t-1:out", 1000, 0)
	out.Direction = domain.DirectionDebit
	in := testTransaction(to, "t-1:in", 1000, 1000)

	router.EXPECT().Transfer(gomock.Any(), ports.TransferRequest{
		BusinessID: businessID, From: from, To: to, Amount: 1000, Reference: "t-1",
	}).Return(&ports.TransferResult{
		Debit:  &ports.ApplyResult{Transaction: out, Balance: 0},
		Credit: &ports.ApplyResult{Transaction: in, Balance: 1000},
	}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/transfers", dto.TransferRequest{
		FromWalletID: from.String(), ToWalletID: to.String(), Amount: "10", Reference: "t-1",
	}, &businessID)
	h.Transfer(c)

	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "t-1:out", data["debit"].(map[string]any)["transaction"].(map[string]any)["reference"])
	assert.Equal(t, "10.00", data["credit"].(map[string]any)["balance"])
}

// --- Upgrade Handler Tests ---

func TestUpgradeRequestAndAdvance(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockUpgradeService(ctrl)
	h := NewUpgradeHandler(svc, testMoney, zerolog.Nop())
	businessID, walletID := uuid.New(), uuid.New()
	snapshot := int64(125050)
	wf := &domain.UpgradeWorkflow{
		ID: uuid.New(), WalletID: walletID, BusinessID: businessID,
		State: domain.UpgradeStateKYCPending, TransferAmount: &snapshot,
	}

	svc.EXPECT().Request(gomock.Any(), businessID, walletID).Return(wf, nil)
	c, w := newContext(http.MethodPost, "/upgrade", nil, &businessID, gin.Param{Key: "id", Value: walletID.String()})
	h.Request(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "kyc_pending", data["state"])
	assert.Equal(t, "1250.50", data["transfer_amount"])

	done := *wf
	done.State = domain.UpgradeStateUpgraded
	svc.EXPECT().Get(gomock.Any(), businessID, wf.ID).Return(wf, nil)
	svc.EXPECT().Advance(gomock.Any(), wf.ID).Return(&done, nil)
	c, w = newContext(http.MethodPost, "/advance", nil, &businessID, gin.Param{Key: "id", Value: wf.ID.String()})
	h.Advance(c)
	assert.Equal(t, http.StatusOK, w.Code)

	// another business cannot advance it
	other := uuid.New()
	svc.EXPECT().Get(gomock.Any(), other, wf.ID).Return(nil, apperror.ErrNotFound("Upgrade"))
	c, w = newContext(http.MethodPost, "/advance", nil, &other, gin.Param{Key: "id", Value: wf.ID.String()})
	h.Advance(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKYCWebhook(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockUpgradeService(ctrl)
	h := NewUpgradeHandler(svc, testMoney, zerolog.Nop())
	walletID := uuid.New()

	svc.EXPECT().KYCCompleted(gomock.Any(), walletID.String()).
		Return(&domain.UpgradeWorkflow{ID: uuid.New(), WalletID: walletID, State: domain.UpgradeStateAccountCreated}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/webhooks/kyc", dto.KYCWebhookRequest{CustomerRef: walletID.String(), Status: "Approved"}, nil)
	h.KYCWebhook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "account_created", decodeData(t, w)["state"])

	c, w = newContext(http.MethodPost, "/api/v1/webhooks/kyc", dto.KYCWebhookRequest{CustomerRef: walletID.String(), Status: "in_review"}, nil)
	h.KYCWebhook(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	c, w = newContext(http.MethodPost, "/api/v1/webhooks/kyc", dto.KYCWebhookRequest{CustomerRef: walletID.String(), Status: "maybe"}, nil)
	h.KYCWebhook(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Dashboard Handler Tests ---

func TestDashboardStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockReportingService(ctrl)
	h := NewDashboardHandler(svc, testMoney)
	businessID := uuid.New()

	svc.EXPECT().GetDashboardStats(gomock.Any(), businessID, "week").Return(&ports.BusinessStats{
		TransactionStats: ports.TransactionStats{
			TotalTransactions: 12, Completed: 11, Failed: 1,
			CreditVolume: 500000, DebitVolume: 120050, FeeVolume: 1500,
		},
		WalletsByStatus: map[domain.WalletStatus]int64{domain.WalletStatusActive: 3, domain.WalletStatusUpgraded: 1},
	}, nil)
	svc.EXPECT().GetDashboardStats(gomock.Any(), businessID, "fortnight").Return(nil, apperror.Validation("unknown period"))

	c, w := newContext(http.MethodGet, "/api/v1/dashboard/stats?period=week", nil, &businessID)
	h.GetStats(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "5000.00", data["credit_volume"])
	assert.Equal(t, "1200.50", data["debit_volume"])
	assert.Equal(t, "15.00", data["fee_volume"])
	assert.Equal(t, float64(3), data["wallets_by_status"].(map[string]any)["active"])

	c, w = newContext(http.MethodGet, "/api/v1/dashboard/stats?period=fortnight", nil, &businessID)
	h.GetStats(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
