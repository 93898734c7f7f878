package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"phantom-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(requestID string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	if requestID != "" {
		c.Set(RequestIDKey, requestID)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestSuccessEnvelopes(t *testing.T) {
	balance := map[string]string{"wallet_id": "6a1c", "balance": "47.50", "currency": "BWP"}

	tests := []struct {
		name   string
		send   func(*gin.Context, interface{})
		status int
	}{
		{"balance read", OK, http.StatusOK},
		{"payment applied", Created, http.StatusCreated},
		{"upgrade parked", Accepted, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext("req-ledger-1")
			tt.send(c, balance)

			assert.Equal(t, tt.status, w.Code)
			var resp SuccessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "req-ledger-1", resp.RequestID)
			assert.NotEmpty(t, resp.Timestamp)

			data, ok := resp.Data.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "47.50", data["balance"])
			assert.Equal(t, "BWP", data["currency"])
		})
	}
}

func TestError_LedgerRejections(t *testing.T) {
	linked := "ACC-000042"

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		kind    apperror.Kind
		details map[string]any
	}{
		{
			name:    "overdraft",
			err:     apperror.ErrInsufficientBalance(500, 1200),
			status:  http.StatusPaymentRequired,
			code:    "PAY_001",
			kind:    apperror.KindInsufficientBalance,
			details: map[string]any{"available": float64(500), "required": float64(1200)},
		},
		{
			name:    "daily cap",
			err:     apperror.ErrDailyLimitExceeded(5000, 4900, 150),
			status:  http.StatusUnprocessableEntity,
			code:    "LIM_001",
			kind:    apperror.KindPolicyViolation,
			details: map[string]any{"limit": "daily", "cap": float64(5000), "used": float64(4900), "requested": float64(150)},
		},
		{
			name:    "upgraded wallet points at its account",
			err:     apperror.ErrWalletNotActive("upgraded", &linked),
			status:  http.StatusConflict,
			code:    "WAL_002",
			kind:    apperror.KindInvalidState,
			details: map[string]any{"status": "upgraded", "linked_account_ref": "ACC-000042"},
		},
		{
			name:   "upgrade already open",
			err:    apperror.ErrUpgradeInProgress(),
			status: http.StatusConflict,
			code:   "UPG_001",
			kind:   apperror.KindInvalidState,
		},
		{
			name:   "wrapped signature failure",
			err:    fmt.Errorf("verify channel request: %w", apperror.ErrInvalidSignature()),
			status: http.StatusUnauthorized,
			code:   "SEC_002",
			kind:   apperror.KindUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext("req-ledger-2")
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, "req-ledger-2", resp.RequestID)
			for k, v := range tt.details {
				assert.Equal(t, v, resp.Details[k], k)
			}

			code, ok := c.Get(ErrorCodeKey)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestError_HidesInternalCause(t *testing.T) {
	c, w := testContext("")
	Error(c, fmt.Errorf("commit tx: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	resp := decodeError(t, w)
	assert.Equal(t, "SYS_000", resp.ErrorCode)
	assert.Equal(t, apperror.KindInternal, resp.Kind)
	assert.Empty(t, resp.Details)
	assert.NotEmpty(t, resp.RequestID)
}

func TestError_AppErrorKeepsWrappedCauseOutOfBody(t *testing.T) {
	c, w := testContext("req-ledger-3")
	Error(c, apperror.ErrCollaboratorUnavailable("bank", fmt.Errorf("dial tcp 10.0.0.9:443: i/o timeout")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.9")
	assert.Equal(t, apperror.KindCollaboratorUnavailable, decodeError(t, w).Kind)
}

func TestRequestID_GeneratedOncePerCall(t *testing.T) {
	c, w := testContext("")
	OK(c, nil)

	var first SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Len(t, first.RequestID, 36)
	assert.Nil(t, first.Data)
}
