package dto

import (
	"testing"
	"time"

	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := RegisterRequest{
		Name:     " Kgosi Traders ",
		Email:    "  ops@kgosi.co.bw ",
		Password: "  pass1234  ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "Kgosi Traders", req.Name)
	assert.Equal(t, "ops@kgosi.co.bw", req.Email)
	assert.Equal(t, "  pass1234  ", req.Password, "passwords are never rewritten")
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := CreateWalletRequest{CustomerName: "Mpho <script>alert('x')</script>"}
	SanitizeStruct(&req)

	assert.Contains(t, req.CustomerName, "&lt;script&gt;")
	assert.NotContains(t, req.CustomerName, "<script>")
}

func TestSanitizeStruct_HandlesPointerAndMap(t *testing.T) {
	email := "  mpho@example.co.bw  "
	req := ChannelPaymentRequest{
		Reference: " ussd-001 ",
		Metadata:  map[string]string{"note": "  <b>airtime</b> "},
	}
	wallet := CreateWalletRequest{CustomerName: "Mpho", CustomerEmail: &email}

	SanitizeStruct(&req)
	SanitizeStruct(&wallet)

	assert.Equal(t, "ussd-001", req.Reference)
	assert.Equal(t, "&lt;b&gt;airtime&lt;/b&gt;", req.Metadata["note"])
	assert.Equal(t, "mpho@example.co.bw", *wallet.CustomerEmail)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := CreateWalletRequest{CustomerName: "Mpho"}
	SanitizeStruct(&req)
	assert.Nil(t, req.CustomerEmail)
	assert.Nil(t, req.DailyLimit)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"ref-001", "REF_002", "a.b.c", "FNB-0001"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestChannelPaymentRequest_Binding(t *testing.T) {
	walletID := uuid.NewString()
	valid := ChannelPaymentRequest{
		Channel:   "ussd",
		WalletID:  &walletID,
		Direction: "credit",
		Amount:    "25.00",
		Reference: "ussd-2026/03/001",
	}
	require.NoError(t, binding.Validator.ValidateStruct(valid))

	tests := []struct {
		name   string
		mutate func(r *ChannelPaymentRequest)
	}{
		{"internal channel", func(r *ChannelPaymentRequest) { r.Channel = "upgrade" }},
		{"unknown channel", func(r *ChannelPaymentRequest) { r.Channel = "bitcoin" }},
		{"reserved colon", func(r *ChannelPaymentRequest) { r.Reference = "ussd-001:reversal" }},
		{"long reference", func(r *ChannelPaymentRequest) { r.Reference = string(make([]byte, 101)) }},
		{"short token", func(r *ChannelPaymentRequest) { r.AccessToken = "12345" }},
		{"alpha token", func(r *ChannelPaymentRequest) { r.AccessToken = "12a456" }},
		{"negative amount", func(r *ChannelPaymentRequest) { r.Amount = "-1.00" }},
		{"garbage amount", func(r *ChannelPaymentRequest) { r.Amount = "ten" }},
		{"direction", func(r *ChannelPaymentRequest) { r.Direction = "sideways" }},
		{"wallet id", func(r *ChannelPaymentRequest) { bad := "w-1"; r.WalletID = &bad }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, binding.Validator.ValidateStruct(req))
		})
	}
}

func TestTransferRequest_SameWalletRejected(t *testing.T) {
	id := uuid.NewString()
	req := TransferRequest{FromWalletID: id, ToWalletID: id, Amount: "1.00", Reference: "t-1"}
	assert.Error(t, binding.Validator.ValidateStruct(req))

	req.ToWalletID = uuid.NewString()
	assert.NoError(t, binding.Validator.ValidateStruct(req))
}

// --- Money ---

func TestMoney_Parse(t *testing.T) {
	m := Money{MinorUnits: 2}
	tests := []struct {
		in   string
		want int64
		code string
	}{
		{"12.50", 1250, ""},
		{"0", 0, ""},
		{" 49.00 ", 4900, ""},
		{"5000", 500000, ""},
		{"1.005", 0, "PAY_002"},
		{"-1", 0, "PAY_002"},
		{"abc", 0, "PAY_002"},
		{"100000000000000000", 0, "PAY_002"},
	}
	for _, tt := range tests {
		got, err := m.Parse(tt.in)
		if tt.code != "" {
			assert.Equal(t, tt.code, apperror.Code(err), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	none, err := m.ParseOptional(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMoney_Format(t *testing.T) {
	m := Money{MinorUnits: 2}
	assert.Equal(t, "12.50", m.Format(1250))
	assert.Equal(t, "0.00", m.Format(0))
	assert.Equal(t, "-1.05", m.Format(-105))
}

// --- Cursor ---

func TestCursor_RoundTrip(t *testing.T) {
	in := &ports.Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC), ID: uuid.New()}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)

	first, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, first)
	assert.Empty(t, EncodeCursor(nil))

	for _, bad := range []string{"!!", "bm9waXBl", "MjAyNi0wMy0wMXxub3QtYS11dWlk"} {
		_, err := DecodeCursor(bad)
		assert.Equal(t, "PAY_002", apperror.Code(err), bad)
	}
}
