package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/pkg/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.VNPayConfig{
		TmnCode:    "EVDMS001",
		HashSecret: "SECRETKEY",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://dealer.example/payments/vnpay/return",
		Expiry:     15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.VNPayConfig{HashSecret: "x", PayURL: "https://x"}); err == nil {
		t.Fatal("expected missing tmn code error")
	}
	if _, err := NewClient(config.VNPayConfig{TmnCode: "x", PayURL: "https://x"}); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestBuildPaymentURLSignsSortedParams(t *testing.T) {
	c := testClient(t)
	created := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)

	raw, err := c.BuildPaymentURL(PaymentRequest{
		TxnRef:    "ORD123",
		Amount:    decimal.NewFromInt(3_000_000),
		IPAddr:    "10.0.0.1",
		BankCode:  "NCB",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("vnp_Amount") != "300000000" {
		t.Fatalf("amount must be in minor units, got %s", q.Get("vnp_Amount"))
	}
	if q.Get("vnp_CreateDate") != "20260301093000" {
		t.Fatalf("create date must be GMT+7, got %s", q.Get("vnp_CreateDate"))
	}
	if q.Get("vnp_ExpireDate") != "20260301094500" {
		t.Fatalf("unexpected expire date %s", q.Get("vnp_ExpireDate"))
	}
	if q.Get("vnp_Version") != Version || q.Get("vnp_Command") != CommandPay || q.Get("vnp_CurrCode") != CurrencyVND {
		t.Fatalf("protocol fields missing: %v", q)
	}

	// the signed portion is everything before the hash, already sorted
	signedPart := strings.SplitN(u.RawQuery, "&vnp_SecureHash=", 2)[0]
	keys := []string{}
	for _, pair := range strings.Split(signedPart, "&") {
		keys = append(keys, strings.SplitN(pair, "=", 2)[0])
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("params not sorted: %v", keys)
		}
	}

	mac := hmac.New(sha512.New, []byte("SECRETKEY"))
	mac.Write([]byte(signedPart))
	if q.Get("vnp_SecureHash") != hex.EncodeToString(mac.Sum(nil)) {
		t.Fatal("secure hash mismatch")
	}
}

func TestBuildPaymentURLValidation(t *testing.T) {
	c := testClient(t)
	cases := []PaymentRequest{
		{Amount: decimal.NewFromInt(10), IPAddr: "1.1.1.1"},
		{TxnRef: "A", Amount: decimal.Zero, IPAddr: "1.1.1.1"},
		{TxnRef: "A", Amount: decimal.RequireFromString("10.005"), IPAddr: "1.1.1.1"},
		{TxnRef: "A", Amount: decimal.NewFromInt(10)},
	}
	for i, req := range cases {
		if _, err := c.BuildPaymentURL(req); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestVerifyCallbackRoundTrip(t *testing.T) {
	c := testClient(t)
	values := signedCallback("SECRETKEY", map[string]string{
		"vnp_TxnRef":            "ORD123",
		"vnp_Amount":            "300000000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14123456",
		"vnp_BankCode":          "NCB",
		"vnp_CardType":          "ATM",
		"vnp_OrderInfo":         "Thanh toan don hang ORD123",
		"vnp_PayDate":           "20260301093512",
		"vnp_TmnCode":           "EVDMS001",
	})
	values.Set("vnp_SecureHashType", "HmacSHA512")

	result, err := c.VerifyCallback(values)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Success() {
		t.Fatal("expected success")
	}
	if !result.Amount.Equal(decimal.NewFromInt(3_000_000)) {
		t.Fatalf("unexpected amount %s", result.Amount)
	}
	if result.TransactionNo != "14123456" || result.CardType != "ATM" || result.BankCode != "NCB" {
		t.Fatalf("gateway fields not copied: %+v", result)
	}
	want := time.Date(2026, 3, 1, 2, 35, 12, 0, time.UTC)
	if result.PayDate == nil || !result.PayDate.Equal(want) {
		t.Fatalf("unexpected pay date %v", result.PayDate)
	}
}

func TestVerifyCallbackRejectsTampering(t *testing.T) {
	c := testClient(t)
	values := signedCallback("SECRETKEY", map[string]string{
		"vnp_TxnRef":       "ORD123",
		"vnp_Amount":       "300000000",
		"vnp_ResponseCode": "24",
	})
	values.Set("vnp_Amount", "100")
	if _, err := c.VerifyCallback(values); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	other := signedCallback("WRONG", map[string]string{"vnp_TxnRef": "ORD123", "vnp_Amount": "100"})
	if _, err := c.VerifyCallback(other); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for wrong secret, got %v", err)
	}

	if _, err := c.VerifyCallback(url.Values{"vnp_TxnRef": {"ORD123"}}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected missing hash to fail, got %v", err)
	}
}

func TestVerifyCallbackFailureCode(t *testing.T) {
	c := testClient(t)
	values := signedCallback("SECRETKEY", map[string]string{
		"vnp_TxnRef":       "ORD9",
		"vnp_Amount":       "150000",
		"vnp_ResponseCode": "24",
	})
	result, err := c.VerifyCallback(values)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Success() {
		t.Fatal("code 24 must not be success")
	}
	if result.PayDate != nil {
		t.Fatal("pay date should be nil when absent")
	}
}

func TestNewIPNResponse(t *testing.T) {
	if got := NewIPNResponse(IPNAlreadyConfirmed); got.RspCode != "02" || got.Message != "Order already confirmed" {
		t.Fatalf("unexpected response %+v", got)
	}
	if got := NewIPNResponse("XX"); got.RspCode != IPNUnknownError {
		t.Fatalf("unknown codes map to 99, got %+v", got)
	}
}

func signedCallback(secret string, fields map[string]string) url.Values {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return SignValues(secret, values)
}
