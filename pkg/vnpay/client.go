// Package vnpay builds signed VNPay redirect URLs and verifies signed gateway callbacks.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdms/dealer-backend/pkg/config"
)

const (
	Version          = "2.1.0"
	CommandPay       = "pay"
	CurrencyVND      = "VND"
	DefaultOrderType = "other"
	ResponseOK       = "00"

	timeLayout        = "20060102150405"
	secureHashKey     = "vnp_SecureHash"
	secureHashTypeKey = "vnp_SecureHashType"
)

// ErrInvalidSignature is returned when a callback's vnp_SecureHash does not match the recomputed HMAC.
var ErrInvalidSignature = errors.New("vnpay: invalid signature")

// The gateway stamps and expects timestamps in Vietnam time.
var gatewayZone = time.FixedZone("GMT+7", 7*60*60)

// Client signs outbound requests and verifies inbound callbacks with the merchant hash secret.
type Client struct {
	cfg config.VNPayConfig
	now func() time.Time
}

func NewClient(cfg config.VNPayConfig) (*Client, error) {
	if strings.TrimSpace(cfg.TmnCode) == "" {
		return nil, errors.New("vnpay tmn code is required")
	}
	if strings.TrimSpace(cfg.HashSecret) == "" {
		return nil, errors.New("vnpay hash secret is required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, errors.New("vnpay pay url is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 15 * time.Minute
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	return &Client{cfg: cfg, now: time.Now}, nil
}

// PaymentRequest describes one outbound redirect.
type PaymentRequest struct {
	TxnRef    string
	Amount    decimal.Decimal
	OrderInfo string
	OrderType string
	Locale    string
	IPAddr    string
	BankCode  string
	ReturnURL string
	CreatedAt time.Time
}

// BuildPaymentURL returns the gateway URL carrying the sorted, signed vnp_* parameters.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", errors.New("txn ref is required")
	}
	if !req.Amount.IsPositive() {
		return "", errors.New("amount must be positive")
	}
	minor := req.Amount.Mul(decimal.NewFromInt(100))
	if !minor.Equal(minor.Truncate(0)) {
		return "", fmt.Errorf("amount %s has sub-minor precision", req.Amount)
	}
	if strings.TrimSpace(req.IPAddr) == "" {
		return "", errors.New("client ip is required")
	}

	created := req.CreatedAt
	if created.IsZero() {
		created = c.now()
	}
	created = created.In(gatewayZone)

	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", CommandPay)
	params.Set("vnp_TmnCode", c.cfg.TmnCode)
	params.Set("vnp_Amount", minor.StringFixed(0))
	params.Set("vnp_CurrCode", CurrencyVND)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", firstNonEmpty(req.OrderInfo, "Thanh toan don hang "+req.TxnRef))
	params.Set("vnp_OrderType", firstNonEmpty(req.OrderType, DefaultOrderType))
	params.Set("vnp_Locale", firstNonEmpty(req.Locale, c.cfg.Locale))
	params.Set("vnp_ReturnUrl", firstNonEmpty(req.ReturnURL, c.cfg.ReturnURL))
	params.Set("vnp_IpAddr", req.IPAddr)
	params.Set("vnp_CreateDate", created.Format(timeLayout))
	params.Set("vnp_ExpireDate", created.Add(c.cfg.Expiry).Format(timeLayout))
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	query := canonicalQuery(params)
	return c.cfg.PayURL + "?" + query + "&" + secureHashKey + "=" + Sign(c.cfg.HashSecret, query), nil
}

// CallbackResult is the verified content of a return or IPN callback.
type CallbackResult struct {
	TxnRef            string
	Amount            decimal.Decimal
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	CardType          string
	OrderInfo         string
	PayDate           *time.Time
}

// Success reports whether the gateway settled the payment.
func (r CallbackResult) Success() bool {
	return r.ResponseCode == ResponseOK
}

// VerifyCallback recomputes the signature over every received vnp_* field except the hash fields.
func (c *Client) VerifyCallback(values url.Values) (*CallbackResult, error) {
	received := values.Get(secureHashKey)
	if received == "" {
		return nil, ErrInvalidSignature
	}
	signed := url.Values{}
	for key, vals := range values {
		if key == secureHashKey || key == secureHashTypeKey || !strings.HasPrefix(key, "vnp_") {
			continue
		}
		signed[key] = vals
	}
	expected := Sign(c.cfg.HashSecret, canonicalQuery(signed))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(received))) {
		return nil, ErrInvalidSignature
	}

	result := &CallbackResult{
		TxnRef:            values.Get("vnp_TxnRef"),
		ResponseCode:      values.Get("vnp_ResponseCode"),
		TransactionStatus: values.Get("vnp_TransactionStatus"),
		TransactionNo:     values.Get("vnp_TransactionNo"),
		BankCode:          values.Get("vnp_BankCode"),
		CardType:          values.Get("vnp_CardType"),
		OrderInfo:         values.Get("vnp_OrderInfo"),
	}
	if result.TxnRef == "" {
		return nil, errors.New("vnp_TxnRef missing")
	}
	minor, err := decimal.NewFromString(values.Get("vnp_Amount"))
	if err != nil {
		return nil, fmt.Errorf("parse vnp_Amount: %w", err)
	}
	result.Amount = minor.Div(decimal.NewFromInt(100)).Round(2)
	if raw := values.Get("vnp_PayDate"); raw != "" {
		paid, err := time.ParseInLocation(timeLayout, raw, gatewayZone)
		if err != nil {
			return nil, fmt.Errorf("parse vnp_PayDate: %w", err)
		}
		paid = paid.UTC()
		result.PayDate = &paid
	}
	return result, nil
}

// SignValues returns a copy of values carrying the vnp_SecureHash the gateway would attach.
func SignValues(secret string, values url.Values) url.Values {
	signed := url.Values{}
	for key, vals := range values {
		if key == secureHashKey || key == secureHashTypeKey {
			continue
		}
		signed[key] = append([]string(nil), vals...)
	}
	signed.Set(secureHashKey, Sign(secret, canonicalQuery(signed)))
	return signed
}

// Sign returns the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery joins non-empty fields as key=value pairs sorted by key with values query-escaped.
func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if values.Get(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values.Get(key)))
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
