package vnpay

// IPN response codes the gateway expects back from the merchant endpoint.
const (
	IPNConfirmed        = "00"
	IPNOrderNotFound    = "01"
	IPNAlreadyConfirmed = "02"
	IPNInvalidAmount    = "04"
	IPNInvalidSignature = "97"
	IPNUnknownError     = "99"
)

// IPNResponse is the JSON body returned to the gateway's server-to-server callback.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var ipnMessages = map[string]string{
	IPNConfirmed:        "Confirm Success",
	IPNOrderNotFound:    "Order not found",
	IPNAlreadyConfirmed: "Order already confirmed",
	IPNInvalidAmount:    "Invalid amount",
	IPNInvalidSignature: "Invalid signature",
	IPNUnknownError:     "Unknown error",
}

// NewIPNResponse pairs a response code with its conventional message.
func NewIPNResponse(code string) IPNResponse {
	msg, ok := ipnMessages[code]
	if !ok {
		code, msg = IPNUnknownError, ipnMessages[IPNUnknownError]
	}
	return IPNResponse{RspCode: code, Message: msg}
}
