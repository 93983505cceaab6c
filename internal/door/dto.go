package door

import "time"

// ResultCode classifies a door decision for display and metrics.
type ResultCode string

const (
	ResultAdmitted       ResultCode = "admitted"
	ResultInvalidQR      ResultCode = "invalid_qr"
	ResultOrderNotFound  ResultCode = "order_not_found"
	ResultNotVerified    ResultCode = "order_not_verified"
	ResultLegacyOrder    ResultCode = "legacy_order"
	ResultTicketNotFound ResultCode = "ticket_not_found"
	ResultAlreadyUsed    ResultCode = "already_used"
	ResultTicketInvalid  ResultCode = "ticket_invalid"
	ResultUpdateFailed   ResultCode = "update_failed"
)

// Result is the verdict shown to door staff. Rejections are results, not errors.
type Result struct {
	Success        bool       `json:"success"`
	Code           ResultCode `json:"code"`
	Message        string     `json:"message"`
	OrderNumber    string     `json:"order_number,omitempty"`
	TicketID       string     `json:"ticket_id,omitempty"`
	TicketType     string     `json:"ticket_type,omitempty"`
	CustomerName   string     `json:"customer_name,omitempty"`
	ScannedAt      *time.Time `json:"scanned_at,omitempty"`
	KnownTicketIDs []string   `json:"known_ticket_ids,omitempty"`
}

func reject(code ResultCode, message string) Result {
	return Result{Code: code, Message: message}
}
