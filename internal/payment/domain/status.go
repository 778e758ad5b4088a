package domain

// Status is the lifecycle state of a service-fee payment
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a raw string into a known Status
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusFailed, StatusExpired, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition may leave this status
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired || s == StatusCancelled
}

// CanTransitionTo reports whether the state machine allows s -> next.
// Only pending may move, and only into a terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next.IsTerminal()
}

// IsOpen reports whether the status counts against the one-open-payment-per-job rule
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusPaid
}

// Method is the payment channel chosen by the employer
type Method string

const (
	MethodPromptPay    Method = "promptpay"
	MethodBankTransfer Method = "bank_transfer"
	MethodCreditCard   Method = "credit_card"
)

// Valid reports whether m is a supported payment method
func (m Method) Valid() bool {
	switch m {
	case MethodPromptPay, MethodBankTransfer, MethodCreditCard:
		return true
	default:
		return false
	}
}

// Source identifies which actor requested a transition
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweeper Source = "sweeper"
	SourceUser    Source = "user"
)
