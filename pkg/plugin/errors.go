package plugin

import "errors"

var (
	// ErrOrderInvalid makes the dispatcher answer with the order_invalid reply.
	ErrOrderInvalid = errors.New("order invalid")
	// ErrOrderSuspicious drops the order silently.
	ErrOrderSuspicious = errors.New("order suspicious")
	// ErrOrderRepetitionExceeded makes the dispatcher answer with the
	// order_repetition_exceeded reply.
	ErrOrderRepetitionExceeded = errors.New("order repetition exceeded")
	// ErrSettingsRejected means a plugin refused new settings; the previous
	// settings stay in place.
	ErrSettingsRejected = errors.New("settings rejected")
)

// OrderError is a domain failure carrying the reply to send.
type OrderError struct {
	Reply string
}

func (e *OrderError) Error() string {
	return "order error: " + e.Reply
}

func NewOrderError(reply string) *OrderError {
	return &OrderError{Reply: reply}
}
