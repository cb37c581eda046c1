package predictor

import "errors"

// Kind classifies prediction failures for transports.
type Kind string

const (
	// KindInput means the request was unusable. Nothing was fetched.
	KindInput Kind = "input"
	// KindInsufficientData means no variable had enough history to model.
	KindInsufficientData Kind = "insufficient_data"
	// KindUpstream means history could not be gathered before the deadline.
	KindUpstream Kind = "upstream"
)

// Error is a prediction failure with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindUpstream {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrNoDate           = &Error{Kind: KindInput, Message: "No date provided"}
	ErrInvalidDate      = &Error{Kind: KindInput, Message: "Invalid date"}
	ErrInsufficientData = &Error{Kind: KindInsufficientData, Message: "Not enough historical data"}
)

// KindOf returns the Kind of err, or "" when err is not a prediction Error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

func inputError(msg string, cause error) *Error {
	return &Error{Kind: KindInput, Message: msg, Err: cause}
}

func upstreamError(cause error) *Error {
	return &Error{Kind: KindUpstream, Message: "Historical data unavailable", Err: cause}
}
