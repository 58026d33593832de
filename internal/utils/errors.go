package utils

import "fmt"

// ValidationError represents an error occurring during input or pre-flight validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// BusyError is returned when an admission slot for a venue is already held by
// another in-flight execution. Stacking concurrent financial operations against
// the same venue is rejected immediately, never queued.
type BusyError struct {
	Key      string
	HolderID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("execution already in progress for %s (held by %s)", e.Key, e.HolderID)
}

func NewBusyError(key, holderID string) error {
	return &BusyError{Key: key, HolderID: holderID}
}

// InsufficientBalanceError indicates the source venue balance cannot cover the
// requested trade amount plus fee buffer.
type InsufficientBalanceError struct {
	Venue     string
	Asset     string
	Required  string
	Available string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance on %s: need %s, have %s", e.Asset, e.Venue, e.Required, e.Available)
}

func NewInsufficientBalanceError(venue, asset, required, available string) error {
	return &InsufficientBalanceError{Venue: venue, Asset: asset, Required: required, Available: available}
}

// PriceUnavailableError indicates no usable quote exists for a venue/pair.
type PriceUnavailableError struct {
	Venue string
	Pair  string
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("no usable price for %s on %s", e.Pair, e.Venue)
}

// DepositTimeoutError indicates an on-chain transfer did not arrive on the
// destination venue within the monitoring window. Funds are in flight but
// unconfirmed, not lost; this is reported distinctly from other failures.
type DepositTimeoutError struct {
	Venue        string
	Asset        string
	WithdrawalID string
	Waited       string
}

func (e *DepositTimeoutError) Error() string {
	return fmt.Sprintf("deposit of %s on %s not confirmed after %s (withdrawal %s)", e.Asset, e.Venue, e.Waited, e.WithdrawalID)
}

// ExchangeAPIError wraps any upstream venue failure with the venue name and the
// raw message returned by its API.
type ExchangeAPIError struct {
	Venue      string
	Operation  string
	RawMessage string
	Err        error
}

func (e *ExchangeAPIError) Error() string {
	if e.RawMessage != "" {
		return fmt.Sprintf("%s %s failed: %s", e.Venue, e.Operation, e.RawMessage)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Venue, e.Operation, e.Err)
}

func (e *ExchangeAPIError) Unwrap() error {
	return e.Err
}

func NewExchangeAPIError(venue, operation, rawMessage string, err error) error {
	return &ExchangeAPIError{Venue: venue, Operation: operation, RawMessage: rawMessage, Err: err}
}

// FatalSafetyError marks a condition that risks irrecoverable loss of funds,
// such as a missing destination tag on a tag-required ledger. It must never be
// bypassed by configuration.
type FatalSafetyError struct {
	Message string
}

func (e *FatalSafetyError) Error() string {
	return "FUND LOSS RISK: " + e.Message
}

func NewFatalSafetyErrorf(format string, args ...interface{}) error {
	return &FatalSafetyError{Message: fmt.Sprintf(format, args...)}
}
