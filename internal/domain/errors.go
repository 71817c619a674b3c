package domain

import "errors"

// RetriableError is implemented by errors that know whether the failed
// operation may be attempted again.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether err carries a RetriableError that allows a retry.
// Plain errors are not retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// IsFatal reports whether err carries a RetriableError that forbids a retry.
// Feed supervisors reconnect on anything else, plain I/O errors included.
func IsFatal(err error) bool {
	var re RetriableError
	return errors.As(err, &re) && !re.IsRetriable()
}

// NetworkError is a failed venue operation (dial, subscribe, read, REST call).
type NetworkError struct {
	Op        string
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool { return e.Retriable }

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError wraps err as a retriable failure of op.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError wraps err as a failure the venue will keep returning,
// such as a rejected subscription.
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError points at the config field that failed validation. Never retriable.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool { return false }

func (e *ConfigError) Unwrap() error { return e.Err }

var (
	// ErrInvalidSymbol: the venue or config does not know the symbol, or the
	// symbol cannot be used as a storage key.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrStaleSnapshot: a venue snapshot older than the last one applied.
	ErrStaleSnapshot = errors.New("stale snapshot")

	// ErrNotConnected: Subscribe or Run called before Connect.
	ErrNotConnected = errors.New("not connected")

	ErrConfigNotFound = errors.New("configuration not found")
)
