package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ValidationError for id and status classification.
var (
	ErrInvalidID     = errors.New("id must be a str or int")
	ErrInvalidStatus = errors.New("status must be None, str or int")
)

// ValidationError reports a bad identifier or a bad id/status type.
// Validation errors are raised locally, before any request is sent.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigMismatchError is returned by New when the tracker declares a client
// version different from the one this archivist was built for.
// The archivist must be upgraded; the client is unusable.
type ConfigMismatchError struct {
	Local  string
	Remote string
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("client_version mismatch: local %q, tracker wants %q, please upgrade your client", e.Local, e.Remote)
}

// RemoteError carries a non-success HTTP response from the tracker.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: tracker returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransportError wraps a network or timeout failure of a functional call.
// Probe failures during endpoint selection are recorded, not returned.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRemoteStatus reports whether err is a *RemoteError with the given status code.
func IsRemoteStatus(err error, code int) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == code
}
