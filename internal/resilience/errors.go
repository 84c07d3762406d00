package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/chr1sbest/lotrunner/internal/portal"
)

// PermanentError wraps an error to mark it as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps an error to indicate it should not be retried.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TransientError wraps an error to mark it as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error to explicitly indicate it should be retried.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanentError checks if an error is marked as permanent (non-retryable).
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return true
	}

	var transErr *TransientError
	if errors.As(err, &transErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return classifyError(err)
}

// IsTransientError checks if an error is transient (retryable).
func IsTransientError(err error) bool {
	return err != nil && !IsPermanentError(err)
}

// classifyError determines if an error is permanent based on its type.
func classifyError(err error) bool {
	// A missing element or prompt will not appear by retrying the same
	// wire call; waiting for elements is the driver's WaitFor job.
	if errors.Is(err, portal.ErrNotFound) || errors.Is(err, portal.ErrNoPrompt) {
		return true
	}

	// Wire timeouts to the browser driver are transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return false
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return true
		}
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.EACCES, syscall.EPERM, syscall.ENOENT, syscall.ENOTDIR:
			return true
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return false
		}
	}

	// Default: assume transient (allow retry)
	return false
}
