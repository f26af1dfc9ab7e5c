// Package ajaerr defines the error kinds shared by the capture and playout
// engines (see §7 of the design: device, mode, routing, allocator, transfer,
// drift, QoS, and configuration failures).
package ajaerr

import "github.com/pkg/errors"

// Kind classifies an error so callers can recover it with KindOf, even
// after further wrapping with pkg/errors.
type Kind int

const (
	// DeviceUnavailable: the identifier resolves to no device, or the
	// device is not ready.
	DeviceUnavailable Kind = iota
	// UnsupportedMode: the requested format is unknown to the device or
	// to this core's capability table.
	UnsupportedMode
	// RoutingFailed: cross-point application returned failure.
	RoutingFailed
	// AllocatorExhausted: pool acquisition failed.
	AllocatorExhausted
	// TransferFailed: a single DMA transfer call failed.
	TransferFailed
	// ModeDrift: detected input format differs from configured (source
	// only); never fatal, rendered as a signal-loss event.
	ModeDrift
	// QoSOverrun: producer dropped a queued Frame to stay within capacity.
	QoSOverrun
	// QoSDropped: the driver reported dropped frames on its own ring.
	QoSDropped
	// FatalConfig: failure during the configuration protocol; the
	// element posts an error and aborts.
	FatalConfig
)

func (k Kind) String() string {
	switch k {
	case DeviceUnavailable:
		return "DeviceUnavailable"
	case UnsupportedMode:
		return "UnsupportedMode"
	case RoutingFailed:
		return "RoutingFailed"
	case AllocatorExhausted:
		return "AllocatorExhausted"
	case TransferFailed:
		return "TransferFailed"
	case ModeDrift:
		return "ModeDrift"
	case QoSOverrun:
		return "QoSOverrun"
	case QoSDropped:
		return "QoSDropped"
	case FatalConfig:
		return "FatalConfig"
	default:
		return "Unknown"
	}
}

// kindError pairs a Kind with the pkg/errors-wrapped cause. Its Cause method
// returns that inner error, so errors.Cause walks past it; KindOf finds the
// kindError by type assertion along the same chain.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.err.Error() }
func (e *kindError) Cause() error  { return e.err }
func (e *kindError) Unwrap() error { return e.err }

// New wraps err (which may already carry a pkg/errors stack) with kind.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Newf is New(kind, errors.Errorf(format, args...)).
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, errors.Errorf(format, args...))
}

// KindOf recovers the Kind attached to err, if any, and whether one was
// found. It walks the errors.Cause() chain so wrapping with
// errors.Wrap(err, "...") after New doesn't lose the Kind.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind, true
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		next := cause.Cause()
		if next == err || next == nil {
			break
		}
		err = next
	}
	return 0, false
}

// Fatal reports whether an error of this kind always aborts the
// configuration-phase caller synchronously (§7 propagation policy).
func (k Kind) Fatal() bool {
	switch k {
	case FatalConfig, DeviceUnavailable, UnsupportedMode, RoutingFailed:
		return true
	default:
		return false
	}
}
