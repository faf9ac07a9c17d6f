package domain

import "errors"

var (
	// ErrMediaAcquisition is fatal to the sender flow and surfaced to the operator.
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrSignalingParse leaves the session untouched; the operator re-enters the text.
	ErrSignalingParse = errors.New("malformed exchange text")
	// ErrSignalingApply is returned for well-formed descriptions that do not fit
	// the current negotiation phase.
	ErrSignalingApply = errors.New("session description not applicable")
	// ErrNegotiationTimeout is logged only; the best-effort description stays exported.
	ErrNegotiationTimeout = errors.New("ice gathering did not complete")

	ErrRecordingStartRejected = errors.New("recording start rejected")
	ErrRecordingStopRejected  = errors.New("recording stop rejected")
	// ErrRecordingEmpty is returned by a stop that captured no playable media.
	// The previous artifact stays published.
	ErrRecordingEmpty = errors.New("recording captured no media")

	ErrSessionClosed = errors.New("session closed")
)
