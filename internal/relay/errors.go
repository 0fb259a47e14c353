package relay

import "errors"

// Domain-specific errors for the relay pipeline.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidJSON is returned by ParseJSON when the input is not exactly one JSON document.
	ErrInvalidJSON = errors.New("relay: invalid JSON")

	// ErrTopicMismatch is returned when a topic does not have the device status shape.
	ErrTopicMismatch = errors.New("relay: topic does not match status/AMT<device id>")

	// ErrNotConnected is returned when the outbound publisher is disconnected.
	ErrNotConnected = errors.New("relay: forward client not connected")

	// ErrPublishFailed is returned when publishing an envelope fails.
	ErrPublishFailed = errors.New("relay: publish failed")

	// ErrEncodeFailed is returned when an envelope cannot be serialised.
	ErrEncodeFailed = errors.New("relay: encoding envelope failed")

	// ErrSubscribeFailed is returned when a device topic subscription fails.
	ErrSubscribeFailed = errors.New("relay: subscribe failed")

	// ErrDrainTimeout is returned by Listener.Stop when in-flight messages
	// did not finish within the drain timeout.
	ErrDrainTimeout = errors.New("relay: drain timeout exceeded")

	// ErrInvalidConfig is returned when a component is constructed with missing collaborators.
	ErrInvalidConfig = errors.New("relay: invalid configuration")
)
