package mqtt

import "errors"

// Sentinel errors; match with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrConnectionRefused wraps a CONNACK refusal such as bad credentials.
	// It always comes wrapped together with ErrConnectionFailed.
	ErrConnectionRefused = errors.New("mqtt: refused by broker")

	// ErrInvalidQoS rejects QoS values above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic rejects empty topics, and wildcard topics on publish.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
