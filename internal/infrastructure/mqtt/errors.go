package mqtt

import "errors"

// Errors returned by Client. Check with errors.Is.
var (
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrTimeout           = errors.New("mqtt: operation timed out")
	ErrInvalidTopic      = errors.New("mqtt: topic cannot be empty")
	ErrInvalidQoS        = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
