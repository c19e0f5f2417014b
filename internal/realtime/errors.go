package realtime

import "errors"

var (
	// ErrServerClosed is returned by Broadcast after Close.
	ErrServerClosed = errors.New("realtime: server closed")

	// ErrUnsupportedBroker is returned for a broker URL with an unknown scheme.
	ErrUnsupportedBroker = errors.New("realtime: unsupported broker url")

	// ErrBackplaneConnect is returned when either backplane connection fails.
	ErrBackplaneConnect = errors.New("realtime: backplane connection failed")

	// ErrBackplaneClosed is returned when publishing on a closed backplane.
	ErrBackplaneClosed = errors.New("realtime: backplane closed")
)
