package gateway

import "errors"

var (
	// ErrConnectionFailed is returned when the transport cannot be
	// opened.
	ErrConnectionFailed = errors.New("gateway: connection failed")

	// ErrNotConnected is returned when sending while the transport is
	// down.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrSendFailed is returned when writing a frame to the transport
	// fails.
	ErrSendFailed = errors.New("gateway: send failed")
)
