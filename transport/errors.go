package transport

import "errors"

// ErrConnectionClosed is returned by send methods after Close.
var ErrConnectionClosed = errors.New("transport: connection closed")
