// Package server defines shared helper types that are reused across client
// and hub logic.
package server

import (
	"errors"
	"net"
	"strings"
)

// inboundFrame is one raw frame read from a client, queued for the hub.
type inboundFrame struct {
	client  *Client
	payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
