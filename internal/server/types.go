package server

import (
	"errors"
	"strings"
)

// errSendBufferFull is returned when a client's outbound queue is full.
// The client is closed and goes through the normal disconnect path.
var errSendBufferFull = errors.New("send buffer full")

// inboundMessage is one frame read from a client, handed to the hub.
// The hub answers on result so the reader can stop on malformed input.
type inboundMessage struct {
	client *Client
	data   []byte
	result chan error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
