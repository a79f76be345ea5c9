package inworld

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/charlink/internal/protocol"
	"github.com/ent0n29/charlink/internal/reliability"
)

var (
	// ErrConnectionClosed is returned by every operation after Close.
	ErrConnectionClosed = errors.New("inworld connection closed")
	// ErrDisconnected fails requests that were in flight when the socket dropped.
	ErrDisconnected = errors.New("inworld connection lost")
)

// Error is a failure reported by the character service.
type Error struct {
	Op        string
	Code      string
	Message   string
	Status    int
	Retryable bool
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("inworld")
	if e.Op != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Op)
	}
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.Status)
	}
	if e.Code != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}

func gatewayError(op string, body *protocol.ErrorBody) *Error {
	if body == nil {
		return &Error{Op: op, Code: "unknown", Message: "request failed"}
	}
	return &Error{
		Op:        op,
		Code:      body.Code,
		Message:   body.Message,
		Retryable: reliability.IsRetryableGatewayCode(body.Code),
	}
}
