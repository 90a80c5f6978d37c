package teeworlds

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrDecode is returned for bytes that are not valid UTF-8 text.
	ErrDecode = errors.New("decode error")
	// ErrParse is returned for text that is not a decimal integer.
	ErrParse = errors.New("parse error")
	// ErrTransport wraps send and receive failures of the Conn.
	ErrTransport = errors.New("transport error")
	// ErrMissingField is returned when a datagram ends before a required field.
	ErrMissingField = errors.New("missing field")
	// ErrDuplicatePacket is returned for a continuation whose sequence number was already seen.
	ErrDuplicatePacket = errors.New("repeated packet")
)

// TokenError reports a response whose echoed tokens differ from the request.
type TokenError struct {
	WantedExtraToken   uint16
	WantedToken        uint8
	ReceivedExtraToken uint16
	ReceivedToken      uint8
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token received by server is invalid: wanted %d/%d, got %d/%d",
		e.WantedExtraToken, e.WantedToken, e.ReceivedExtraToken, e.ReceivedToken)
}
