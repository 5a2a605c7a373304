package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthTooSmall and ErrLengthTooLarge are framing failures; once
	// either is observed the stream is no longer trustworthy.
	ErrLengthTooSmall = errors.New("protocol: packet length below minimum")
	ErrLengthTooLarge = errors.New("protocol: implausible packet length")

	ErrTruncated           = errors.New("protocol: truncated data")
	ErrChannelClosed       = errors.New("protocol: channel is being closed")
	ErrHandshakeTimeout    = errors.New("protocol: no initialization response before deadline")
	ErrVersionUnsupported  = errors.New("protocol: unsupported protocol version")
	ErrVersionNotAvailable = errors.New("protocol: selected version not available")
)

// StatusError is a server-reported failure carried by a STATUS packet.
// Type records the request type the status answers.
type StatusError struct {
	Type     uint8
	ID       uint32
	Code     uint32
	Message  string
	Language string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protocol: %s request id=%d failed: %s (%s)",
		TypeString(e.Type), e.ID, StatusString(e.Code), e.Message)
}

// UnexpectedPacketError reports a packet whose type does not fit the current
// protocol context (e.g. anything but VERSION or STATUS during the handshake).
type UnexpectedPacketError struct {
	Context  uint8
	Expected uint8
	ID       uint32
	Actual   uint8
	Length   uint32
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("protocol: unexpected %s packet (id=%d, len=%d) while handling %s, expected %s",
		TypeString(e.Actual), e.ID, e.Length, TypeString(e.Context), TypeString(e.Expected))
}
