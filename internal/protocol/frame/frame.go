// Package frame turns the raw byte stream of the subsystem channel into
// complete, length-delimited packets, and builds outbound frames.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/sftpwire/internal/protocol"
)

const (
	// PrefixLen is the size of the length prefix; the length field counts
	// every byte after itself.
	PrefixLen = 4

	// MinLength is the smallest legal length field: type byte plus request id.
	MinLength = 5

	// MaxLength is the sanity ceiling on the length field, 8x the maximum
	// payload the underlying channel is required to support. Anything above
	// it means the stream is corrupted, not that a big packet is in flight.
	MaxLength = 8 * 32768
)

// Encode builds one generic frame: length | type | request id | payload.
func Encode(typ uint8, id uint32, payload []byte) []byte {
	buf := make([]byte, PrefixLen+MinLength, PrefixLen+MinLength+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(MinLength+len(payload)))
	buf[4] = typ
	binary.BigEndian.PutUint32(buf[5:9], id)
	return append(buf, payload...)
}

// EncodeBare builds a frame with no request id field: length | type | body.
// Only the two handshake types are framed this way.
func EncodeBare(typ uint8, body []byte) []byte {
	buf := make([]byte, PrefixLen+1, PrefixLen+1+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(body)))
	buf[4] = typ
	return append(buf, body...)
}

// Reassembler retains the partial tail between deliveries and slices complete
// packets out of the combined stream. It is owned by the single delivery
// goroutine and needs no locking.
type Reassembler struct {
	carry []byte
}

func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Deliver appends chunk to any retained tail and emits every complete packet
// in arrival order. It returns the number of bytes of the combined buffer
// consumed by fully-processed packets.
//
// The slice passed to emit is only valid for the duration of the call; emit
// must copy if it files the packet away. An emit error aborts the delivery
// and is returned as-is; a framing error means the stream is corrupt and the
// reassembler must not be fed again.
func (r *Reassembler) Deliver(chunk []byte, emit func(pkt []byte) error) (int, error) {
	buf := chunk
	if len(r.carry) > 0 {
		r.carry = append(r.carry, chunk...)
		buf = r.carry
	}

	consumed := 0
	for len(buf) > PrefixLen {
		length := binary.BigEndian.Uint32(buf[0:PrefixLen])
		if length < MinLength {
			return consumed, fmt.Errorf("frame: length %d: %w", length, protocol.ErrLengthTooSmall)
		}
		if length > MaxLength {
			return consumed, fmt.Errorf("frame: length %d: %w", length, protocol.ErrLengthTooLarge)
		}
		total := PrefixLen + int(length)
		if len(buf) < total {
			break
		}
		if err := emit(buf[:total]); err != nil {
			return consumed, err
		}
		buf = buf[total:]
		consumed += total
	}

	// Compact: keep only the unconsumed tail so fully-processed prefixes
	// never accumulate.
	r.carry = append(r.carry[:0], buf...)
	return consumed, nil
}

// Pending reports how many tail bytes are retained for the next delivery.
func (r *Reassembler) Pending() int {
	return len(r.carry)
}
