package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/danmuck/sftpwire/internal/protocol"
	"github.com/danmuck/sftpwire/internal/testutil/testlog"
)

func collect(dst *[][]byte) func([]byte) error {
	return func(pkt []byte) error {
		cp := make([]byte, len(pkt))
		copy(cp, pkt)
		*dst = append(*dst, cp)
		return nil
	}
}

func TestEncodeLayout(t *testing.T) {
	testlog.Start(t)
	pkt := Encode(protocol.TypeStat, 101, []byte{0xAA, 0xBB})
	if len(pkt) != 11 {
		t.Fatalf("unexpected frame size %d", len(pkt))
	}
	if got := binary.BigEndian.Uint32(pkt[0:4]); got != 7 {
		t.Fatalf("length field got=%d want=7", got)
	}
	if pkt[4] != protocol.TypeStat {
		t.Fatalf("type byte got=%d", pkt[4])
	}
	if got := binary.BigEndian.Uint32(pkt[5:9]); got != 101 {
		t.Fatalf("request id got=%d want=101", got)
	}
	if !bytes.Equal(pkt[9:], []byte{0xAA, 0xBB}) {
		t.Fatalf("payload mismatch")
	}
}

func TestEncodeBareHasNoRequestID(t *testing.T) {
	testlog.Start(t)
	pkt := EncodeBare(protocol.TypeInit, []byte{0, 0, 0, 6})
	if len(pkt) != 9 {
		t.Fatalf("unexpected frame size %d", len(pkt))
	}
	if got := binary.BigEndian.Uint32(pkt[0:4]); got != 5 {
		t.Fatalf("length field got=%d want=5", got)
	}
	if pkt[4] != protocol.TypeInit {
		t.Fatalf("type byte got=%d", pkt[4])
	}
	if got := binary.BigEndian.Uint32(pkt[5:9]); got != 6 {
		t.Fatalf("version got=%d want=6", got)
	}
}

func TestReassemblerSingleDelivery(t *testing.T) {
	testlog.Start(t)
	want := [][]byte{
		Encode(protocol.TypeOpen, 101, []byte("one")),
		Encode(protocol.TypeRead, 102, nil),
		Encode(protocol.TypeWrite, 103, bytes.Repeat([]byte{7}, 300)),
	}
	stream := bytes.Join(want, nil)

	r := NewReassembler()
	var got [][]byte
	consumed, err := r.Deliver(stream, collect(&got))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if consumed != len(stream) {
		t.Fatalf("consumed=%d want=%d", consumed, len(stream))
	}
	if r.Pending() != 0 {
		t.Fatalf("pending=%d want=0", r.Pending())
	}
	if len(got) != len(want) {
		t.Fatalf("emitted %d packets, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("packet %d mismatch", i)
		}
	}
}

func TestReassemblerAllSplitPoints(t *testing.T) {
	testlog.Start(t)
	want := [][]byte{
		Encode(protocol.TypeLstat, 201, []byte("alpha")),
		Encode(protocol.TypeStatus, 202, []byte("beta-beta")),
	}
	stream := bytes.Join(want, nil)

	// Every split point, including splits inside the length field itself.
	for split := 0; split <= len(stream); split++ {
		r := NewReassembler()
		var got [][]byte
		if _, err := r.Deliver(stream[:split], collect(&got)); err != nil {
			t.Fatalf("split=%d first deliver: %v", split, err)
		}
		if _, err := r.Deliver(stream[split:], collect(&got)); err != nil {
			t.Fatalf("split=%d second deliver: %v", split, err)
		}
		if len(got) != len(want) {
			t.Fatalf("split=%d emitted %d packets, want %d", split, len(got), len(want))
		}
		if !bytes.Equal(bytes.Join(got, nil), stream) {
			t.Fatalf("split=%d reassembled bytes differ from input", split)
		}
		if r.Pending() != 0 {
			t.Fatalf("split=%d pending=%d", split, r.Pending())
		}
	}
}

func TestReassemblerRandomChunking(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(1))
	var want [][]byte
	for i := 0; i < 16; i++ {
		payload := make([]byte, rng.Intn(200))
		rng.Read(payload)
		want = append(want, Encode(protocol.TypeData, uint32(300+i), payload))
	}
	stream := bytes.Join(want, nil)

	r := NewReassembler()
	var got [][]byte
	for off := 0; off < len(stream); {
		n := 1 + rng.Intn(40)
		if off+n > len(stream) {
			n = len(stream) - off
		}
		if _, err := r.Deliver(stream[off:off+n], collect(&got)); err != nil {
			t.Fatalf("deliver at %d: %v", off, err)
		}
		off += n
	}
	if len(got) != len(want) {
		t.Fatalf("emitted %d packets, want %d", len(got), len(want))
	}
	if !bytes.Equal(bytes.Join(got, nil), stream) {
		t.Fatalf("reassembled bytes differ from input")
	}
}

func TestReassemblerRejectsLengthBelowMinimum(t *testing.T) {
	testlog.Start(t)
	bad := make([]byte, 9)
	binary.BigEndian.PutUint32(bad[0:4], 4)

	r := NewReassembler()
	_, err := r.Deliver(bad, collect(new([][]byte)))
	if !errors.Is(err, protocol.ErrLengthTooSmall) {
		t.Fatalf("expected ErrLengthTooSmall, got %v", err)
	}
}

func TestReassemblerRejectsImplausibleLength(t *testing.T) {
	testlog.Start(t)
	// Only the prefix arrives; the implied body must never be buffered.
	bad := make([]byte, 5)
	binary.BigEndian.PutUint32(bad[0:4], MaxLength+1)

	r := NewReassembler()
	var got [][]byte
	_, err := r.Deliver(bad, collect(&got))
	if !errors.Is(err, protocol.ErrLengthTooLarge) {
		t.Fatalf("expected ErrLengthTooLarge, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("emitted %d packets from corrupt stream", len(got))
	}
}

func TestReassemblerHoldsPartialTail(t *testing.T) {
	testlog.Start(t)
	full := Encode(protocol.TypeName, 400, []byte("payload"))
	head := Encode(protocol.TypeAttrs, 399, nil)
	stream := append(append([]byte{}, head...), full...)

	r := NewReassembler()
	var got [][]byte
	cut := len(head) + 3
	consumed, err := r.Deliver(stream[:cut], collect(&got))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if consumed != len(head) {
		t.Fatalf("consumed=%d want=%d", consumed, len(head))
	}
	if len(got) != 1 {
		t.Fatalf("emitted %d packets, want 1", len(got))
	}
	if r.Pending() != 3 {
		t.Fatalf("pending=%d want=3", r.Pending())
	}

	if _, err := r.Deliver(stream[cut:], collect(&got)); err != nil {
		t.Fatalf("second deliver: %v", err)
	}
	if len(got) != 2 || !bytes.Equal(got[1], full) {
		t.Fatalf("second packet not reassembled")
	}
}
