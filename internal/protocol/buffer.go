package protocol

import "encoding/binary"

// Buffer is a cursor over one wire message. All integers are big-endian and
// unsigned; a "string" is a u32 length followed by UTF-8 bytes, "bytes" is a
// u32 length followed by raw bytes.
//
// The zero value is an empty write buffer; NewBuffer wraps received data for
// reading. Get methods never read past the wrapped data and return
// ErrTruncated instead.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer wraps data for reading. The buffer does not copy; callers that
// retain data must not mutate it while reading.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Len reports the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the encoded contents written so far.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) GetUint8() (uint8, error) {
	if b.Len() < 1 {
		return 0, ErrTruncated
	}
	v := b.data[b.off]
	b.off++
	return v, nil
}

func (b *Buffer) GetUint32() (uint32, error) {
	if b.Len() < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(b.data[b.off:])
	b.off += 4
	return v, nil
}

// GetBytes reads a u32 length followed by that many raw bytes. The returned
// slice is a copy and safe to retain.
func (b *Buffer) GetBytes() ([]byte, error) {
	n, err := b.GetUint32()
	if err != nil {
		return nil, err
	}
	if uint32(b.Len()) < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, b.data[b.off:b.off+int(n)])
	b.off += int(n)
	return out, nil
}

func (b *Buffer) GetString() (string, error) {
	raw, err := b.GetBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *Buffer) PutUint8(v uint8) {
	b.data = append(b.data, v)
}

func (b *Buffer) PutUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) PutBytes(p []byte) {
	b.PutUint32(uint32(len(p)))
	b.data = append(b.data, p...)
}

func (b *Buffer) PutString(s string) {
	b.PutUint32(uint32(len(s)))
	b.data = append(b.data, s...)
}
