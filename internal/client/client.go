package client

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/sftpwire/internal/protocol"
	"github.com/danmuck/sftpwire/internal/protocol/frame"
)

// requestIDSeed keeps assigned ids clear of the small reserved range; the
// first Send gets id 101.
const requestIDSeed = 100

// Transport is the secure-channel boundary. Deliveries into the Sink are
// serialized by the transport; WritePacket is asynchronous in the sense that
// it only hands the frame to the channel's write path.
type Transport interface {
	Open(timeout time.Duration, sink Sink) error
	WritePacket(pkt []byte) error
	IsOpen() bool
	Close(immediate bool) error
}

// Sink is what a Transport feeds: raw inbound bytes and the one-time close
// notification. *Client implements it.
type Sink interface {
	Deliver(data []byte) (int, error)
	ChannelClosed()
}

// Session is the owning-session collaborator; its idle timer is reset once
// per inbound packet processed.
type Session interface {
	ResetIdleTimeout()
}

// StatusTranslator turns a STATUS packet observed in the context of request
// type ctx into a caller-visible error.
type StatusTranslator func(ctx uint8, id, code uint32, msg, lang string) error

// UnexpectedPacketTranslator decides what to do with a packet of the wrong
// type for the current context. A nil result means ignore and continue.
type UnexpectedPacketTranslator func(ctx, expected uint8, id uint32, actual uint8, length uint32, pkt []byte) error

// Config carries the engine timeouts and collaborator hooks.
//
// IdleInterval is deliberately not a deadline: Receive blocks indefinitely,
// waking once per interval to re-check that the channel is still alive.
// InitTimeout, by contrast, is a true cumulative deadline on the handshake.
type Config struct {
	OpenTimeout  time.Duration
	InitTimeout  time.Duration
	IdleInterval time.Duration

	Session          Session
	StatusError      StatusTranslator
	UnexpectedPacket UnexpectedPacketTranslator
	Logger           *zerolog.Logger
}

// WithDefaults fills unset fields with the engine defaults.
func (c Config) WithDefaults() Config {
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 15 * time.Second
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 15 * time.Second
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 10 * time.Minute
	}
	if c.StatusError == nil {
		c.StatusError = func(ctx uint8, id, code uint32, msg, lang string) error {
			return &protocol.StatusError{Type: ctx, ID: id, Code: code, Message: msg, Language: lang}
		}
	}
	if c.UnexpectedPacket == nil {
		c.UnexpectedPacket = func(ctx, expected uint8, id uint32, actual uint8, length uint32, _ []byte) error {
			return &protocol.UnexpectedPacketError{Context: ctx, Expected: expected, ID: id, Actual: actual, Length: length}
		}
	}
	if c.Logger == nil {
		c.Logger = &log.Logger
	}
	return c
}

// Client is the engine instance bound to one subsystem channel.
type Client struct {
	transport Transport
	cfg       Config
	log       zerolog.Logger

	reasm  *frame.Reassembler
	nextID atomic.Uint32

	version atomic.Uint32
	exts    *Extensions

	mu       sync.Mutex
	pending  map[uint32][]byte
	wake     chan struct{}
	closing  bool
	hsWindow bool
	hsPacket []byte
}

// New opens the transport's subsystem channel and runs the handshake. On any
// handshake failure the channel is force-closed (discarding close errors) and
// the original failure is returned.
func New(t Transport, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	c := &Client{
		transport: t,
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "client").Logger(),
		reasm:     frame.NewReassembler(),
		exts:      newExtensions(),
		pending:   make(map[uint32][]byte),
		wake:      make(chan struct{}),
		hsWindow:  true,
	}
	c.nextID.Store(requestIDSeed)

	if err := t.Open(cfg.OpenTimeout, c); err != nil {
		return nil, fmt.Errorf("client: open channel: %w", err)
	}
	if err := c.init(cfg.InitTimeout); err != nil {
		_ = t.Close(true)
		return nil, err
	}
	return c, nil
}

// Deliver implements Sink. Invoked serially by the transport with arbitrary
// chunks of the inbound stream; returns how many bytes of the combined
// (carried + fresh) buffer were consumed by complete packets.
func (c *Client) Deliver(data []byte) (int, error) {
	return c.reasm.Deliver(data, c.dispatch)
}

// dispatch parses the generic header and files the packet into the
// correlation table, or into the handshake slot while the pre-handshake
// window is open. The reassembler guaranteed a complete frame, so a short
// header here is an invariant violation and fails the delivery path loudly.
func (c *Client) dispatch(pkt []byte) error {
	buf := protocol.NewBuffer(pkt)
	length, _ := buf.GetUint32()
	typ, err := buf.GetUint8()
	if err != nil {
		return fmt.Errorf("client: frame shorter than its header: %w", err)
	}
	id, err := buf.GetUint32()
	if err != nil {
		return fmt.Errorf("client: frame shorter than its header: %w", err)
	}

	if s := c.cfg.Session; s != nil {
		s.ResetIdleTimeout()
	}

	// The reassembler reuses its buffer across deliveries; keep a copy.
	cp := make([]byte, len(pkt))
	copy(cp, pkt)

	c.log.Trace().
		Uint32("id", id).
		Str("type", protocol.TypeString(typ)).
		Uint32("len", length).
		Msg("dispatch")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hsWindow && c.hsPacket == nil {
		c.hsPacket = cp
	} else {
		c.pending[id] = cp
	}
	c.broadcast()
	return nil
}

// broadcast wakes every blocked waiter. Callers must hold c.mu.
func (c *Client) broadcast() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// ChannelClosed implements Sink. Safe to invoke at any time, including before
// the handshake completes; idempotent.
func (c *Client) ChannelClosed() {
	c.mu.Lock()
	c.closing = true
	c.broadcast()
	c.mu.Unlock()

	if c.Version() == 0 {
		c.log.Warn().Msg("channel closed before version negotiated")
	}
}

// Send assigns the next request id, frames the request and hands it to the
// transport's write path. It returns as soon as the write is accepted; there
// is no retry and no transmission acknowledgment.
func (c *Client) Send(typ uint8, payload []byte) (uint32, error) {
	id := c.nextID.Add(1)
	c.log.Trace().
		Str("cmd", protocol.TypeString(typ)).
		Int("len", len(payload)).
		Uint32("id", id).
		Msg("send")
	if err := c.transport.WritePacket(frame.Encode(typ, id, payload)); err != nil {
		return 0, fmt.Errorf("client: send %s: %w", protocol.TypeString(typ), err)
	}
	return id, nil
}

// Receive blocks until the response for id arrives, waking once per
// IdleInterval to re-check that the channel is still alive. It returns the
// full packet, header included.
func (c *Client) Receive(id uint32) ([]byte, error) {
	for {
		if c.IsClosing() || !c.IsOpen() {
			return nil, fmt.Errorf("client: receive id=%d: %w", id, protocol.ErrChannelClosed)
		}
		if pkt, ok := c.ReceiveWithin(id, c.cfg.IdleInterval); ok {
			return pkt, nil
		}
	}
}

// ReceiveWithin performs exactly one check-then-wait-once step: if the
// response for id is already filed it is claimed and returned; otherwise the
// call waits up to wait for table activity and reports no data. A response
// arriving during the wait is left for the next attempt.
func (c *Client) ReceiveWithin(id uint32, wait time.Duration) ([]byte, bool) {
	c.mu.Lock()
	if pkt, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.mu.Unlock()
		return pkt, true
	}
	wake := c.wake
	c.mu.Unlock()

	if wait <= 0 {
		return nil, false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-wake:
	case <-timer.C:
	}
	return nil, false
}

// Version returns the negotiated protocol version, 0 before the handshake
// completes.
func (c *Client) Version() uint32 {
	return c.version.Load()
}

// ServerExtensions exposes the capability registry populated during the
// handshake. Read-only.
func (c *Client) ServerExtensions() *Extensions {
	return c.exts
}

// IsClosing reports whether the close notification has fired.
func (c *Client) IsClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// IsOpen reports whether the underlying channel is open.
func (c *Client) IsOpen() bool {
	return c.transport.IsOpen()
}

// Close requests a graceful close of the channel. No-op when already closed.
func (c *Client) Close() error {
	if !c.IsOpen() {
		return nil
	}
	return c.transport.Close(false)
}
