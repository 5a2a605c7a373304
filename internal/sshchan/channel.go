// Package sshchan adapts an SSH subsystem channel to the engine's Transport
// interface: the session's stdin pipe is the asynchronous write path and a
// single read loop over stdout is the serialized delivery path.
package sshchan

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/danmuck/sftpwire/internal/client"
)

// DefaultSubsystem is the subsystem name requested on the session channel.
const DefaultSubsystem = "sftp"

var ErrNotOpen = errors.New("sshchan: channel not open")

const readBufferSize = 32 * 1024

// Channel is one subsystem channel on an established SSH connection.
type Channel struct {
	conn      *ssh.Client
	subsystem string
	log       zerolog.Logger

	mu    sync.Mutex
	sess  *ssh.Session
	stdin io.WriteCloser
	open  bool

	// wmu serializes writes: the session's write side chunks anything above
	// the SSH packet size and is not safe for concurrent use, so interleaved
	// writers would splice their frames together on the stream.
	wmu sync.Mutex
}

// New prepares a channel for the named subsystem; empty name means
// DefaultSubsystem. The channel is not open until Open is called.
func New(conn *ssh.Client, subsystem string) *Channel {
	if subsystem == "" {
		subsystem = DefaultSubsystem
	}
	return &Channel{
		conn:      conn,
		subsystem: subsystem,
		log:       log.With().Str("component", "sshchan").Str("subsystem", subsystem).Logger(),
	}
}

// Open requests the subsystem on a fresh session channel and starts the read
// loop feeding sink. The whole exchange is bounded by timeout; the subsystem
// request itself has no reply of its own when the server lacks the
// subsystem, which is exactly why the engine enforces its own init deadline
// afterwards.
func (ch *Channel) Open(timeout time.Duration, sink client.Sink) error {
	done := make(chan error, 1)
	go func() {
		done <- ch.openSession(sink)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		// Reap a session that comes up after the deadline.
		go func() {
			if err := <-done; err == nil {
				_ = ch.Close(true)
			}
		}()
		return fmt.Errorf("sshchan: open %q timed out after %v", ch.subsystem, timeout)
	}
}

func (ch *Channel) openSession(sink client.Sink) error {
	sess, err := ch.conn.NewSession()
	if err != nil {
		return fmt.Errorf("sshchan: new session: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("sshchan: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("sshchan: stdout pipe: %w", err)
	}
	if err := sess.RequestSubsystem(ch.subsystem); err != nil {
		_ = sess.Close()
		return fmt.Errorf("sshchan: request subsystem %q: %w", ch.subsystem, err)
	}

	ch.mu.Lock()
	ch.sess = sess
	ch.stdin = stdin
	ch.open = true
	ch.mu.Unlock()

	go ch.readLoop(stdout, sink)
	return nil
}

// readLoop is the single delivery goroutine. It runs until the channel
// stream ends, then flips the open flag and fires the sink's close
// notification exactly once.
func (ch *Channel) readLoop(r io.Reader, sink client.Sink) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			consumed, derr := sink.Deliver(buf[:n])
			if derr != nil {
				ch.log.Error().Err(derr).Msg("inbound stream corrupt, abandoning channel")
				break
			}
			ch.log.Trace().Int("read", n).Int("consumed", consumed).Msg("delivered")
		}
		if err != nil {
			if err != io.EOF {
				ch.log.Debug().Err(err).Msg("channel read ended")
			}
			break
		}
	}

	ch.mu.Lock()
	ch.open = false
	sess := ch.sess
	ch.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
	sink.ChannelClosed()
}

// WritePacket hands one framed packet to the channel's write side. Safe for
// concurrent senders; each frame reaches the stream contiguously.
func (ch *Channel) WritePacket(pkt []byte) error {
	ch.mu.Lock()
	stdin := ch.stdin
	open := ch.open
	ch.mu.Unlock()
	if !open || stdin == nil {
		return ErrNotOpen
	}
	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	if _, err := stdin.Write(pkt); err != nil {
		return fmt.Errorf("sshchan: write packet: %w", err)
	}
	return nil
}

// IsOpen reports whether the channel is usable.
func (ch *Channel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open
}

// Close shuts the channel down. A graceful close signals EOF on the write
// side first so the server sees a clean end of requests; an immediate close
// tears the session down directly.
func (ch *Channel) Close(immediate bool) error {
	ch.mu.Lock()
	sess := ch.sess
	stdin := ch.stdin
	wasOpen := ch.open
	ch.open = false
	ch.mu.Unlock()

	if sess == nil || !wasOpen {
		return nil
	}
	if !immediate && stdin != nil {
		_ = stdin.Close()
	}
	if err := sess.Close(); err != nil && err != io.EOF {
		return fmt.Errorf("sshchan: close session: %w", err)
	}
	return nil
}
