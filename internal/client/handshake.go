package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/sftpwire/internal/protocol"
	"github.com/danmuck/sftpwire/internal/protocol/frame"
)

// VersionSelector picks the protocol version to use out of the versions the
// server will accept. current is always a member of available.
type VersionSelector func(current uint32, available []uint32) (uint32, error)

// init sends the protocol-init frame and waits for the server's first packet
// under a cumulative deadline. Only VERSION and STATUS are legal answers;
// anything else goes through the unexpected-packet translator.
func (c *Client) init(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("client: invalid initialization timeout %v", timeout)
	}

	var body protocol.Buffer
	body.PutUint32(protocol.VersionMax)
	if err := c.transport.WritePacket(frame.EncodeBare(protocol.TypeInit, body.Bytes())); err != nil {
		return fmt.Errorf("client: send init: %w", err)
	}

	pkt, err := c.awaitFirstPacket(timeout)
	c.closeHandshakeWindow()
	if err != nil {
		return err
	}

	buf := protocol.NewBuffer(pkt)
	length, _ := buf.GetUint32()
	typ, err := buf.GetUint8()
	if err != nil {
		return fmt.Errorf("client: init response: %w", err)
	}

	switch typ {
	case protocol.TypeVersion:
		version, err := buf.GetUint32()
		if err != nil {
			return fmt.Errorf("client: version packet: %w", err)
		}
		if version < protocol.VersionMin || version > protocol.VersionMax {
			return fmt.Errorf("client: server offered version %d: %w", version, protocol.ErrVersionUnsupported)
		}
		c.version.Store(version)
		for buf.Len() > 0 {
			name, err := buf.GetString()
			if err != nil {
				return fmt.Errorf("client: extension name: %w", err)
			}
			data, err := buf.GetBytes()
			if err != nil {
				return fmt.Errorf("client: extension %q data: %w", name, err)
			}
			c.log.Trace().Str("extension", name).Msg("init: capability advertised")
			c.exts.set(name, data)
		}
		c.log.Debug().Uint32("version", version).Int("extensions", c.exts.Len()).Msg("handshake negotiated")
		return nil

	case protocol.TypeStatus:
		id, _ := buf.GetUint32()
		code, err := buf.GetUint32()
		if err != nil {
			return fmt.Errorf("client: status packet: %w", err)
		}
		msg, _ := buf.GetString()
		lang, _ := buf.GetString()
		return c.cfg.StatusError(protocol.TypeInit, id, code, msg, lang)

	default:
		id, _ := buf.GetUint32()
		if err := c.cfg.UnexpectedPacket(protocol.TypeInit, protocol.TypeVersion, id, typ, length, pkt); err != nil {
			return err
		}
		return nil
	}
}

// closeHandshakeWindow ends the pre-handshake delivery window. A reply that
// raced the deadline into the mailbox is dropped with it; it must not leak
// into the correlation table.
func (c *Client) closeHandshakeWindow() {
	c.mu.Lock()
	c.hsWindow = false
	c.hsPacket = nil
	c.mu.Unlock()
}

// awaitFirstPacket blocks for the handshake mailbox under a true cumulative
// deadline. The budget is decremented by the elapsed wall time of each wake,
// floored at 1ms per iteration so spurious wakeups always make progress.
// A channel close observed mid-wait wins over the timeout.
func (c *Client) awaitFirstPacket(timeout time.Duration) ([]byte, error) {
	remaining := timeout
	for {
		c.mu.Lock()
		if pkt := c.hsPacket; pkt != nil {
			c.hsPacket = nil
			c.mu.Unlock()
			return pkt, nil
		}
		if c.closing || !c.transport.IsOpen() {
			c.mu.Unlock()
			return nil, fmt.Errorf("client: closing while awaiting init response: %w", protocol.ErrChannelClosed)
		}
		if remaining <= 0 {
			c.mu.Unlock()
			return nil, fmt.Errorf("client: no init response within %v: %w", timeout, protocol.ErrHandshakeTimeout)
		}
		wake := c.wake
		c.mu.Unlock()

		start := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()

		elapsed := time.Since(start)
		if elapsed < time.Millisecond {
			elapsed = time.Millisecond
		}
		remaining -= elapsed
	}
}

// NegotiateVersion renegotiates the protocol version through the
// version-select capability. With a nil selector the current version stands.
// On success the negotiated version is updated in place and returned.
func (c *Client) NegotiateVersion(selector VersionSelector) (uint32, error) {
	current := c.Version()
	if selector == nil {
		c.log.Debug().Uint32("current", current).Msg("negotiate version: no selector")
		return current, nil
	}

	available := c.availableVersions(current)
	selected, err := selector(current, available)
	if err != nil {
		return 0, fmt.Errorf("client: version selector: %w", err)
	}
	c.log.Debug().
		Uint32("current", current).
		Uints32("available", available).
		Uint32("selected", selected).
		Msg("negotiate version")

	if selected == current {
		return current, nil
	}
	if !containsVersion(available, selected) {
		return 0, fmt.Errorf("client: version %d not in %v: %w",
			selected, available, protocol.ErrVersionNotAvailable)
	}

	var payload protocol.Buffer
	payload.PutString(protocol.ExtVersionSelect)
	payload.PutString(strconv.FormatUint(uint64(selected), 10))
	if err := c.checkStatus(protocol.TypeExtended, payload.Bytes()); err != nil {
		return 0, err
	}
	c.version.Store(selected)
	return selected, nil
}

// checkStatus sends a request that is answered by a bare STATUS packet and
// fails unless the reported code is OK.
func (c *Client) checkStatus(typ uint8, payload []byte) error {
	id, err := c.Send(typ, payload)
	if err != nil {
		return err
	}
	resp, err := c.Receive(id)
	if err != nil {
		return err
	}

	buf := protocol.NewBuffer(resp)
	length, _ := buf.GetUint32()
	actual, err := buf.GetUint8()
	if err != nil {
		return fmt.Errorf("client: status response: %w", err)
	}
	respID, _ := buf.GetUint32()
	if actual != protocol.TypeStatus {
		if err := c.cfg.UnexpectedPacket(typ, protocol.TypeStatus, respID, actual, length, resp); err != nil {
			return err
		}
		return nil
	}
	code, err := buf.GetUint32()
	if err != nil {
		return fmt.Errorf("client: status response: %w", err)
	}
	msg, _ := buf.GetString()
	lang, _ := buf.GetString()
	if code != protocol.StatusOK {
		return c.cfg.StatusError(typ, respID, code, msg, lang)
	}
	return nil
}

// availableVersions derives the versions the server will accept relative to
// current. Without a version-select capability, or without a parseable
// versions advertisement, the only available version is the current one.
func (c *Client) availableVersions(current uint32) []uint32 {
	if !c.exts.Has(protocol.ExtVersionSelect) {
		return []uint32{current}
	}
	raw, ok := c.exts.Get(protocol.ExtVersions)
	if !ok {
		return []uint32{current}
	}
	parsed := parseVersionsExtension(string(raw))
	if len(parsed) == 0 {
		return []uint32{current}
	}
	if !containsVersion(parsed, current) {
		parsed = append([]uint32{current}, parsed...)
	}
	return parsed
}

// parseVersionsExtension parses the comma-separated decimal list the server
// advertises under the versions capability ("3,4,5,6"). A malformed list is
// treated as absent.
func parseVersionsExtension(raw string) []uint32 {
	parts := strings.Split(raw, ",")
	out := make([]uint32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil
		}
		out = append(out, uint32(v))
	}
	return out
}

func containsVersion(versions []uint32, v uint32) bool {
	for _, candidate := range versions {
		if candidate == v {
			return true
		}
	}
	return false
}
