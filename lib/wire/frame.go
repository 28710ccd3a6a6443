// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxControlFrame bounds frames on control channels: lobby requests,
// storage RPC without package payloads, handshakes.
const MaxControlFrame = 1 << 20 // 1 MiB

// MaxPackageFrame bounds frames on channels that carry game package
// bytes (DOWNLOAD_GAME responses, storage package reads).
const MaxPackageFrame = 4 << 20 // 4 MiB

// headerSize is the fixed length prefix: a big-endian uint32.
const headerSize = 4

// ProtocolError reports a framing violation: a declared length outside
// the configured bounds, or a body that is not valid JSON. Protocol
// errors are connection-fatal — the peer is not speaking the protocol,
// so no further frames can be trusted.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// WriteFrame writes one length-prefixed frame. The body length is
// validated against max before any bytes are written, so a rejected
// frame leaves the stream clean.
func WriteFrame(w io.Writer, body []byte, max uint32) error {
	if len(body) == 0 || uint64(len(body)) > uint64(max) {
		return &ProtocolError{Reason: fmt.Sprintf("frame body of %d bytes outside bounds (1..%d)", len(body), max)}
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. The declared length is
// validated against max before the body is read; a violation returns
// *ProtocolError with no body bytes consumed. A peer that closes the
// connection before sending a header returns io.EOF; one that closes
// mid-frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > max {
		return nil, &ProtocolError{Reason: fmt.Sprintf("declared frame length %d outside bounds (1..%d)", length, max)}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading %d-byte frame body: %w", length, err)
	}
	return body, nil
}

// Conn wraps a byte stream with framed JSON send/receive under a fixed
// frame bound. It performs no locking: callers that share a Conn
// across goroutines must serialize access themselves. The lobby and
// storage protocols are strict request/response, so in practice one
// goroutine owns each Conn.
type Conn struct {
	rw  io.ReadWriter
	max uint32
}

// NewConn returns a framed connection over rw. max is the frame bound
// for both directions (MaxControlFrame or MaxPackageFrame).
func NewConn(rw io.ReadWriter, max uint32) *Conn {
	return &Conn{rw: rw, max: max}
}

// Send JSON-encodes v and writes it as one frame.
func (c *Conn) Send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame body: %w", err)
	}
	return WriteFrame(c.rw, body, c.max)
}

// Recv reads one frame and JSON-decodes it into v. A body that fails
// to decode is a *ProtocolError: the peer is framing correctly but not
// sending JSON, which is equally unrecoverable.
func (c *Conn) Recv(v any) error {
	body, err := ReadFrame(c.rw, c.max)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ProtocolError{Reason: "frame body is not valid JSON: " + err.Error()}
	}
	return nil
}

// RecvRaw reads one frame and returns the undecoded body. Dispatchers
// use this to peek at the discriminating field before handing the full
// body to an action handler.
func (c *Conn) RecvRaw() (json.RawMessage, error) {
	body, err := ReadFrame(c.rw, c.max)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &ProtocolError{Reason: "frame body is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

// OK builds a success envelope. The fields map may be nil; it must not
// contain an "ok" key.
func OK(fields map[string]any) map[string]any {
	response := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		response[key] = value
	}
	response["ok"] = true
	return response
}

// Fail builds a failure envelope carrying the error message.
func Fail(message string) map[string]any {
	return map[string]any{"ok": false, "error": message}
}
