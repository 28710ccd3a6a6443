// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"type": "PING"},
		map[string]any{"type": "LOGIN", "username": "alice", "passwordHash": "abc123"},
		map[string]any{"ok": true, "roomId": float64(42), "players": []any{"a", "b"}},
		map[string]any{"unicode": "大廳伺服器", "nested": map[string]any{"deep": []any{float64(1), nil, true}}},
	}
	for _, value := range values {
		var buffer bytes.Buffer
		conn := NewConn(&buffer, MaxControlFrame)
		if err := conn.Send(value); err != nil {
			t.Fatalf("Send(%v): %v", value, err)
		}
		var got map[string]any
		if err := conn.Recv(&got); err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !reflect.DeepEqual(got, value) {
			t.Errorf("round trip = %v, want %v", got, value)
		}
	}
}

func TestRejectsZeroLengthHeader(t *testing.T) {
	var buffer bytes.Buffer
	buffer.Write([]byte{0, 0, 0, 0})
	buffer.WriteString("this body must never be read")

	_, err := ReadFrame(&buffer, MaxControlFrame)
	var protocolError *ProtocolError
	if !errors.As(err, &protocolError) {
		t.Fatalf("ReadFrame error = %v, want *ProtocolError", err)
	}
	if buffer.Len() != len("this body must never be read") {
		t.Errorf("body bytes consumed after rejected header: %d remaining", buffer.Len())
	}
}

func TestRejectsOversizeHeaderWithoutReadingBody(t *testing.T) {
	// A hostile peer declares 0xFFFFFFFF. The reader must reject the
	// header without attempting to allocate or read the body.
	var buffer bytes.Buffer
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 0xFFFFFFFF)
	buffer.Write(header)

	_, err := ReadFrame(&buffer, MaxControlFrame)
	var protocolError *ProtocolError
	if !errors.As(err, &protocolError) {
		t.Fatalf("ReadFrame error = %v, want *ProtocolError", err)
	}
	if !strings.Contains(protocolError.Reason, "4294967295") {
		t.Errorf("Reason = %q, want declared length mentioned", protocolError.Reason)
	}
}

func TestWriteRejectsOversizeBody(t *testing.T) {
	var buffer bytes.Buffer
	err := WriteFrame(&buffer, make([]byte, MaxControlFrame+1), MaxControlFrame)
	var protocolError *ProtocolError
	if !errors.As(err, &protocolError) {
		t.Fatalf("WriteFrame error = %v, want *ProtocolError", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("%d bytes written for rejected frame, want 0", buffer.Len())
	}
}

func TestWriteRejectsEmptyBody(t *testing.T) {
	var buffer bytes.Buffer
	err := WriteFrame(&buffer, nil, MaxControlFrame)
	var protocolError *ProtocolError
	if !errors.As(err, &protocolError) {
		t.Fatalf("WriteFrame error = %v, want *ProtocolError", err)
	}
}

func TestCleanCloseIsEOF(t *testing.T) {
	var buffer bytes.Buffer
	if _, err := ReadFrame(&buffer, MaxControlFrame); err != io.EOF {
		t.Errorf("ReadFrame on closed stream = %v, want io.EOF", err)
	}
}

func TestMidFrameCloseIsUnexpectedEOF(t *testing.T) {
	var buffer bytes.Buffer
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 100)
	buffer.Write(header)
	buffer.WriteString("only part of the promised body")

	_, err := ReadFrame(&buffer, MaxControlFrame)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFrame = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestInvalidJSONBodyIsProtocolError(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, []byte("{not json"), MaxControlFrame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn := NewConn(&buffer, MaxControlFrame)
	var got map[string]any
	err := conn.Recv(&got)
	var protocolError *ProtocolError
	if !errors.As(err, &protocolError) {
		t.Errorf("Recv error = %v, want *ProtocolError", err)
	}
}

// TestPartialDelivery exercises the read loop against a peer that
// trickles one byte at a time over a real socket pair.
func TestPartialDelivery(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := map[string]any{"type": "CREATE_ROOM", "gameId": float64(7), "capacity": float64(4)}
	go func() {
		var buffer bytes.Buffer
		conn := NewConn(&buffer, MaxControlFrame)
		if err := conn.Send(payload); err != nil {
			return
		}
		for _, b := range buffer.Bytes() {
			if _, err := client.Write([]byte{b}); err != nil {
				return
			}
		}
	}()

	server.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got map[string]any
	if err := NewConn(server, MaxControlFrame).Recv(&got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !reflect.DeepEqual(got, payload) {
		t.Errorf("Recv = %v, want %v", got, payload)
	}
}

func TestEnvelopeHelpers(t *testing.T) {
	success := OK(map[string]any{"roomId": 5})
	if success["ok"] != true || success["roomId"] != 5 {
		t.Errorf("OK = %v", success)
	}
	failure := Fail("room full")
	if failure["ok"] != false || failure["error"] != "room full" {
		t.Errorf("Fail = %v", failure)
	}
}
