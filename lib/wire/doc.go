// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements Parlor's length-prefixed JSON framing.
//
// Every TCP channel in the system (player client ↔ lobby, lobby ↔
// storage, game client ↔ game server handshake) carries the same frame
// format:
//
//	+---------------------+------------------+
//	| 4 bytes (length)    | N bytes (JSON)   |
//	| big-endian uint32   | UTF-8 encoded    |
//	+---------------------+------------------+
//
// TCP is a stream protocol: a single read or write may transfer only
// part of a frame, so both directions loop until the full byte count
// has moved. A cleanly closed peer surfaces as io.EOF on the length
// header and io.ErrUnexpectedEOF mid-frame.
//
// A declared length of zero, or one above the channel's configured
// maximum, is rejected with *ProtocolError before any body I/O. This
// bounds memory against malformed or hostile peers. Control channels
// use MaxControlFrame; channels that carry game package payloads use
// MaxPackageFrame.
//
// Responses share one envelope: a flat JSON object with an "ok"
// boolean and, on failure, an "error" string. Handler-specific fields
// sit alongside "ok" at the top level.
package wire
