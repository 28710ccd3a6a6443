// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package token mints and verifies Parlor's credentials.
//
// Two kinds exist. Opaque tokens are unguessable random strings used
// as per-launch room tokens: the lobby hands the same secret to the
// spawned game server (via environment) and to the room's players (via
// the launch response), and the game server admits only clients that
// present it. Nothing about an opaque token is verifiable offline —
// possession is the capability.
//
// Session tokens are Ed25519-signed CBOR payloads identifying a logged
// in player. The signature lets any holder of the lobby's public key
// check that a token was minted by the lobby without a registry
// lookup. The payload deliberately carries no grants: a session token
// only asserts identity, never authorization.
package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/parlor-games/parlor/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// opaqueEntropy is the random byte count behind an opaque token.
// 128 bits keeps tokens unguessable while staying short enough for
// environment variables and handshake frames.
const opaqueEntropy = 16

// Opaque returns a fresh random token of the form "prefix-<32 hex>".
// The prefix identifies the token's role in logs ("rt" for room
// tokens, "ps" for session identifiers) and carries no security
// weight.
func Opaque(prefix string) (string, error) {
	buffer := make([]byte, opaqueEntropy)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("reading token entropy: %w", err)
	}
	return prefix + "-" + hex.EncodeToString(buffer), nil
}

// Session is the signed payload of a session token. Field numbers are
// protocol constants — changing them invalidates every outstanding
// token.
type Session struct {
	// PlayerID is the account's storage identifier.
	PlayerID int64 `cbor:"1,keyasint"`

	// Username is the account's login name, included so log lines can
	// name the player without a storage round trip.
	Username string `cbor:"2,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the lobby minted
	// this token.
	IssuedAt int64 `cbor:"3,keyasint"`

	// ID is a unique token identifier (hex string) distinguishing
	// two logins by the same account over time.
	ID string `cbor:"4,keyasint"`
}

// Mint signs session with the lobby's private key and returns the
// encoded token: base64url(CBOR payload ‖ Ed25519 signature).
func Mint(session Session, key ed25519.PrivateKey) (string, error) {
	payload, err := codec.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encoding session payload: %w", err)
	}
	signed := append(payload, ed25519.Sign(key, payload)...)
	return base64.RawURLEncoding.EncodeToString(signed), nil
}

// ErrBadSignature is returned by Verify when the token's signature
// does not match the payload under the given public key.
var ErrBadSignature = errors.New("token signature verification failed")

// Verify decodes an encoded session token and checks its signature.
func Verify(encoded string, key ed25519.PublicKey) (Session, error) {
	signed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Session{}, fmt.Errorf("decoding token: %w", err)
	}
	if len(signed) <= signatureSize {
		return Session{}, fmt.Errorf("token too short: %d bytes", len(signed))
	}
	payload := signed[:len(signed)-signatureSize]
	signature := signed[len(signed)-signatureSize:]
	if !ed25519.Verify(key, payload, signature) {
		return Session{}, ErrBadSignature
	}
	var session Session
	if err := codec.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("decoding session payload: %w", err)
	}
	return session, nil
}
