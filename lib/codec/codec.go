// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parlor's standard CBOR encoding configuration.
//
// Parlor uses two serialization formats with a clear boundary: JSON for
// the external wire protocol (lib/wire frames, the storage entity/action
// contract, the worker environment contract), and CBOR for internal
// artifacts that never cross a trust boundary — session token payloads
// and the on-disk launch state file.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. A
// token payload therefore always encodes to identical bytes, which is
// what makes detached Ed25519 signatures over the encoding stable.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
