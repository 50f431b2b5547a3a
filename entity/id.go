// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

package entity

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidID is returned for bytes which are not an entity identifier
var ErrInvalidID = errors.New("invalid entity identifier")

// NewID derives the CIDv1 of an encoded entity: version, kind codec, keccak-256 multihash
func NewID(kind Kind, encoded []byte) (cid.Cid, error) {
	h := sha3.NewLegacyKeccak256()
	h.Write(encoded)
	mh, err := multihash.Encode(h.Sum(nil), multihash.KECCAK_256)
	if err != nil {
		return cid.Undef, errors.Wrap(ErrEncoding, err.Error())
	}
	return cid.NewCidV1(uint64(kind), mh), nil
}

// ParseID parses identifier bytes and checks the kind
func ParseID(b []byte) (cid.Cid, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return cid.Undef, errors.Wrap(ErrInvalidID, err.Error())
	}
	if c.Version() != 1 {
		return cid.Undef, errors.Wrapf(ErrInvalidID, "version %d", c.Version())
	}
	if !KindOf(c).Valid() {
		return cid.Undef, errors.Wrapf(ErrInvalidID, "codec %#x", c.Prefix().Codec)
	}
	if c.Prefix().MhType != multihash.KECCAK_256 {
		return cid.Undef, errors.Wrapf(ErrInvalidID, "hash %#x", c.Prefix().MhType)
	}
	return c, nil
}

// ParseHexID parses a hex identifier, with or without 0x prefix
func ParseHexID(s string) (cid.Cid, error) {
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return cid.Undef, errors.Wrap(ErrInvalidID, err.Error())
	}
	return ParseID(b)
}

// HexID renders an identifier as 0x-prefixed hex
func HexID(c cid.Cid) string {
	return hexutil.Encode(c.Bytes())
}

// KindOf returns the kind tagged in an identifier
func KindOf(c cid.Cid) Kind {
	return Kind(c.Prefix().Codec)
}

// Keccak256 hashes data with legacy keccak
func Keccak256(data ...[]byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
