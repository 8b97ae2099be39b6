// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package secp256sender

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type SecpInMemory256Sender struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSecp256Sender wraps key. A key on another curve gets the zero address
// and is refused by the permit signer.
func NewSecp256Sender(key *ecdsa.PrivateKey) *SecpInMemory256Sender {
	s := &SecpInMemory256Sender{privateKey: key}
	if IsSecp256k1(key) {
		s.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return s
}

// IsSecp256k1 reports whether key lies on the curve Ethereum signs with.
func IsSecp256k1(key *ecdsa.PrivateKey) bool {
	if key == nil || key.Curve == nil {
		return false
	}
	have, want := key.Curve.Params(), crypto.S256().Params()
	return have.P.Cmp(want.P) == 0 && have.N.Cmp(want.N) == 0 && have.B.Cmp(want.B) == 0
}

// FromHex parses a hex encoded secp256k1 private key, with or without 0x.
func FromHex(hexkey string) (*SecpInMemory256Sender, error) {
	if len(hexkey) > 1 && hexkey[:2] == "0x" {
		hexkey = hexkey[2:]
	}
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewSecp256Sender(key), nil
}

func (s *SecpInMemory256Sender) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

func (s *SecpInMemory256Sender) Address() string {
	return s.address.Hex()
}

func (s *SecpInMemory256Sender) CommonAddress() common.Address {
	return s.address
}
