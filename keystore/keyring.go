// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// The Constant "keys". These are the name that the keys are based on. This can be expanded, but
// any additions must be added to Keys and to insecureKeyFromAddress
const AliceKey = "alice"
const BobKey = "bob"
const CharlieKey = "charlie"
const DaveKey = "dave"
const EveKey = "eve"

var Keys = []string{AliceKey, BobKey, CharlieKey, DaveKey, EveKey}

const privateKeyLength = 32

var TestKeyRing *TestKeyRingHolder

// TestKeyRingHolder holds the deterministic development keys.
type TestKeyRingHolder struct {
	EthereumKeys map[string]*ecdsa.PrivateKey
}

// Init function to create a keyRing that can be accessed anywhere without having to recreate the data
func init() {
	ring, err := makeEthRing()
	if err != nil {
		log.Error("make ring error", "error", err)
	}
	TestKeyRing = &TestKeyRingHolder{
		EthereumKeys: ring,
	}
}

func makeEthRing() (map[string]*ecdsa.PrivateKey, error) {
	ring := map[string]*ecdsa.PrivateKey{}
	for _, key := range Keys {
		bz := padWithZeros([]byte(key), privateKeyLength)
		kp, err := crypto.ToECDSA(bz)
		if err != nil {
			return nil, err
		}
		ring[key] = kp
	}

	return ring, nil
}

// padWithZeros adds on extra 0 bytes to make a byte array of a specified length
func padWithZeros(key []byte, targetLength int) []byte {
	res := make([]byte, targetLength-len(key))
	return append(res, key...)
}

// insecureKeypairFromAddress is used for resolving addresses to test keypairs.
func insecureKeypairFromAddress(key string) (*ecdsa.PrivateKey, error) {
	kp, ok := TestKeyRing.EthereumKeys[key]
	if !ok {
		return nil, fmt.Errorf("invalid test key selection: %s", key)
	}
	return kp, nil
}
