// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package sender

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// Sender holds the key a domain client signs permits and transactions with.
type Sender interface {
	PrivateKey() *ecdsa.PrivateKey
	Address() string
	CommonAddress() common.Address
}
