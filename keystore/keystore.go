// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package keystore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender/secp256sender"
)

// ErrKeyNotFound is returned when no key file in the directory holds the address.
var ErrKeyNotFound = errors.New("key not found in keystore")

// KeypairFromAddress loads the signing key for addr. With insecure set, addr
// names one of the test keys (alice, bob, ...). Otherwise the key is looked
// up in the geth keystore directory at path and decrypted with password.
func KeypairFromAddress(addr, path string, password []byte, insecure bool) (sender.Sender, error) {
	if insecure {
		key, err := insecureKeypairFromAddress(strings.ToLower(addr))
		if err != nil {
			return nil, err
		}
		return secp256sender.NewSecp256Sender(key), nil
	}
	if !common.IsHexAddress(addr) {
		return nil, errors.Errorf("invalid address %q", addr)
	}
	want := common.HexToAddress(addr)

	ks := keystore.NewKeyStore(path, keystore.StandardScryptN, keystore.StandardScryptP)
	account, err := ks.Find(accounts.Account{Address: want})
	if err == keystore.ErrNoMatch {
		return nil, errors.Wrap(ErrKeyNotFound, want.Hex())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s in %s", want.Hex(), path)
	}
	keyjson, err := os.ReadFile(filepath.Clean(account.URL.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", account.URL.Path)
	}
	key, err := keystore.DecryptKey(keyjson, string(password))
	if err != nil {
		return nil, errors.Wrapf(err, "decrypt %s", account.URL.Path)
	}
	log.Debug("loaded key", "address", want.Hex(), "file", account.URL.Path)
	return secp256sender.NewSecp256Sender(key.PrivateKey), nil
}
