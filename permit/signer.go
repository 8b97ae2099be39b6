// Package permit produces the off-chain authorizations a market accepts in
// place of approval transactions.
package permit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender/secp256sender"
)

// HeadReader reads the latest block of a domain.
type HeadReader interface {
	LatestHead(ctx context.Context) (*evmclient.Head, error)
}

type ChainClient interface {
	evmclient.ContractCaller
	HeadReader
	ChainID(ctx context.Context) (*big.Int, error)
	ContractName(ctx context.Context, contract common.Address) (string, error)
}

// Request asks for one authorization. Nonce overrides the on-chain nonce
// when set.
type Request struct {
	Kind     Kind
	Spender  common.Address
	Value    *big.Int
	Deadline *big.Int
	Nonce    *big.Int
}

// Authorization is a signed permit together with everything needed to
// submit and re-verify it.
type Authorization struct {
	Kind      Kind
	Owner     common.Address
	Spender   common.Address
	Target    common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
	ChainID   *big.Int
	TokenName string
	Digest    common.Hash
	R         [32]byte
	S         [32]byte
	V         uint8
}

// Signature returns the 65 byte [R || S || V] form with V in {27, 28}.
func (a *Authorization) Signature() []byte {
	sig := make([]byte, 65)
	copy(sig[:32], a.R[:])
	copy(sig[32:64], a.S[:])
	sig[64] = a.V
	return sig
}

// Recover returns the address that signed the digest.
func (a *Authorization) Recover() (common.Address, error) {
	if a.V != 27 && a.V != 28 {
		return common.Address{}, errors.Errorf("invalid recovery id %d", a.V)
	}
	sig := a.Signature()
	sig[64] -= 27
	pub, err := crypto.SigToPub(a.Digest[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Signer signs permits of one owner for one market.
type Signer struct {
	client  ChainClient
	sender  sender.Sender
	market  common.Address
	name    string
	version string
	abi     abi.ABI
	log     log.Logger
}

func NewSigner(client ChainClient, s sender.Sender, market common.Address, cfg config.PermitConfig) (*Signer, error) {
	a, err := chainbridge_abi.GetSingularityABI()
	if err != nil {
		return nil, err
	}
	return &Signer{
		client:  client,
		sender:  s,
		market:  market,
		name:    cfg.Name,
		version: cfg.Version,
		abi:     a,
		log:     log.New("market", market.Hex()),
	}, nil
}

// Nonce reads the owner's current permit nonce on the market.
func (s *Signer) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := evmclient.Call(ctx, s.client, s.abi, s.market, chainbridge_abi.MethodNonces, s.sender.CommonAddress())
	if err != nil {
		return nil, errors.Wrap(err, "read permit nonce")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Sign produces one authorization for req. The deadline is checked against
// the latest block before anything else is read.
func (s *Signer) Sign(ctx context.Context, req Request) (*Authorization, error) {
	if req.Kind.PrimaryType() == "" {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: errors.New("unknown permit kind")}
	}
	if req.Value == nil || req.Deadline == nil {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: errors.New("value and deadline are required")}
	}
	if err := EnsureDeadline(ctx, s.client, req.Kind.String()+" permit", req.Deadline); err != nil {
		return nil, err
	}
	if s.sender == nil || s.sender.PrivateKey() == nil {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: errors.New("no signing key")}
	}
	key := s.sender.PrivateKey()
	if !secp256sender.IsSecp256k1(key) {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: errors.New("key is not secp256k1")}
	}

	tokenName, err := s.client.ContractName(ctx, s.market)
	if err != nil {
		return nil, errors.Wrap(err, "read market name")
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read chain id")
	}
	nonce := req.Nonce
	if nonce == nil {
		if nonce, err = s.Nonce(ctx); err != nil {
			return nil, err
		}
	}

	owner := s.sender.CommonAddress()
	msg := Message{Owner: owner, Spender: req.Spender, Value: req.Value, Nonce: nonce, Deadline: req.Deadline}
	digest, err := Digest(req.Kind, SigningDomain{Name: s.name, Version: s.version, ChainID: chainID, VerifyingContract: s.market}, msg)
	if err != nil {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: err}
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: err}
	}

	auth := &Authorization{
		Kind:      req.Kind,
		Owner:     owner,
		Spender:   req.Spender,
		Target:    s.market,
		Value:     new(big.Int).Set(req.Value),
		Nonce:     new(big.Int).Set(nonce),
		Deadline:  new(big.Int).Set(req.Deadline),
		ChainID:   chainID,
		TokenName: tokenName,
		Digest:    digest,
		V:         sig[64] + 27,
	}
	copy(auth.R[:], sig[:32])
	copy(auth.S[:], sig[32:64])

	if signer, err := auth.Recover(); err != nil || signer != owner {
		return nil, &bridgeerr.SigningError{Kind: req.Kind.String(), Err: errors.Errorf("signature does not recover to %s", owner.Hex())}
	}
	s.log.Debug("signed permit", "kind", req.Kind, "owner", owner.Hex(), "nonce", nonce, "deadline", req.Deadline)
	return auth, nil
}

// EnsureDeadline fails with StaleDataError when deadline is not after the
// latest block time.
func EnsureDeadline(ctx context.Context, client HeadReader, what string, deadline *big.Int) error {
	head, err := client.LatestHead(ctx)
	if err != nil {
		return errors.Wrap(err, "read latest block")
	}
	if deadline.Cmp(new(big.Int).SetUint64(head.Time)) <= 0 {
		return &bridgeerr.StaleDataError{What: what, Deadline: new(big.Int).Set(deadline), Now: head.Time}
	}
	return nil
}

// EnsureFresh re-checks every authorization deadline against the latest block.
func EnsureFresh(ctx context.Context, client HeadReader, auths ...*Authorization) error {
	for _, a := range auths {
		if err := EnsureDeadline(ctx, client, a.Kind.String()+" permit", a.Deadline); err != nil {
			return err
		}
	}
	return nil
}

// Deadline is the latest block time of client plus offset seconds.
func Deadline(ctx context.Context, client HeadReader, offset uint64) (*big.Int, error) {
	head, err := client.LatestHead(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read latest block")
	}
	return new(big.Int).Add(new(big.Int).SetUint64(head.Time), new(big.Int).SetUint64(offset)), nil
}
