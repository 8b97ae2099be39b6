package fees

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// LayerZero relayer adapter parameter versions.
const (
	AdapterVersionGas     uint16 = 1 // destination gas limit only
	AdapterVersionAirdrop uint16 = 2 // gas limit plus native airdrop
)

const (
	withdrawalParamsLen = 2 + 32
	airdropParamsLen    = 2 + 32 + 32 + common.AddressLength
)

// WithdrawalAdapterParams are the version 1 parameters of the withdrawal leg.
type WithdrawalAdapterParams struct {
	GasLimit *big.Int
}

// AirdropAdapterParams are the version 2 parameters of the borrow-trigger leg:
// the relayer delivers AirdropAmount of native token to AirdropRecipient so
// the destination can pay for the withdrawal leg.
type AirdropAdapterParams struct {
	GasLimit         *big.Int
	AirdropAmount    *big.Int
	AirdropRecipient common.Address
}

// toWord range checks v as an unsigned 256 bit integer.
func toWord(name string, v *big.Int) ([32]byte, error) {
	if v == nil || v.Sign() < 0 {
		return [32]byte{}, errors.Errorf("%s must be a non-negative integer", name)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return [32]byte{}, errors.Errorf("%s %v overflows uint256", name, v)
	}
	return u.Bytes32(), nil
}

func appendVersion(out []byte, version uint16) []byte {
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], version)
	return append(out, v[:]...)
}

// Encode packs p as solidityPack(uint16 1, uint256 gasLimit).
func (p WithdrawalAdapterParams) Encode() ([]byte, error) {
	gas, err := toWord("gas limit", p.GasLimit)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, withdrawalParamsLen)
	out = appendVersion(out, AdapterVersionGas)
	return append(out, gas[:]...), nil
}

// Encode packs p as solidityPack(uint16 2, uint256 gasLimit, uint256 amount, address recipient).
func (p AirdropAdapterParams) Encode() ([]byte, error) {
	gas, err := toWord("gas limit", p.GasLimit)
	if err != nil {
		return nil, err
	}
	amount, err := toWord("airdrop amount", p.AirdropAmount)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, airdropParamsLen)
	out = appendVersion(out, AdapterVersionAirdrop)
	out = append(out, gas[:]...)
	out = append(out, amount[:]...)
	return append(out, p.AirdropRecipient.Bytes()...), nil
}

func DecodeWithdrawalAdapterParams(b []byte) (WithdrawalAdapterParams, error) {
	if len(b) != withdrawalParamsLen {
		return WithdrawalAdapterParams{}, errors.Errorf("withdrawal adapter params are %d bytes, want %d", len(b), withdrawalParamsLen)
	}
	if v := binary.BigEndian.Uint16(b[:2]); v != AdapterVersionGas {
		return WithdrawalAdapterParams{}, errors.Errorf("withdrawal adapter params version %d, want %d", v, AdapterVersionGas)
	}
	return WithdrawalAdapterParams{GasLimit: new(big.Int).SetBytes(b[2:34])}, nil
}

func DecodeAirdropAdapterParams(b []byte) (AirdropAdapterParams, error) {
	if len(b) != airdropParamsLen {
		return AirdropAdapterParams{}, errors.Errorf("airdrop adapter params are %d bytes, want %d", len(b), airdropParamsLen)
	}
	if v := binary.BigEndian.Uint16(b[:2]); v != AdapterVersionAirdrop {
		return AirdropAdapterParams{}, errors.Errorf("airdrop adapter params version %d, want %d", v, AdapterVersionAirdrop)
	}
	return AirdropAdapterParams{
		GasLimit:         new(big.Int).SetBytes(b[2:34]),
		AirdropAmount:    new(big.Int).SetBytes(b[34:66]),
		AirdropRecipient: common.BytesToAddress(b[66:86]),
	}, nil
}
