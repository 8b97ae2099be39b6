package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SigningDomain is the EIP-712 domain of a market.
type SigningDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Message is the signed permit body, shared by both kinds.
type Message struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var permitFields = []apitypes.Type{
	{Name: "owner", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
}

// TypedData builds the EIP-712 payload of a permit of kind k.
func TypedData(k Kind, d SigningDomain, m Message) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":  domainFields,
			k.PrimaryType(): permitFields,
		},
		PrimaryType: k.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    m.Owner.Hex(),
			"spender":  m.Spender.Hex(),
			"value":    (*math.HexOrDecimal256)(new(big.Int).Set(m.Value)),
			"nonce":    (*math.HexOrDecimal256)(new(big.Int).Set(m.Nonce)),
			"deadline": (*math.HexOrDecimal256)(new(big.Int).Set(m.Deadline)),
		},
	}
}

// Digest is keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message)).
func Digest(k Kind, d SigningDomain, m Message) (common.Hash, error) {
	td := TypedData(k, d, m)
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, err
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte("\x19\x01"), domainSeparator, structHash), nil
}
