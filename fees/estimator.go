// Package fees quotes the native fees of the two LayerZero messages a
// cross-domain borrow sends.
package fees

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
)

const (
	LegWithdrawal = "withdrawal"
	LegBorrow     = "borrow"
)

// FeeQuote is the oracle answer for one message, bound to the payload it
// was computed for.
type FeeQuote struct {
	DestinationID uint16
	NativeFee     *big.Int
	ZroFee        *big.Int
	AdapterParams []byte
	PayloadDigest common.Hash
}

// Estimator reads fee quotes from one domain.
type Estimator struct {
	client  evmclient.ContractCaller
	oftABI  abi.ABI
	lzABI   abi.ABI
	toftABI abi.ABI
}

func NewEstimator(client evmclient.ContractCaller) (*Estimator, error) {
	oft, err := chainbridge_abi.GetOFTABI()
	if err != nil {
		return nil, err
	}
	lz, err := chainbridge_abi.GetLzEndpointABI()
	if err != nil {
		return nil, err
	}
	toft, err := chainbridge_abi.GetTOFTABI()
	if err != nil {
		return nil, err
	}
	return &Estimator{client: client, oftABI: oft, lzABI: lz, toftABI: toft}, nil
}

// AddressToBytes32 left pads an address into the OFT recipient format.
func AddressToBytes32(a common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], a.Bytes())
	return out
}

// SendPayloadDigest identifies an OFT send by recipient and amount.
func SendPayloadDigest(recipient [32]byte, amount *big.Int) common.Hash {
	return crypto.Keccak256Hash(recipient[:], common.LeftPadBytes(amount.Bytes(), 32))
}

// PayloadDigest identifies an arbitrary message payload.
func PayloadDigest(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}

func (e *Estimator) unpackFees(method string, out []interface{}) (*big.Int, *big.Int, error) {
	if len(out) != 2 {
		return nil, nil, errors.Errorf("%s returned %d values", method, len(out))
	}
	native := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	zro := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	return native, zro, nil
}

// Estimate quotes sending amount of oft to recipient on destinationID with
// estimateSendFee.
func (e *Estimator) Estimate(ctx context.Context, oft common.Address, destinationID uint16, recipient common.Address, amount *big.Int, useZro bool, adapterParams []byte) (*FeeQuote, error) {
	to := AddressToBytes32(recipient)
	out, err := evmclient.Call(ctx, e.client, e.oftABI, oft, chainbridge_abi.MethodEstimateSendFee,
		destinationID, to, amount, useZro, adapterParams)
	if err != nil {
		return nil, &bridgeerr.FeeQuoteError{Leg: LegWithdrawal, DestinationID: destinationID, Err: err}
	}
	native, zro, err := e.unpackFees(chainbridge_abi.MethodEstimateSendFee, out)
	if err != nil {
		return nil, &bridgeerr.FeeQuoteError{Leg: LegWithdrawal, DestinationID: destinationID, Err: err}
	}
	return &FeeQuote{
		DestinationID: destinationID,
		NativeFee:     native,
		ZroFee:        zro,
		AdapterParams: common.CopyBytes(adapterParams),
		PayloadDigest: SendPayloadDigest(to, amount),
	}, nil
}

// EstimateCall quotes delivering payload from the user application ua to
// destinationID through the endpoint with estimateFees.
func (e *Estimator) EstimateCall(ctx context.Context, endpoint common.Address, destinationID uint16, ua common.Address, payload []byte, adapterParams []byte) (*FeeQuote, error) {
	out, err := evmclient.Call(ctx, e.client, e.lzABI, endpoint, chainbridge_abi.MethodEstimateFees,
		destinationID, ua, payload, false, adapterParams)
	if err != nil {
		return nil, &bridgeerr.FeeQuoteError{Leg: LegBorrow, DestinationID: destinationID, Err: err}
	}
	native, zro, err := e.unpackFees(chainbridge_abi.MethodEstimateFees, out)
	if err != nil {
		return nil, &bridgeerr.FeeQuoteError{Leg: LegBorrow, DestinationID: destinationID, Err: err}
	}
	return &FeeQuote{
		DestinationID: destinationID,
		NativeFee:     native,
		ZroFee:        zro,
		AdapterParams: common.CopyBytes(adapterParams),
		PayloadDigest: PayloadDigest(payload),
	}, nil
}

// Endpoint reads the LayerZero endpoint an OApp sends through.
func (e *Estimator) Endpoint(ctx context.Context, oapp common.Address) (common.Address, error) {
	out, err := evmclient.Call(ctx, e.client, e.toftABI, oapp, chainbridge_abi.MethodLzEndpoint)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "read lzEndpoint")
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
