// Package operation builds the sendToYBAndBorrow call of a cross-domain
// borrow and checks that its parts still belong together.
package operation

import (
	"bytes"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/permit"
)

// Field names follow the ABI component names so the structs pack and unpack
// without tags.

type BorrowParams struct {
	Amount       *big.Int
	BorrowAmount *big.Int
	Market       common.Address
	MarketHelper common.Address
}

type WithdrawParams struct {
	WithdrawAdapterParams []byte
	WithdrawLzChainId     uint16
	WithdrawLzFeeAmount   *big.Int
	WithdrawOnOtherChain  bool
}

type SendOptions struct {
	ExtraGasLimit     *big.Int
	StrategyDeposit   bool
	Wrap              bool
	ZroPaymentAddress common.Address
}

// Approval is the on-chain form of a signed authorization.
type Approval struct {
	PermitBorrow bool
	Target       common.Address
	Owner        common.Address
	Spender      common.Address
	Value        *big.Int
	Deadline     *big.Int
	V            uint8
	R            [32]byte
	S            [32]byte
}

// ApprovalFrom converts a signed authorization.
func ApprovalFrom(a *permit.Authorization) Approval {
	return Approval{
		PermitBorrow: a.Kind.IsBorrow(),
		Target:       a.Target,
		Owner:        a.Owner,
		Spender:      a.Spender,
		Value:        new(big.Int).Set(a.Value),
		Deadline:     new(big.Int).Set(a.Deadline),
		V:            a.V,
		R:            a.R,
		S:            a.S,
	}
}

// Call holds the arguments of sendToYBAndBorrow in ABI order.
type Call struct {
	From                 common.Address
	To                   common.Address
	LzDstChainId         uint16
	AirdropAdapterParams []byte
	BorrowParams         BorrowParams
	WithdrawParams       WithdrawParams
	Options              SendOptions
	Approvals            []Approval
}

var (
	toftOnce sync.Once
	toftABI  abi.ABI
	toftErr  error
)

func borrowMethod() (abi.Method, error) {
	toftOnce.Do(func() {
		toftABI, toftErr = chainbridge_abi.GetTOFTABI()
	})
	if toftErr != nil {
		return abi.Method{}, toftErr
	}
	return toftABI.Methods[chainbridge_abi.MethodSendToYBAndBorrow], nil
}

// Pack encodes c as sendToYBAndBorrow calldata.
func (c *Call) Pack() ([]byte, error) {
	method, err := borrowMethod()
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Pack(c.From, c.To, c.LzDstChainId, c.AirdropAdapterParams,
		c.BorrowParams, c.WithdrawParams, c.Options, c.Approvals)
	if err != nil {
		return nil, errors.Wrap(err, "pack sendToYBAndBorrow")
	}
	return append(common.CopyBytes(method.ID), args...), nil
}

// Decode parses sendToYBAndBorrow calldata.
func Decode(calldata []byte) (*Call, error) {
	method, err := borrowMethod()
	if err != nil {
		return nil, err
	}
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, errors.New("calldata is not a sendToYBAndBorrow call")
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, errors.Wrap(err, "unpack sendToYBAndBorrow")
	}
	call := new(Call)
	if err := method.Inputs.Copy(call, values); err != nil {
		return nil, errors.Wrap(err, "copy sendToYBAndBorrow arguments")
	}
	return call, nil
}
