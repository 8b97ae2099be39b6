// Package submit sends transactions on one domain and waits for them to be
// confirmed.
package submit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmtransaction"
	"github.com/elastos/Elastos.ELA.CrossBorrow/operation"
)

const (
	StageEstimate = "estimate"
	StageSend     = "send"
	StageReceipt  = "receipt"
)

var errReverted = errors.New("transaction reverted")

type ChainClient interface {
	evmclient.ContractCaller
	ClientAddress() common.Address
	SignAndSendTransaction(ctx context.Context, tx evmclient.CommonTransaction) (common.Hash, error)
	LockNonce()
	UnlockNonce()
	UnsafeNonce(ctx context.Context) (*big.Int, error)
	UnsafeIncreaseNonce() error
	ResetNonce()
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// ConfirmationWaiter blocks until a transaction is buried deep enough.
type ConfirmationWaiter interface {
	WaitForConfirmations(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Driver submits transactions from the client's sender. Nothing is retried:
// a failed submission is reported and the operation has to be rebuilt.
type Driver struct {
	client   ChainClient
	listener ConfirmationWaiter
	log      log.Logger
}

func NewDriver(client ChainClient, listener ConfirmationWaiter) *Driver {
	return &Driver{
		client:   client,
		listener: listener,
		log:      log.New("from", client.ClientAddress().Hex()),
	}
}

// Submit sends op with value attached, which must be the value op was
// assembled with.
func (d *Driver) Submit(ctx context.Context, op *operation.BorrowOperation, value *big.Int) (*types.Receipt, error) {
	if op == nil {
		return nil, bridgeerr.Inconsistent("operation", "missing")
	}
	if value == nil || op.Value == nil || value.Cmp(op.Value) != 0 {
		return nil, bridgeerr.Inconsistent("value", "submitting %v, operation was assembled for %v", value, op.Value)
	}
	return d.Send(ctx, op.Target, value, op.Calldata)
}

// Send signs and sends a call of to and waits for its confirmations. A
// reverted receipt is returned together with a SubmissionError.
func (d *Driver) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := d.client.ClientAddress()
	gasPrice, err := d.client.GasPrice(ctx)
	if err != nil {
		return nil, &bridgeerr.SubmissionError{Stage: StageEstimate, Err: errors.Wrap(err, "gas price")}
	}
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}
	gasLimit, err := d.client.EstimateGasLimit(ctx, msg)
	if err != nil {
		return nil, &bridgeerr.SubmissionError{Stage: StageEstimate, Reason: RevertReason(err), Err: err}
	}
	if gasLimit == 0 {
		return nil, &bridgeerr.SubmissionError{Stage: StageEstimate, Err: errors.New("gas estimate is 0")}
	}

	hash, err := d.send(ctx, to, value, gasLimit, gasPrice, data)
	if err != nil {
		return nil, &bridgeerr.SubmissionError{Stage: StageSend, Reason: RevertReason(err), Err: err}
	}
	d.log.Info("transaction sent", "tx", hash.Hex(), "to", to.Hex(), "value", value, "gas", gasLimit, "gasPrice", gasPrice)

	receipt, err := d.listener.WaitForConfirmations(ctx, hash)
	if err != nil {
		return nil, &bridgeerr.SubmissionError{Stage: StageReceipt, TxHash: hash, Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		msg.Gas = gasLimit
		msg.GasPrice = gasPrice
		reason := d.replay(ctx, msg, receipt.BlockNumber)
		d.log.Warn("transaction reverted", "tx", hash.Hex(), "block", receipt.BlockNumber, "reason", reason)
		return receipt, &bridgeerr.SubmissionError{Stage: StageReceipt, TxHash: hash, Reason: reason, Err: errReverted}
	}
	return receipt, nil
}

func (d *Driver) send(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) (common.Hash, error) {
	d.client.LockNonce()
	defer d.client.UnlockNonce()

	n, err := d.client.UnsafeNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx := evmtransaction.NewTransaction(n.Uint64(), to, value, gasLimit, gasPrice, data)
	hash, err := d.client.SignAndSendTransaction(ctx, tx)
	if err != nil {
		d.client.ResetNonce()
		return common.Hash{}, err
	}
	if err := d.client.UnsafeIncreaseNonce(); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// replay re-executes a reverted call at its inclusion block to learn why.
func (d *Driver) replay(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := d.client.CallContract(ctx, evmclient.ToCallArg(msg), block)
	if err == nil {
		return ""
	}
	if reason := RevertReason(err); reason != "" {
		return reason
	}
	return err.Error()
}

// RevertReason extracts the Error(string) message carried in the data of an
// RPC error, empty when there is none.
func RevertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	var data []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return ""
		}
		data = decoded
	case []byte:
		data = v
	default:
		return ""
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}
