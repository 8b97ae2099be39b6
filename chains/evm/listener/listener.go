package listener

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
)

var BlockRetryInterval = time.Second * 5

type ChainClient interface {
	LatestBlock(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ConfirmationListener waits until a transaction is included and buried
// under the configured number of blocks.
type ConfirmationListener struct {
	chainReader   ChainClient
	confirmations *big.Int
	interval      time.Duration
}

func NewConfirmationListener(chainReader ChainClient, confirmations int64) *ConfirmationListener {
	if confirmations < 1 {
		confirmations = 1
	}
	return &ConfirmationListener{
		chainReader:   chainReader,
		confirmations: big.NewInt(confirmations),
		interval:      BlockRetryInterval,
	}
}

// WithInterval overrides the polling interval.
func (l *ConfirmationListener) WithInterval(interval time.Duration) *ConfirmationListener {
	l.interval = interval
	return l
}

// WaitForConfirmations polls until the receipt of hash exists and
// head - inclusion + 1 >= confirmations. The receipt is returned whatever
// its status; a reverted transaction is the caller's to interpret.
func (l *ConfirmationListener) WaitForConfirmations(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			r, err := l.chainReader.TransactionReceipt(ctx, hash)
			switch {
			case err == ethereum.NotFound:
			case err != nil:
				return nil, err
			default:
				receipt = r
				bridgelog.Debug("transaction included", "tx", hash.Hex(), "block", r.BlockNumber, "status", r.Status)
			}
		}
		if receipt != nil {
			head, err := l.chainReader.LatestBlock(ctx)
			if err != nil {
				return nil, err
			}
			// Sleep if the difference is less than confirmations; (head - included + 1) < confirmations
			depth := new(big.Int).Sub(head, receipt.BlockNumber)
			if depth.Add(depth, big.NewInt(1)).Cmp(l.confirmations) >= 0 {
				return receipt, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
