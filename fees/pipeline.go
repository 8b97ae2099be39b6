package fees

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
)

// WithdrawalRequest describes the leg that sends the borrowed stable asset
// from the destination back to the recipient on ReturnID.
type WithdrawalRequest struct {
	StableAsset common.Address
	ReturnID    uint16
	Recipient   common.Address
	Amount      *big.Int
	GasLimit    *big.Int
}

// WithdrawalQuote is the first pipeline step result. Its native fee is what
// the borrow-trigger message has to airdrop to the destination.
type WithdrawalQuote struct {
	FeeQuote
	Params    WithdrawalAdapterParams
	Recipient common.Address
	Amount    *big.Int
}

// AirdropParams builds the borrow-trigger adapter parameters carrying the
// withdrawal fee to recipient.
func (q *WithdrawalQuote) AirdropParams(gasLimit *big.Int, recipient common.Address) AirdropAdapterParams {
	return AirdropAdapterParams{
		GasLimit:         new(big.Int).Set(gasLimit),
		AirdropAmount:    new(big.Int).Set(q.NativeFee),
		AirdropRecipient: recipient,
	}
}

// BorrowQuote is the second pipeline step result.
type BorrowQuote struct {
	FeeQuote
	Airdrop    AirdropAdapterParams
	Withdrawal *WithdrawalQuote
}

// Total is the native value the operation must carry. Without a withdrawal
// quote only the call fee is counted.
func (q *BorrowQuote) Total() *big.Int {
	if q.Withdrawal == nil {
		return new(big.Int).Set(q.NativeFee)
	}
	return new(big.Int).Add(q.NativeFee, q.Withdrawal.NativeFee)
}

type PipelineConfig struct {
	Wrapper          common.Address // collateral wrapper on the origin, the sending OApp
	DestinationID    uint16
	AirdropGasLimit  *big.Int
	AirdropRecipient common.Address
}

// Pipeline quotes the withdrawal leg on the destination, then the
// borrow-trigger leg on the origin.
type Pipeline struct {
	origin      *Estimator
	destination *Estimator
	cfg         PipelineConfig

	endpointMu sync.Mutex
	endpoint   *common.Address
}

func NewPipeline(origin, destination *Estimator, cfg PipelineConfig) *Pipeline {
	return &Pipeline{origin: origin, destination: destination, cfg: cfg}
}

func (p *Pipeline) QuoteWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalQuote, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, bridgeerr.Inconsistent("withdrawal amount", "must be positive, got %v", req.Amount)
	}
	params := WithdrawalAdapterParams{GasLimit: req.GasLimit}
	encoded, err := params.Encode()
	if err != nil {
		return nil, err
	}
	quote, err := p.destination.Estimate(ctx, req.StableAsset, req.ReturnID, req.Recipient, req.Amount, false, encoded)
	if err != nil {
		return nil, err
	}
	return &WithdrawalQuote{
		FeeQuote:  *quote,
		Params:    params,
		Recipient: req.Recipient,
		Amount:    new(big.Int).Set(req.Amount),
	}, nil
}

// Airdrop is the borrow-trigger adapter parameters QuoteBorrow will quote
// with. Payloads passed to QuoteBorrow must embed exactly these.
func (p *Pipeline) Airdrop(w *WithdrawalQuote) AirdropAdapterParams {
	return w.AirdropParams(p.cfg.AirdropGasLimit, p.cfg.AirdropRecipient)
}

func (p *Pipeline) lzEndpoint(ctx context.Context) (common.Address, error) {
	p.endpointMu.Lock()
	defer p.endpointMu.Unlock()
	if p.endpoint == nil {
		endpoint, err := p.origin.Endpoint(ctx, p.cfg.Wrapper)
		if err != nil {
			return common.Address{}, err
		}
		p.endpoint = &endpoint
	}
	return *p.endpoint, nil
}

// QuoteBorrow quotes delivering payload, the encoded borrow call, given the
// withdrawal quote it embeds.
func (p *Pipeline) QuoteBorrow(ctx context.Context, w *WithdrawalQuote, payload []byte) (*BorrowQuote, error) {
	if w == nil {
		return nil, bridgeerr.Inconsistent("borrow quote", "withdrawal quote is required")
	}
	if len(payload) == 0 {
		return nil, bridgeerr.Inconsistent("borrow quote", "empty payload")
	}
	airdrop := p.Airdrop(w)
	encoded, err := airdrop.Encode()
	if err != nil {
		return nil, err
	}
	endpoint, err := p.lzEndpoint(ctx)
	if err != nil {
		return nil, &bridgeerr.FeeQuoteError{Leg: LegBorrow, DestinationID: p.cfg.DestinationID, Err: err}
	}
	quote, err := p.origin.EstimateCall(ctx, endpoint, p.cfg.DestinationID, p.cfg.Wrapper, payload, encoded)
	if err != nil {
		return nil, err
	}
	return &BorrowQuote{FeeQuote: *quote, Airdrop: airdrop, Withdrawal: w}, nil
}
