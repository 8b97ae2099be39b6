package operation

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/fees"
	"github.com/elastos/Elastos.ELA.CrossBorrow/permit"
	"github.com/elastos/Elastos.ELA.CrossBorrow/resolver"
)

// Amounts are the collateral deposited on the origin and the stable amount
// borrowed on the destination, in wei.
type Amounts struct {
	Collateral *big.Int
	Borrow     *big.Int
}

// Options are the caller-chosen parts of the call.
type Options struct {
	From                 common.Address
	To                   common.Address
	AirdropGasLimit      *big.Int
	ExtraGasLimit        *big.Int
	StrategyDeposit      bool
	Wrap                 bool
	WithdrawOnOtherChain bool
	ZroPaymentAddress    common.Address
	// NativeValue pins the value the caller intends to attach. It is
	// rejected when it differs from the sum of the two quotes.
	NativeValue *big.Int
}

// BorrowOperation is an assembled call ready for submission to Target.
type BorrowOperation struct {
	Call
	Calldata []byte
	Value    *big.Int
	Target   common.Address
}

func positive(field string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return bridgeerr.Inconsistent(field, "must be positive, got %v", v)
	}
	return nil
}

func checkApprovals(r *resolver.Resolved, from common.Address, auths [2]*permit.Authorization) error {
	borrow, lend := auths[0], auths[1]
	if borrow == nil || lend == nil {
		return bridgeerr.Inconsistent("approvals", "two authorizations are required")
	}
	if borrow.Kind != permit.KindPermitBorrow || lend.Kind != permit.KindPermit {
		return bridgeerr.Inconsistent("approvals", "want [PermitBorrow Permit], got [%s %s]", borrow.Kind, lend.Kind)
	}
	for _, a := range auths {
		if a.Target != r.Market.Address {
			return bridgeerr.Inconsistent("approval target", "%s permit targets %s, market is %s", a.Kind, a.Target.Hex(), r.Market.Address.Hex())
		}
		if a.Spender != r.MarketHelper.Address {
			return bridgeerr.Inconsistent("approval spender", "%s permit spender %s is not the market helper %s", a.Kind, a.Spender.Hex(), r.MarketHelper.Address.Hex())
		}
		if a.Owner != from {
			return bridgeerr.Inconsistent("approval owner", "%s permit owner %s is not the sender %s", a.Kind, a.Owner.Hex(), from.Hex())
		}
		if a.Value == nil || a.Deadline == nil || a.Nonce == nil {
			return bridgeerr.Inconsistent("approval", "%s permit is incomplete", a.Kind)
		}
	}
	if borrow.Deadline.Cmp(lend.Deadline) != 0 {
		return bridgeerr.Inconsistent("approval deadline", "permits expire at %v and %v", borrow.Deadline, lend.Deadline)
	}
	if next := new(big.Int).Add(borrow.Nonce, common.Big1); next.Cmp(lend.Nonce) != 0 {
		return bridgeerr.Inconsistent("approval nonce", "lend permit nonce %v does not follow borrow permit nonce %v", lend.Nonce, borrow.Nonce)
	}
	return nil
}

// EncodeCall builds the call the borrow-trigger fee is quoted for. The
// airdrop carries the withdrawal fee to the market helper.
func EncodeCall(r *resolver.Resolved, auths [2]*permit.Authorization, w *fees.WithdrawalQuote, amounts Amounts, opts Options) (*Call, []byte, error) {
	if r == nil || w == nil {
		return nil, nil, bridgeerr.Inconsistent("call", "resolved deployments and withdrawal quote are required")
	}
	if err := checkApprovals(r, opts.From, auths); err != nil {
		return nil, nil, err
	}
	if err := positive("collateral amount", amounts.Collateral); err != nil {
		return nil, nil, err
	}
	if err := positive("borrow amount", amounts.Borrow); err != nil {
		return nil, nil, err
	}
	if w.Amount == nil || w.Amount.Cmp(amounts.Borrow) != 0 {
		return nil, nil, bridgeerr.Inconsistent("withdrawal quote", "quoted for %v, borrowing %v", w.Amount, amounts.Borrow)
	}
	if w.DestinationID != r.Origin.MessagingID {
		return nil, nil, bridgeerr.Inconsistent("withdrawal quote", "quoted towards %d, origin is %d", w.DestinationID, r.Origin.MessagingID)
	}
	if opts.AirdropGasLimit == nil || opts.ExtraGasLimit == nil {
		return nil, nil, bridgeerr.Inconsistent("options", "gas limits are required")
	}

	airdrop, err := w.AirdropParams(opts.AirdropGasLimit, r.MarketHelper.Address).Encode()
	if err != nil {
		return nil, nil, err
	}
	call := &Call{
		From:                 opts.From,
		To:                   opts.To,
		LzDstChainId:         r.Destination.MessagingID,
		AirdropAdapterParams: airdrop,
		BorrowParams: BorrowParams{
			Amount:       new(big.Int).Set(amounts.Collateral),
			BorrowAmount: new(big.Int).Set(amounts.Borrow),
			Market:       r.Market.Address,
			MarketHelper: r.MarketHelper.Address,
		},
		WithdrawParams: WithdrawParams{
			WithdrawAdapterParams: common.CopyBytes(w.AdapterParams),
			WithdrawLzChainId:     w.DestinationID,
			WithdrawLzFeeAmount:   new(big.Int).Set(w.NativeFee),
			WithdrawOnOtherChain:  opts.WithdrawOnOtherChain,
		},
		Options: SendOptions{
			ExtraGasLimit:     new(big.Int).Set(opts.ExtraGasLimit),
			StrategyDeposit:   opts.StrategyDeposit,
			Wrap:              opts.Wrap,
			ZroPaymentAddress: opts.ZroPaymentAddress,
		},
		Approvals: []Approval{ApprovalFrom(auths[0]), ApprovalFrom(auths[1])},
	}
	calldata, err := call.Pack()
	if err != nil {
		return nil, nil, err
	}
	return call, calldata, nil
}

// Assemble re-encodes the call and checks it against both quotes. The
// attached value is always recomputed from the quotes.
func Assemble(r *resolver.Resolved, auths [2]*permit.Authorization, w *fees.WithdrawalQuote, q *fees.BorrowQuote, amounts Amounts, opts Options) (*BorrowOperation, error) {
	if q == nil {
		return nil, bridgeerr.Inconsistent("borrow quote", "missing")
	}
	call, calldata, err := EncodeCall(r, auths, w, amounts, opts)
	if err != nil {
		return nil, err
	}
	if q.Withdrawal == nil {
		return nil, bridgeerr.Inconsistent("borrow quote", "not tied to a withdrawal quote")
	}
	if q.Withdrawal.PayloadDigest != w.PayloadDigest {
		return nil, bridgeerr.Inconsistent("borrow quote", "computed on top of another withdrawal quote")
	}
	if q.Airdrop.AirdropAmount == nil || q.Airdrop.AirdropAmount.Cmp(w.NativeFee) != 0 {
		return nil, bridgeerr.Inconsistent("airdrop amount", "borrow quote airdrops %v, withdrawal fee is %v", q.Airdrop.AirdropAmount, w.NativeFee)
	}
	if !bytes.Equal(q.AdapterParams, call.AirdropAdapterParams) {
		return nil, bridgeerr.Inconsistent("airdrop adapter params", "borrow quote was computed with other adapter params")
	}
	if q.DestinationID != r.Destination.MessagingID {
		return nil, bridgeerr.Inconsistent("borrow quote", "quoted towards %d, destination is %d", q.DestinationID, r.Destination.MessagingID)
	}
	if q.PayloadDigest != fees.PayloadDigest(calldata) {
		return nil, bridgeerr.Inconsistent("borrow quote", "payload digest %s does not match the encoded call", q.PayloadDigest.Hex())
	}

	value := new(big.Int).Add(w.NativeFee, q.NativeFee)
	if opts.NativeValue != nil && opts.NativeValue.Cmp(value) != 0 {
		return nil, bridgeerr.Inconsistent("value", "attached %v, quotes sum to %v", opts.NativeValue, value)
	}
	return &BorrowOperation{
		Call:     *call,
		Calldata: calldata,
		Value:    value,
		Target:   r.CollateralWrapper.Address,
	}, nil
}
