// Package engine runs a cross-domain borrow end to end: it resolves the
// deployments, signs both permits, quotes both messages, assembles the call
// and submits it on the origin domain.
package engine

import (
	"context"
	"math/big"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/listener"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/fees"
	"github.com/elastos/Elastos.ELA.CrossBorrow/operation"
	"github.com/elastos/Elastos.ELA.CrossBorrow/permit"
	"github.com/elastos/Elastos.ELA.CrossBorrow/relayer"
	"github.com/elastos/Elastos.ELA.CrossBorrow/resolver"
	"github.com/elastos/Elastos.ELA.CrossBorrow/submit"
)

// Reporter receives user facing progress lines.
type Reporter interface {
	Report(format string, args ...interface{})
}

type ReporterFunc func(format string, args ...interface{})

func (f ReporterFunc) Report(format string, args ...interface{}) {
	f(format, args...)
}

type nopReporter struct{}

func (nopReporter) Report(string, ...interface{}) {}

// Request is one borrow: Collateral of the origin wrapper's token is
// deposited and Borrow of the stable asset is withdrawn back to the origin.
type Request struct {
	Tag        string
	Collateral *big.Int
	Borrow     *big.Int
}

type Result struct {
	OperationID   string
	Resolved      *resolver.Resolved
	Operation     *operation.BorrowOperation
	Receipt       *types.Receipt
	WithdrawalFee *big.Int
	BorrowFee     *big.Int
}

// Market is a Singularity market registered in Penrose.
type Market struct {
	Name    string
	Address common.Address
}

type Engine struct {
	cfg         *config.Config
	resolver    *resolver.Resolver
	relayer     *relayer.Relayer
	origin      domain.Domain
	destination domain.Domain
	reporter    Reporter
}

// New binds an engine to the origin and destination domains of cfg. Both
// must be connected in r.
func New(cfg *config.Config, res *resolver.Resolver, r *relayer.Relayer, reporter Reporter) (*Engine, error) {
	origin, err := domain.Lookup(cfg.Origin)
	if err != nil {
		return nil, errors.Wrap(err, "origin")
	}
	destination, err := domain.Lookup(cfg.Destination)
	if err != nil {
		return nil, errors.Wrap(err, "destination")
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{
		cfg:         cfg,
		resolver:    res,
		relayer:     r,
		origin:      origin,
		destination: destination,
		reporter:    reporter,
	}, nil
}

func (e *Engine) Origin() domain.Domain {
	return e.origin
}

func (e *Engine) Destination() domain.Domain {
	return e.destination
}

func maxUint256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// Borrow runs req. Nothing is retried and nothing is persisted: on error the
// whole operation has to be started again.
func (e *Engine) Borrow(ctx context.Context, req Request) (*Result, error) {
	if req.Collateral == nil || req.Collateral.Sign() <= 0 {
		return nil, bridgeerr.Inconsistent("collateral amount", "must be positive, got %v", req.Collateral)
	}
	if req.Borrow == nil || req.Borrow.Sign() <= 0 {
		return nil, bridgeerr.Inconsistent("borrow amount", "must be positive, got %v", req.Borrow)
	}
	originChain, destinationChain, err := e.relayer.Route(e.origin.ChainID, e.destination.ChainID)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	logger := bridgelog.New("op", id)

	resolved, err := e.resolver.Resolve(ctx, req.Tag, originChain.Domain(), destinationChain.Domain())
	if err != nil {
		return nil, err
	}
	e.reporter.Report("Using %s on %s, market %s on %s",
		resolved.CollateralWrapper.Name, resolved.Origin.Name, resolved.Market.Name, resolved.Destination.Name)

	originClient := originChain.Client()
	destinationClient := destinationChain.Client()
	from := originClient.ClientAddress()
	if destinationClient.ClientAddress() != from {
		return nil, bridgeerr.Inconsistent("sender", "origin signs as %s, destination as %s",
			from.Hex(), destinationClient.ClientAddress().Hex())
	}
	if err := ensureDeployed(ctx, originClient, resolved.Origin, resolved.CollateralWrapper); err != nil {
		return nil, err
	}
	if err := ensureDeployed(ctx, destinationClient, resolved.Destination, resolved.StableAsset, resolved.Market, resolved.MarketHelper); err != nil {
		return nil, err
	}
	driver := submit.NewDriver(originClient, originChain.Listener())

	if err := e.prepareCollateral(ctx, originChain, resolved, req.Collateral); err != nil {
		return nil, err
	}

	deadline, err := permit.Deadline(ctx, destinationClient, e.cfg.Permit.DeadlineOffset)
	if err != nil {
		return nil, err
	}
	auths, err := e.sign(ctx, destinationChain, resolved, deadline)
	if err != nil {
		return nil, err
	}
	logger.Debug("permits signed", "nonce", auths[0].Nonce, "deadline", deadline)

	originEstimator, err := fees.NewEstimator(originClient)
	if err != nil {
		return nil, err
	}
	destinationEstimator, err := fees.NewEstimator(destinationClient)
	if err != nil {
		return nil, err
	}
	airdropGas := new(big.Int).SetUint64(e.cfg.Messaging.AirdropGasLimit)
	pipeline := fees.NewPipeline(originEstimator, destinationEstimator, fees.PipelineConfig{
		Wrapper:          resolved.CollateralWrapper.Address,
		DestinationID:    resolved.Destination.MessagingID,
		AirdropGasLimit:  airdropGas,
		AirdropRecipient: resolved.MarketHelper.Address,
	})

	w, err := pipeline.QuoteWithdrawal(ctx, fees.WithdrawalRequest{
		StableAsset: resolved.StableAsset.Address,
		ReturnID:    resolved.Origin.MessagingID,
		Recipient:   from,
		Amount:      req.Borrow,
		GasLimit:    new(big.Int).SetUint64(e.cfg.Messaging.WithdrawGasLimit),
	})
	if err != nil {
		return nil, err
	}
	e.reporter.Report("Withdraw fees %s", FormatEther(w.NativeFee))

	zro := e.cfg.Messaging.ZroPayment()
	if zro == (common.Address{}) {
		zro = from
	}
	amounts := operation.Amounts{Collateral: req.Collateral, Borrow: req.Borrow}
	opts := operation.Options{
		From:                 from,
		To:                   from,
		AirdropGasLimit:      airdropGas,
		ExtraGasLimit:        new(big.Int).SetUint64(e.cfg.Messaging.ExtraGasLimit),
		StrategyDeposit:      e.cfg.Collateral.StrategyDeposit,
		Wrap:                 e.cfg.Collateral.WrapCollateral(),
		WithdrawOnOtherChain: true,
		ZroPaymentAddress:    zro,
	}
	_, calldata, err := operation.EncodeCall(resolved, auths, w, amounts, opts)
	if err != nil {
		return nil, err
	}
	q, err := pipeline.QuoteBorrow(ctx, w, calldata)
	if err != nil {
		return nil, err
	}
	e.reporter.Report("Call fee: %s Ether", FormatEther(q.NativeFee))

	op, err := operation.Assemble(resolved, auths, w, q, amounts, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("assembled operation", "target", op.Target.Hex(), "value", op.Value, "call", spew.Sdump(op.Call))

	if err := permit.EnsureFresh(ctx, destinationClient, auths[0], auths[1]); err != nil {
		return nil, err
	}
	receipt, err := driver.Submit(ctx, op, q.Total())
	if err != nil {
		return nil, err
	}
	logger.Info("borrow submitted", "tx", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	e.reporter.Report("Borrow Tx %s", receipt.TxHash.Hex())

	return &Result{
		OperationID:   id,
		Resolved:      resolved,
		Operation:     op,
		Receipt:       receipt,
		WithdrawalFee: new(big.Int).Set(w.NativeFee),
		BorrowFee:     new(big.Int).Set(q.NativeFee),
	}, nil
}

// sign issues the borrow permit with the current nonce and the lend permit
// with the next one. The market consumes them in that order.
func (e *Engine) sign(ctx context.Context, chain *evm.EVMChain, r *resolver.Resolved, deadline *big.Int) ([2]*permit.Authorization, error) {
	var auths [2]*permit.Authorization
	signer, err := permit.NewSigner(chain.Client(), chain.Client().Sender(), r.Market.Address, e.cfg.Permit)
	if err != nil {
		return auths, err
	}
	nonce, err := signer.Nonce(ctx)
	if err != nil {
		return auths, err
	}
	value := maxUint256()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := signer.Sign(gctx, permit.Request{
			Kind: permit.KindPermitBorrow, Spender: r.MarketHelper.Address,
			Value: value, Deadline: deadline, Nonce: nonce,
		})
		auths[0] = a
		return err
	})
	g.Go(func() error {
		a, err := signer.Sign(gctx, permit.Request{
			Kind: permit.KindPermit, Spender: r.MarketHelper.Address,
			Value: value, Deadline: deadline, Nonce: new(big.Int).Add(nonce, common.Big1),
		})
		auths[1] = a
		return err
	})
	if err := g.Wait(); err != nil {
		return [2]*permit.Authorization{}, err
	}
	return auths, nil
}

// ensureDeployed fails with NotFoundError when a registry record points at an
// address without code, which is what a stale deployment file looks like.
func ensureDeployed(ctx context.Context, client *evmclient.EVMClient, d domain.Domain, deps ...domain.Deployment) error {
	for _, dep := range deps {
		if !client.IsContractAddress(ctx, dep.Address) {
			return &bridgeerr.NotFoundError{Kind: dep.Name + " contract", DomainID: d.ChainID}
		}
	}
	return nil
}

// prepareCollateral makes sure the wrapper may pull amount of its underlying
// token from the sender, minting test tokens first when configured.
func (e *Engine) prepareCollateral(ctx context.Context, chain *evm.EVMChain, r *resolver.Resolved, amount *big.Int) error {
	if !e.cfg.Collateral.EnsureAllowance {
		return nil
	}
	client := chain.Client()
	toftABI, err := chainbridge_abi.GetTOFTABI()
	if err != nil {
		return err
	}
	erc20ABI, err := chainbridge_abi.GetERC20ABI()
	if err != nil {
		return err
	}
	wrapper := r.CollateralWrapper.Address
	out, err := evmclient.Call(ctx, client, toftABI, wrapper, chainbridge_abi.MethodErc20)
	if err != nil {
		return errors.Wrap(err, "read wrapped token")
	}
	token := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)

	out, err = evmclient.Call(ctx, client, erc20ABI, token, chainbridge_abi.MethodAllowance, client.ClientAddress(), wrapper)
	if err != nil {
		return errors.Wrap(err, "read allowance")
	}
	allowance := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	driver := submit.NewDriver(client, listener.NewConfirmationListener(client, e.cfg.Collateral.ApproveConfirmations))
	if e.cfg.Collateral.FreeMint {
		e.reporter.Report("Free minting")
		data, err := erc20ABI.Pack(chainbridge_abi.MethodFreeMint, e.cfg.Collateral.FreeMintWei())
		if err != nil {
			return err
		}
		if _, err := driver.Send(ctx, token, nil, data); err != nil {
			return err
		}
	}
	e.reporter.Report("Approving ERC20 wrap")
	data, err := erc20ABI.Pack(chainbridge_abi.MethodApprove, wrapper, maxUint256())
	if err != nil {
		return err
	}
	_, err = driver.Send(ctx, token, nil, data)
	return err
}

// Markets lists the Singularity markets registered in the Penrose contract
// of chainID.
func (e *Engine) Markets(ctx context.Context, tag string, chainID uint64) ([]Market, error) {
	chain, err := e.relayer.Chain(chainID)
	if err != nil {
		return nil, err
	}
	penrose, err := e.resolver.Penrose(ctx, tag, chainID)
	if err != nil {
		return nil, err
	}
	penroseABI, err := chainbridge_abi.GetPenroseABI()
	if err != nil {
		return nil, err
	}
	client := chain.Client()
	out, err := evmclient.Call(ctx, client, penroseABI, penrose.Address, chainbridge_abi.MethodSingularityMarkets)
	if err != nil {
		return nil, errors.Wrap(err, "read singularity markets")
	}
	addrs := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	markets := make([]Market, 0, len(addrs))
	for _, a := range addrs {
		name, err := client.ContractName(ctx, a)
		if err != nil {
			return nil, errors.Wrapf(err, "read name of market %s", a.Hex())
		}
		markets = append(markets, Market{Name: name, Address: a})
	}
	return markets, nil
}
