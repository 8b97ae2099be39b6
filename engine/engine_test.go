package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmtest"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/listener"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/fees"
	"github.com/elastos/Elastos.ELA.CrossBorrow/keystore"
	"github.com/elastos/Elastos.ELA.CrossBorrow/operation"
	"github.com/elastos/Elastos.ELA.CrossBorrow/permit"
	"github.com/elastos/Elastos.ELA.CrossBorrow/registry"
	"github.com/elastos/Elastos.ELA.CrossBorrow/relayer"
	"github.com/elastos/Elastos.ELA.CrossBorrow/resolver"
)

const (
	originID      = 1
	destinationID = 421613
	startTime     = 1700000000
	marketName    = "Singularity TapiocaOFT-WETH"
)

var (
	wrapper  = evmtest.Address("TapiocaOFT-WETH")
	token    = evmtest.Address("WETH")
	endpoint = evmtest.Address("LayerZeroEndpoint")
	usdo     = evmtest.Address("USDO")
	market   = evmtest.Address(marketName)
	market2  = evmtest.Address("Singularity TapiocaOFT-WBTC")
	helper   = evmtest.Address("MarketsHelper")
	penrose  = evmtest.Address("Penrose")

	withdrawFee = big.NewInt(3e15)
	callFee     = big.NewInt(7e15)
)

type harness struct {
	cfg         *config.Config
	origin      *evmtest.Node
	destination *evmtest.Node
	engine      *Engine
	reports     []string
	borrowCalls []evmtest.Call
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func abis(t *testing.T) (toft, oft, lz, sgl, erc20, pen abi.ABI) {
	var err error
	toft, err = chainbridge_abi.GetTOFTABI()
	require.NoError(t, err)
	oft, err = chainbridge_abi.GetOFTABI()
	require.NoError(t, err)
	lz, err = chainbridge_abi.GetLzEndpointABI()
	require.NoError(t, err)
	sgl, err = chainbridge_abi.GetSingularityABI()
	require.NoError(t, err)
	erc20, err = chainbridge_abi.GetERC20ABI()
	require.NoError(t, err)
	pen, err = chainbridge_abi.GetPenroseABI()
	require.NoError(t, err)
	return
}

func newChain(t *testing.T, node *evmtest.Node, chainID uint64) *evm.EVMChain {
	s, err := keystore.KeypairFromAddress(keystore.AliceKey, "", nil, true)
	require.NoError(t, err)
	cfg := &config.GeneralChainConfig{Id: chainID, Insecure: true}
	require.NoError(t, cfg.ParseConfig())
	client, err := evmclient.NewEVMClient(cfg, s)
	require.NoError(t, err)
	client.Attach(node.Client())
	d, ok := domain.ByChainID(chainID)
	require.True(t, ok)
	return evm.NewEVMChain(d, client, cfg)
}

func newRegistry(t *testing.T) registry.Registry {
	db, err := registry.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	records := []domain.Deployment{
		{Name: "TapiocaOFT-WETH", Address: wrapper, Meta: map[string]interface{}{domain.MetaToftHost: true}, Project: config.DefaultWrapperProject, ChainID: originID},
		{Name: "USDO", Address: usdo, Project: config.DefaultStableProject, ChainID: destinationID},
		{Name: marketName, Address: market, Project: config.DefaultLocalProject, ChainID: destinationID},
		{Name: "MarketsHelper", Address: helper, Project: config.DefaultLocalProject, ChainID: destinationID},
		{Name: "Penrose", Address: penrose, Project: config.DefaultLocalProject, ChainID: destinationID},
	}
	for _, d := range records {
		d.Tag = "v1"
		require.NoError(t, db.Put(d))
	}
	return db
}

func newHarness(t *testing.T, collateral config.CollateralConfig) *harness {
	interval := listener.BlockRetryInterval
	listener.BlockRetryInterval = time.Millisecond
	t.Cleanup(func() { listener.BlockRetryInterval = interval })

	h := &harness{
		origin:      evmtest.NewNode(originID, 500, startTime),
		destination: evmtest.NewNode(destinationID, 9000, startTime),
	}
	toft, oft, lz, sgl, erc20, pen := abis(t)

	h.destination.Returns(market, sgl, chainbridge_abi.MethodNonces, big.NewInt(7))
	h.destination.Returns(market, sgl, chainbridge_abi.MethodName, marketName)
	h.destination.Returns(market2, sgl, chainbridge_abi.MethodName, "Singularity TapiocaOFT-WBTC")
	h.destination.Returns(penrose, pen, chainbridge_abi.MethodSingularityMarkets, []common.Address{market, market2})
	h.destination.Returns(usdo, oft, chainbridge_abi.MethodEstimateSendFee, withdrawFee, big.NewInt(0))
	h.destination.Returns(helper, sgl, chainbridge_abi.MethodName, "MarketsHelper")

	h.origin.Returns(wrapper, toft, chainbridge_abi.MethodLzEndpoint, endpoint)
	h.origin.Returns(wrapper, toft, chainbridge_abi.MethodErc20, token)
	h.origin.Returns(token, erc20, chainbridge_abi.MethodAllowance, big.NewInt(0))
	h.origin.Handle(token, erc20, chainbridge_abi.MethodFreeMint, func(evmtest.Call) ([]interface{}, error) { return nil, nil })
	h.origin.Returns(token, erc20, chainbridge_abi.MethodApprove, true)
	h.origin.Returns(endpoint, lz, chainbridge_abi.MethodEstimateFees, callFee, big.NewInt(0))
	h.origin.Handle(wrapper, toft, chainbridge_abi.MethodSendToYBAndBorrow, func(call evmtest.Call) ([]interface{}, error) {
		if call.Tx {
			h.borrowCalls = append(h.borrowCalls, call)
		}
		return nil, nil
	})

	h.cfg = &config.Config{Origin: "1", Destination: "arbitrum_goerli", Collateral: collateral}
	require.NoError(t, h.cfg.ParseConfig())

	r := relayer.NewRelayer(newChain(t, h.origin, originID), newChain(t, h.destination, destinationID))
	res := resolver.New(newRegistry(t), nil, h.cfg.Registry)
	var err error
	h.engine, err = New(h.cfg, res, r, ReporterFunc(func(format string, args ...interface{}) {
		h.reports = append(h.reports, fmt.Sprintf(format, args...))
	}))
	require.NoError(t, err)
	return h
}

func TestBorrowScenario(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{EnsureAllowance: true, FreeMint: true})

	res, err := h.engine.Borrow(context.Background(), Request{Tag: "v1", Collateral: ether(100), Borrow: ether(50)})
	require.NoError(t, err)

	total := new(big.Int).Add(withdrawFee, callFee)
	assert.Equal(t, total, res.Operation.Value)
	assert.Equal(t, withdrawFee, res.WithdrawalFee)
	assert.Equal(t, callFee, res.BorrowFee)
	assert.NotEqual(t, common.Hash{}, res.Receipt.TxHash)
	assert.NotEmpty(t, res.OperationID)

	// freeMint, approve, sendToYBAndBorrow
	sent := h.origin.Sent()
	require.Len(t, sent, 3)
	for i, tx := range sent {
		assert.Equal(t, uint64(i), tx.Nonce())
	}
	borrowTx := sent[2]
	assert.Equal(t, res.Receipt.TxHash, borrowTx.Hash())
	assert.Equal(t, wrapper, *borrowTx.To())
	assert.Equal(t, total, borrowTx.Value())
	require.Len(t, h.borrowCalls, 1)
	assert.Equal(t, total, h.borrowCalls[0].Value)
	assert.Empty(t, h.destination.Sent())

	call, err := operation.Decode(borrowTx.Data())
	require.NoError(t, err)
	from := res.Operation.From
	assert.Equal(t, from, call.To)
	assert.Equal(t, uint16(10143), call.LzDstChainId)
	assert.Equal(t, ether(100), call.BorrowParams.Amount)
	assert.Equal(t, ether(50), call.BorrowParams.BorrowAmount)
	assert.Equal(t, market, call.BorrowParams.Market)
	assert.Equal(t, helper, call.BorrowParams.MarketHelper)
	assert.Equal(t, uint16(101), call.WithdrawParams.WithdrawLzChainId)
	assert.Equal(t, withdrawFee, call.WithdrawParams.WithdrawLzFeeAmount)
	assert.True(t, call.WithdrawParams.WithdrawOnOtherChain)
	assert.Equal(t, big.NewInt(1000000), call.Options.ExtraGasLimit)
	assert.True(t, call.Options.Wrap)
	assert.False(t, call.Options.StrategyDeposit)
	assert.Equal(t, from, call.Options.ZroPaymentAddress)

	withdraw, err := fees.DecodeWithdrawalAdapterParams(call.WithdrawParams.WithdrawAdapterParams)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200000), withdraw.GasLimit)
	airdrop, err := fees.DecodeAirdropAdapterParams(call.AirdropAdapterParams)
	require.NoError(t, err)
	assert.Equal(t, withdrawFee, airdrop.AirdropAmount)
	assert.Equal(t, helper, airdrop.AirdropRecipient)

	// The borrow permit carries the current nonce, the lend permit the next one.
	require.Len(t, call.Approvals, 2)
	signing := permit.SigningDomain{Name: h.cfg.Permit.Name, Version: h.cfg.Permit.Version, ChainID: big.NewInt(destinationID), VerifyingContract: market}
	for i, kind := range []permit.Kind{permit.KindPermitBorrow, permit.KindPermit} {
		a := call.Approvals[i]
		assert.Equal(t, kind.IsBorrow(), a.PermitBorrow)
		assert.Equal(t, market, a.Target)
		assert.Equal(t, helper, a.Spender)
		assert.Equal(t, math.MaxBig256, a.Value)
		assert.Equal(t, call.Approvals[0].Deadline, a.Deadline)
		assert.Greater(t, a.Deadline.Uint64(), uint64(startTime+config.DefaultDeadlineOffset))

		digest, err := permit.Digest(kind, signing, permit.Message{
			Owner: a.Owner, Spender: a.Spender, Value: a.Value, Nonce: big.NewInt(int64(7 + i)), Deadline: a.Deadline,
		})
		require.NoError(t, err)
		auth := permit.Authorization{Digest: digest, R: a.R, S: a.S, V: a.V}
		signer, err := auth.Recover()
		require.NoError(t, err)
		assert.Equal(t, from, signer, "%s permit signed over nonce %d", kind, 7+i)
	}

	assert.Contains(t, h.reports, "Free minting")
	assert.Contains(t, h.reports, "Approving ERC20 wrap")
	assert.Contains(t, h.reports, "Withdraw fees 0.003")
	assert.Contains(t, h.reports, "Call fee: 0.007 Ether")
	assert.Contains(t, h.reports, "Borrow Tx "+res.Receipt.TxHash.Hex())
}

func TestBorrowSkipsCollateralPreparation(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{})

	_, err := h.engine.Borrow(context.Background(), Request{Tag: "v1", Collateral: ether(1), Borrow: ether(1)})
	require.NoError(t, err)
	require.Len(t, h.origin.Sent(), 1)
	assert.NotContains(t, h.reports, "Approving ERC20 wrap")
}

func TestBorrowStaleDeadline(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{})
	// Every head read advances the fake chain by one block, so a one second
	// offset has elapsed by the time the permits are signed.
	h.cfg.Permit.DeadlineOffset = 1

	_, err := h.engine.Borrow(context.Background(), Request{Tag: "v1", Collateral: ether(1), Borrow: ether(1)})
	assert.True(t, bridgeerr.IsStale(err), "got %v", err)
	assert.Empty(t, h.origin.Sent())
	assert.Empty(t, h.borrowCalls)
}

func TestBorrowRejectsBadRequests(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{})
	ctx := context.Background()

	_, err := h.engine.Borrow(ctx, Request{Tag: "v1", Collateral: big.NewInt(0), Borrow: ether(1)})
	assert.True(t, bridgeerr.IsInconsistent(err))
	_, err = h.engine.Borrow(ctx, Request{Tag: "v1", Collateral: ether(1)})
	assert.True(t, bridgeerr.IsInconsistent(err))
	_, err = h.engine.Borrow(ctx, Request{Tag: "v2", Collateral: ether(1), Borrow: ether(1)})
	assert.True(t, bridgeerr.IsNotFound(err))
	assert.Empty(t, h.origin.Sent())
}

func TestBorrowRejectsMissingContract(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{EnsureAllowance: true})
	h.destination.Destroy(helper)

	_, err := h.engine.Borrow(context.Background(), Request{Tag: "v1", Collateral: ether(1), Borrow: ether(1)})
	var notFound *bridgeerr.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "MarketsHelper contract", notFound.Kind)
	assert.Equal(t, uint64(destinationID), notFound.DomainID)
	assert.Empty(t, h.origin.Sent())
}

func TestBorrowFeeQuoteFailure(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{})
	_, oft, _, _, _, _ := abis(t)
	h.destination.Handle(usdo, oft, chainbridge_abi.MethodEstimateSendFee, func(evmtest.Call) ([]interface{}, error) {
		return nil, fmt.Errorf("LzApp: destination chain is not a trusted source")
	})

	_, err := h.engine.Borrow(context.Background(), Request{Tag: "v1", Collateral: ether(1), Borrow: ether(1)})
	assert.True(t, bridgeerr.IsFeeQuote(err))
	assert.Empty(t, h.origin.Sent())
}

func TestMarkets(t *testing.T) {
	h := newHarness(t, config.CollateralConfig{})

	markets, err := h.engine.Markets(context.Background(), "v1", destinationID)
	require.NoError(t, err)
	assert.Equal(t, []Market{
		{Name: marketName, Address: market},
		{Name: "Singularity TapiocaOFT-WBTC", Address: market2},
	}, markets)

	_, err = h.engine.Markets(context.Background(), "v1", originID)
	assert.True(t, bridgeerr.IsNotFound(err), "no Penrose on the origin")
}

func TestNewRejectsUnknownDomains(t *testing.T) {
	cfg := &config.Config{Origin: "narnia", Destination: "1"}
	_, err := New(cfg, nil, relayer.NewRelayer(), nil)
	assert.Error(t, err)
}

func TestEtherUnits(t *testing.T) {
	wei, err := ParseEther("1.5")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1500000000000000000), wei)
	wei, err = ParseEther("100")
	require.NoError(t, err)
	assert.Equal(t, ether(100), wei)

	for _, bad := range []string{"", "abc", "0", "-1", "0.0000000000000000001"} {
		_, err := ParseEther(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "0.003", FormatEther(big.NewInt(3e15)))
	assert.Equal(t, "100", FormatEther(ether(100)))
	assert.Equal(t, "0", FormatEther(nil))
}
