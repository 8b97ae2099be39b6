package permit

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmtest"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/keystore"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender/secp256sender"
)

const startTime = 1700000000

var (
	market  = evmtest.Address("Singularity-TapiocaOFT-WETH")
	spender = evmtest.Address("MarketsHelper")
)

var permitConfig = config.PermitConfig{Name: config.DefaultPermitName, Version: config.DefaultPermitVersion}

type marketState struct {
	nonce      int64
	nonceReads int
	nameReads  int
}

func newTestSigner(t *testing.T, s sender.Sender) (*Signer, *marketState, *evmtest.Node) {
	node := evmtest.NewNode(421613, 1000, startTime)
	sgl, err := chainbridge_abi.GetSingularityABI()
	require.NoError(t, err)
	state := &marketState{nonce: 7}
	node.Handle(market, sgl, chainbridge_abi.MethodNonces, func(call evmtest.Call) ([]interface{}, error) {
		state.nonceReads++
		assert.Equal(t, s.CommonAddress(), call.Args[0])
		return []interface{}{big.NewInt(state.nonce)}, nil
	})
	node.Handle(market, sgl, chainbridge_abi.MethodName, func(evmtest.Call) ([]interface{}, error) {
		state.nameReads++
		return []interface{}{"Tapioca Singularity"}, nil
	})

	cfg := &config.GeneralChainConfig{Id: 421613}
	require.NoError(t, cfg.ParseConfig())
	client, err := evmclient.NewEVMClient(cfg, s)
	require.NoError(t, err)
	client.Attach(node.Client())

	signer, err := NewSigner(client, s, market, permitConfig)
	require.NoError(t, err)
	return signer, state, node
}

func alice(t *testing.T) sender.Sender {
	s, err := keystore.KeypairFromAddress(keystore.AliceKey, "", nil, true)
	require.NoError(t, err)
	return s
}

func TestKindSchema(t *testing.T) {
	assert.Equal(t, "Permit", KindPermit.PrimaryType())
	assert.Equal(t, "PermitBorrow", KindPermitBorrow.PrimaryType())
	assert.False(t, KindPermit.IsBorrow())
	assert.True(t, KindPermitBorrow.IsBorrow())
	assert.Equal(t, "", Kind(9).PrimaryType())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func manualDigest(t *testing.T, primaryType string, d SigningDomain, m Message) common.Hash {
	bytes32, _ := abi.NewType("bytes32", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	address, _ := abi.NewType("address", "", nil)

	domainArgs := abi.Arguments{{Type: bytes32}, {Type: bytes32}, {Type: bytes32}, {Type: uint256}, {Type: address}}
	domainEnc, err := domainArgs.Pack(
		crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")),
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		d.ChainID,
		d.VerifyingContract,
	)
	require.NoError(t, err)

	structArgs := abi.Arguments{{Type: bytes32}, {Type: address}, {Type: address}, {Type: uint256}, {Type: uint256}, {Type: uint256}}
	structEnc, err := structArgs.Pack(
		crypto.Keccak256Hash([]byte(primaryType+"(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)")),
		m.Owner, m.Spender, m.Value, m.Nonce, m.Deadline,
	)
	require.NoError(t, err)

	return crypto.Keccak256Hash([]byte("\x19\x01"), crypto.Keccak256(domainEnc), crypto.Keccak256(structEnc))
}

func TestDigestMatchesEIP712Encoding(t *testing.T) {
	d := SigningDomain{Name: "Tapioca Singularity", Version: "1", ChainID: big.NewInt(421613), VerifyingContract: market}
	m := Message{
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Spender:  spender,
		Value:    math.MaxBig256,
		Nonce:    big.NewInt(3),
		Deadline: big.NewInt(startTime + 18000000),
	}
	for _, kind := range []Kind{KindPermit, KindPermitBorrow} {
		digest, err := Digest(kind, d, m)
		require.NoError(t, err)
		assert.Equal(t, manualDigest(t, kind.PrimaryType(), d, m), digest, kind.String())
	}
	permitDigest, _ := Digest(KindPermit, d, m)
	borrowDigest, _ := Digest(KindPermitBorrow, d, m)
	assert.NotEqual(t, permitDigest, borrowDigest)
}

func TestSign(t *testing.T) {
	s := alice(t)
	signer, state, _ := newTestSigner(t, s)
	deadline := big.NewInt(startTime + 18000000)

	auth, err := signer.Sign(context.Background(), Request{Kind: KindPermitBorrow, Spender: spender, Value: math.MaxBig256, Deadline: deadline})
	require.NoError(t, err)
	assert.Equal(t, int64(7), auth.Nonce.Int64())
	assert.Equal(t, s.CommonAddress(), auth.Owner)
	assert.Equal(t, market, auth.Target)
	assert.Equal(t, spender, auth.Spender)
	assert.Equal(t, "Tapioca Singularity", auth.TokenName)
	assert.Contains(t, []uint8{27, 28}, auth.V)
	assert.Equal(t, 1, state.nonceReads)

	want := manualDigest(t, "PermitBorrow", SigningDomain{Name: "Tapioca Singularity", Version: "1", ChainID: big.NewInt(421613), VerifyingContract: market},
		Message{Owner: s.CommonAddress(), Spender: spender, Value: math.MaxBig256, Nonce: big.NewInt(7), Deadline: deadline})
	assert.Equal(t, want, auth.Digest)

	recovered, err := auth.Recover()
	require.NoError(t, err)
	assert.Equal(t, s.CommonAddress(), recovered)
}

func TestSignWithNonceOverride(t *testing.T) {
	signer, state, _ := newTestSigner(t, alice(t))
	ctx := context.Background()

	n, err := signer.Nonce(ctx)
	require.NoError(t, err)
	auth, err := signer.Sign(ctx, Request{
		Kind: KindPermit, Spender: spender, Value: math.MaxBig256,
		Deadline: big.NewInt(startTime + 100000), Nonce: new(big.Int).Add(n, big.NewInt(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), auth.Nonce.Int64())
	assert.Equal(t, 1, state.nonceReads, "override skips the nonce read")
	assert.Equal(t, 1, state.nameReads)
}

func TestSignRejectsPastDeadlineFirst(t *testing.T) {
	signer, state, _ := newTestSigner(t, alice(t))

	_, err := signer.Sign(context.Background(), Request{Kind: KindPermit, Spender: spender, Value: big.NewInt(1), Deadline: big.NewInt(startTime)})
	var stale *bridgeerr.StaleDataError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, 0, state.nonceReads)
	assert.Equal(t, 0, state.nameReads)
}

func TestSignRejectsForeignCurve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, _, _ := newTestSigner(t, secp256sender.NewSecp256Sender(key))

	_, err = signer.Sign(context.Background(), Request{Kind: KindPermit, Spender: spender, Value: big.NewInt(1), Deadline: big.NewInt(startTime + 1000)})
	assert.True(t, bridgeerr.IsSigning(err))

	signer, _, _ = newTestSigner(t, alice(t))
	_, err = signer.Sign(context.Background(), Request{Kind: Kind(4), Spender: spender, Value: big.NewInt(1), Deadline: big.NewInt(startTime + 1000)})
	assert.True(t, bridgeerr.IsSigning(err))
}

func TestEnsureFresh(t *testing.T) {
	signer, _, node := newTestSigner(t, alice(t))
	ctx := context.Background()
	auth, err := signer.Sign(ctx, Request{Kind: KindPermit, Spender: spender, Value: big.NewInt(1), Deadline: big.NewInt(startTime + 1000)})
	require.NoError(t, err)
	require.NoError(t, EnsureFresh(ctx, signer.client, auth))

	node.SetTime(startTime + 5000)
	assert.True(t, bridgeerr.IsStale(EnsureFresh(ctx, signer.client, auth)))

	deadline, err := Deadline(ctx, signer.client, 18000000)
	require.NoError(t, err)
	assert.Equal(t, int64(startTime+5024+18000000), deadline.Int64())
}
