// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package evmclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chainbridge_abi"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
)

const contractNameCacheSize = 256

type EVMClient struct {
	*ethclient.Client
	rpClient  *rpc.Client
	nonceLock sync.Mutex
	config    *config.GeneralChainConfig
	sender    sender.Sender
	nonce     *big.Int

	names   *lru.Cache // contract address -> name()
	nameABI abi.ABI
}

type CommonTransaction interface {
	// Hash returns the transaction hash.
	Hash() common.Hash
	// Returns signed transaction by provided private key
	RawWithSignature(key *ecdsa.PrivateKey, chainID *big.Int) ([]byte, error)
}

// ContractCaller is the read side shared by every component that queries contracts.
type ContractCaller interface {
	CallContract(ctx context.Context, callArgs map[string]interface{}, blockNumber *big.Int) ([]byte, error)
}

func NewEVMClient(cfg *config.GeneralChainConfig, s sender.Sender) (*EVMClient, error) {
	names, err := lru.New(contractNameCacheSize)
	if err != nil {
		return nil, err
	}
	nameABI, err := chainbridge_abi.GetSingularityABI()
	if err != nil {
		return nil, err
	}
	return &EVMClient{config: cfg, sender: s, names: names, nameABI: nameABI}, nil
}

// Configurate dials endpoint and checks that the node serves the configured chain.
func (c *EVMClient) Configurate(ctx context.Context, endpoint string) error {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return err
	}
	c.Attach(rpcClient)

	id, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	if id.Uint64() != c.config.Id {
		c.Close()
		return errors.New("endpoint " + endpoint + " serves chain " + id.String())
	}
	bridgelog.Debug("connected", "chain", c.config.Id, "endpoint", endpoint)
	return nil
}

// Attach binds the client to an established RPC connection.
func (c *EVMClient) Attach(rpcClient *rpc.Client) {
	c.Client = ethclient.NewClient(rpcClient)
	c.rpClient = rpcClient
}

type headerNumber struct {
	Number *big.Int `json:"number"           gencodec:"required"`
	Time   uint64   `json:"timestamp"        gencodec:"required"`
}

func (h *headerNumber) UnmarshalJSON(input []byte) error {
	type headerNumber struct {
		Number *hexutil.Big    `json:"number" gencodec:"required"`
		Time   *hexutil.Uint64 `json:"timestamp" gencodec:"required"`
	}
	var dec headerNumber
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.Number == nil {
		return errors.New("missing required field 'number' for Header")
	}
	if dec.Time == nil {
		return errors.New("missing required field 'timestamp' for Header")
	}
	h.Number = (*big.Int)(dec.Number)
	h.Time = uint64(*dec.Time)
	return nil
}

// Head is the part of the latest header the borrow flow reads. Decoding only
// these fields keeps it working against L2 nodes with extended headers.
type Head struct {
	Number *big.Int
	Time   uint64
}

// LatestHead returns number and timestamp of the latest block.
func (c *EVMClient) LatestHead(ctx context.Context) (*Head, error) {
	var head *headerNumber
	err := c.rpClient.CallContext(ctx, &head, "eth_getBlockByNumber", toBlockNumArg(nil), false)
	if err == nil && head == nil {
		err = ethereum.NotFound
	}
	if err != nil {
		return nil, err
	}
	return &Head{Number: head.Number, Time: head.Time}, nil
}

// LatestBlock returns the latest block from the current chain
func (c *EVMClient) LatestBlock(ctx context.Context) (*big.Int, error) {
	head, err := c.LatestHead(ctx)
	if err != nil {
		return nil, err
	}
	return head.Number, nil
}

func (c *EVMClient) ClientAddress() common.Address {
	return c.sender.CommonAddress()
}

func (c *EVMClient) Sender() sender.Sender {
	return c.sender
}

func (c *EVMClient) Config() *config.GeneralChainConfig {
	return c.config
}

// SendRawTransaction accepts rlp-encode of signed transaction and sends it via RPC call
func (c *EVMClient) SendRawTransaction(ctx context.Context, tx []byte) error {
	return c.rpClient.CallContext(ctx, nil, "eth_sendRawTransaction", hexutil.Encode(tx))
}

func (c *EVMClient) CallContract(ctx context.Context, callArgs map[string]interface{}, blockNumber *big.Int) ([]byte, error) {
	var hex hexutil.Bytes
	err := c.rpClient.CallContext(ctx, &hex, "eth_call", callArgs, toBlockNumArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return hex, nil
}

// ContractName reads and caches name() of contract.
func (c *EVMClient) ContractName(ctx context.Context, contract common.Address) (string, error) {
	if name, ok := c.names.Get(contract); ok {
		return name.(string), nil
	}
	out, err := Call(ctx, c, c.nameABI, contract, chainbridge_abi.MethodName)
	if err != nil {
		return "", err
	}
	name := *abi.ConvertType(out[0], new(string)).(*string)
	c.names.Add(contract, name)
	return name, nil
}

func (c *EVMClient) SignAndSendTransaction(ctx context.Context, tx CommonTransaction) (common.Hash, error) {
	id, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	rawTX, err := tx.RawWithSignature(c.sender.PrivateKey(), id)
	if err != nil {
		return common.Hash{}, err
	}

	err = c.SendRawTransaction(ctx, rawTX)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (c *EVMClient) LockNonce() {
	c.nonceLock.Lock()
}

func (c *EVMClient) UnlockNonce() {
	c.nonceLock.Unlock()
}

// UnsafeNonce returns the next account nonce. Callers hold the nonce lock.
func (c *EVMClient) UnsafeNonce(ctx context.Context) (*big.Int, error) {
	if c.nonce == nil {
		nonce, err := c.PendingNonceAt(ctx, c.ClientAddress())
		if err != nil {
			return nil, err
		}
		c.nonce = new(big.Int).SetUint64(nonce)
	}
	return new(big.Int).Set(c.nonce), nil
}

func (c *EVMClient) UnsafeIncreaseNonce() error {
	if c.nonce == nil {
		return errors.New("nonce is not loaded")
	}
	c.nonce.Add(c.nonce, big.NewInt(1))
	return nil
}

// ResetNonce drops the cached nonce so the next read goes to the node.
func (c *EVMClient) ResetNonce() {
	c.nonce = nil
}

// GasPrice is the suggested price scaled by the configured multiplier and capped at MaxGasPrice.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	suggestedGasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return capGasPrice(multiplyGasPrice(suggestedGasPrice, big.NewFloat(c.config.Opts.GasMultiplier)), c.config.Opts.MaxGasPrice), nil
}

// EstimateGasLimit returns the configured fixed limit, or estimates msg when none is set.
func (c *EVMClient) EstimateGasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.config.Opts.GasLimit != 0 {
		return c.config.Opts.GasLimit, nil
	}
	return c.EstimateGas(ctx, msg)
}

func (c *EVMClient) IsContractAddress(ctx context.Context, address common.Address) bool {
	code, err := c.CodeAt(ctx, address, nil)
	if err != nil || len(code) == 0 {
		return false
	}
	return true
}

func multiplyGasPrice(gasEstimate *big.Int, gasMultiplier *big.Float) *big.Int {

	gasEstimateFloat := new(big.Float).SetInt(gasEstimate)

	result := gasEstimateFloat.Mul(gasEstimateFloat, gasMultiplier)

	gasPrice := new(big.Int)

	result.Int(gasPrice)

	return gasPrice
}

func capGasPrice(gasPrice *big.Int, maxGasPrice uint64) *big.Int {
	// Check we aren't exceeding our limit
	limit := new(big.Int).SetUint64(maxGasPrice)
	if maxGasPrice != 0 && gasPrice.Cmp(limit) == 1 {
		return limit
	}
	return gasPrice
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

// ToCallArg converts msg to the eth_call argument object.
func ToCallArg(msg ethereum.CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	return arg
}

// Call packs method with args, calls contract at the latest block and unpacks the outputs.
func Call(ctx context.Context, caller ContractCaller, a abi.ABI, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := a.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{From: common.Address{}, To: &contract, Data: input}
	out, err := caller.CallContract(ctx, ToCallArg(msg), nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("empty response from " + method + " at " + contract.Hex())
	}
	return a.Unpack(method, out)
}
