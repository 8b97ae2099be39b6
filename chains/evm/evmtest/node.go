// Package evmtest serves a scripted EVM JSON-RPC node over an in-process
// connection. Contract behaviour is registered per address and method.
package evmtest

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

const blockTime = 12

// Call is one contract invocation seen by a handler.
type Call struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Args  []interface{}
	// Tx is false for eth_call and eth_estimateGas.
	Tx bool
}

// Handler answers a method call. A non-nil error reverts with its message as reason.
type Handler func(call Call) ([]interface{}, error)

type route struct {
	method abi.Method
	fn     Handler
}

type Node struct {
	mu       sync.Mutex
	chainID  uint64
	head     uint64
	time     uint64
	gasPrice *big.Int
	gas      uint64
	autoMine bool

	routes   map[common.Address]map[string]route
	nonces   map[common.Address]uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

// NewNode starts a chain at block head with the given timestamp. Every
// latest-block query mines one empty block.
func NewNode(chainID, head, time uint64) *Node {
	return &Node{
		chainID:  chainID,
		head:     head,
		time:     time,
		gasPrice: big.NewInt(1000000000),
		gas:      300000,
		autoMine: true,
		routes:   make(map[common.Address]map[string]route),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

// Client returns an RPC client connected to the node.
func (n *Node) Client() *rpc.Client {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{node: n}); err != nil {
		panic(err)
	}
	return rpc.DialInProc(server)
}

// Handle routes calls of method on contract to fn.
func (n *Node) Handle(contract common.Address, a abi.ABI, method string, fn Handler) {
	m, ok := a.Methods[method]
	if !ok {
		panic("unknown method " + method)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.routes[contract] == nil {
		n.routes[contract] = make(map[string]route)
	}
	n.routes[contract][string(m.ID)] = route{method: m, fn: fn}
}

// Destroy removes every route of contract, leaving no code at the address.
func (n *Node) Destroy(contract common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.routes, contract)
}

// Returns answers method with fixed outputs.
func (n *Node) Returns(contract common.Address, a abi.ABI, method string, outs ...interface{}) {
	n.Handle(contract, a, method, func(Call) ([]interface{}, error) { return outs, nil })
}

func (n *Node) SetAutoMine(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoMine = on
}

func (n *Node) SetGas(gas uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gas = gas
}

func (n *Node) SetTime(time uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.time = time
}

func (n *Node) Head() (uint64, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head, n.time
}

// Sent returns the transactions received so far, in order.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *Node) Receipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func (n *Node) dispatch(call Call, data []byte) ([]byte, error) {
	if len(data) < 4 {
		if call.Tx {
			return nil, nil
		}
		return nil, fmt.Errorf("no method for empty calldata")
	}
	n.mu.Lock()
	r, ok := n.routes[call.To][string(data[:4])]
	n.mu.Unlock()
	if !ok {
		return nil, &revertError{reason: fmt.Sprintf("no handler for %x at %s", data[:4], call.To.Hex())}
	}
	args, err := r.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	call.Args = args
	outs, err := r.fn(call)
	if err != nil {
		return nil, &revertError{reason: err.Error()}
	}
	return r.method.Outputs.Pack(outs...)
}

type revertError struct {
	reason string
}

func (e *revertError) Error() string {
	return "execution reverted: " + e.reason
}

func (e *revertError) ErrorCode() int {
	return 3
}

// ErrorData is the ABI encoded Error(string), as geth reports reverts.
func (e *revertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

type ethAPI struct {
	node *Node
}

func parseCall(args map[string]interface{}) (Call, []byte, error) {
	var call Call
	if from, ok := args["from"].(string); ok {
		call.From = common.HexToAddress(from)
	}
	if to, ok := args["to"].(string); ok {
		call.To = common.HexToAddress(to)
	}
	call.Value = new(big.Int)
	if value, ok := args["value"].(string); ok {
		v, err := hexutil.DecodeBig(value)
		if err != nil {
			return call, nil, err
		}
		call.Value = v
	}
	var data []byte
	for _, key := range []string{"data", "input"} {
		if raw, ok := args[key].(string); ok {
			decoded, err := hexutil.Decode(raw)
			if err != nil {
				return call, nil, err
			}
			data = decoded
			break
		}
	}
	return call, data, nil
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(api.node.chainID))
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(api.node.gasPrice))
}

func (api *ethAPI) GetBlockByNumber(number string, full bool) (map[string]interface{}, error) {
	n := api.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if number != "latest" && number != "pending" {
		return nil, fmt.Errorf("only latest blocks are served, got %s", number)
	}
	if n.autoMine {
		n.head++
		n.time += blockTime
	}
	return map[string]interface{}{
		"number":    hexutil.Uint64(n.head),
		"timestamp": hexutil.Uint64(n.time),
	}, nil
}

func (api *ethAPI) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return hexutil.Uint64(api.node.nonces[addr])
}

func (api *ethAPI) GetCode(addr common.Address, block string) hexutil.Bytes {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	if _, ok := api.node.routes[addr]; ok {
		return hexutil.Bytes{0x60, 0x80}
	}
	return hexutil.Bytes{}
}

func (api *ethAPI) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	call, data, err := parseCall(args)
	if err != nil {
		return nil, err
	}
	return api.node.dispatch(call, data)
}

func (api *ethAPI) EstimateGas(args map[string]interface{}) (hexutil.Uint64, error) {
	call, data, err := parseCall(args)
	if err != nil {
		return 0, err
	}
	if _, err := api.node.dispatch(call, data); err != nil {
		return 0, err
	}
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return hexutil.Uint64(api.node.gas), nil
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	n := api.node
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(new(big.Int).SetUint64(n.chainID)), tx)
	if err != nil {
		return common.Hash{}, err
	}
	n.mu.Lock()
	if want := n.nonces[from]; tx.Nonce() != want {
		n.mu.Unlock()
		return common.Hash{}, fmt.Errorf("invalid nonce: have %d want %d", tx.Nonce(), want)
	}
	n.nonces[from]++
	n.mu.Unlock()

	call := Call{From: from, Value: tx.Value(), Tx: true}
	if tx.To() != nil {
		call.To = *tx.To()
	}
	status := types.ReceiptStatusSuccessful
	if _, err := n.dispatch(call, tx.Data()); err != nil {
		status = types.ReceiptStatusFailed
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.head++
	n.time += blockTime
	n.sent = append(n.sent, tx)
	n.receipts[tx.Hash()] = &types.Receipt{
		Status:            status,
		CumulativeGasUsed: tx.Gas(),
		GasUsed:           tx.Gas(),
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		BlockHash:         crypto.Keccak256Hash(new(big.Int).SetUint64(n.head).Bytes()),
		BlockNumber:       new(big.Int).SetUint64(n.head),
	}
	return tx.Hash(), nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return api.node.receipts[hash], nil
}

// Address derives a stable fake contract address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(label)))[12:])
}
