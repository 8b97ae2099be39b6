package chainbridge_abi

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodSendToYBAndBorrow  = "sendToYBAndBorrow"
	MethodEstimateSendFee    = "estimateSendFee"
	MethodEstimateFees       = "estimateFees"
	MethodLzEndpoint         = "lzEndpoint"
	MethodErc20              = "erc20"
	MethodNonces             = "nonces"
	MethodName               = "name"
	MethodAllowance          = "allowance"
	MethodApprove            = "approve"
	MethodFreeMint           = "freeMint"
	MethodSingularityMarkets = "singularityMarkets"
)

const approvalComponents = `[
	{"internalType":"bool","name":"permitBorrow","type":"bool"},
	{"internalType":"address","name":"target","type":"address"},
	{"internalType":"address","name":"owner","type":"address"},
	{"internalType":"address","name":"spender","type":"address"},
	{"internalType":"uint256","name":"value","type":"uint256"},
	{"internalType":"uint256","name":"deadline","type":"uint256"},
	{"internalType":"uint8","name":"v","type":"uint8"},
	{"internalType":"bytes32","name":"r","type":"bytes32"},
	{"internalType":"bytes32","name":"s","type":"bytes32"}]`

// GetTOFTABI covers the collateral wrapper (TapiocaOFT) methods used by a cross-domain borrow.
func GetTOFTABI() (abi.ABI, error) {
	definition := `[
	{"inputs":[
		{"internalType":"address","name":"from","type":"address"},
		{"internalType":"address","name":"to","type":"address"},
		{"internalType":"uint16","name":"lzDstChainId","type":"uint16"},
		{"internalType":"bytes","name":"airdropAdapterParams","type":"bytes"},
		{"components":[
			{"internalType":"uint256","name":"amount","type":"uint256"},
			{"internalType":"uint256","name":"borrowAmount","type":"uint256"},
			{"internalType":"address","name":"market","type":"address"},
			{"internalType":"address","name":"marketHelper","type":"address"}],
		 "internalType":"struct ITapiocaOFT.IBorrowParams","name":"borrowParams","type":"tuple"},
		{"components":[
			{"internalType":"bytes","name":"withdrawAdapterParams","type":"bytes"},
			{"internalType":"uint16","name":"withdrawLzChainId","type":"uint16"},
			{"internalType":"uint256","name":"withdrawLzFeeAmount","type":"uint256"},
			{"internalType":"bool","name":"withdrawOnOtherChain","type":"bool"}],
		 "internalType":"struct ITapiocaOFT.IWithdrawParams","name":"withdrawParams","type":"tuple"},
		{"components":[
			{"internalType":"uint256","name":"extraGasLimit","type":"uint256"},
			{"internalType":"bool","name":"strategyDeposit","type":"bool"},
			{"internalType":"bool","name":"wrap","type":"bool"},
			{"internalType":"address","name":"zroPaymentAddress","type":"address"}],
		 "internalType":"struct ITapiocaOFT.ISendOptions","name":"options","type":"tuple"},
		{"components":` + approvalComponents + `,
		 "internalType":"struct ITapiocaOFT.IApproval[]","name":"approvals","type":"tuple[]"}],
	 "name":"sendToYBAndBorrow","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[],"name":"lzEndpoint","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"erc20","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}

// GetOFTABI is the send fee quote of an OFT, the stable asset on the destination.
func GetOFTABI() (abi.ABI, error) {
	definition := `[{"inputs":[
		{"internalType":"uint16","name":"_dstChainId","type":"uint16"},
		{"internalType":"bytes32","name":"_toAddress","type":"bytes32"},
		{"internalType":"uint256","name":"_amount","type":"uint256"},
		{"internalType":"bool","name":"_useZro","type":"bool"},
		{"internalType":"bytes","name":"_adapterParams","type":"bytes"}],
	 "name":"estimateSendFee",
	 "outputs":[
		{"internalType":"uint256","name":"nativeFee","type":"uint256"},
		{"internalType":"uint256","name":"zroFee","type":"uint256"}],
	 "stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}

// GetLzEndpointABI is the fee quote of the LayerZero endpoint.
func GetLzEndpointABI() (abi.ABI, error) {
	definition := `[{"inputs":[
		{"internalType":"uint16","name":"_dstChainId","type":"uint16"},
		{"internalType":"address","name":"_userApplication","type":"address"},
		{"internalType":"bytes","name":"_payload","type":"bytes"},
		{"internalType":"bool","name":"_payInZRO","type":"bool"},
		{"internalType":"bytes","name":"_adapterParam","type":"bytes"}],
	 "name":"estimateFees",
	 "outputs":[
		{"internalType":"uint256","name":"nativeFee","type":"uint256"},
		{"internalType":"uint256","name":"zroFee","type":"uint256"}],
	 "stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}

// GetSingularityABI covers the permit reads of a Singularity market.
func GetSingularityABI() (abi.ABI, error) {
	definition := `[
	{"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}

// GetERC20ABI is the collateral token surface, freeMint included for testnet mocks.
func GetERC20ABI() (abi.ABI, error) {
	definition := `[
	{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_val","type":"uint256"}],"name":"freeMint","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}

// GetPenroseABI lists the registered Singularity markets.
func GetPenroseABI() (abi.ABI, error) {
	definition := `[{"inputs":[],"name":"singularityMarkets","outputs":[{"internalType":"address[]","name":"","type":"address[]"}],"stateMutability":"view","type":"function"}]`
	return abi.JSON(strings.NewReader(definition))
}
