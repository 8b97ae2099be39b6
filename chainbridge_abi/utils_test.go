package chainbridge_abi

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	toft, err := GetTOFTABI()
	require.NoError(t, err)
	oft, err := GetOFTABI()
	require.NoError(t, err)
	lz, err := GetLzEndpointABI()
	require.NoError(t, err)
	erc20, err := GetERC20ABI()
	require.NoError(t, err)

	assert.Equal(t, "estimateSendFee(uint16,bytes32,uint256,bool,bytes)", oft.Methods[MethodEstimateSendFee].Sig)
	assert.Equal(t, "estimateFees(uint16,address,bytes,bool,bytes)", lz.Methods[MethodEstimateFees].Sig)
	assert.Equal(t, "0x40a7bb10", hexutil.Encode(lz.Methods[MethodEstimateFees].ID))
	assert.Equal(t, "0xdd62ed3e", hexutil.Encode(erc20.Methods[MethodAllowance].ID))
	assert.Equal(t, "0x095ea7b3", hexutil.Encode(erc20.Methods[MethodApprove].ID))

	send := toft.Methods[MethodSendToYBAndBorrow]
	assert.True(t, send.IsPayable())
	assert.Equal(t,
		"sendToYBAndBorrow(address,address,uint16,bytes,(uint256,uint256,address,address),(bytes,uint16,uint256,bool),(uint256,bool,bool,address),(bool,address,address,address,uint256,uint256,uint8,bytes32,bytes32)[])",
		send.Sig)
	assert.Len(t, send.Inputs, 8)
}

func TestReadOnlyABIs(t *testing.T) {
	sgl, err := GetSingularityABI()
	require.NoError(t, err)
	assert.Contains(t, sgl.Methods, MethodNonces)
	assert.Contains(t, sgl.Methods, MethodName)

	penrose, err := GetPenroseABI()
	require.NoError(t, err)
	assert.Contains(t, penrose.Methods, MethodSingularityMarkets)
}
