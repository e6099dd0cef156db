package sign

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionFromFlags(t *testing.T) {
	cmd := New()
	require.NoError(t, cmd.Flags().Parse([]string{"--room", "tx-1", "--data", "0x01ff"}))

	to, err := cmd.Flags().GetString("to")
	require.NoError(t, err)
	gasPrice, err := cmd.Flags().GetString("gas-price")
	require.NoError(t, err)
	value, err := cmd.Flags().GetString("value")
	require.NoError(t, err)
	nonce, err := cmd.Flags().GetUint64("nonce")
	require.NoError(t, err)
	gasLimit, err := cmd.Flags().GetUint64("gas-limit")
	require.NoError(t, err)
	data, err := cmd.Flags().GetString("data")
	require.NoError(t, err)

	tx, err := txFlags{nonce: nonce, to: to, gasLimit: gasLimit, gasPrice: gasPrice, value: value, data: data}.transaction()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.Nonce)
	assert.Equal(t, common.HexToAddress("0x4C34dDDEeb110852b7D927F3e491f514fE70E022"), tx.To)
	assert.Equal(t, uint64(1000000), tx.GasLimit)
	assert.Equal(t, big.NewInt(500000000), tx.GasPrice)
	assert.Equal(t, big.NewInt(1000000), tx.Value)
	assert.Equal(t, []byte{0x01, 0xff}, tx.Data)
}

func TestTransactionFromFlagsInvalid(t *testing.T) {
	valid := txFlags{to: "0x4C34dDDEeb110852b7D927F3e491f514fE70E022", gasPrice: "1", value: "0"}

	tests := []struct {
		name  string
		apply func(f *txFlags)
	}{
		{"to", func(f *txFlags) { f.to = "0x1234" }},
		{"gas price", func(f *txFlags) { f.gasPrice = "1e9" }},
		{"value", func(f *txFlags) { f.value = "" }},
		{"data", func(f *txFlags) { f.data = "zz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.apply(&f)
			_, err := f.transaction()
			assert.Error(t, err)
		})
	}
}
