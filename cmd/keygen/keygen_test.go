package keygen

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignRequest(t *testing.T) {
	req, err := parseSignRequest("", nil)
	require.NoError(t, err)
	assert.Nil(t, req, "keygen only")

	digest := crypto.Keccak256([]byte("send 1 ether"))
	req, err = parseSignRequest(hexutil.Encode(digest), []uint{1, 3})
	require.NoError(t, err)
	assert.Equal(t, digest, req.digest)
	assert.Equal(t, []uint16{1, 3}, req.signers)

	tests := []struct {
		name    string
		digest  string
		signers []uint
	}{
		{"signers without digest", "", []uint{1, 2}},
		{"digest without signers", hexutil.Encode(digest), nil},
		{"short digest", "0x0102", []uint{1, 2}},
		{"not hex", "0xzz", []uint{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSignRequest(tt.digest, tt.signers)
			assert.Error(t, err)
		})
	}
}

func TestSignFlags(t *testing.T) {
	cmd := New()
	require.NoError(t, cmd.Flags().Parse([]string{"--room", "full-1", "--sign-digest", "0x01", "--signers", "1,2"}))

	signers, err := cmd.Flags().GetUintSlice("signers")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, signers)
	digest, err := cmd.Flags().GetString("sign-digest")
	require.NoError(t, err)
	assert.Equal(t, "0x01", digest)
}
