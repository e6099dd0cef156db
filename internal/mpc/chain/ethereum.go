package chain

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/pkg/errors"
)

var (
	secp256k1N = crypto.S256().Params().N
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Transaction 未签名的 legacy 交易字段
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
}

// SignedTransaction 携带 EIP-155 签名的交易
type SignedTransaction struct {
	Transaction
	V *big.Int
	R *big.Int
	S *big.Int
}

// txFields 签名负载与已签名编码共用的 9 元素 RLP 列表
type txFields struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// Codec 以太坊 legacy 交易编解码（EIP-155）
type Codec struct {
	chainID *big.Int
}

// NewCodec 创建交易编解码器
func NewCodec(chainID *big.Int) (*Codec, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	return &Codec{chainID: new(big.Int).Set(chainID)}, nil
}

func (c *Codec) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// EncodeUnsigned 构建签名前负载 (nonce, gasPrice, gasLimit, to, value, data, chainId, 0, 0)
func (c *Codec) EncodeUnsigned(tx *Transaction) ([]byte, error) {
	fields, err := c.fields(tx)
	if err != nil {
		return nil, err
	}
	fields.V = new(big.Int).Set(c.chainID)
	fields.R = new(big.Int)
	fields.S = new(big.Int)

	raw, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, mpcerrors.NewEncodingError("failed to RLP encode unsigned transaction", err)
	}
	return raw, nil
}

// Hash Keccak256
func Hash(b []byte) common.Hash {
	return crypto.Keccak256Hash(b)
}

// SigningHash 各参与方对 tx 签名的摘要
func (c *Codec) SigningHash(tx *Transaction) (common.Hash, error) {
	raw, err := c.EncodeUnsigned(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return Hash(raw), nil
}

// EncodeSigned 使用 v = recid + 35 + chainId*2 及最小长度的 r、s 编码已签名交易
func (c *Codec) EncodeSigned(tx *Transaction, r, s *big.Int, recoveryID uint8) ([]byte, error) {
	if recoveryID > 1 {
		return nil, mpcerrors.NewEncodingError("recovery id must be 0 or 1", nil)
	}
	if err := checkSignatureValue("r", r); err != nil {
		return nil, err
	}
	if err := checkSignatureValue("s", s); err != nil {
		return nil, err
	}

	fields, err := c.fields(tx)
	if err != nil {
		return nil, err
	}
	fields.V = c.v(recoveryID)
	fields.R = new(big.Int).Set(r)
	fields.S = new(big.Int).Set(s)

	raw, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return nil, mpcerrors.NewEncodingError("failed to RLP encode signed transaction", err)
	}
	return raw, nil
}

// Decode 解析已签名交易
func (c *Codec) Decode(raw []byte) (*SignedTransaction, error) {
	var fields txFields
	if err := rlp.DecodeBytes(raw, &fields); err != nil {
		return nil, mpcerrors.NewEncodingError("malformed signed transaction", err)
	}

	return &SignedTransaction{
		Transaction: Transaction{
			Nonce:    fields.Nonce,
			GasPrice: fields.GasPrice,
			GasLimit: fields.GasLimit,
			To:       fields.To,
			Value:    fields.Value,
			Data:     fields.Data,
		},
		V: fields.V,
		R: fields.R,
		S: fields.S,
	}, nil
}

// RecoveryID 从本链的 EIP-155 v 中取出 recid
func (c *Codec) RecoveryID(v *big.Int) (uint8, error) {
	if v == nil {
		return 0, mpcerrors.NewEncodingError("missing v", nil)
	}
	recid := new(big.Int).Sub(v, c.v(0))
	if recid.Sign() < 0 || recid.Cmp(big.NewInt(1)) > 0 {
		return 0, mpcerrors.NewEncodingError("v does not match chain id "+c.chainID.String(), nil)
	}
	return uint8(recid.Uint64()), nil
}

// RecoverSigner 从签名恢复发送方地址
func (c *Codec) RecoverSigner(stx *SignedTransaction) (common.Address, error) {
	recid, err := c.RecoveryID(stx.V)
	if err != nil {
		return common.Address{}, err
	}
	if !crypto.ValidateSignatureValues(recid, stx.R, stx.S, true) {
		return common.Address{}, mpcerrors.NewEncodingError("invalid signature values", nil)
	}

	hash, err := c.SigningHash(&stx.Transaction)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, crypto.SignatureLength)
	stx.R.FillBytes(sig[0:32])
	stx.S.FillBytes(sig[32:64])
	sig[64] = recid

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (c *Codec) v(recoveryID uint8) *big.Int {
	v := new(big.Int).Mul(c.chainID, big.NewInt(2))
	return v.Add(v, big.NewInt(int64(recoveryID)+35))
}

func (c *Codec) fields(tx *Transaction) (*txFields, error) {
	if tx == nil {
		return nil, mpcerrors.NewEncodingError("transaction is nil", nil)
	}
	gasPrice, err := uint256Field("gasPrice", tx.GasPrice)
	if err != nil {
		return nil, err
	}
	value, err := uint256Field("value", tx.Value)
	if err != nil {
		return nil, err
	}
	return &txFields{
		Nonce:    tx.Nonce,
		GasPrice: gasPrice,
		GasLimit: tx.GasLimit,
		To:       tx.To,
		Value:    value,
		Data:     tx.Data,
	}, nil
}

func uint256Field(name string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, mpcerrors.NewEncodingError(name+" must not be negative", nil)
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, mpcerrors.NewEncodingError(name+" exceeds 256 bits", nil)
	}
	return new(big.Int).Set(v), nil
}

func checkSignatureValue(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 || v.Cmp(secp256k1N) >= 0 {
		return mpcerrors.NewEncodingError(name+" out of range", nil)
	}
	return nil
}

// AddressFromPublicKey 通过 Keccak256(pubKey[1:]) 生成地址
func AddressFromPublicKey(pubKey []byte) (common.Address, error) {
	var uncompressed64 []byte
	switch {
	case len(pubKey) == 65 && pubKey[0] == 0x04:
		uncompressed64 = pubKey[1:]
	case len(pubKey) == 33 && (pubKey[0] == 0x02 || pubKey[0] == 0x03):
		key, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return common.Address{}, errors.Wrap(err, "failed to parse compressed secp256k1 pubkey")
		}
		u := key.SerializeUncompressed() // 65 bytes, 0x04 | X | Y
		uncompressed64 = u[1:]
	default:
		return common.Address{}, errors.Errorf("unsupported public key format: len=%d", len(pubKey))
	}
	hash := crypto.Keccak256(uncompressed64)
	return common.BytesToAddress(hash[12:]), nil
}
