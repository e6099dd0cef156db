package signing

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/taurusgroup/multi-party-sig/pkg/math/curve"
)

// PartialSignature 单个参与方的签名分片
type PartialSignature struct {
	Signer uint16
	Digest []byte
	Share  curve.Scalar
}

type partialSignatureWire struct {
	Signer uint16 `cbor:"1,keyasint"`
	Digest []byte `cbor:"2,keyasint"`
	Share  []byte `cbor:"3,keyasint"`
}

func (p *PartialSignature) MarshalBinary() ([]byte, error) {
	share, err := p.Share.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode signature share")
	}
	return cbor.Marshal(partialSignatureWire{Signer: p.Signer, Digest: p.Digest, Share: share})
}

func UnmarshalPartialSignature(data []byte) (*PartialSignature, error) {
	var w partialSignatureWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "failed to decode partial signature")
	}
	if len(w.Digest) != 32 {
		return nil, errors.Errorf("partial signature digest must be 32 bytes, got %d", len(w.Digest))
	}
	share := curve.Secp256k1{}.NewScalar()
	if err := share.UnmarshalBinary(w.Share); err != nil {
		return nil, errors.Wrap(err, "failed to decode signature share")
	}
	return &PartialSignature{Signer: w.Signer, Digest: w.Digest, Share: share}, nil
}

// FinalizedSignature 聚合后的 ECDSA 签名，S 位于低半区
type FinalizedSignature struct {
	R          *big.Int
	S          *big.Int
	RecoveryID uint8
}

// Bytes 返回 r || s || recid，共 65 字节
func (f *FinalizedSignature) Bytes() []byte {
	out := make([]byte, 65)
	f.R.FillBytes(out[0:32])
	f.S.FillBytes(out[32:64])
	out[64] = f.RecoveryID
	return out
}
