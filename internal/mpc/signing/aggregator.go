package signing

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/protocol"
	"github.com/pkg/errors"
	"github.com/taurusgroup/multi-party-sig/pkg/ecdsa"
	"github.com/taurusgroup/multi-party-sig/pkg/math/curve"
	"github.com/taurusgroup/multi-party-sig/pkg/party"
)

// Aggregator combines the signature shares of one presignature into a finalized signature.
type Aggregator struct {
	preSig  *ecdsa.PreSignature
	public  curve.Point
	signers []uint16
	digest  []byte
}

func NewAggregator(preSig *ecdsa.PreSignature, public curve.Point, signers []uint16, digest []byte) (*Aggregator, error) {
	if preSig == nil || public == nil {
		return nil, errors.New("presignature and public key are required")
	}
	if len(digest) != 32 {
		return nil, errors.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sorted := append([]uint16(nil), signers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &Aggregator{
		preSig:  preSig,
		public:  public,
		signers: sorted,
		digest:  append([]byte(nil), digest...),
	}, nil
}

// Peers is the number of partial signatures expected from other signers.
func (a *Aggregator) Peers() int {
	return len(a.signers) - 1
}

func (a *Aggregator) IsSigner(index uint16) bool {
	for _, s := range a.signers {
		if s == index {
			return true
		}
	}
	return false
}

// Sign produces this party's partial signature over the digest.
func (a *Aggregator) Sign(self uint16) *PartialSignature {
	return &PartialSignature{
		Signer: self,
		Digest: append([]byte(nil), a.digest...),
		Share:  a.preSig.SignatureShare(a.digest),
	}
}

// Complete needs exactly one partial signature from every other signer.
func (a *Aggregator) Complete(local *PartialSignature, peers []*PartialSignature) (*FinalizedSignature, error) {
	if local == nil || !a.IsSigner(local.Signer) {
		return nil, mpcerrors.NewAggregationError(nil, "local partial signature is missing or not from a signer")
	}
	if !bytes.Equal(local.Digest, a.digest) {
		return nil, mpcerrors.NewAggregationError(nil, "local partial signature is over a different digest")
	}
	if len(peers) != a.Peers() {
		return nil, mpcerrors.NewAggregationError(nil, fmt.Sprintf("expected %d peer partial signatures, got %d", a.Peers(), len(peers)))
	}

	shares := map[party.ID]ecdsa.SignatureShare{
		protocol.PartyID(local.Signer): local.Share,
	}
	for _, p := range peers {
		if p == nil {
			return nil, mpcerrors.NewAggregationError(nil, "nil peer partial signature")
		}
		id := protocol.PartyID(p.Signer)
		if !a.IsSigner(p.Signer) {
			return nil, mpcerrors.NewAggregationError([]uint16{p.Signer}, "partial signature from a party outside the signing set")
		}
		if _, dup := shares[id]; dup {
			return nil, mpcerrors.NewAggregationError([]uint16{p.Signer}, "duplicate partial signature")
		}
		if !bytes.Equal(p.Digest, a.digest) {
			return nil, mpcerrors.NewAggregationError([]uint16{p.Signer}, "partial signature is over a different digest")
		}
		shares[id] = p.Share
	}

	sig := a.preSig.Signature(shares)
	if !sig.Verify(a.public, a.digest) {
		culprits := protocol.PartyIndices(a.preSig.VerifySignatureShares(shares, a.digest))
		return nil, mpcerrors.NewAggregationError(culprits, "combined signature does not verify")
	}

	return finalize(sig)
}

// finalize converts to (r, s, recid) with s in the lower half order.
func finalize(sig *ecdsa.Signature) (*FinalizedSignature, error) {
	rPoint, err := sig.R.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode R")
	}
	if len(rPoint) != 33 {
		return nil, errors.Errorf("unexpected R encoding length %d", len(rPoint))
	}

	recid := rPoint[0] & 1
	var r secp256k1.ModNScalar
	if overflow := r.SetByteSlice(rPoint[1:]); overflow {
		recid |= 2
	}

	sBytes, err := sig.S.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode s")
	}
	var s secp256k1.ModNScalar
	s.SetByteSlice(sBytes)
	if s.IsOverHalfOrder() {
		s.Negate()
		recid ^= 1
	}
	if r.IsZero() || s.IsZero() {
		return nil, mpcerrors.NewAggregationError(nil, "degenerate signature")
	}

	rb, sb := r.Bytes(), s.Bytes()
	return &FinalizedSignature{
		R:          new(big.Int).SetBytes(rb[:]),
		S:          new(big.Int).SetBytes(sb[:]),
		RecoveryID: recid,
	}, nil
}
