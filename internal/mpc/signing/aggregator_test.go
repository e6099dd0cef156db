package signing_test

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/multi-party-sig/pkg/ecdsa"
	"github.com/taurusgroup/multi-party-sig/pkg/math/curve"
	"github.com/taurusgroup/multi-party-sig/pkg/math/sample"
	"github.com/taurusgroup/multi-party-sig/pkg/party"
)

// splitScalar returns additive shares of secret, one per id.
func splitScalar(group curve.Curve, secret curve.Scalar, ids []party.ID) map[party.ID]curve.Scalar {
	sum := group.NewScalar()
	shares := make(map[party.ID]curve.Scalar, len(ids))
	for _, id := range ids[1:] {
		s := sample.Scalar(rand.Reader, group)
		sum.Add(s)
		shares[id] = s
	}
	shares[ids[0]] = group.NewScalar().Set(secret).Sub(sum)
	return shares
}

// dealPreSignatures builds consistent presignatures for signers without running the offline stage.
func dealPreSignatures(t *testing.T, signers []uint16) (curve.Point, map[uint16]*ecdsa.PreSignature) {
	t.Helper()
	group := curve.Secp256k1{}
	ids := protocol.PartyIDs(signers)

	x := sample.Scalar(rand.Reader, group)
	k := sample.Scalar(rand.Reader, group)
	kInv := group.NewScalar().Set(k).Invert()
	R := kInv.ActOnBase()
	chi := group.NewScalar().Set(x).Mul(k)

	kShares := splitScalar(group, k, ids)
	chiShares := splitScalar(group, chi, ids)

	rBar := make(map[party.ID]curve.Point, len(ids))
	s := make(map[party.ID]curve.Point, len(ids))
	for _, id := range ids {
		rBar[id] = group.NewScalar().Set(kShares[id]).Mul(kInv).ActOnBase()
		s[id] = chiShares[id].Act(R)
	}

	out := make(map[uint16]*ecdsa.PreSignature, len(signers))
	for i, id := range ids {
		out[signers[i]] = &ecdsa.PreSignature{
			R:        R,
			RBar:     party.NewPointMap(rBar),
			S:        party.NewPointMap(s),
			KShare:   kShares[id],
			ChiShare: chiShares[id],
		}
	}
	return x.ActOnBase(), out
}

func newAggregators(t *testing.T, signers []uint16, digest []byte) (curve.Point, map[uint16]*signing.Aggregator) {
	t.Helper()
	public, preSigs := dealPreSignatures(t, signers)
	aggs := make(map[uint16]*signing.Aggregator, len(signers))
	for idx, ps := range preSigs {
		agg, err := signing.NewAggregator(ps, public, signers, digest)
		require.NoError(t, err)
		aggs[idx] = agg
	}
	return public, aggs
}

func peersOf(self uint16, partials map[uint16]*signing.PartialSignature) []*signing.PartialSignature {
	out := make([]*signing.PartialSignature, 0, len(partials))
	for idx, p := range partials {
		if idx != self {
			out = append(out, p)
		}
	}
	return out
}

func TestAggregatorCompleteRecoversPublicKey(t *testing.T) {
	signers := []uint16{1, 3, 4}
	digest := crypto.Keccak256([]byte("transfer 1 ether"))
	public, aggs := newAggregators(t, signers, digest)

	partials := make(map[uint16]*signing.PartialSignature, len(signers))
	for idx, agg := range aggs {
		partials[idx] = agg.Sign(idx)
	}

	var first *signing.FinalizedSignature
	for idx, agg := range aggs {
		assert.Equal(t, 2, agg.Peers())
		sig, err := agg.Complete(partials[idx], peersOf(idx, partials))
		require.NoError(t, err)

		if first == nil {
			first = sig
		} else {
			assert.Equal(t, first.Bytes(), sig.Bytes(), "every signer must produce the same signature")
		}
	}

	require.NotNil(t, first)
	assert.LessOrEqual(t, first.RecoveryID, uint8(1))
	assert.True(t, crypto.ValidateSignatureValues(first.RecoveryID, first.R, first.S, true), "s must be in the lower half order")

	compressed, err := public.MarshalBinary()
	require.NoError(t, err)
	pub, err := crypto.DecompressPubkey(compressed)
	require.NoError(t, err)

	recovered, err := crypto.Ecrecover(digest, first.Bytes())
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSAPub(pub), recovered)
}

func TestAggregatorCountMismatch(t *testing.T) {
	signers := []uint16{1, 2, 3}
	digest := crypto.Keccak256([]byte("count"))
	_, aggs := newAggregators(t, signers, digest)

	local := aggs[1].Sign(1)
	_, err := aggs[1].Complete(local, []*signing.PartialSignature{aggs[2].Sign(2)})
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindAggregation))

	_, err = aggs[1].Complete(local, []*signing.PartialSignature{aggs[2].Sign(2), aggs[3].Sign(3), aggs[3].Sign(3)})
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindAggregation))
}

func TestAggregatorRejectsDuplicateAndOutsider(t *testing.T) {
	signers := []uint16{1, 2, 3}
	digest := crypto.Keccak256([]byte("dup"))
	_, aggs := newAggregators(t, signers, digest)

	local := aggs[1].Sign(1)
	dup := aggs[2].Sign(2)
	_, err := aggs[1].Complete(local, []*signing.PartialSignature{dup, dup})
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindAggregation))
	assert.Equal(t, []uint16{2}, mpcerrors.Culprits(err))

	outsider := aggs[3].Sign(3)
	outsider.Signer = 9
	_, err = aggs[1].Complete(local, []*signing.PartialSignature{dup, outsider})
	require.Error(t, err)
	assert.Equal(t, []uint16{9}, mpcerrors.Culprits(err))
}

func TestAggregatorRejectsWrongDigest(t *testing.T) {
	signers := []uint16{1, 2}
	digest := crypto.Keccak256([]byte("right"))
	_, aggs := newAggregators(t, signers, digest)

	peer := aggs[2].Sign(2)
	peer.Digest = crypto.Keccak256([]byte("wrong"))
	_, err := aggs[1].Complete(aggs[1].Sign(1), []*signing.PartialSignature{peer})
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindAggregation))
	assert.Equal(t, []uint16{2}, mpcerrors.Culprits(err))
}

func TestAggregatorNamesBadShare(t *testing.T) {
	signers := []uint16{1, 2, 3}
	digest := crypto.Keccak256([]byte("bad share"))
	_, aggs := newAggregators(t, signers, digest)

	bad := aggs[3].Sign(3)
	bad.Share = curve.Secp256k1{}.NewScalar().Set(bad.Share).Invert()

	_, err := aggs[1].Complete(aggs[1].Sign(1), []*signing.PartialSignature{aggs[2].Sign(2), bad})
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindAggregation))
	assert.Equal(t, []uint16{3}, mpcerrors.Culprits(err))
}

func TestNewAggregatorValidatesDigest(t *testing.T) {
	public, preSigs := dealPreSignatures(t, []uint16{1, 2})
	_, err := signing.NewAggregator(preSigs[1], public, []uint16{1, 2}, []byte("short"))
	assert.Error(t, err)
}

func TestPartialSignatureEncoding(t *testing.T) {
	digest := crypto.Keccak256([]byte("encode"))
	_, aggs := newAggregators(t, []uint16{1, 2}, digest)

	p := aggs[2].Sign(2)
	data, err := p.MarshalBinary()
	require.NoError(t, err)

	decoded, err := signing.UnmarshalPartialSignature(data)
	require.NoError(t, err)
	assert.Equal(t, p.Signer, decoded.Signer)
	assert.Equal(t, p.Digest, decoded.Digest)
	assert.True(t, p.Share.Equal(decoded.Share))

	_, err = signing.UnmarshalPartialSignature([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestOnlineMachine(t *testing.T) {
	signers := []uint16{1, 2, 3}
	digest := crypto.Keccak256([]byte("online"))
	_, aggs := newAggregators(t, signers, digest)

	m, err := signing.NewOnlineMachine("s-online", 1, aggs[1])
	require.NoError(t, err)

	own := <-m.Outgoing()
	require.True(t, own.IsBroadcast())
	assert.Equal(t, uint16(1), own.Sender)

	for _, idx := range []uint16{2, 3} {
		body, err := aggs[idx].Sign(idx).MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, m.Deliver(relay.NewBroadcast(idx, body)))
	}

	_, open := <-m.Outgoing()
	assert.False(t, open)

	res, err := m.Result()
	require.NoError(t, err)
	sig, ok := res.(*signing.FinalizedSignature)
	require.True(t, ok)
	assert.Len(t, sig.Bytes(), 65)
}

func TestOnlineMachineRejectsPeers(t *testing.T) {
	signers := []uint16{1, 2, 3}
	digest := crypto.Keccak256([]byte("online reject"))
	_, aggs := newAggregators(t, signers, digest)

	body2, err := aggs[2].Sign(2).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name    string
		deliver []*relay.Message
		culprit uint16
	}{
		{"duplicate", []*relay.Message{relay.NewBroadcast(2, body2), relay.NewBroadcast(2, body2)}, 2},
		{"outsider", []*relay.Message{relay.NewBroadcast(5, body2)}, 5},
		{"signer mismatch", []*relay.Message{relay.NewBroadcast(3, body2)}, 3},
		{"malformed", []*relay.Message{relay.NewBroadcast(2, []byte("garbage"))}, 2},
		{"p2p", []*relay.Message{relay.NewP2P(2, 1, body2)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := signing.NewOnlineMachine("s-online", 1, aggs[1])
			require.NoError(t, err)
			defer m.Stop()

			var last error
			for _, msg := range tt.deliver {
				last = m.Deliver(msg)
			}
			require.Error(t, last)
			assert.True(t, mpcerrors.Is(last, mpcerrors.KindProtocol))
			assert.Equal(t, []uint16{tt.culprit}, mpcerrors.Culprits(last))
		})
	}
}

func TestNewOnlineMachineRequiresSigner(t *testing.T) {
	_, aggs := newAggregators(t, []uint16{1, 2}, crypto.Keccak256([]byte("x")))
	_, err := signing.NewOnlineMachine("s-online", 7, aggs[1])
	assert.Error(t, err)
}
