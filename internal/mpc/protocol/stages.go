package protocol

import (
	"github.com/pkg/errors"
	"github.com/taurusgroup/multi-party-sig/pkg/ecdsa"
	"github.com/taurusgroup/multi-party-sig/pkg/math/curve"
	"github.com/taurusgroup/multi-party-sig/pkg/pool"
	"github.com/taurusgroup/multi-party-sig/protocols/cmp"
)

// NewKeygenMachine starts a CMP key generation among parties 1..n. The result is a *cmp.Config.
func NewKeygenMachine(room string, self uint16, parties int, threshold int, pl *pool.Pool) (RoundMachine, error) {
	if parties < 2 {
		return nil, errors.Errorf("keygen needs at least 2 parties, got %d", parties)
	}
	if threshold < 0 || threshold > parties-1 {
		return nil, errors.Errorf("threshold %d out of range [0, %d]", threshold, parties-1)
	}
	if self == 0 || int(self) > parties {
		return nil, errors.Errorf("party index %d out of range [1, %d]", self, parties)
	}

	start := cmp.Keygen(curve.Secp256k1{}, PartyID(self), PartyIDs(AllParties(parties)), threshold, pl)
	return newHandlerMachine(room, self, start)
}

// NewOfflineMachine starts the presigning stage for signers. The result is a *ecdsa.PreSignature.
func NewOfflineMachine(room string, share *LocalKeyShare, signers []uint16, pl *pool.Pool) (RoundMachine, error) {
	start := cmp.Presign(share.Config, PartyIDs(signers), pl)
	return newHandlerMachine(room, share.PartyIndex(), start)
}

// KeygenResult unpacks the result of a keygen machine.
func KeygenResult(res interface{}, keyID string) (*LocalKeyShare, error) {
	cfg, ok := res.(*cmp.Config)
	if !ok {
		return nil, errors.Errorf("unexpected keygen result %T", res)
	}
	return &LocalKeyShare{KeyID: keyID, Config: cfg}, nil
}

// OfflineResult unpacks the result of an offline machine.
func OfflineResult(res interface{}) (*ecdsa.PreSignature, error) {
	preSig, ok := res.(*ecdsa.PreSignature)
	if !ok {
		return nil, errors.Errorf("unexpected offline stage result %T", res)
	}
	if err := preSig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid presignature")
	}
	return preSig, nil
}
