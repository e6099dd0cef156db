package protocol

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/taurusgroup/multi-party-sig/pkg/math/curve"
	"github.com/taurusgroup/multi-party-sig/protocols/cmp"
)

const keyShareVersion = 1

// LocalKeyShare is a party's private output of keygen. It never leaves the party.
type LocalKeyShare struct {
	KeyID  string
	Config *cmp.Config
}

// keyShareDocument wraps the library's own config encoding, which is treated as opaque.
type keyShareDocument struct {
	Version    int      `cbor:"1,keyasint"`
	KeyID      string   `cbor:"2,keyasint"`
	PartyIndex uint16   `cbor:"3,keyasint"`
	Threshold  int      `cbor:"4,keyasint"`
	Parties    []uint16 `cbor:"5,keyasint"`
	Config     []byte   `cbor:"6,keyasint"`
}

func (k *LocalKeyShare) PartyIndex() uint16 {
	idx, _ := PartyIndex(k.Config.ID)
	return idx
}

func (k *LocalKeyShare) Threshold() int {
	return k.Config.Threshold
}

// Parties returns the indices of every keygen participant.
func (k *LocalKeyShare) Parties() []uint16 {
	return PartyIndices(k.Config.PartyIDs())
}

// PublicKey returns the 33 byte compressed group public key.
func (k *LocalKeyShare) PublicKey() ([]byte, error) {
	pub, err := k.Config.PublicPoint().MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode public key")
	}
	return pub, nil
}

func (k *LocalKeyShare) MarshalBinary() ([]byte, error) {
	cfg, err := k.Config.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal key share config")
	}
	return cbor.Marshal(keyShareDocument{
		Version:    keyShareVersion,
		KeyID:      k.KeyID,
		PartyIndex: k.PartyIndex(),
		Threshold:  k.Threshold(),
		Parties:    k.Parties(),
		Config:     cfg,
	})
}

func UnmarshalLocalKeyShare(data []byte) (*LocalKeyShare, error) {
	var doc keyShareDocument
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode key share document")
	}
	if doc.Version != keyShareVersion {
		return nil, errors.Errorf("unsupported key share version %d", doc.Version)
	}

	cfg := cmp.EmptyConfig(curve.Secp256k1{})
	if err := cfg.UnmarshalBinary(doc.Config); err != nil {
		return nil, errors.Wrap(err, "failed to decode key share config")
	}

	share := &LocalKeyShare{KeyID: doc.KeyID, Config: cfg}
	if share.PartyIndex() != doc.PartyIndex || share.Threshold() != doc.Threshold {
		return nil, errors.New("key share document does not match its config")
	}
	return share, nil
}
