package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kashguard/go-mpc-roomsigner/internal/metrics"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/signing"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/taurusgroup/multi-party-sig/pkg/ecdsa"
	"github.com/taurusgroup/multi-party-sig/pkg/pool"
)

// ErrInvalidParameters is returned before any room is joined.
var ErrInvalidParameters = errors.New("invalid session parameters")

// StageRoom is a joined relay room that is released once its stage ends.
type StageRoom interface {
	protocol.Room
	Close() error
}

// RoomJoiner obtains a party index in a stage room.
type RoomJoiner interface {
	Join(ctx context.Context, room string, requested uint16) (StageRoom, error)
}

type relayJoiner struct {
	client *relay.Client
}

// NewRelayJoiner joins rooms on a relay server.
func NewRelayJoiner(client *relay.Client) RoomJoiner {
	return &relayJoiner{client: client}
}

func (j *relayJoiner) Join(ctx context.Context, room string, requested uint16) (StageRoom, error) {
	r, err := j.client.Join(ctx, room, requested)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type KeygenParams struct {
	SessionID string
	// KeyID defaults to SessionID.
	KeyID string
	// PartyIndex 0 lets the relay assign the lowest free index.
	PartyIndex      uint16
	Threshold       int
	NumberOfParties int
}

type SignParams struct {
	SessionID string
	KeyID     string
	Signers   []uint16
	Digest    []byte
}

// Orchestrator runs keygen, offline and online stages of a session, each in its own room.
type Orchestrator struct {
	joiner  RoomJoiner
	manager *Manager
	shares  storage.KeyShareStorage
	nodeID  string
	pool    *pool.Pool
}

func NewOrchestrator(joiner RoomJoiner, manager *Manager, shares storage.KeyShareStorage, nodeID string, pl *pool.Pool) *Orchestrator {
	return &Orchestrator{
		joiner:  joiner,
		manager: manager,
		shares:  shares,
		nodeID:  nodeID,
		pool:    pl,
	}
}

func (o *Orchestrator) Manager() *Manager {
	return o.manager
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidParameters, format, args...)
}

func validateSessionID(id string) error {
	for _, stage := range []string{relay.StageKeygen, relay.StageOffline, relay.StageOnline} {
		if !relay.ValidRoomName(relay.RoomName(id, stage)) {
			return invalid("session id %q cannot be used as a room name", id)
		}
	}
	return nil
}

func validateKeygen(p KeygenParams) error {
	if err := validateSessionID(p.SessionID); err != nil {
		return err
	}
	if p.NumberOfParties < 2 {
		return invalid("number_of_parties must be at least 2, got %d", p.NumberOfParties)
	}
	if p.Threshold < 0 || p.Threshold > p.NumberOfParties-1 {
		return invalid("threshold must be in [0, %d], got %d", p.NumberOfParties-1, p.Threshold)
	}
	if int(p.PartyIndex) > p.NumberOfParties {
		return invalid("party_index must be in [0, %d], got %d", p.NumberOfParties, p.PartyIndex)
	}
	return nil
}

// validateSigners checks the signing subset. self 0 skips the membership check.
func validateSigners(signers []uint16, self uint16, threshold, parties int) error {
	if len(signers) < threshold+1 {
		return invalid("at least %d signers are required, got %d", threshold+1, len(signers))
	}
	seen := make(map[uint16]bool, len(signers))
	for _, idx := range signers {
		if idx == 0 || int(idx) > parties {
			return invalid("signer %d out of range [1, %d]", idx, parties)
		}
		if seen[idx] {
			return invalid("signer %d listed twice", idx)
		}
		seen[idx] = true
	}
	if self != 0 && !seen[self] {
		return invalid("party %d is not among the signers %v", self, signers)
	}
	return nil
}

func sortedSigners(signers []uint16) []uint16 {
	out := append([]uint16(nil), signers...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PrepareKeygen validates p and records a new idle keygen session.
func (o *Orchestrator) PrepareKeygen(ctx context.Context, p KeygenParams) (*Session, error) {
	if err := validateKeygen(p); err != nil {
		return nil, err
	}
	return o.createKeygenSession(ctx, p, KindKeygen, nil, nil)
}

func (o *Orchestrator) createKeygenSession(ctx context.Context, p KeygenParams, kind Kind, signers []uint16, digest []byte) (*Session, error) {
	keyID := p.KeyID
	if keyID == "" {
		keyID = p.SessionID
	}

	s := &Session{
		ID:              p.SessionID,
		Kind:            kind,
		KeyID:           keyID,
		PartyIndex:      p.PartyIndex,
		Threshold:       p.Threshold,
		NumberOfParties: p.NumberOfParties,
	}
	if len(signers) > 0 {
		s.Signers = sortedSigners(signers)
		s.Digest = hexutil.Encode(digest)
	}
	if err := o.manager.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RunKeygen drives a prepared keygen session to Done or Failed.
func (o *Orchestrator) RunKeygen(ctx context.Context, s *Session) (*protocol.LocalKeyShare, error) {
	share, err := o.keygen(ctx, s)
	if err != nil {
		return nil, o.fail(ctx, s, err)
	}
	if err := o.finish(ctx, s); err != nil {
		return nil, err
	}
	return share, nil
}

// Keygen generates and stores a key share for this party.
func (o *Orchestrator) Keygen(ctx context.Context, p KeygenParams) (*Session, *protocol.LocalKeyShare, error) {
	s, err := o.PrepareKeygen(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	share, err := o.RunKeygen(ctx, s)
	return s, share, err
}

// PrepareSign loads the key share, validates the signers and records a new idle sign session.
func (o *Orchestrator) PrepareSign(ctx context.Context, p SignParams) (*Session, error) {
	if err := validateSessionID(p.SessionID); err != nil {
		return nil, err
	}
	if len(p.Digest) != 32 {
		return nil, invalid("digest must be 32 bytes, got %d", len(p.Digest))
	}

	share, err := o.loadShare(ctx, p.KeyID)
	if err != nil {
		return nil, err
	}
	if err := validateSigners(p.Signers, share.PartyIndex(), share.Threshold(), len(share.Parties())); err != nil {
		return nil, err
	}

	s := &Session{
		ID:              p.SessionID,
		Kind:            KindSign,
		KeyID:           p.KeyID,
		PartyIndex:      share.PartyIndex(),
		Threshold:       share.Threshold(),
		NumberOfParties: len(share.Parties()),
		Signers:         sortedSigners(p.Signers),
		Digest:          hexutil.Encode(p.Digest),
	}
	if err := setPublicKey(s, share); err != nil {
		return nil, err
	}
	if err := o.manager.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RunSign drives a prepared sign session to Done or Failed.
func (o *Orchestrator) RunSign(ctx context.Context, s *Session) (*signing.FinalizedSignature, error) {
	share, err := o.loadShare(ctx, s.KeyID)
	if err != nil {
		return nil, o.fail(ctx, s, &mpcerrors.StageError{Stage: relay.StageOffline, Room: relay.RoomName(s.ID, relay.StageOffline), Err: err})
	}
	sig, err := o.sign(ctx, s, share)
	if err != nil {
		return nil, o.fail(ctx, s, err)
	}
	if err := o.finish(ctx, s); err != nil {
		return nil, err
	}
	return sig, nil
}

// Abort fails a prepared sign session that will not be run.
func (o *Orchestrator) Abort(ctx context.Context, s *Session, err error) error {
	return o.fail(ctx, s, &mpcerrors.StageError{Stage: relay.StageOffline, Room: relay.RoomName(s.ID, relay.StageOffline), Err: err})
}

// Sign produces a signature over digest with an existing key share.
func (o *Orchestrator) Sign(ctx context.Context, p SignParams) (*Session, *signing.FinalizedSignature, error) {
	s, err := o.PrepareSign(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	sig, err := o.RunSign(ctx, s)
	return s, sig, err
}

// Run chains keygen and signing in one session.
func (o *Orchestrator) Run(ctx context.Context, p KeygenParams, signers []uint16, digest []byte) (*Session, *signing.FinalizedSignature, error) {
	if err := validateKeygen(p); err != nil {
		return nil, nil, err
	}
	if err := validateSigners(signers, p.PartyIndex, p.Threshold, p.NumberOfParties); err != nil {
		return nil, nil, err
	}
	if len(digest) != 32 {
		return nil, nil, invalid("digest must be 32 bytes, got %d", len(digest))
	}

	s, err := o.createKeygenSession(ctx, p, KindFull, signers, digest)
	if err != nil {
		return nil, nil, err
	}

	share, err := o.keygen(ctx, s)
	if err != nil {
		return s, nil, o.fail(ctx, s, err)
	}
	if err := validateSigners(signers, share.PartyIndex(), p.Threshold, p.NumberOfParties); err != nil {
		return s, nil, o.fail(ctx, s, &mpcerrors.StageError{Stage: relay.StageOffline, Room: relay.RoomName(s.ID, relay.StageOffline), Err: err})
	}
	sig, err := o.sign(ctx, s, share)
	if err != nil {
		return s, nil, o.fail(ctx, s, err)
	}
	if err := o.finish(ctx, s); err != nil {
		return s, nil, err
	}
	return s, sig, nil
}

func (o *Orchestrator) loadShare(ctx context.Context, keyID string) (*protocol.LocalKeyShare, error) {
	if keyID == "" {
		return nil, invalid("key id is required")
	}
	data, err := o.shares.GetKeyShare(ctx, keyID, o.nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrKeyShareNotFound) {
			return nil, invalid("no key share for key %q", keyID)
		}
		return nil, errors.Wrap(err, "failed to load key share")
	}
	share, err := protocol.UnmarshalLocalKeyShare(data)
	if err != nil {
		return nil, err
	}
	if share.KeyID != keyID {
		return nil, errors.Errorf("key share is stored as %q but belongs to %q", keyID, share.KeyID)
	}
	return share, nil
}

func setPublicKey(s *Session, share *protocol.LocalKeyShare) error {
	pub, err := share.PublicKey()
	if err != nil {
		return err
	}
	addr, err := chain.AddressFromPublicKey(pub)
	if err != nil {
		return err
	}
	s.PublicKey = hexutil.Encode(pub)
	s.Address = addr.Hex()
	return nil
}

// keygen runs the keygen stage and stores the resulting key share.
func (o *Orchestrator) keygen(ctx context.Context, s *Session) (*protocol.LocalKeyShare, error) {
	var share *protocol.LocalKeyShare

	err := o.runStage(ctx, s, relay.StageKeygen, s.PartyIndex, StateJoiningKeygenRoom, StateRunningKeygen,
		func(room StageRoom) (protocol.RoundMachine, error) {
			idx := room.PartyIndex()
			if int(idx) > s.NumberOfParties {
				return nil, mpcerrors.NewJoinError(room.Name(), fmt.Sprintf("issued index %d exceeds number of parties %d", idx, s.NumberOfParties), nil)
			}
			s.PartyIndex = idx
			return protocol.NewKeygenMachine(room.Name(), idx, s.NumberOfParties, s.Threshold, o.pool)
		},
		func(res interface{}) error {
			var err error
			share, err = protocol.KeygenResult(res, s.KeyID)
			if err != nil {
				return err
			}
			data, err := share.MarshalBinary()
			if err != nil {
				return err
			}
			if err := o.shares.StoreKeyShare(ctx, s.KeyID, o.nodeID, data); err != nil {
				return errors.Wrap(err, "failed to store key share")
			}
			if err := setPublicKey(s, share); err != nil {
				return err
			}
			return o.manager.Transition(ctx, s, StateKeygenDone)
		})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", s.ID).Str("key_id", s.KeyID).Uint16("party_index", s.PartyIndex).Str("address", s.Address).Msg("Keygen completed")
	return share, nil
}

// sign runs the offline and online stages for share.
func (o *Orchestrator) sign(ctx context.Context, s *Session, share *protocol.LocalKeyShare) (*signing.FinalizedSignature, error) {
	digest, err := hexutil.Decode(s.Digest)
	if err != nil {
		return nil, &mpcerrors.StageError{Stage: relay.StageOffline, Room: relay.RoomName(s.ID, relay.StageOffline), Err: err}
	}
	self := share.PartyIndex()

	var preSig *ecdsa.PreSignature
	err = o.runStage(ctx, s, relay.StageOffline, self, StateJoiningOfflineRoom, StateRunningOfflineStage,
		func(room StageRoom) (protocol.RoundMachine, error) {
			return protocol.NewOfflineMachine(room.Name(), share, s.Signers, o.pool)
		},
		func(res interface{}) error {
			var err error
			if preSig, err = protocol.OfflineResult(res); err != nil {
				return err
			}
			return o.manager.Transition(ctx, s, StateOfflineDone)
		})
	if err != nil {
		return nil, err
	}

	var sig *signing.FinalizedSignature
	err = o.runStage(ctx, s, relay.StageOnline, self, StateJoiningOnlineRoom, StateRunningOnlineStage,
		func(room StageRoom) (protocol.RoundMachine, error) {
			agg, err := signing.NewAggregator(preSig, share.Config.PublicPoint(), s.Signers, digest)
			if err != nil {
				return nil, err
			}
			return signing.NewOnlineMachine(room.Name(), self, agg)
		},
		func(res interface{}) error {
			var ok bool
			if sig, ok = res.(*signing.FinalizedSignature); !ok {
				return errors.Errorf("unexpected online stage result %T", res)
			}
			recid := sig.RecoveryID
			s.SignatureR = hexutil.EncodeBig(sig.R)
			s.SignatureS = hexutil.EncodeBig(sig.S)
			s.RecoveryID = &recid
			return o.manager.Transition(ctx, s, StateSignatureReady)
		})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", s.ID).Str("key_id", s.KeyID).Uints16("signers", s.Signers).Msg("Signature ready")
	return sig, nil
}

// runStage joins the stage room, runs the machine build returns and hands its result to done.
// Any error comes back as a *mpcerrors.StageError.
func (o *Orchestrator) runStage(
	ctx context.Context,
	s *Session,
	stage string,
	requested uint16,
	joining, running State,
	build func(room StageRoom) (protocol.RoundMachine, error),
	done func(res interface{}) error,
) error {
	roomName := relay.RoomName(s.ID, stage)
	start := time.Now()

	err := func() error {
		if err := o.manager.Transition(ctx, s, joining); err != nil {
			return err
		}
		room, err := o.joiner.Join(ctx, roomName, requested)
		if err != nil {
			return err
		}
		defer room.Close()

		machine, err := build(room)
		if err != nil {
			return err
		}
		if err := o.manager.Transition(ctx, s, running); err != nil {
			machine.Stop()
			return err
		}

		log.Debug().Str("session", s.ID).Str("stage", stage).Str("room", roomName).Uint16("party_index", room.PartyIndex()).Msg("Running stage")

		res, err := protocol.NewExecutor(stage).Run(ctx, room, machine)
		if err != nil {
			return err
		}
		return done(res)
	}()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return &mpcerrors.StageError{Stage: stage, Room: roomName, Err: err}
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, s *Session) error {
	if err := o.manager.Transition(ctx, s, StateDone); err != nil {
		return err
	}
	metrics.SessionsTotal.WithLabelValues(string(s.Kind), string(StateDone)).Inc()
	return nil
}

// fail moves s to Failed. The returned error is always a *mpcerrors.StageError.
func (o *Orchestrator) fail(ctx context.Context, s *Session, err error) error {
	var stageErr *mpcerrors.StageError
	if !errors.As(err, &stageErr) {
		stageErr = &mpcerrors.StageError{Stage: string(s.State), Err: err}
	}

	// the session context may already be cancelled, the failure must still be recorded
	if serr := o.manager.FailSession(context.WithoutCancel(ctx), s, stageErr); serr != nil {
		log.Error().Err(serr).Str("session", s.ID).Msg("Failed to record session failure")
	}
	metrics.SessionsTotal.WithLabelValues(string(s.Kind), string(StateFailed)).Inc()

	log.Warn().Err(stageErr.Err).Str("session", s.ID).Str("stage", stageErr.Stage).Str("room", stageErr.Room).Uints16("culprits", mpcerrors.Culprits(stageErr)).Msg("Session failed")
	return stageErr
}
