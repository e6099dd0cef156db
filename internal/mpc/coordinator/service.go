package coordinator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrSignerMismatch means the signed transaction does not recover to the key's address.
var ErrSignerMismatch = errors.New("recovered signer does not match session address")

// Broadcaster submits raw signed transactions. *chain.Broadcaster implements it.
type Broadcaster interface {
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}

// Service starts signing sessions for transactions and assembles the signed encoding.
type Service struct {
	orchestrator *session.Orchestrator
	codec        *chain.Codec
	peers        *PeerClient
	broadcaster  Broadcaster
}

// NewService returns a Service. peers and broadcaster may be nil.
func NewService(orchestrator *session.Orchestrator, codec *chain.Codec, peers *PeerClient, broadcaster Broadcaster) *Service {
	return &Service{
		orchestrator: orchestrator,
		codec:        codec,
		peers:        peers,
		broadcaster:  broadcaster,
	}
}

// SignTransaction hashes tx, starts the signing session on this node and its peers,
// and returns the EIP-155 signed encoding once the recovered signer is verified.
func (s *Service) SignTransaction(ctx context.Context, req *SignTransactionRequest) (*SignedTransaction, error) {
	hash, err := s.codec.SigningHash(req.Tx)
	if err != nil {
		return nil, err
	}

	sess, err := s.orchestrator.PrepareSign(ctx, session.SignParams{
		SessionID: req.SessionID,
		KeyID:     req.KeyID,
		Signers:   req.Signers,
		Digest:    hash.Bytes(),
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", sess.ID).Str("signing_hash", hash.Hex()).Uints16("signers", sess.Signers).Msg("Signing transaction")

	if s.peers != nil && len(s.peers.Peers()) > 0 {
		trigger := SignTrigger{
			DataToSign: hexutil.Encode(hash.Bytes()),
			Parties:    sess.Signers,
			KeyID:      req.KeyID,
		}
		if err := s.peers.TriggerSign(ctx, req.SessionID, trigger); err != nil {
			room := relay.RoomName(sess.ID, relay.StageOffline)
			return nil, s.orchestrator.Abort(ctx, sess, mpcerrors.NewJoinError(room, "failed to start peer sessions", err))
		}
	}

	sig, err := s.orchestrator.RunSign(ctx, sess)
	if err != nil {
		return nil, err
	}

	raw, err := s.codec.EncodeSigned(req.Tx, sig.R, sig.S, sig.RecoveryID)
	if err != nil {
		return nil, err
	}
	stx, err := s.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	signer, err := s.codec.RecoverSigner(stx)
	if err != nil {
		return nil, err
	}
	if signer != common.HexToAddress(sess.Address) {
		return nil, errors.Wrapf(ErrSignerMismatch, "recovered %s, expected %s", signer.Hex(), sess.Address)
	}

	out := &SignedTransaction{
		Session:     sess,
		SigningHash: hash,
		Signature:   sig,
		Raw:         raw,
		TxHash:      chain.Hash(raw),
		Signer:      signer,
	}

	if req.Broadcast && s.broadcaster != nil {
		txHash, err := s.broadcaster.SendRawTransaction(ctx, raw)
		if err != nil {
			return out, err
		}
		out.Broadcasted = true
		log.Info().Str("session", sess.ID).Str("tx_hash", txHash.Hex()).Msg("Transaction broadcasted")
	}

	return out, nil
}
