package keygen

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/coordinator"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type keygenOutput struct {
	SessionID  string `json:"session_id"`
	KeyID      string `json:"key_id"`
	PartyIndex uint16 `json:"party_index"`
	Threshold  int    `json:"threshold"`
	Parties    int    `json:"number_of_parties"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`

	Signers    []uint16 `json:"signers,omitempty"`
	Digest     string   `json:"digest,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	RecoveryID *uint8   `json:"recovery_id,omitempty"`
}

// signRequest is the optional signing stage chained after keygen.
type signRequest struct {
	signers []uint16
	digest  []byte
}

func parseSignRequest(digestHex string, signers []uint) (*signRequest, error) {
	if digestHex == "" {
		if len(signers) > 0 {
			return nil, errors.New("--signers requires --sign-digest")
		}
		return nil, nil
	}
	digest, err := hexutil.Decode(digestHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid --sign-digest")
	}
	if len(digest) != 32 {
		return nil, errors.Errorf("--sign-digest must be 32 bytes, got %d", len(digest))
	}
	if len(signers) == 0 {
		return nil, errors.New("--sign-digest requires --signers")
	}
	req := &signRequest{digest: digest, signers: make([]uint16, len(signers))}
	for i, p := range signers {
		req.signers[i] = uint16(p)
	}
	return req, nil
}

func New() *cobra.Command {
	var (
		room         string
		keyID        string
		index        uint16
		threshold    int
		parties      int
		triggerPeers bool
		signDigest   string
		signers      []uint
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Runs distributed key generation as one party and stores its key share",
		Long: `Runs the keygen stage in room {room}-keygen and stores the key share under
MPC_KEY_SHARE_PATH. With --trigger-peers every node in MPC_PEER_URLS is asked to
join the same room through POST /keygen/{room}.

With --sign-digest and --signers the fresh key signs the digest in the same
session, through rooms {room}-offline and {room}-online. Every party must be
started the same way.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			if room == "" {
				room = uuid.NewString()
			}
			sign, err := parseSignRequest(signDigest, signers)
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid flags")
			}
			if sign != nil && triggerPeers {
				log.Fatal().Msg("--trigger-peers cannot start a combined keygen and sign session")
			}
			out, err := run(cfg, session.KeygenParams{
				SessionID:       room,
				KeyID:           keyID,
				PartyIndex:      index,
				Threshold:       threshold,
				NumberOfParties: parties,
			}, triggerPeers, sign)
			if err != nil {
				log.Fatal().Err(err).Str("room", room).Msg("Keygen failed")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				log.Fatal().Err(err).Msg("Failed to print key")
			}
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "Session id, the keygen room is {room}-keygen (random when empty)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key id the share is stored under (defaults to --room)")
	cmd.Flags().Uint16Var(&index, "index", 0, "Party index to request, 0 lets the relay assign one")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 1, "Threshold t, any t+1 parties can sign")
	cmd.Flags().IntVarP(&parties, "parties", "n", 3, "Number of parties")
	cmd.Flags().BoolVar(&triggerPeers, "trigger-peers", false, "Start the session on MPC_PEER_URLS")
	cmd.Flags().StringVar(&signDigest, "sign-digest", "", "32 byte hex digest to sign with the new key in the same session")
	cmd.Flags().UintSliceVar(&signers, "signers", nil, "Signing party indices, used with --sign-digest")

	return cmd
}

func run(cfg config.Server, params session.KeygenParams, triggerPeers bool, sign *signRequest) (*keygenOutput, error) {
	s := api.NewServer(cfg)
	if err := s.InitParty(); err != nil {
		return nil, err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.MPC.SessionTimeout)
	defer cancel()

	if sign != nil {
		sess, sig, err := s.Orchestrator.Run(ctx, params, sign.signers, sign.digest)
		if err != nil {
			return nil, err
		}
		out := sessionOutput(sess)
		out.Signers = sess.Signers
		out.Digest = sess.Digest
		out.Signature = hexutil.Encode(sig.Bytes())
		out.RecoveryID = &sig.RecoveryID
		return out, nil
	}

	sess, err := s.Orchestrator.PrepareKeygen(ctx, params)
	if err != nil {
		return nil, err
	}

	if triggerPeers && len(cfg.MPC.PeerURLs) > 0 {
		peers := coordinator.NewPeerClient(cfg.MPC.PeerURLs, cfg.Relay.RequestTimeout)
		err := peers.TriggerKeygen(ctx, sess.ID, coordinator.KeygenTrigger{
			Threshold:       params.Threshold,
			NumberOfParties: params.NumberOfParties,
		})
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.Orchestrator.RunKeygen(ctx, sess); err != nil {
		return nil, err
	}
	return sessionOutput(sess), nil
}

func sessionOutput(sess *session.Session) *keygenOutput {
	return &keygenOutput{
		SessionID:  sess.ID,
		KeyID:      sess.KeyID,
		PartyIndex: sess.PartyIndex,
		Threshold:  sess.Threshold,
		Parties:    sess.NumberOfParties,
		PublicKey:  sess.PublicKey,
		Address:    sess.Address,
	}
}
