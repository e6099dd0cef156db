package sign

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/coordinator"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type signOutput struct {
	SessionID   string `json:"session_id"`
	SigningHash string `json:"signing_hash"`
	Signer      string `json:"signer"`
	Signature   string `json:"signature"`
	RawTx       string `json:"raw_tx"`
	TxHash      string `json:"tx_hash"`
	Broadcasted bool   `json:"broadcasted"`
}

type txFlags struct {
	nonce    uint64
	to       string
	gasLimit uint64
	gasPrice string
	value    string
	data     string
}

func (f txFlags) transaction() (*chain.Transaction, error) {
	if !common.IsHexAddress(f.to) {
		return nil, errors.Errorf("invalid --to address %q", f.to)
	}
	gasPrice, ok := new(big.Int).SetString(f.gasPrice, 10)
	if !ok {
		return nil, errors.Errorf("invalid --gas-price %q", f.gasPrice)
	}
	value, ok := new(big.Int).SetString(f.value, 10)
	if !ok {
		return nil, errors.Errorf("invalid --value %q", f.value)
	}
	var data []byte
	if f.data != "" {
		var err error
		if data, err = hexutil.Decode(f.data); err != nil {
			return nil, errors.Wrap(err, "invalid --data")
		}
	}
	return &chain.Transaction{
		Nonce:    f.nonce,
		GasPrice: gasPrice,
		GasLimit: f.gasLimit,
		To:       common.HexToAddress(f.to),
		Value:    value,
		Data:     data,
	}, nil
}

func New() *cobra.Command {
	var (
		room      string
		keyID     string
		parties   []uint
		broadcast bool
		tx        txFlags
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Signs a legacy transaction with the other signing parties",
		Long: `Hashes the EIP-155 signing payload of the transaction, asks every node in
MPC_PEER_URLS to join through POST /sign/{room}, runs the offline and online stages
and prints the signed raw transaction. With --broadcast it is sent to CHAIN_RPC_URL.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			if room == "" {
				room = uuid.NewString()
			}

			if keyID == "" {
				keyID = cfg.MPC.DefaultKeyID
			}
			signers := cfg.MPC.SigningParties
			if len(parties) > 0 {
				signers = make([]uint16, len(parties))
				for i, p := range parties {
					signers[i] = uint16(p)
				}
			}

			t, err := tx.transaction()
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid transaction")
			}

			out, err := run(cfg, &coordinator.SignTransactionRequest{
				SessionID: room,
				KeyID:     keyID,
				Signers:   signers,
				Tx:        t,
				Broadcast: broadcast,
			})
			if err != nil {
				log.Fatal().Err(err).Str("room", room).Msg("Signing failed")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				log.Fatal().Err(err).Msg("Failed to print transaction")
			}
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "Session id, stage rooms are {room}-offline and {room}-online (random when empty)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key id of the local share (defaults to MPC_DEFAULT_KEY_ID)")
	cmd.Flags().UintSliceVar(&parties, "parties", nil, "Signing party indices (defaults to MPC_SIGNING_PARTIES)")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Send the signed transaction to CHAIN_RPC_URL")

	cmd.Flags().Uint64Var(&tx.nonce, "nonce", 1, "Transaction nonce")
	cmd.Flags().StringVar(&tx.to, "to", "0x4C34dDDEeb110852b7D927F3e491f514fE70E022", "Recipient address")
	cmd.Flags().Uint64Var(&tx.gasLimit, "gas-limit", 1000000, "Gas limit")
	cmd.Flags().StringVar(&tx.gasPrice, "gas-price", "500000000", "Gas price in wei")
	cmd.Flags().StringVar(&tx.value, "value", "1000000", "Value in wei")
	cmd.Flags().StringVar(&tx.data, "data", "", "Call data, hex")

	return cmd
}

func run(cfg config.Server, req *coordinator.SignTransactionRequest) (*signOutput, error) {
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

	var broadcaster coordinator.Broadcaster
	if req.Broadcast {
		if cfg.Chain.RPCURL == "" {
			return nil, errors.New("--broadcast needs CHAIN_RPC_URL")
		}
		b, err := chain.DialBroadcaster(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		broadcaster = b
	}

	peers := coordinator.NewPeerClient(cfg.MPC.PeerURLs, cfg.Relay.RequestTimeout)
	svc := coordinator.NewService(s.Orchestrator, s.Codec, peers, broadcaster)

	signed, err := svc.SignTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	return &signOutput{
		SessionID:   signed.Session.ID,
		SigningHash: signed.SigningHash.Hex(),
		Signer:      signed.Signer.Hex(),
		Signature:   hexutil.Encode(signed.Signature.Bytes()),
		RawTx:       hexutil.Encode(signed.Raw),
		TxHash:      signed.TxHash.Hex(),
		Broadcasted: signed.Broadcasted,
	}, nil
}
