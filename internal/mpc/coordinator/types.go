package coordinator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/signing"
)

// SignTransactionRequest asks the coordinator to sign one transaction.
type SignTransactionRequest struct {
	SessionID string
	KeyID     string
	Signers   []uint16
	Tx        *chain.Transaction
	// Broadcast submits the signed transaction when a broadcaster is configured.
	Broadcast bool
}

// SignedTransaction is the outcome of SignTransaction.
type SignedTransaction struct {
	Session     *session.Session
	SigningHash common.Hash
	Signature   *signing.FinalizedSignature
	Raw         []byte
	TxHash      common.Hash
	Signer      common.Address
	Broadcasted bool
}

// KeygenTrigger is the body of a peer's POST /keygen/{room_id}.
type KeygenTrigger struct {
	PartyIndex      uint16 `json:"party_index"`
	Threshold       int    `json:"threshold"`
	NumberOfParties int    `json:"number_of_parties"`
}

// SignTrigger is the body of a peer's POST /sign/{room_id}.
type SignTrigger struct {
	DataToSign string   `json:"data_to_sign"`
	Parties    []uint16 `json:"parties,omitempty"`
	KeyID      string   `json:"key_id,omitempty"`
}
