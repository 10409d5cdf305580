package xychain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/ss58"
)

// RPCRequest is the standard JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError describes an RPC-level error returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("RPC error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// rpcMessage covers responses and subscription notifications read off the socket.
type rpcMessage struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      *uint64             `json:"id,omitempty"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *RPCError           `json:"error,omitempty"`
	Method  string              `json:"method,omitempty"`
	Params  *notificationParams `json:"params,omitempty"`
}

type notificationParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// subscriptionKey normalises a subscription id, which nodes send either as a
// string or as a number.
func subscriptionKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Config holds the connection settings for a node handle.
type Config struct {
	// Endpoint is the node WebSocket URL.
	Endpoint string `toml:"endpoint"`
	// SS58Prefix is the network identifier used to render addresses.
	SS58Prefix uint16 `toml:"ss58_prefix"`
	// DialTimeout bounds the handshake and readiness checks.
	DialTimeout time.Duration `toml:"dial_timeout"`
	// CallTimeout bounds individual RPC calls without their own deadline.
	CallTimeout time.Duration `toml:"call_timeout"`
	// InclusionTimeout bounds how long SubmitAndWait waits for an inBlock status.
	InclusionTimeout time.Duration `toml:"inclusion_timeout"`
}

// DefaultConfig returns defaults for a local dev node.
func DefaultConfig() Config {
	return Config{
		Endpoint:         "ws://127.0.0.1:9944",
		SS58Prefix:       ss58.SubstratePrefix,
		DialTimeout:      10 * time.Second,
		CallTimeout:      15 * time.Second,
		InclusionTimeout: 60 * time.Second,
	}
}

// Response is the auditor/receiver answer passed to approve_nft and receive_pod.
type Response uint8

const (
	Accept Response = iota
	Reject
)

func (r Response) String() string {
	switch r {
	case Accept:
		return "Accept"
	case Reject:
		return "Reject"
	default:
		return fmt.Sprintf("Response(%d)", uint8(r))
	}
}

// LockReason explains why a fund is locked in the bank pallet.
type LockReason uint8

const (
	LockStake LockReason = iota
	LockRedeem
	LockAuditor
)

var lockReasonNames = []string{"Stake", "Redeem", "Auditor"}

func (r LockReason) String() string {
	if int(r) < len(lockReasonNames) {
		return lockReasonNames[r]
	}
	return fmt.Sprintf("LockReason(%d)", uint8(r))
}

func (r LockReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts the variant name or its index.
func (r *LockReason) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for i, n := range lockReasonNames {
			if strings.EqualFold(n, name) {
				*r = LockReason(i)
				return nil
			}
		}
		return &convert.DecodeError{Input: name, Reason: "unknown lock reason"}
	}

	var idx uint8
	if err := json.Unmarshal(data, &idx); err != nil {
		return &convert.DecodeError{Input: string(data), Reason: "lock reason", Err: err}
	}
	if int(idx) >= len(lockReasonNames) {
		return &convert.DecodeError{Input: string(data), Reason: "lock reason out of range"}
	}
	*r = LockReason(idx)
	return nil
}

// RPCLockedFund is one entry of RPCAccountData.Locked.
type RPCLockedFund struct {
	ID       uint64          `json:"id"`
	Amount   convert.Balance `json:"amount"`
	Reason   LockReason      `json:"reason"`
	UnlockAt uint32          `json:"unlock_at"`
}

// RPCAccountData is returned by xyChain_account_data.
type RPCAccountData struct {
	Free     convert.Balance `json:"free"`
	Reserved convert.Balance `json:"reserved"`
	Locked   []RPCLockedFund `json:"locked"`
}

// RPCNftData describes an NFT sitting in a pending POD.
type RPCNftData struct {
	PodID       uint32          `json:"pod_id"`
	Sender      string          `json:"sender"`
	NftID       uint32          `json:"nft_id"`
	NftName     convert.Bytes   `json:"nft_name"`
	ExpiryBlock uint32          `json:"expiry_block"`
	Price       convert.Balance `json:"price"`
}

// PendingNftPods is returned by xyChain_pending_pods.
type PendingNftPods struct {
	Delivering []RPCNftData `json:"delivering"`
	Receiving  []RPCNftData `json:"receiving"`
}

// IsDelivering reports whether podID is one the account sent.
func (p *PendingNftPods) IsDelivering(podID uint32) bool { return containsPod(p.Delivering, podID) }

// IsReceiving reports whether podID is waiting for the account to answer.
func (p *PendingNftPods) IsReceiving(podID uint32) bool { return containsPod(p.Receiving, podID) }

func containsPod(list []RPCNftData, podID uint32) bool {
	for _, n := range list {
		if n.PodID == podID {
			return true
		}
	}
	return false
}

// NftData is the stored payload of an approved NFT.
type NftData struct {
	Data     convert.Bytes `json:"data"`
	FileName convert.Bytes `json:"file_name"`
}

// AccountID is a raw 32 byte account public key.
type AccountID [32]byte

// NewAccountID copies a 32 byte public key.
func NewAccountID(pub []byte) (AccountID, error) {
	var id AccountID
	if len(pub) != len(id) {
		return id, fmt.Errorf("account id must be 32 bytes, got %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// Address renders the id as an SS58 address. A prefix SS58 cannot encode
// falls back to the 0x public key.
func (a AccountID) Address(prefix uint16) string {
	addr, err := ss58.Encode(a[:], prefix)
	if err != nil {
		return convert.BytesToHex(a[:])
	}
	return addr
}

// PendingNft is the SCALE layout of Nft.PendingNft: (NftData, AccountId).
type PendingNft struct {
	Data     types.Bytes
	FileName types.Bytes
	Owner    AccountID
}

// StoredNft is the SCALE layout of Nft.Nfts.
type StoredNft struct {
	Data     types.Bytes
	FileName types.Bytes
}

// LockedFund is the SCALE layout of a bank pallet lock.
type LockedFund struct {
	ID     types.U64
	Amount types.U128
	Reason LockReason
}

// BankAccount is the SCALE layout of Bank.Accounts.
type BankAccount struct {
	Free     types.U128
	Reserved types.U128
	Locked   []LockedFund
}

// FreeBalance returns the free balance, zero for an empty account.
func (b *BankAccount) FreeBalance() *big.Int { return u128(b.Free) }

// ReservedBalance returns the reserved balance, zero for an empty account.
func (b *BankAccount) ReservedBalance() *big.Int { return u128(b.Reserved) }

func u128(v types.U128) *big.Int {
	if v.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Int)
}

// Inclusion reports where a submitted extrinsic landed.
type Inclusion struct {
	ExtrinsicHash string
	BlockHash     string
	Statuses      []string
}
