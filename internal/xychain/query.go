package xychain

import (
	"context"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/xychain/xy-e2e/internal/convert"
)

const (
	palletNft  = "Nft"
	palletBank = "Bank"
)

// readStorage fetches key with state_getStorage and SCALE-decodes it into
// target. It reports false, leaving target untouched, when the key is unset.
func (c *Conn) readStorage(ctx context.Context, key string, target any) (bool, error) {
	var raw *string
	if err := c.caller.Call(ctx, "state_getStorage", []any{key}, &raw); err != nil {
		return false, c.callErr("state_getStorage", err)
	}
	if raw == nil {
		return false, nil
	}
	if err := codec.DecodeFromHex(*raw, target); err != nil {
		return false, &convert.DecodeError{Input: *raw, Reason: "storage " + key, Err: err}
	}
	return true, nil
}

// NextNftID is the last NFT id handed out. A new mint request gets the
// value after it.
func (c *Conn) NextNftID(ctx context.Context) (uint32, error) {
	var id types.U32
	if _, err := c.readStorage(ctx, StorageValueKey(palletNft, "NextNftId"), &id); err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// NextPodID is the last POD id handed out. The next create_pod gets the
// value after it.
func (c *Conn) NextPodID(ctx context.Context) (uint32, error) {
	var id types.U32
	if _, err := c.readStorage(ctx, StorageValueKey(palletNft, "NextPodId"), &id); err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// PendingNft returns a mint request still waiting for the auditor.
func (c *Conn) PendingNft(ctx context.Context, id uint32) (*PendingNft, bool, error) {
	var p PendingNft
	key := StorageMapKey(palletNft, "PendingNft", Blake2_128Concat, u32Key(id))
	ok, err := c.readStorage(ctx, key, &p)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &p, true, nil
}

// Owner returns the owner of an approved NFT.
func (c *Conn) Owner(ctx context.Context, id uint32) (AccountID, bool, error) {
	var owner AccountID
	key := StorageMapKey(palletNft, "Owners", Blake2_128Concat, u32Key(id))
	ok, err := c.readStorage(ctx, key, &owner)
	return owner, ok, err
}

// Nft returns the stored payload of an approved NFT.
func (c *Conn) Nft(ctx context.Context, id uint32) (*StoredNft, bool, error) {
	var n StoredNft
	key := StorageMapKey(palletNft, "Nfts", Blake2_128Concat, u32Key(id))
	ok, err := c.readStorage(ctx, key, &n)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &n, true, nil
}

// Account returns the bank account of who. An account that was never
// touched reads as all zero.
func (c *Conn) Account(ctx context.Context, who AccountID) (*BankAccount, error) {
	var acct BankAccount
	key := StorageMapKey(palletBank, "Accounts", Blake2_128Concat, who[:])
	if _, err := c.readStorage(ctx, key, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// FreeBalance is shorthand for Account(who).FreeBalance().
func (c *Conn) FreeBalance(ctx context.Context, who AccountID) (*big.Int, error) {
	acct, err := c.Account(ctx, who)
	if err != nil {
		return nil, err
	}
	return acct.FreeBalance(), nil
}

// PodFee is the Nft.PodFee runtime constant charged on create_pod.
func (c *Conn) PodFee() (*big.Int, error) {
	raw, err := c.runtime.FindConstantValue("Nft", "PodFee")
	if err != nil {
		return nil, err
	}
	var fee types.U128
	if err := codec.Decode(raw, &fee); err != nil {
		return nil, &convert.DecodeError{Input: convert.BytesToHex(raw), Reason: "Nft.PodFee", Err: err}
	}
	return u128(fee), nil
}
