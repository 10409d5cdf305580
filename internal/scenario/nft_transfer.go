package scenario

import (
	"context"
	"fmt"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/xychain"
)

func init() {
	register(Scenario{
		Name:        "nft-transfer",
		Description: "mint and approve an NFT, give it away, then have the new owner burn it",
		Run:         runNftTransfer,
	})
}

func runNftTransfer(ctx context.Context, env *Env) error {
	var (
		dave = env.Accounts.Get("Dave")
		eve  = env.Accounts.Get("Eve")
	)

	fileName, data := []byte("GIFT"), []byte("TRANSFERRED NFT")
	nftID, err := mintApproved(ctx, env, dave, fileName, data)
	if err != nil {
		return err
	}
	if err := expectStored(ctx, env, nftID, fileName, data); err != nil {
		return err
	}

	env.Logger.Info("transferring nft", "nft_id", nftID, "from", dave.Name, "to", eve.Name)
	if _, err := env.Chain.SubmitAndWait(ctx, xychain.TransferNft(eve.AccountID(), nftID), dave); err != nil {
		return fmt.Errorf("transfer nft %d: %w", nftID, err)
	}
	if err := expectOwner(ctx, env, nftID, eve); err != nil {
		return err
	}
	// the payload stays put, only the owner changes
	if err := expectStored(ctx, env, nftID, fileName, data); err != nil {
		return err
	}

	env.Logger.Info("burning nft", "nft_id", nftID, "owner", eve.Name)
	if _, err := env.Chain.SubmitAndWait(ctx, xychain.BurnNft(nftID), eve); err != nil {
		return fmt.Errorf("burn nft %d: %w", nftID, err)
	}
	_, owned, err := env.Chain.Owner(ctx, nftID)
	if err != nil {
		return err
	}
	if err := expectEqual(fmt.Sprintf("nft %d owned after burn", nftID), false, owned); err != nil {
		return err
	}
	_, stored, err := env.Chain.Nft(ctx, nftID)
	if err != nil {
		return err
	}
	return expectEqual(fmt.Sprintf("nft %d stored after burn", nftID), false, stored)
}

func expectStored(ctx context.Context, env *Env, nftID uint32, fileName, data []byte) error {
	n, ok, err := env.Chain.Nft(ctx, nftID)
	if err != nil {
		return err
	}
	step := fmt.Sprintf("stored nft %d", nftID)
	if err := expectTrue(step+" exists", ok); err != nil {
		return err
	}
	if err := expectEqual(step+" file name", convert.BytesToHex(fileName), convert.BytesToHex(n.FileName)); err != nil {
		return err
	}
	return expectEqual(step+" data", convert.BytesToHex(data), convert.BytesToHex(n.Data))
}
