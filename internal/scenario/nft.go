package scenario

import (
	"context"
	"fmt"
	"math/big"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/xychain"
)

// auditor approves mint requests on dev chains.
const auditor = "Bob"

// mintApproved requests a mint as owner, checks the pending entry, has the
// auditor accept it and checks ownership. It returns the new NFT id.
func mintApproved(ctx context.Context, env *Env, owner *xychain.Identity, fileName, data []byte) (uint32, error) {
	next, err := env.Chain.NextNftID(ctx)
	if err != nil {
		return 0, err
	}
	nftID := next + 1
	env.Logger.Info("requesting mint", "owner", owner.Name, "nft_id", nftID, "size", len(data))

	if _, err := env.Chain.SubmitAndWait(ctx, xychain.RequestMint(fileName, data), owner); err != nil {
		return 0, fmt.Errorf("request mint: %w", err)
	}

	pending, ok, err := env.Chain.PendingNft(ctx, nftID)
	if err != nil {
		return 0, err
	}
	step := fmt.Sprintf("pending nft %d", nftID)
	if err := expectTrue(step+" exists", ok); err != nil {
		return 0, err
	}
	if err := expectEqual(step+" file name", convert.BytesToHex(fileName), convert.BytesToHex(pending.FileName)); err != nil {
		return 0, err
	}
	if err := expectEqual(step+" requester", owner.Address(), env.Chain.Address(pending.Owner)); err != nil {
		return 0, err
	}

	if _, err := env.Chain.SubmitAndWait(ctx, xychain.ApproveNft(nftID, xychain.Accept), env.Accounts.Get(auditor)); err != nil {
		return 0, fmt.Errorf("approve nft %d: %w", nftID, err)
	}
	if err := expectOwner(ctx, env, nftID, owner); err != nil {
		return 0, err
	}
	return nftID, nil
}

func expectOwner(ctx context.Context, env *Env, nftID uint32, want *xychain.Identity) error {
	owner, ok, err := env.Chain.Owner(ctx, nftID)
	if err != nil {
		return err
	}
	got := "<none>"
	if ok {
		got = env.Chain.Address(owner)
	}
	return expectEqual(fmt.Sprintf("owner of nft %d", nftID), want.Address(), got)
}

func freeBalance(ctx context.Context, env *Env, who *xychain.Identity) (*big.Int, error) {
	return env.Chain.FreeBalance(ctx, who.AccountID())
}

// createPod offers nftID from sender to receiver and checks the sender paid
// exactly the POD fee. It returns the POD id.
func createPod(ctx context.Context, env *Env, sender, receiver *xychain.Identity, nftID uint32, price, fee *big.Int) (uint32, error) {
	next, err := env.Chain.NextPodID(ctx)
	if err != nil {
		return 0, err
	}
	podID := next + 1

	before, err := freeBalance(ctx, env, sender)
	if err != nil {
		return 0, err
	}
	env.Logger.Info("creating pod",
		"pod_id", podID, "from", sender.Name, "to", receiver.Name,
		"price", convert.ToDollar(price), "balance", convert.ToDollar(before))

	call := xychain.CreatePod(receiver.AccountID(), nftID, price)
	if _, err := env.Chain.SubmitAndWait(ctx, call, sender); err != nil {
		return 0, fmt.Errorf("create pod %d: %w", podID, err)
	}

	after, err := freeBalance(ctx, env, sender)
	if err != nil {
		return 0, err
	}
	want := new(big.Int).Sub(before, fee)
	if err := expectBalance(fmt.Sprintf("%s balance after pod %d fee", sender.Name, podID), want, after); err != nil {
		return 0, err
	}
	return podID, nil
}

func pendingPods(ctx context.Context, env *Env, who *xychain.Identity) (*xychain.PendingNftPods, error) {
	return env.Chain.PendingPods(ctx, who.AccountID())
}

func expectPending(ctx context.Context, env *Env, who *xychain.Identity, podID uint32, delivering, receiving bool) error {
	pods, err := pendingPods(ctx, env, who)
	if err != nil {
		return err
	}
	step := fmt.Sprintf("%s pending pods", who.Name)
	if err := expectEqual(fmt.Sprintf("%s delivering pod %d", step, podID), delivering, pods.IsDelivering(podID)); err != nil {
		return err
	}
	return expectEqual(fmt.Sprintf("%s receiving pod %d", step, podID), receiving, pods.IsReceiving(podID))
}
