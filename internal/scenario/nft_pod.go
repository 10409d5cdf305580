package scenario

import (
	"context"
	"fmt"
	"math/big"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/xychain"
)

func init() {
	register(Scenario{
		Name:        "nft-pod",
		Description: "mint and approve two NFTs, then accept one POD with a tip and reject the other",
		Run:         runNftPod,
	})
}

func runNftPod(ctx context.Context, env *Env) error {
	var (
		charlie = env.Accounts.Get("Charlie")
		dave    = env.Accounts.Get("Dave")
		eve     = env.Accounts.Get("Eve")
	)

	daveNft, err := mintApproved(ctx, env, dave, []byte("FILE"), []byte("NFT"))
	if err != nil {
		return err
	}
	eveNft, err := mintApproved(ctx, env, eve, []byte("FILE1"), []byte("NFT1"))
	if err != nil {
		return err
	}

	fee, err := env.Chain.PodFee()
	if err != nil {
		return fmt.Errorf("pod fee: %w", err)
	}
	env.Logger.Info("pod fee", "dollars", convert.ToDollar(fee))

	davePod, err := createPod(ctx, env, dave, eve, daveNft, convert.Dollars(30), fee)
	if err != nil {
		return err
	}
	price := convert.Dollars(50)
	evePod, err := createPod(ctx, env, eve, charlie, eveNft, price, fee)
	if err != nil {
		return err
	}

	// Eve has one delivering and one receiving, Charlie one receiving, Dave
	// one delivering.
	for _, c := range []struct {
		who        *xychain.Identity
		pod        uint32
		deliv, rcv bool
	}{
		{charlie, evePod, false, true},
		{dave, davePod, true, false},
		{eve, evePod, true, false},
		{eve, davePod, false, true},
	} {
		if err := expectPending(ctx, env, c.who, c.pod, c.deliv, c.rcv); err != nil {
			return err
		}
	}

	if err := acceptWithTip(ctx, env, charlie, eve, evePod, eveNft, price, convert.Dollars(10)); err != nil {
		return err
	}
	if err := expectPending(ctx, env, eve, evePod, false, false); err != nil {
		return err
	}
	if err := expectPending(ctx, env, eve, davePod, false, true); err != nil {
		return err
	}

	return reject(ctx, env, eve, dave, davePod, daveNft)
}

// acceptWithTip has buyer accept podID from seller and checks the buyer paid
// price+tip, the seller received it and the NFT changed hands.
func acceptWithTip(ctx context.Context, env *Env, buyer, seller *xychain.Identity, podID, nftID uint32, price, tip *big.Int) error {
	if err := expectOwner(ctx, env, nftID, seller); err != nil {
		return err
	}
	buyerBefore, err := freeBalance(ctx, env, buyer)
	if err != nil {
		return err
	}
	sellerBefore, err := freeBalance(ctx, env, seller)
	if err != nil {
		return err
	}

	env.Logger.Info("accepting pod", "pod_id", podID, "buyer", buyer.Name,
		"price", convert.ToDollar(price), "tip", convert.ToDollar(tip))
	if _, err := env.Chain.SubmitAndWait(ctx, xychain.ReceivePod(podID, xychain.Accept, tip), buyer); err != nil {
		return fmt.Errorf("accept pod %d: %w", podID, err)
	}

	paid := new(big.Int).Add(price, tip)
	buyerAfter, err := freeBalance(ctx, env, buyer)
	if err != nil {
		return err
	}
	if err := expectBalance(buyer.Name+" balance after paying pod", new(big.Int).Sub(buyerBefore, paid), buyerAfter); err != nil {
		return err
	}
	sellerAfter, err := freeBalance(ctx, env, seller)
	if err != nil {
		return err
	}
	if err := expectBalance(seller.Name+" balance after pod paid", new(big.Int).Add(sellerBefore, paid), sellerAfter); err != nil {
		return err
	}
	return expectOwner(ctx, env, nftID, buyer)
}

// reject has receiver turn down podID and checks nothing moved.
func reject(ctx context.Context, env *Env, receiver, sender *xychain.Identity, podID, nftID uint32) error {
	if err := expectOwner(ctx, env, nftID, sender); err != nil {
		return err
	}
	receiverBefore, err := freeBalance(ctx, env, receiver)
	if err != nil {
		return err
	}
	senderBefore, err := freeBalance(ctx, env, sender)
	if err != nil {
		return err
	}

	env.Logger.Info("rejecting pod", "pod_id", podID, "receiver", receiver.Name)
	if _, err := env.Chain.SubmitAndWait(ctx, xychain.ReceivePod(podID, xychain.Reject, nil), receiver); err != nil {
		return fmt.Errorf("reject pod %d: %w", podID, err)
	}

	receiverAfter, err := freeBalance(ctx, env, receiver)
	if err != nil {
		return err
	}
	if err := expectBalance(receiver.Name+" balance after rejecting", receiverBefore, receiverAfter); err != nil {
		return err
	}
	senderAfter, err := freeBalance(ctx, env, sender)
	if err != nil {
		return err
	}
	if err := expectBalance(sender.Name+" balance after rejection", senderBefore, senderAfter); err != nil {
		return err
	}
	if err := expectOwner(ctx, env, nftID, sender); err != nil {
		return err
	}
	if err := expectPending(ctx, env, receiver, podID, false, false); err != nil {
		return err
	}
	return expectPending(ctx, env, sender, podID, false, false)
}
