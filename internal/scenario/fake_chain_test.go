package scenario

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/ss58"
	"github.com/xychain/xy-e2e/internal/xychain"
)

type fakePod struct {
	sender, receiver xychain.AccountID
	nftID            uint32
	price            *big.Int
}

// fakeChain keeps just enough NFT and bank state in memory to play the
// scenarios through.
type fakeChain struct {
	mu       sync.Mutex
	nextNft  uint32
	nextPod  uint32
	pending  map[uint32]xychain.PendingNft
	owners   map[uint32]xychain.AccountID
	nfts     map[uint32]xychain.NftData
	pods     map[uint32]fakePod
	balances map[xychain.AccountID]*big.Int
	fee      *big.Int

	skipFee         bool
	refundOnReject  bool
	keepOnBurn      bool
	corruptDownload bool
	submitErr       error
	submitted       []string
	closed          int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		nextNft:  10,
		pending:  make(map[uint32]xychain.PendingNft),
		owners:   make(map[uint32]xychain.AccountID),
		nfts:     make(map[uint32]xychain.NftData),
		pods:     make(map[uint32]fakePod),
		balances: make(map[xychain.AccountID]*big.Int),
		fee:      convert.Dollars(1),
	}
}

func (f *fakeChain) balance(who xychain.AccountID) *big.Int {
	b, ok := f.balances[who]
	if !ok {
		b = convert.Dollars(1000)
		f.balances[who] = b
	}
	return b
}

func (f *fakeChain) NextNftID(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextNft, nil
}

func (f *fakeChain) NextPodID(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextPod, nil
}

func (f *fakeChain) PendingNft(_ context.Context, id uint32) (*xychain.PendingNft, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (f *fakeChain) Owner(_ context.Context, id uint32) (xychain.AccountID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.owners[id]
	return o, ok, nil
}

func (f *fakeChain) Nft(_ context.Context, id uint32) (*xychain.StoredNft, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nfts[id]
	if !ok {
		return nil, false, nil
	}
	return &xychain.StoredNft{Data: types.Bytes(n.Data), FileName: types.Bytes(n.FileName)}, true, nil
}

func (f *fakeChain) FreeBalance(_ context.Context, who xychain.AccountID) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance(who)), nil
}

func (f *fakeChain) PodFee() (*big.Int, error) { return new(big.Int).Set(f.fee), nil }

func (f *fakeChain) PendingPods(_ context.Context, who xychain.AccountID) (*xychain.PendingNftPods, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &xychain.PendingNftPods{}
	for id, p := range f.pods {
		entry := xychain.RPCNftData{PodID: id, NftID: p.nftID, Price: convert.NewBalance(p.price)}
		if p.sender == who {
			out.Delivering = append(out.Delivering, entry)
		}
		if p.receiver == who {
			out.Receiving = append(out.Receiving, entry)
		}
	}
	return out, nil
}

func (f *fakeChain) NftData(_ context.Context, id uint32) (*xychain.NftData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nfts[id]
	if !ok {
		return nil, nil
	}
	data := append(convert.Bytes(nil), n.Data...)
	if f.corruptDownload && len(data) > 0 {
		data[0] ^= 0xff
	}
	return &xychain.NftData{Data: data, FileName: n.FileName}, nil
}

func (f *fakeChain) Address(id xychain.AccountID) string { return id.Address(ss58.SubstratePrefix) }

func (f *fakeChain) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChain) SubmitAndWait(_ context.Context, call xychain.Call, signer *xychain.Identity) (*xychain.Inclusion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, call.Name)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	who := signer.AccountID()
	reject := func(reason string) (*xychain.Inclusion, error) {
		return nil, &xychain.SubmissionRejected{Call: call.Name, Status: "invalid", Err: fmt.Errorf("%s", reason)}
	}

	switch call.Name {
	case "Nft.request_mint":
		f.nextNft++
		f.pending[f.nextNft] = xychain.PendingNft{
			FileName: call.Args[0].(types.Bytes),
			Data:     call.Args[1].(types.Bytes),
			Owner:    who,
		}

	case "Nft.approve_nft":
		id := uint32(call.Args[0].(types.U32))
		p, ok := f.pending[id]
		if !ok {
			return reject("no pending nft")
		}
		delete(f.pending, id)
		if xychain.Response(call.Args[1].(types.U8)) == xychain.Accept {
			f.owners[id] = p.Owner
			f.nfts[id] = xychain.NftData{Data: convert.Bytes(p.Data), FileName: convert.Bytes(p.FileName)}
		}

	case "Nft.create_pod":
		to := call.Args[0].(xychain.AccountID)
		nftID := uint32(call.Args[1].(types.U32))
		price := call.Args[2].(types.U128)
		if f.owners[nftID] != who {
			return reject("not the owner")
		}
		f.nextPod++
		f.pods[f.nextPod] = fakePod{sender: who, receiver: to, nftID: nftID, price: new(big.Int).Set(price.Int)}
		if !f.skipFee {
			f.balance(who).Sub(f.balance(who), f.fee)
		}

	case "Nft.receive_pod":
		podID := uint32(call.Args[0].(types.U32))
		resp := xychain.Response(call.Args[1].(types.U8))
		total := new(big.Int)
		if hasTip, tip := call.Args[2].(types.OptionU128).Unwrap(); hasTip {
			total.Add(total, tip.Int)
		}
		p, ok := f.pods[podID]
		if !ok || p.receiver != who {
			return reject("no such pod")
		}
		delete(f.pods, podID)
		switch {
		case resp == xychain.Accept:
			total.Add(total, p.price)
			f.balance(who).Sub(f.balance(who), total)
			f.balance(p.sender).Add(f.balance(p.sender), total)
			f.owners[p.nftID] = who
		case f.refundOnReject:
			f.balance(p.sender).Add(f.balance(p.sender), f.fee)
		}

	case "Nft.transfer":
		to := call.Args[0].(xychain.AccountID)
		id := uint32(call.Args[1].(types.U32))
		if owner, ok := f.owners[id]; !ok || owner != who {
			return reject("not the owner")
		}
		f.owners[id] = to

	case "Nft.burned":
		id := uint32(call.Args[0].(types.U32))
		if owner, ok := f.owners[id]; !ok || owner != who {
			return reject("not the owner")
		}
		delete(f.owners, id)
		if !f.keepOnBurn {
			delete(f.nfts, id)
		}

	default:
		return reject("unknown call")
	}
	return &xychain.Inclusion{BlockHash: fmt.Sprintf("0x%064x", len(f.submitted))}, nil
}
