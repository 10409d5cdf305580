package xychain

import (
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Call is a runtime call by "Pallet.call" name with its SCALE-encodable
// arguments in declaration order.
type Call struct {
	Name string
	Args []any
}

func (c Call) String() string { return c.Name }

// RequestMint asks the auditor to mint data as a new NFT.
func RequestMint(fileName, data []byte) Call {
	return Call{Name: "Nft.request_mint", Args: []any{types.NewBytes(fileName), types.NewBytes(data)}}
}

// ApproveNft is the auditor's answer to a pending mint request.
func ApproveNft(nftID uint32, r Response) Call {
	return Call{Name: "Nft.approve_nft", Args: []any{types.NewU32(nftID), types.NewU8(uint8(r))}}
}

// CreatePod offers nftID to `to` for price, paid on delivery.
func CreatePod(to AccountID, nftID uint32, price *big.Int) Call {
	return Call{Name: "Nft.create_pod", Args: []any{to, types.NewU32(nftID), balanceArg(price)}}
}

// ReceivePod accepts or rejects a POD. tip goes to the sender on top of the
// price when accepting; nil sends no tip.
func ReceivePod(podID uint32, r Response, tip *big.Int) Call {
	return Call{Name: "Nft.receive_pod", Args: []any{types.NewU32(podID), types.NewU8(uint8(r)), optionalBalanceArg(tip)}}
}

// TransferNft moves an owned NFT to another account.
func TransferNft(to AccountID, nftID uint32) Call {
	return Call{Name: "Nft.transfer", Args: []any{to, types.NewU32(nftID)}}
}

// BurnNft destroys an owned NFT.
func BurnNft(nftID uint32) Call {
	return Call{Name: "Nft.burned", Args: []any{types.NewU32(nftID)}}
}

func balanceArg(v *big.Int) types.U128 {
	if v == nil {
		return types.NewU128(*big.NewInt(0))
	}
	return types.NewU128(*v)
}

func optionalBalanceArg(v *big.Int) types.OptionU128 {
	if v == nil {
		return types.NewOptionU128Empty()
	}
	return types.NewOptionU128(types.NewU128(*v))
}

// buildCall resolves the call index from the runtime and encodes the args.
func buildCall(rt Runtime, call Call) (types.Call, error) {
	idx, err := rt.FindCallIndex(call.Name)
	if err != nil {
		return types.Call{}, fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, call.Name, err)
	}

	var args []byte
	for i, a := range call.Args {
		enc, err := codec.Encode(a)
		if err != nil {
			return types.Call{}, fmt.Errorf("encode %s arg %d: %w", call.Name, i, err)
		}
		args = append(args, enc...)
	}
	return types.Call{CallIndex: idx, Args: args}, nil
}
