package xychain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/xychain/xy-e2e/internal/convert"
)

const customNamespace = "xyChain"

// Call invokes a custom RPC method declared in the schema. Methods the schema
// does not declare are refused without reaching the node, as are calls with
// the wrong number of params.
func (c *Conn) Call(ctx context.Context, namespace, method string, result any, params ...any) error {
	def, ok := c.registry.Schema().Method(namespace, method)
	if !ok {
		return fmt.Errorf("%w: %s.%s is not declared", ErrSchemaMismatch, namespace, method)
	}
	if len(params) != len(def.Params) {
		return fmt.Errorf("%s.%s takes %d params, got %d", namespace, method, len(def.Params), len(params))
	}

	wire := namespace + "_" + method
	if err := c.caller.Call(ctx, wire, params, result); err != nil {
		return c.callErr(wire, err)
	}
	return nil
}

// AccountData returns the bank view of who, including locked funds.
func (c *Conn) AccountData(ctx context.Context, who AccountID) (*RPCAccountData, error) {
	var out RPCAccountData
	if err := c.Call(ctx, customNamespace, "account_data", &out, c.Address(who)); err != nil {
		return nil, err
	}
	return &out, nil
}

// InterestPA estimates the yearly interest who earns, in minor units.
func (c *Conn) InterestPA(ctx context.Context, who AccountID) (*big.Int, error) {
	var out convert.Balance
	if err := c.Call(ctx, customNamespace, "interest_pa", &out, c.Address(who)); err != nil {
		return nil, err
	}
	return out.Big(), nil
}

// PendingPods lists the PODs who is delivering and receiving.
func (c *Conn) PendingPods(ctx context.Context, who AccountID) (*PendingNftPods, error) {
	var out PendingNftPods
	if err := c.Call(ctx, customNamespace, "pending_pods", &out, c.Address(who)); err != nil {
		return nil, err
	}
	return &out, nil
}

// NftData fetches the payload of an approved NFT. It returns nil when the
// node has no NFT with that id.
func (c *Conn) NftData(ctx context.Context, id uint32) (*NftData, error) {
	var out *NftData
	if err := c.Call(ctx, customNamespace, "nft_data", &out, id); err != nil {
		return nil, err
	}
	return out, nil
}
