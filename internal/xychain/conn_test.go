package xychain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectReady(t *testing.T) {
	c, m := newTestConn(t)

	assert.Equal(t, testGenesis, c.GenesisHash().Hex())
	assert.EqualValues(t, 100, c.RuntimeVersion().SpecVersion)
	assert.EqualValues(t, 1, c.RuntimeVersion().TransactionVersion)
	assert.NotNil(t, c.Runtime())
	assert.Equal(t, []any{0}, m.Params("chain_getBlockHash"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.EqualValues(t, 1, m.closed.Load(), "close must reach the transport once")
}

func TestConnectHealthTransportError(t *testing.T) {
	m := newMockCaller()
	m.SetTransportError("connection refused")

	_, err := connectTest(t, m, newFakeRuntime(t), testConfig())
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "system_health", connErr.Op)
	assert.True(t, IsFatal(err))
	assert.EqualValues(t, 1, m.closed.Load())
}

func TestConnectMissingCustomMethod(t *testing.T) {
	m := newMockCaller()
	primeReady(m)
	m.SetResponse("rpc_methods", map[string]any{
		"version": 1,
		"methods": []string{"xyChain_account_data", "xyChain_pending_pods"},
	})

	_, err := connectTest(t, m, newFakeRuntime(t), testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "xyChain_interest_pa")
	assert.Contains(t, err.Error(), "xyChain_nft_data")
	assert.False(t, m.Called("state_getMetadata"))
}

func TestConnectRuntimeLacksCalls(t *testing.T) {
	m := newMockCaller()
	primeReady(m)
	rt := newFakeRuntime(t)
	delete(rt.calls, "Nft.create_pod")

	_, err := connectTest(t, m, rt, testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "Nft.create_pod")
}

func TestConnectRPCErrorIsConnectionError(t *testing.T) {
	m := newMockCaller()
	primeReady(m)
	m.SetError("state_getRuntimeVersion", -32601, "Method not found")

	_, err := connectTest(t, m, newFakeRuntime(t), testConfig())
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestConnectBadGenesis(t *testing.T) {
	m := newMockCaller()
	primeReady(m)
	m.SetResponse("chain_getBlockHash", "0xzz")

	_, err := connectTest(t, m, newFakeRuntime(t), testConfig())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestHealthSyncing(t *testing.T) {
	c, m := newTestConn(t)
	m.SetResponse("system_health", Health{Peers: 3, IsSyncing: true, ShouldHavePeers: true})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.IsSyncing)
	assert.Equal(t, 3, h.Peers)
}
