package xychain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/require"

	"github.com/xychain/xy-e2e/internal/convert"
)

// ── Mock RPC caller ─────────────────────────────────────────────────

type mockCaller struct {
	mu           sync.Mutex
	responses    map[string]json.RawMessage
	errs         map[string]error
	storage      map[string]string
	transportErr error
	sub          Subscription
	subErr       error
	params       map[string][]any
	calls        []string
	closed       atomic.Int32
}

func newMockCaller() *mockCaller {
	return &mockCaller{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
		storage:   make(map[string]string),
		params:    make(map[string][]any),
	}
}

func (m *mockCaller) SetResponse(method string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method] = raw
}

func (m *mockCaller) SetError(method string, code int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = &RPCError{Code: code, Message: message}
}

func (m *mockCaller) SetTransportError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transportErr = fmt.Errorf("%s", msg)
}

// SetStorage SCALE-encodes v under key for state_getStorage.
func (m *mockCaller) SetStorage(key string, v any) {
	enc, err := codec.EncodeToHex(v)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage[key] = enc
}

func (m *mockCaller) SetSubscription(sub Subscription, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sub = sub
	m.subErr = err
}

func (m *mockCaller) Call(_ context.Context, method string, params []any, result any) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.params[method] = params
	transportErr := m.transportErr
	rpcErr := m.errs[method]
	raw, ok := m.responses[method]
	if method == "state_getStorage" && len(params) == 1 {
		ok = true
		raw = json.RawMessage("null")
		if hex, found := m.storage[params[0].(string)]; found {
			raw, _ = json.Marshal(hex)
		}
	}
	m.mu.Unlock()

	if transportErr != nil {
		return transportErr
	}
	if rpcErr != nil {
		return rpcErr
	}
	if !ok {
		return fmt.Errorf("no mock response for method: %s", method)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &convert.DecodeError{Input: method, Reason: "result", Err: err}
	}
	return nil
}

func (m *mockCaller) Subscribe(_ context.Context, method string, params []any, _, _ string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	m.params[method] = params
	if m.transportErr != nil {
		return nil, m.transportErr
	}
	if m.subErr != nil {
		return nil, m.subErr
	}
	if m.sub == nil {
		return nil, fmt.Errorf("no mock subscription for method: %s", method)
	}
	return m.sub, nil
}

func (m *mockCaller) Close() error {
	m.closed.Add(1)
	return nil
}

func (m *mockCaller) Params(method string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params[method]
}

func (m *mockCaller) Called(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == method {
			return true
		}
	}
	return false
}

// ── Fake subscription ───────────────────────────────────────────────

type fakeSubscription struct {
	updates      chan json.RawMessage
	errCh        chan error
	unsubscribes atomic.Int32
}

// newFakeSubscription queues the given raw JSON status payloads.
func newFakeSubscription(payloads ...string) *fakeSubscription {
	s := &fakeSubscription{
		updates: make(chan json.RawMessage, len(payloads)+8),
		errCh:   make(chan error, 1),
	}
	for _, p := range payloads {
		s.updates <- json.RawMessage(p)
	}
	return s
}

func (s *fakeSubscription) ID() string                      { return "fake-sub" }
func (s *fakeSubscription) Updates() <-chan json.RawMessage { return s.updates }
func (s *fakeSubscription) Err() <-chan error               { return s.errCh }

func (s *fakeSubscription) Unsubscribe() error {
	s.unsubscribes.Add(1)
	return nil
}

// ── Fake runtime metadata ───────────────────────────────────────────

type fakeRuntime struct {
	calls     map[string]types.CallIndex
	constants map[string][]byte
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	fee, err := codec.Encode(types.NewU128(*convert.Dollars(1)))
	require.NoError(t, err)
	return &fakeRuntime{
		calls: map[string]types.CallIndex{
			"Nft.request_mint": {SectionIndex: 9, MethodIndex: 0},
			"Nft.approve_nft":  {SectionIndex: 9, MethodIndex: 1},
			"Nft.create_pod":   {SectionIndex: 9, MethodIndex: 2},
			"Nft.receive_pod":  {SectionIndex: 9, MethodIndex: 3},
			"Nft.transfer":     {SectionIndex: 9, MethodIndex: 4},
			"Nft.burned":       {SectionIndex: 9, MethodIndex: 5},
		},
		constants: map[string][]byte{"Nft.PodFee": fee},
	}
}

func (r *fakeRuntime) FindCallIndex(call string) (types.CallIndex, error) {
	idx, ok := r.calls[call]
	if !ok {
		return types.CallIndex{}, fmt.Errorf("call %s not found", call)
	}
	return idx, nil
}

func (r *fakeRuntime) FindConstantValue(module, constant string) ([]byte, error) {
	v, ok := r.constants[module+"."+constant]
	if !ok {
		return nil, fmt.Errorf("constant %s.%s not found", module, constant)
	}
	return v, nil
}

// ── Helpers ─────────────────────────────────────────────────────────

const testGenesis = "0x5f9b2d3c0a1e4f6b8d7c9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DialTimeout = time.Second
	cfg.CallTimeout = time.Second
	cfg.InclusionTimeout = time.Second
	return cfg
}

// primeReady sets the responses the readiness checks need.
func primeReady(m *mockCaller) {
	m.SetResponse("system_health", Health{Peers: 0, IsSyncing: false})
	m.SetResponse("rpc_methods", map[string]any{
		"version": 1,
		"methods": []string{
			"author_submitAndWatchExtrinsic",
			"xyChain_account_data",
			"xyChain_interest_pa",
			"xyChain_nft_data",
			"xyChain_pending_pods",
		},
	})
	m.SetResponse("state_getMetadata", "0x6d657461")
	m.SetResponse("chain_getBlockHash", testGenesis)
	m.SetResponse("state_getRuntimeVersion", map[string]any{
		"specName":           "xy-chain",
		"implName":           "xy-chain",
		"authoringVersion":   1,
		"specVersion":        100,
		"implVersion":        1,
		"transactionVersion": 1,
		"apis":               []any{},
	})
}

func connectTest(t *testing.T, m *mockCaller, rt Runtime, cfg Config) (*Conn, error) {
	t.Helper()
	s, err := DefaultSchema()
	require.NoError(t, err)
	reg, err := Register(s)
	require.NoError(t, err)
	decode := func(string) (Runtime, error) { return rt, nil }
	return connect(context.Background(), cfg, newTestLogger(), m, reg, decode)
}

// newTestConn returns a ready Conn over a primed mock.
func newTestConn(t *testing.T) (*Conn, *mockCaller) {
	t.Helper()
	m := newMockCaller()
	primeReady(m)
	c, err := connectTest(t, m, newFakeRuntime(t), testConfig())
	require.NoError(t, err)
	return c, m
}
