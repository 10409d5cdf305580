// Package xychain is the RPC harness for an XY chain node: connection and
// schema checks, storage queries, custom RPC calls, extrinsic construction and
// submission.
package xychain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/xychain/xy-e2e/internal/convert"
)

// requiredCalls must be present in the runtime metadata for the scenarios
// to run at all.
var requiredCalls = []string{
	"Nft.request_mint",
	"Nft.approve_nft",
	"Nft.create_pod",
	"Nft.receive_pod",
}

// Runtime is the part of the runtime metadata the harness consults.
// *types.Metadata implements it.
type Runtime interface {
	FindCallIndex(call string) (types.CallIndex, error)
	FindConstantValue(module, constant string) ([]byte, error)
}

// metadataDecoder turns the state_getMetadata result into a Runtime.
type metadataDecoder func(hex string) (Runtime, error)

func decodeMetadata(hex string) (Runtime, error) {
	var meta types.Metadata
	if err := codec.DecodeFromHex(hex, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Conn is a ready handle to one node. It is safe for concurrent use.
type Conn struct {
	cfg      Config
	logger   *slog.Logger
	caller   RPCCaller
	registry *Registry

	runtime Runtime
	genesis types.Hash
	version types.RuntimeVersion

	closeOnce sync.Once
}

// Health is the system_health result.
type Health struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// Connect dials cfg.Endpoint once and runs the readiness checks. There is no
// retry: any failure is returned as a *ConnectionError.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Conn, error) {
	dialCtx, cancel := dialContext(ctx, cfg)
	defer cancel()

	caller, err := dialWS(dialCtx, cfg.Endpoint, cfg.CallTimeout, logger)
	if err != nil {
		return nil, &ConnectionError{Endpoint: cfg.Endpoint, Op: "dial", Err: err}
	}
	return ConnectWithCaller(ctx, cfg, logger, caller)
}

// ConnectWithCaller runs the readiness checks over an existing transport.
// The transport is closed if the checks fail.
func ConnectWithCaller(ctx context.Context, cfg Config, logger *slog.Logger, caller RPCCaller) (*Conn, error) {
	schema, err := DefaultSchema()
	if err == nil {
		var reg *Registry
		if reg, err = Register(schema); err == nil {
			return connect(ctx, cfg, logger, caller, reg, decodeMetadata)
		}
	}
	_ = caller.Close()
	return nil, &ConnectionError{Endpoint: cfg.Endpoint, Op: "schema", Err: err}
}

func connect(ctx context.Context, cfg Config, logger *slog.Logger, caller RPCCaller, reg *Registry, decode metadataDecoder) (*Conn, error) {
	c := &Conn{
		cfg:      cfg,
		logger:   logger.With("endpoint", cfg.Endpoint),
		caller:   caller,
		registry: reg,
	}

	ctx, cancel := dialContext(ctx, cfg)
	defer cancel()

	if err := c.ready(ctx, decode); err != nil {
		_ = caller.Close()
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &ConnectionError{Endpoint: cfg.Endpoint, Op: "ready", Err: err}
	}

	c.logger.Info("connected to node",
		"spec", c.version.SpecName,
		"spec_version", uint32(c.version.SpecVersion),
		"genesis", c.genesis.Hex(),
	)
	return c, nil
}

func dialContext(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	if cfg.DialTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.DialTimeout)
}

func (c *Conn) ready(ctx context.Context, decode metadataDecoder) error {
	if _, err := c.Health(ctx); err != nil {
		return err
	}
	if err := c.checkMethods(ctx); err != nil {
		return err
	}

	var metaHex string
	if err := c.caller.Call(ctx, "state_getMetadata", nil, &metaHex); err != nil {
		return c.callErr("state_getMetadata", err)
	}
	rt, err := decode(metaHex)
	if err != nil {
		return &convert.DecodeError{Input: "state_getMetadata", Reason: "runtime metadata", Err: err}
	}
	var missing []string
	for _, call := range requiredCalls {
		if _, err := rt.FindCallIndex(call); err != nil {
			missing = append(missing, call)
		}
	}
	if len(missing) > 0 {
		return &ConnectionError{
			Endpoint: c.cfg.Endpoint,
			Op:       "metadata",
			Err:      fmt.Errorf("%w: runtime lacks calls %v", ErrSchemaMismatch, missing),
		}
	}
	c.runtime = rt

	var genesisHex string
	if err := c.caller.Call(ctx, "chain_getBlockHash", []any{0}, &genesisHex); err != nil {
		return c.callErr("chain_getBlockHash", err)
	}
	genesis, err := types.NewHashFromHexString(genesisHex)
	if err != nil {
		return &convert.DecodeError{Input: genesisHex, Reason: "genesis hash", Err: err}
	}
	c.genesis = genesis

	if err := c.caller.Call(ctx, "state_getRuntimeVersion", nil, &c.version); err != nil {
		return c.callErr("state_getRuntimeVersion", err)
	}
	return nil
}

// Health calls system_health.
func (c *Conn) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.caller.Call(ctx, "system_health", nil, &h); err != nil {
		return nil, c.callErr("system_health", err)
	}
	if h.IsSyncing {
		c.logger.Warn("node is still syncing", "peers", h.Peers)
	}
	return &h, nil
}

// checkMethods verifies the node serves every custom method in the schema.
func (c *Conn) checkMethods(ctx context.Context) error {
	var listed struct {
		Version int      `json:"version"`
		Methods []string `json:"methods"`
	}
	if err := c.caller.Call(ctx, "rpc_methods", nil, &listed); err != nil {
		return c.callErr("rpc_methods", err)
	}

	served := make(map[string]bool, len(listed.Methods))
	for _, m := range listed.Methods {
		served[m] = true
	}
	var missing []string
	for _, m := range c.registry.Schema().MethodNames() {
		if !served[m] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ConnectionError{
			Endpoint: c.cfg.Endpoint,
			Op:       "rpc_methods",
			Err:      fmt.Errorf("%w: node does not serve %v", ErrSchemaMismatch, missing),
		}
	}
	return nil
}

// callErr classifies a failed RPC. Node-side RPC errors and undecodable
// results keep their type; anything else is the transport failing.
func (c *Conn) callErr(method string, err error) error {
	var rpcErr *RPCError
	var decErr *convert.DecodeError
	switch {
	case errors.As(err, &rpcErr), errors.As(err, &decErr):
		return fmt.Errorf("%s: %w", method, err)
	default:
		return &ConnectionError{Endpoint: c.cfg.Endpoint, Op: method, Err: err}
	}
}

// Runtime returns the runtime metadata loaded at connect time.
func (c *Conn) Runtime() Runtime { return c.runtime }

// GenesisHash returns the hash of block 0.
func (c *Conn) GenesisHash() types.Hash { return c.genesis }

// RuntimeVersion returns the runtime version loaded at connect time.
func (c *Conn) RuntimeVersion() types.RuntimeVersion { return c.version }

// Schema returns the registered custom RPC schema.
func (c *Conn) Schema() *Schema { return c.registry.Schema() }

// Config returns the handle configuration.
func (c *Conn) Config() Config { return c.cfg }

// Address renders id with the configured SS58 prefix.
func (c *Conn) Address(id AccountID) string { return id.Address(c.cfg.SS58Prefix) }

// Close releases the socket. Calling it more than once is a no-op.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.caller.Close()
		c.logger.Debug("connection closed")
	})
	return err
}
