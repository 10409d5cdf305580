package xychain

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/xychain/xy-e2e/internal/convert"
)

const (
	submitMethod       = "author_submitAndWatchExtrinsic"
	statusNotification = "author_extrinsicUpdate"
	unwatchMethod      = "author_unwatchExtrinsic"
)

// SubmitAndWait signs call as signer, submits it and blocks until the node
// reports it in a block.
//
// Invalid, dropped and usurped statuses return *SubmissionRejected. No
// inBlock status within Config.InclusionTimeout, or ctx ending first, returns
// *SubmissionTimeout. The status subscription is cancelled exactly once on
// every path.
func (c *Conn) SubmitAndWait(ctx context.Context, call Call, signer *Identity) (*Inclusion, error) {
	logger := c.logger.With("call", call.Name, "signer", signer.Name)

	ext, err := c.sign(ctx, call, signer)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Encode(ext)
	if err != nil {
		return nil, err
	}
	extHash := blake2b.Sum256(raw)
	incl := &Inclusion{ExtrinsicHash: convert.BytesToHex(extHash[:])}

	sub, err := c.caller.Subscribe(ctx, submitMethod, []any{convert.BytesToHex(raw)}, statusNotification, unwatchMethod)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, &SubmissionRejected{Call: call.Name, Status: "rpc", Err: rpcErr}
		}
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Op: submitMethod, Err: err}
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Debug("unwatch extrinsic", "error", err)
		}
	}()

	logger.Debug("extrinsic submitted", "hash", incl.ExtrinsicHash)
	if err := c.awaitInclusion(ctx, call.Name, sub, incl, logger); err != nil {
		return nil, err
	}
	logger.Info("extrinsic in block", "block", incl.BlockHash)
	return incl, nil
}

func (c *Conn) sign(ctx context.Context, call Call, signer *Identity) (types.Extrinsic, error) {
	rc, err := buildCall(c.runtime, call)
	if err != nil {
		return types.Extrinsic{}, err
	}

	var nonce uint64
	if err := c.caller.Call(ctx, "system_accountNextIndex", []any{signer.Address()}, &nonce); err != nil {
		return types.Extrinsic{}, c.callErr("system_accountNextIndex", err)
	}

	ext := types.NewExtrinsic(rc)
	err = ext.Sign(signer.pair, types.SignatureOptions{
		BlockHash:          c.genesis,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        c.genesis,
		Nonce:              types.NewUCompactFromUInt(nonce),
		SpecVersion:        c.version.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: c.version.TransactionVersion,
	})
	if err != nil {
		return types.Extrinsic{}, err
	}
	return ext, nil
}

func (c *Conn) awaitInclusion(ctx context.Context, name string, sub Subscription, incl *Inclusion, logger *slog.Logger) error {
	wait := c.cfg.InclusionTimeout
	if wait <= 0 {
		wait = DefaultConfig().InclusionTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	start := time.Now()

	last := func() string {
		if len(incl.Statuses) == 0 {
			return ""
		}
		return incl.Statuses[len(incl.Statuses)-1]
	}

	for {
		select {
		case payload, ok := <-sub.Updates():
			if !ok {
				return &ConnectionError{Endpoint: c.cfg.Endpoint, Op: statusNotification, Err: errors.New("status stream closed before inclusion")}
			}
			var st types.ExtrinsicStatus
			if err := json.Unmarshal(payload, &st); err != nil {
				return &convert.DecodeError{Input: string(payload), Reason: "extrinsic status", Err: err}
			}
			status := statusName(st)
			incl.Statuses = append(incl.Statuses, status)
			logger.Debug("extrinsic status", "status", status)

			switch {
			case st.IsInBlock:
				incl.BlockHash = st.AsInBlock.Hex()
				return nil
			case st.IsFinalized:
				incl.BlockHash = st.AsFinalized.Hex()
				return nil
			case st.IsInvalid, st.IsDropped, st.IsUsurped:
				return &SubmissionRejected{Call: name, Status: status}
			}

		case err := <-sub.Err():
			return &ConnectionError{Endpoint: c.cfg.Endpoint, Op: statusNotification, Err: err}

		case <-timer.C:
			return &SubmissionTimeout{Call: name, Waited: time.Since(start), LastStatus: last()}

		case <-ctx.Done():
			return &SubmissionTimeout{Call: name, Waited: time.Since(start), LastStatus: last(), Err: ctx.Err()}
		}
	}
}

func statusName(st types.ExtrinsicStatus) string {
	switch {
	case st.IsFuture:
		return "future"
	case st.IsReady:
		return "ready"
	case st.IsBroadcast:
		return "broadcast"
	case st.IsInBlock:
		return "inBlock"
	case st.IsRetracted:
		return "retracted"
	case st.IsFinalityTimeout:
		return "finalityTimeout"
	case st.IsFinalized:
		return "finalized"
	case st.IsUsurped:
		return "usurped"
	case st.IsDropped:
		return "dropped"
	case st.IsInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}
