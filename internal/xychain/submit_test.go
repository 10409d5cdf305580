package xychain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/xychain/xy-e2e/internal/convert"
	"github.com/xychain/xy-e2e/internal/ss58"
)

const blockHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func newSubmitConn(t *testing.T, sub Subscription) (*Conn, *mockCaller, *Identity) {
	t.Helper()
	c, m := newTestConn(t)
	m.SetResponse("system_accountNextIndex", 3)
	m.SetSubscription(sub, nil)
	dave, err := DevIdentity("Dave", c.Config().SS58Prefix)
	require.NoError(t, err)
	return c, m, dave
}

func TestSubmitAndWaitInBlock(t *testing.T) {
	sub := newFakeSubscription(
		`"ready"`,
		`{"broadcast":["12D3KooW"]}`,
		`{"inBlock":"`+blockHash+`"}`,
		`{"finalized":"`+blockHash+`"}`,
	)
	c, m, dave := newSubmitConn(t, sub)

	incl, err := c.SubmitAndWait(context.Background(), RequestMint([]byte("0x0102"), []byte{1, 2}), dave)
	require.NoError(t, err)
	assert.Equal(t, blockHash, incl.BlockHash)
	assert.Equal(t, []string{"ready", "broadcast", "inBlock"}, incl.Statuses)
	assert.EqualValues(t, 1, sub.unsubscribes.Load())

	assert.Equal(t, []any{dave.Address()}, m.Params("system_accountNextIndex"))

	params := m.Params("author_submitAndWatchExtrinsic")
	require.Len(t, params, 1)
	raw, err := convert.HexToBytes(params[0].(string))
	require.NoError(t, err)
	sum := blake2b.Sum256(raw)
	assert.Equal(t, convert.BytesToHex(sum[:]), incl.ExtrinsicHash)
}

func TestSubmitAndWaitRejected(t *testing.T) {
	for _, status := range []string{`"invalid"`, `"dropped"`, `{"usurped":"` + blockHash + `"}`} {
		t.Run(status, func(t *testing.T) {
			sub := newFakeSubscription(`"ready"`, status, `{"inBlock":"`+blockHash+`"}`)
			c, _, dave := newSubmitConn(t, sub)

			_, err := c.SubmitAndWait(context.Background(), ApproveNft(1, Accept), dave)
			require.Error(t, err)
			var rejected *SubmissionRejected
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, "Nft.approve_nft", rejected.Call)
			assert.False(t, IsFatal(err))
			assert.EqualValues(t, 1, sub.unsubscribes.Load())
		})
	}
}

func TestSubmitAndWaitTimeout(t *testing.T) {
	sub := newFakeSubscription(`"ready"`)
	c, _, dave := newSubmitConn(t, sub)
	c.cfg.InclusionTimeout = 50 * time.Millisecond

	_, err := c.SubmitAndWait(context.Background(), BurnNft(2), dave)
	require.Error(t, err)
	var timeout *SubmissionTimeout
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, "ready", timeout.LastStatus)
	assert.GreaterOrEqual(t, timeout.Waited, 50*time.Millisecond)
	assert.EqualValues(t, 1, sub.unsubscribes.Load())
}

func TestSubmitAndWaitContextCancelled(t *testing.T) {
	sub := newFakeSubscription()
	c, _, dave := newSubmitConn(t, sub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.SubmitAndWait(ctx, BurnNft(2), dave)
	require.Error(t, err)
	var timeout *SubmissionTimeout
	require.True(t, errors.As(err, &timeout))
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, sub.unsubscribes.Load())
}

func TestSubmitAndWaitStreamFailure(t *testing.T) {
	sub := newFakeSubscription(`"ready"`)
	sub.errCh <- errors.New("read: EOF")
	c, _, dave := newSubmitConn(t, sub)

	_, err := c.SubmitAndWait(context.Background(), BurnNft(2), dave)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.EqualValues(t, 1, sub.unsubscribes.Load())
}

func TestSubmitAndWaitStreamClosed(t *testing.T) {
	sub := newFakeSubscription(`"ready"`)
	close(sub.updates)
	c, _, dave := newSubmitConn(t, sub)

	_, err := c.SubmitAndWait(context.Background(), BurnNft(2), dave)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.EqualValues(t, 1, sub.unsubscribes.Load())
}

func TestSubmitRPCRejection(t *testing.T) {
	c, m, dave := newSubmitConn(t, nil)
	m.SetSubscription(nil, &RPCError{Code: 1010, Message: "Invalid Transaction", Data: []byte(`"Inability to pay some fees"`)})

	_, err := c.SubmitAndWait(context.Background(), CreatePod(AccountID{}, 1, convert.Dollars(5)), dave)
	require.Error(t, err)
	var rejected *SubmissionRejected
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, err.Error(), "Inability to pay some fees")
}

func TestSubmitUnknownCall(t *testing.T) {
	sub := newFakeSubscription()
	c, m, dave := newSubmitConn(t, sub)

	_, err := c.SubmitAndWait(context.Background(), Call{Name: "Nft.mint_for_free"}, dave)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.False(t, m.Called("author_submitAndWatchExtrinsic"))
	assert.Zero(t, sub.unsubscribes.Load())
}

func TestBuildCallEncodesArgs(t *testing.T) {
	rt := newFakeRuntime(t)

	call, err := buildCall(rt, ApproveNft(0x01020304, Reject))
	require.NoError(t, err)
	assert.EqualValues(t, 9, call.CallIndex.SectionIndex)
	assert.EqualValues(t, 1, call.CallIndex.MethodIndex)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x01}, []byte(call.Args))

	call, err = buildCall(rt, RequestMint([]byte("ab"), []byte{0xff}))
	require.NoError(t, err)
	// compact lengths: 2<<2 and 1<<2
	assert.Equal(t, []byte{0x08, 'a', 'b', 0x04, 0xff}, []byte(call.Args))
}

func TestBuildCallEncodesPodArgs(t *testing.T) {
	rt := newFakeRuntime(t)
	alice, err := DevIdentity("Alice", ss58.SubstratePrefix)
	require.NoError(t, err)

	tests := []struct {
		name string
		call Call
		want string
	}{
		{
			// AccountId ++ u32 ++ u128
			name: "create pod",
			call: CreatePod(alice.AccountID(), 7, convert.Dollars(2)),
			want: "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d" +
				"07000000" +
				"00204aa9d10100000000000000000000",
		},
		{
			// u32 ++ u8 ++ Option<u128>
			name: "accept with tip",
			call: ReceivePod(1, Accept, convert.Dollars(10)),
			want: "0x01000000" + "00" + "01" + "00a0724e180900000000000000000000",
		},
		{
			name: "reject without tip",
			call: ReceivePod(1, Reject, nil),
			want: "0x01000000" + "01" + "00",
		},
		{
			name: "transfer",
			call: TransferNft(alice.AccountID(), 0x0a),
			want: "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d" + "0a000000",
		},
		{
			name: "burn",
			call: BurnNft(0x0a),
			want: "0x0a000000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := buildCall(rt, tt.call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, convert.BytesToHex(call.Args))
		})
	}
}
