package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGrantConfirmsOnPoll(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	hash, err := f.Grant(ctx, "42", "0xDoctor")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	// Access only materializes once the tx confirms
	ok, err := f.HasAccess(ctx, "42", "0xdoctor")
	require.NoError(t, err)
	assert.False(t, ok)

	state, err := f.TxStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, state)

	ok, err = f.HasAccess(ctx, "42", "0xDOCTOR")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFakeConfirmAfterDelaysConfirmation(t *testing.T) {
	f := NewFake()
	f.ConfirmAfter = 2
	ctx := context.Background()

	hash, err := f.Grant(ctx, "42", "0xdoctor")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		state, err := f.TxStatus(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, TxPending, state)
	}

	state, err := f.TxStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, state)
}

func TestFakeRevoke(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	grant, _ := f.Grant(ctx, "42", "0xdoctor")
	f.TxStatus(ctx, grant)

	revoke, err := f.Revoke(ctx, "42", "0xdoctor")
	require.NoError(t, err)
	f.TxStatus(ctx, revoke)

	ok, err := f.HasAccess(ctx, "42", "0xdoctor")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFakeGrantedAddressesSorted(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	for _, addr := range []string{"0xccc", "0xaaa", "0xbbb"} {
		hash, err := f.Grant(ctx, "42", addr)
		require.NoError(t, err)
		f.TxStatus(ctx, hash)
	}

	addrs, err := f.GrantedAddresses(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaaa", "0xbbb", "0xccc"}, addrs)
}

func TestFakeFailNext(t *testing.T) {
	f := NewFake()
	f.FailNext = true

	_, err := f.Grant(context.Background(), "42", "0xdoctor")
	assert.Error(t, err)

	// Next submission succeeds
	_, err = f.Grant(context.Background(), "42", "0xdoctor")
	assert.NoError(t, err)
}

func TestFakeFailTx(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	hash, _ := f.Grant(ctx, "42", "0xdoctor")
	f.FailTx(hash)

	state, err := f.TxStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxFailed, state)

	ok, _ := f.HasAccess(ctx, "42", "0xdoctor")
	assert.False(t, ok)
}

func TestFakeUnknownTx(t *testing.T) {
	f := NewFake()
	state, err := f.TxStatus(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Equal(t, TxUnknown, state)
}
