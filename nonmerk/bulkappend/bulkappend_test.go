package bulkappend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func TestAppendAcrossMultipleChunkRolls(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("bulk")})

	tr, err := Open(ctx, prefix, 2, 0) // chunk capacity 2^2-1 = 3
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	require.Equal(t, uint64(10), tr.TotalCount())
	// 10 entries / capacity 3 => 3 full chunks rolled, 1 entry left buffered.
	require.Equal(t, uint64(3), tr.nextChunk)
}

func TestReopenAtPersistedCountResumesBuffer(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("bulk-reopen")})

	tr, err := Open(ctx, prefix, 2, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	wantRoot, _, err := tr.StateRoot()
	require.NoError(t, err)

	reopened, err := Open(ctx, prefix, 2, tr.TotalCount())
	require.NoError(t, err)
	gotRoot, _, err := reopened.StateRoot()
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)
}

func TestChunkBlobRoundTrip(t *testing.T) {
	fixed := [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}
	blob := encodeChunkBlob(fixed, true)
	got, err := decodeChunkBlob(blob)
	require.NoError(t, err)
	require.Equal(t, fixed, got)

	variable := [][]byte{[]byte("a"), []byte("bbb"), []byte("cc")}
	blob2 := encodeChunkBlob(variable, false)
	got2, err := decodeChunkBlob(blob2)
	require.NoError(t, err)
	require.Equal(t, variable, got2)
}

func TestStateRootChangesOnAppend(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("bulk-root")})
	tr, err := Open(ctx, prefix, 3, 0)
	require.NoError(t, err)

	r0, _, err := tr.StateRoot()
	require.NoError(t, err)
	_, err = tr.Append([]byte("entry"))
	require.NoError(t, err)
	r1, _, err := tr.StateRoot()
	require.NoError(t, err)
	require.NotEqual(t, r0, r1)
}

func TestProveVerifyAcrossSealedChunksAndLiveBuffer(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("bulk-prove")})
	tr, err := Open(ctx, prefix, 2, 0) // chunk capacity 3

	require.NoError(t, err)
	for i := 0; i < 10; i++ { // 3 sealed chunks (9 entries) + 1 buffered
		_, err := tr.Append([]byte{byte(i), byte(i + 100)})
		require.NoError(t, err)
	}
	root, _, err := tr.StateRoot()
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		proof, _, err := tr.Prove(i)
		require.NoError(t, err, "index %d", i)
		got, err := Verify(proof, root)
		require.NoError(t, err, "index %d", i)
		require.Equal(t, []byte{byte(i), byte(i + 100)}, got)
	}
}

func TestProveVerifyRejectsWrongRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("bulk-wrong-root")})
	tr, err := Open(ctx, prefix, 2, 0)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}

	proof, _, err := tr.Prove(1)
	require.NoError(t, err)

	_, err = Verify(proof, hash.Digest{0x01})
	require.Error(t, err)
}
