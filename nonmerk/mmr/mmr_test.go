package mmr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func TestAppendProducesDeterministicRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("mmr-a")})

	tr := Open(ctx, prefix, 0)
	for i := 0; i < 7; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	root1, _, err := tr.Root()
	require.NoError(t, err)
	require.False(t, root1.IsZero())

	tr2 := Open(ctx, storage.DerivePrefix([][]byte{[]byte("mmr-b")}), 0)
	for i := 0; i < 7; i++ {
		_, err := tr2.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	root2, _, err := tr2.Root()
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}

func TestMmrSizeMatchesLeavesFormula(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("mmr-size")})
	tr := Open(ctx, prefix, 0)

	for i := uint64(1); i <= 20; i++ {
		_, err := tr.Append([]byte("leaf"))
		require.NoError(t, err)
		require.Equal(t, mmrSizeForLeaves(i), tr.Size())
	}
}

func TestEmptyRootIsZero(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr := Open(ctx, storage.DerivePrefix([][]byte{[]byte("empty")}), 0)
	root, _, err := tr.Root()
	require.NoError(t, err)
	require.True(t, root.IsZero())
}

func TestReopenAtPersistedSizeReproducesRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("mmr-reopen")})

	tr := Open(ctx, prefix, 0)
	for i := 0; i < 11; i++ {
		_, err := tr.Append([]byte{byte(i), byte(i + 1)})
		require.NoError(t, err)
	}
	wantRoot, _, err := tr.Root()
	require.NoError(t, err)
	size := tr.Size()

	reopened := Open(ctx, prefix, size)
	gotRoot, _, err := reopened.Root()
	require.NoError(t, err)
	require.Equal(t, wantRoot, gotRoot)
}

func TestProveVerifyEveryLeafAcrossUnevenPeakCounts(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()

	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 15, 23} {
		prefix := storage.DerivePrefix([][]byte{[]byte("mmr-prove"), []byte{byte(n)}})
		tr := Open(ctx, prefix, 0)
		for i := 0; i < n; i++ {
			_, err := tr.Append([]byte{byte(i), byte(i * 3)})
			require.NoError(t, err)
		}
		root, _, err := tr.Root()
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			proof, _, err := tr.Prove(uint64(i))
			require.NoError(t, err, "leaf %d of %d", i, n)
			got, err := Verify(proof, root)
			require.NoError(t, err, "leaf %d of %d", i, n)
			require.Equal(t, []byte{byte(i), byte(i * 3)}, got)
		}
	}
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("mmr-wrong-root")})
	tr := Open(ctx, prefix, 0)
	for i := 0; i < 6; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}

	proof, _, err := tr.Prove(2)
	require.NoError(t, err)

	_, err = Verify(proof, hash.Digest{0xff})
	require.Error(t, err)
}

// TestAppendChargesBlake3CallsWithCascade builds the four-leaf MMR scenario
// (leaf counts before each append: 0, 1, 10, 11 in binary) and checks the
// fourth append's Blake3Calls: one value_hash for the new leaf plus one
// combine_hash per merge, and trailing_ones(0b11) == 2 merges cascade v3
// into v2's peak and that result into v0/v1's peak.
func TestAppendChargesBlake3CallsWithCascade(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr := Open(ctx, storage.DerivePrefix([][]byte{[]byte("mmr-blake3")}), 0)

	for _, v := range [][]byte{[]byte("v0"), []byte("v1"), []byte("v2")} {
		_, err := tr.Append(v)
		require.NoError(t, err)
	}

	c, err := tr.Append([]byte("v3"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), c.Blake3Calls)

	proof, _, err := tr.Prove(2)
	require.NoError(t, err)
	require.Len(t, proof.Path, 2)
	require.Len(t, proof.OtherPeaks, 0)
}

func TestRootChargesOneCombineHashPerBaggedPeak(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr := Open(ctx, storage.DerivePrefix([][]byte{[]byte("mmr-root-blake3")}), 0)

	// 5 leaves (0b101) leave popcount(5)=2 peaks (heights 2 and 0),
	// bagged with one combine_hash.
	for i := 0; i < 5; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	_, c, err := tr.Root()
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.Blake3Calls)
}

func TestVerifyRejectsTamperedLeafValue(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("mmr-tamper")})
	tr := Open(ctx, prefix, 0)
	for i := 0; i < 6; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	root, _, err := tr.Root()
	require.NoError(t, err)

	proof, _, err := tr.Prove(2)
	require.NoError(t, err)
	proof.LeafValue = []byte{0xde, 0xad}

	_, err = Verify(proof, root)
	require.Error(t, err)
}
