package element

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
)

func TestSerializeRoundTrip(t *testing.T) {
	cases := []Element{
		NewItem([]byte("hello"), nil),
		NewItem([]byte("with-flags"), []byte("app-meta")),
		NewSumItem(-42, nil),
		NewTree([]byte("root-key-123"), nil),
		NewTree(nil, nil),
		{Kind: SumTree, RootKey: []byte("r"), Sum: 350},
		{Kind: BigSumTree, RootKey: []byte("r"), BigSum: [2]int64{1, -2}},
		{Kind: CountTree, RootKey: []byte("r"), Count: 7},
		{Kind: CountSumTree, RootKey: []byte("r"), Count: 7, Sum: 99},
		NewItemWithSumItem([]byte("v"), 12, nil),
		{Kind: ProvableCountTree, RootKey: []byte("r"), Count: 3},
		{Kind: ProvableCountSumTree, RootKey: []byte("r"), Count: 3, Sum: -5},
		{Kind: CommitmentTree, TotalCount: 1000, ChunkPower: 8},
		{Kind: MmrTree, MmrSize: 4096},
		{Kind: BulkAppendTree, TotalCount: 500, ChunkPower: 6},
		{Kind: DenseAppendOnlyFixedSizeTree, DenseCount: 31, DenseHeight: 5},
		NewReference(ReferencePath{Kind: RefAbsolute, Path: [][]byte{[]byte("a"), []byte("b")}}, nil),
		NewReference(ReferencePath{Kind: RefUpstreamRootHeight, Height: 1, Tail: [][]byte{[]byte("x")}, HopLimit: 3}, []byte("f")),
		NewReference(ReferencePath{Kind: RefSibling, Path: [][]byte{[]byte("sib")}}, nil),
	}

	for _, e := range cases {
		buf := Serialize(e)
		got, err := Deserialize(buf)
		require.NoError(t, err)
		// Serialize only carries Ref for Reference elements; every other
		// field must survive the round trip for every kind, so diff the
		// whole struct instead of a field checklist that silently stops
		// covering new fields.
		want := e
		if e.Kind != Reference {
			want.Ref = ReferencePath{}
			got.Ref = ReferencePath{}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch for kind %v (-want +got):\n%s", e.Kind, diff)
		}
	}
}

func TestDeserializeUnknownDiscriminant(t *testing.T) {
	_, err := Deserialize([]byte{99})
	require.ErrorIs(t, err, groveerr.ErrCorruptedData)
}

// fakeSource is a minimal in-memory Fetcher for reference-resolution
// tests, keyed by qualifiedPath(path,key).
type fakeSource struct {
	elements map[string]Element
}

func newFakeSource() *fakeSource { return &fakeSource{elements: map[string]Element{}} }

func (s *fakeSource) put(path [][]byte, key []byte, e Element) {
	s.elements[qualifiedPath(path, key)] = e
}

func (s *fakeSource) GetElement(path [][]byte, key []byte) (Element, bool, cost.Cost, error) {
	e, ok := s.elements[qualifiedPath(path, key)]
	return e, ok, cost.Cost{SeekCount: 1}, nil
}

func TestResolveChainFollowsToItem(t *testing.T) {
	src := newFakeSource()
	src.put([][]byte{[]byte("p")}, []byte("target"), NewItem([]byte("final-value"), nil))
	src.put([][]byte{[]byte("p")}, []byte("middle"),
		NewReference(ReferencePath{Kind: RefSibling, Path: [][]byte{[]byte("target")}}, nil))

	ref := NewReference(ReferencePath{Kind: RefSibling, Path: [][]byte{[]byte("middle")}}, nil)
	resolved, path, key, c, err := ResolveChain(src, [][]byte{[]byte("p")}, []byte("source"), ref.Ref)
	require.NoError(t, err)
	require.Equal(t, Item, resolved.Kind)
	require.Equal(t, "final-value", string(resolved.Bytes))
	require.Equal(t, []byte("target"), key)
	require.Equal(t, [][]byte{[]byte("p")}, path)
	require.Equal(t, uint64(2), c.SeekCount)
}

func TestResolveChainDetectsCycle(t *testing.T) {
	src := newFakeSource()
	refAtoB := ReferencePath{Kind: RefSibling, Path: [][]byte{[]byte("B")}}
	refBtoA := ReferencePath{Kind: RefSibling, Path: [][]byte{[]byte("A")}}
	src.put([][]byte{[]byte("p")}, []byte("A"), NewReference(refAtoB, nil))
	src.put([][]byte{[]byte("p")}, []byte("B"), NewReference(refBtoA, nil))

	_, _, _, c, err := ResolveChain(src, [][]byte{[]byte("p")}, []byte("A"), refAtoB)
	require.ErrorIs(t, err, groveerr.ErrCyclicReference)
	require.Equal(t, uint64(2), c.SeekCount)
}

func TestResolveChainHopLimit(t *testing.T) {
	src := newFakeSource()
	path := [][]byte{[]byte("p")}
	// A chain of references longer than MaxReferenceHops, none of which
	// cycle, so the hop cap (not cycle detection) must fire.
	for i := 0; i < MaxReferenceHops+3; i++ {
		from := []byte{byte(i)}
		to := []byte{byte(i + 1)}
		src.put(path, from, NewReference(ReferencePath{Kind: RefSibling, Path: [][]byte{to}}, nil))
	}
	last := []byte{byte(MaxReferenceHops + 3)}
	src.put(path, last, NewItem([]byte("unreachable"), nil))

	start := NewReference(ReferencePath{Kind: RefSibling, Path: [][]byte{{1}}}, nil)
	_, _, _, _, err := ResolveChain(src, path, []byte{0}, start.Ref)
	require.ErrorIs(t, err, groveerr.ErrReferenceHopLimit)
}

func TestReferenceValueHashBindsTarget(t *testing.T) {
	refBytes := Serialize(NewReference(ReferencePath{Kind: RefAbsolute, Path: [][]byte{[]byte("k")}}, nil))
	h1 := ReferenceValueHash(refBytes, []byte("value-a"))
	h2 := ReferenceValueHash(refBytes, []byte("value-b"))
	require.NotEqual(t, h1, h2)
}
