package proof

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/merk/merkmock"
)

// TestGeneratePropagatesFetchError exercises a failure a real
// storage.Context can't easily produce on demand -- a Reference link
// whose node payload is unreadable at proof-generation time -- by mocking
// merk.Fetch directly rather than corrupting a store.
func TestGeneratePropagatesFetchError(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetch := merkmock.NewMockFetch(ctrl)

	wantErr := errors.New("node payload unreadable")
	fetch.EXPECT().
		FetchNode(gomock.Any()).
		Return(nil, cost.Cost{}, wantErr).
		Times(1)

	right := merk.NewNode([]byte("c"), []byte("c-value"), merk.Feature{}, hash.Digest{})
	root := merk.NewNode([]byte("b"), []byte("b-value"), merk.Feature{}, hash.Digest{})
	root.Left = &merk.Link{State: merk.LinkReference, Key: []byte("a")}
	root.Right = &merk.Link{State: merk.LinkLoaded, Node: right, Hash: right.Hash, Aggregate: right.Aggregate}

	tree := merk.NewTreeFromRoot(root, fetch)

	_, _, err := Generate(tree, [][]byte{[]byte("a")})
	require.ErrorIs(t, err, wantErr)
}
