package storage

// rootKeyMetaKey is the fixed Meta-namespace key under which the grove's
// top-level root prefix/key pointer is persisted, so a process restart can
// resume without recomputing every subtree prefix from scratch
// (SPEC_FULL.md "Root prefix metadata persistence").
var rootKeyMetaKey = []byte("grove:root")

// SaveRoot persists the grove's current root subtree key under Meta.
func SaveRoot(ctx Context, rootKey []byte) error {
	_, err := ctx.Put(RootPrefix, Meta, rootKeyMetaKey, rootKey)
	return err
}

// LoadRoot returns the previously persisted root subtree key, or
// (nil, false) if the grove has never been written to.
func LoadRoot(ctx Context) ([]byte, bool, error) {
	v, ok, _, err := ctx.Get(RootPrefix, Meta, rootKeyMetaKey)
	if err != nil {
		return nil, false, err
	}
	return v, ok, nil
}
