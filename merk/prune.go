package merk

// PruneDepth walks down from w, converting every Loaded link deeper than
// depth levels into a Reference link so its Node can be garbage collected,
// while keeping the cached hash/height/aggregate summary the parent needs
// for balance factors and proofs (spec §4.5 "prune -> Reference", §9
// "memory-bounded working set"). depth == 0 prunes w's own children
// immediately; a typical caller keeps a few levels resident after commit
// and prunes the rest.
func PruneDepth(w *Walker, depth int) {
	if w == nil || w.Node == nil {
		return
	}
	pruneLink(&w.Node.Left, depth)
	pruneLink(&w.Node.Right, depth)
}

func pruneLink(l **Link, depth int) {
	link := *l
	if link == nil || link.Node == nil {
		return
	}
	if link.State == LinkModified || link.State == LinkUncommitted {
		// never prune dirty state out from under an uncommitted mutation
		return
	}
	if depth <= 0 {
		child := link.Node
		*l = referenceLink(child)
		return
	}
	pruneLink(&link.Node.Left, depth-1)
	pruneLink(&link.Node.Right, depth-1)
}
