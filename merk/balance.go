package merk

import "github.com/dashpay/grovedb-go/cost"

func opposite(s Side) Side {
	if s == Left {
		return Right
	}
	return Left
}

// MaybeBalance rebalances w if its balance factor has drifted outside
// {-1,0,1}: a single rotation when the heavy side's child leans the same
// direction (or is balanced), a double rotation when it leans opposite
// (spec §4.5 "Rebalancing rule").
func MaybeBalance(w *Walker) (*Walker, cost.Cost, error) {
	bf := w.Node.BalanceFactor()
	switch {
	case bf >= 2:
		return rotate(w, Left)
	case bf <= -2:
		return rotate(w, Right)
	default:
		return w, cost.Cost{}, nil
	}
}

// rotate performs an AVL rotation around w where heavySide is the side
// whose subtree is too tall. It calls MaybeBalance recursively on the new
// root, since repeated merges can require more than one rotation to
// settle (spec §4.5: "Rotations themselves call maybe_balance recursively
// ... after repeated merges").
func rotate(w *Walker, heavySide Side) (*Walker, cost.Cost, error) {
	var total cost.Cost

	parentWithoutHeavy, heavyChild, c, err := w.Detach(heavySide)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}

	other := opposite(heavySide)
	childBF := heavyChild.Node.BalanceFactor()
	needsDouble := (heavySide == Left && childBF < 0) || (heavySide == Right && childBF > 0)
	if needsDouble {
		heavyChild, c2, err := rotate(heavyChild, other)
		total = total.Add(c2)
		if err != nil {
			return nil, total, err
		}
		_ = heavyChild // shadow below is used; keep for clarity
		return finishRotation(parentWithoutHeavy, heavyChild, heavySide, other, total)
	}
	return finishRotation(parentWithoutHeavy, heavyChild, heavySide, other, total)
}

func finishRotation(parentWithoutHeavy, heavyChild *Walker, heavySide, other Side, total cost.Cost) (*Walker, cost.Cost, error) {
	heavyWithoutOther, otherGrandchild, c, err := heavyChild.Detach(other)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}

	newParent, err := parentWithoutHeavy.Attach(heavySide, otherGrandchild)
	if err != nil {
		return nil, total, err
	}

	newRoot, err := heavyWithoutOther.Attach(other, newParent)
	if err != nil {
		return nil, total, err
	}

	balanced, c2, err := MaybeBalance(newRoot)
	total = total.Add(c2)
	return balanced, total, err
}
