package cart

import "coffee-checkout/internal/model"

// LineDiff describes how a cart edit changes the snapshot lines.
// Lines are matched by ProductID.
type LineDiff struct {
	Added   []model.CartLine // in desired but not current
	Removed []model.CartLine // in current but not desired
	Changed []LineChange     // in both with a different quantity, price or package
}

// LineChange pairs the old and new version of one product line.
type LineChange struct {
	Old model.CartLine
	New model.CartLine
}

// IsEmpty returns true if the edit changes nothing.
func (d LineDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff computes the delta between the current and desired lines.
// Results follow the order of desired (Added, Changed) and current (Removed).
func Diff(current, desired []model.CartLine) LineDiff {
	var diff LineDiff

	currentByID := make(map[string]model.CartLine, len(current))
	for _, l := range current {
		currentByID[l.ProductID] = l
	}
	desiredByID := make(map[string]bool, len(desired))

	for _, want := range desired {
		desiredByID[want.ProductID] = true
		have, exists := currentByID[want.ProductID]
		switch {
		case !exists:
			diff.Added = append(diff.Added, want)
		case have != want:
			diff.Changed = append(diff.Changed, LineChange{Old: have, New: want})
		}
	}

	for _, have := range current {
		if !desiredByID[have.ProductID] {
			diff.Removed = append(diff.Removed, have)
		}
	}

	return diff
}
