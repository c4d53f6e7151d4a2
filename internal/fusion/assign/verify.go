package assign

import (
	"errors"
	"fmt"
)

// ErrInvariant reports an assignment that is not one-to-one or points
// outside the matrix. It indicates a programming error and must never be
// masked.
var ErrInvariant = errors.New("assignment invariant violated")

// Verify checks that assignment is a valid partial matching of rows onto
// cols columns.
func Verify(assignment []int, cols int) error {
	owner := make([]int, cols)
	for j := range owner {
		owner[j] = Unassigned
	}
	for i, j := range assignment {
		if j == Unassigned {
			continue
		}
		if j < 0 || j >= cols {
			return fmt.Errorf("%w: row %d assigned to column %d of %d", ErrInvariant, i, j, cols)
		}
		if owner[j] != Unassigned {
			return fmt.Errorf("%w: column %d assigned to rows %d and %d", ErrInvariant, j, owner[j], i)
		}
		owner[j] = i
	}
	return nil
}
