package assign

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDeadlineExceeded is returned by SolveContext when the context expires
// before the solver completes.
var ErrDeadlineExceeded = errors.New("assignment solve deadline exceeded")

// Unassigned marks a row or column with no partner.
const Unassigned = -1

// Forbidden is the cost for a pair that may never be matched.
var Forbidden = math.Inf(1)

// Permitted reports whether c is a usable cost.
func Permitted(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0)
}

// Solve returns assignment[i] = column matched to row i, or Unassigned.
// It returns nil for a matrix with no rows.
func Solve(cost mat.Matrix) []int {
	a, _ := SolveContext(context.Background(), cost)
	return a
}

// SolveContext is Solve with cancellation. The context is checked once per
// augmenting row; on expiry it returns a nil assignment and an error
// wrapping both ErrDeadlineExceeded and ctx.Err().
//
// Kuhn-Munkres with row/column potentials (Jonker-Volgenant style), O(n³)
// on the padded square matrix. Forbidden and padding cells get a common
// penalty larger than any feasible matching's total so that adding a
// permitted pair always lowers the objective; the penalty is derived from
// the finite cost range rather than a fixed huge constant so that potentials
// keep full float64 precision.
func SolveContext(ctx context.Context, cost mat.Matrix) ([]int, error) {
	if cost == nil {
		return nil, nil
	}
	if d, ok := cost.(*mat.Dense); ok && d == nil {
		return nil, nil
	}
	n, m := cost.Dims()
	if n == 0 {
		return nil, nil
	}
	result := make([]int, n)
	for i := range result {
		result[i] = Unassigned
	}
	if m == 0 {
		return result, nil
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := cost.At(i, j)
			if !Permitted(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		// Nothing passes the gate.
		return result, nil
	}

	dim := n
	if m > dim {
		dim = m
	}
	penalty := (hi - lo + 1) * float64(dim+1)

	// 1-indexed square working matrix; row/col 0 are the virtual start.
	c := make([][]float64, dim+1)
	for i := 1; i <= dim; i++ {
		c[i] = make([]float64, dim+1)
		for j := 1; j <= dim; j++ {
			c[i][j] = penalty
			if i <= n && j <= m {
				if v := cost.At(i-1, j-1); Permitted(v) {
					c[i][j] = v - lo
				}
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column on augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
		}

		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0][j] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= m; j++ {
		i := p[j]
		if i < 1 || i > n {
			continue
		}
		if Permitted(cost.At(i-1, j-1)) {
			result[i-1] = j - 1
		}
	}
	return result, nil
}

// Columns inverts a row assignment: out[j] = row matched to column j, or
// Unassigned.
func Columns(assignment []int, cols int) []int {
	out := make([]int, cols)
	for j := range out {
		out[j] = Unassigned
	}
	for i, j := range assignment {
		if j >= 0 && j < cols {
			out[j] = i
		}
	}
	return out
}

// TotalCost sums the costs of the assigned pairs.
func TotalCost(cost mat.Matrix, assignment []int) float64 {
	var total float64
	for i, j := range assignment {
		if j >= 0 {
			total += cost.At(i, j)
		}
	}
	return total
}
