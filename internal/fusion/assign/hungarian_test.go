package assign

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var inf = math.Inf(1)

func dense(rows [][]float64) *mat.Dense {
	n, m := len(rows), len(rows[0])
	d := mat.NewDense(n, m, nil)
	for i := range rows {
		d.SetRow(i, rows[i])
	}
	return d
}

func TestSolve_Empty(t *testing.T) {
	assert.Nil(t, Solve(nil))

	var d *mat.Dense
	assert.Nil(t, Solve(d))
}

func TestSolve_SingleElement(t *testing.T) {
	assert.Equal(t, []int{0}, Solve(dense([][]float64{{5}})))
}

func TestSolve_SquareOptimal(t *testing.T) {
	// Optimal: row0→col0 (1), row1→col1 (4), row2→col2 (5) = 10
	// NOT:     row0→col0 (1), row1→col2 (6), row2→col1 (8) = 15
	cost := dense([][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	})
	result := Solve(cost)
	require.Len(t, result, 3)
	assert.Equal(t, 10.0, TotalCost(cost, result), "assignments: %v", result)
}

func TestSolve_Forbidden(t *testing.T) {
	cost := dense([][]float64{
		{1, 2},
		{inf, inf},
	})
	result := Solve(cost)
	require.Len(t, result, 2)
	assert.GreaterOrEqual(t, result[0], 0)
	assert.Equal(t, Unassigned, result[1])
}

func TestSolve_AllForbidden(t *testing.T) {
	cost := dense([][]float64{
		{inf, math.NaN()},
		{inf, inf},
	})
	assert.Equal(t, []int{Unassigned, Unassigned}, Solve(cost))
}

func TestSolve_MoreRowsThanCols(t *testing.T) {
	cost := dense([][]float64{
		{1, 10},
		{10, 1},
		{5, 5},
	})
	result := Solve(cost)
	require.Len(t, result, 3)
	assert.Equal(t, []int{0, 1, Unassigned}, result)
	assert.Equal(t, 2.0, TotalCost(cost, result))
}

func TestSolve_MoreColsThanRows(t *testing.T) {
	cost := dense([][]float64{
		{10, 1, 5},
		{5, 10, 1},
	})
	result := Solve(cost)
	assert.Equal(t, []int{1, 2}, result)
}

func TestSolve_GatedCheapestPairNotUsed(t *testing.T) {
	// The globally cheapest pair (0,0) is gated out; the solver must not
	// resurrect it.
	cost := dense([][]float64{
		{inf, 7},
		{3, 9},
	})
	assert.Equal(t, []int{1, 0}, Solve(cost))
}

func TestSolve_PrefersMorePairs(t *testing.T) {
	// Taking the cheap (0,0) alone would leave row 1 unmatched; the
	// solver maximises the number of permitted pairs first.
	cost := dense([][]float64{
		{1, 50},
		{2, inf},
	})
	assert.Equal(t, []int{1, 0}, Solve(cost))
}

func TestSolve_LargeMagnitudeCosts(t *testing.T) {
	// Penalty is scaled to the cost range, so small differences between
	// large costs survive.
	cost := dense([][]float64{
		{1e9, 1e9 + 1, inf},
		{1e9 + 1, 1e9 + 3, inf},
	})
	result := Solve(cost)
	assert.Equal(t, 2e9+2, TotalCost(cost, result), "assignments: %v", result)
}

func TestSolveContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := SolveContext(ctx, dense([][]float64{{1, 2}, {3, 4}}))
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
}

func TestSolveContext_DeadlinePassed(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	result, err := SolveContext(ctx, dense([][]float64{{1, 2}, {3, 4}}))
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []int{2, Unassigned, 0}, Columns([]int{2, Unassigned, 0}, 3))
	assert.Equal(t, []int{Unassigned, 0}, Columns([]int{1}, 2))
}

// bruteForce returns the best (pairs, cost) over every one-to-one matching
// of permitted entries.
func bruteForce(cost [][]float64) (int, float64) {
	n, m := len(cost), len(cost[0])
	usedCol := make([]bool, m)
	bestPairs, bestCost := 0, 0.0
	var rec func(i, pairs int, total float64)
	rec = func(i, pairs int, total float64) {
		if i == n {
			if pairs > bestPairs || (pairs == bestPairs && total < bestCost) {
				bestPairs, bestCost = pairs, total
			}
			return
		}
		rec(i+1, pairs, total)
		for j := 0; j < m; j++ {
			if usedCol[j] || !Permitted(cost[i][j]) {
				continue
			}
			usedCol[j] = true
			rec(i+1, pairs+1, total+cost[i][j])
			usedCol[j] = false
		}
	}
	rec(0, 0, 0)
	return bestPairs, bestCost
}

func TestSolve_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 300; trial++ {
		n := 1 + rng.Intn(5)
		m := 1 + rng.Intn(5)
		rows := make([][]float64, n)
		for i := range rows {
			rows[i] = make([]float64, m)
			for j := range rows[i] {
				if rng.Float64() < 0.3 {
					rows[i][j] = inf
				} else {
					rows[i][j] = float64(rng.Intn(100))
				}
			}
		}
		cost := dense(rows)
		result := Solve(cost)
		require.Len(t, result, n)

		seen := make(map[int]bool)
		pairs := 0
		for i, j := range result {
			if j == Unassigned {
				continue
			}
			require.False(t, seen[j], "trial %d: column %d assigned twice", trial, j)
			seen[j] = true
			require.True(t, Permitted(rows[i][j]), "trial %d: forbidden pair (%d,%d) used", trial, i, j)
			pairs++
		}

		wantPairs, wantCost := bruteForce(rows)
		require.Equal(t, wantPairs, pairs, "trial %d: %v", trial, rows)
		require.InDelta(t, wantCost, TotalCost(cost, result), 1e-9, "trial %d: %v", trial, rows)
	}
}

func TestBuild(t *testing.T) {
	assert.Nil(t, Build(0, 3, func(i, j int) float64 { return 0 }))
	assert.Nil(t, Build(3, 0, func(i, j int) float64 { return 0 }))

	fn := func(i, j int) float64 { return float64(i*1000 + j) }

	small := Build(2, 3, fn)
	assert.Equal(t, 1002.0, small.At(1, 2))

	// Above ParallelThreshold the concurrent path must produce the same
	// matrix as the serial one.
	rows, cols := 128, 64
	big := Build(rows, cols, fn)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			require.Equal(t, fn(i, j), big.At(i, j))
		}
	}
}

func TestVerify(t *testing.T) {
	assert.NoError(t, Verify([]int{1, Unassigned, 0}, 2))
	assert.ErrorIs(t, Verify([]int{0, 0}, 2), ErrInvariant)
	assert.ErrorIs(t, Verify([]int{2}, 2), ErrInvariant)
	assert.ErrorIs(t, Verify([]int{-3}, 2), ErrInvariant)
}
