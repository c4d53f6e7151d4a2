package assign

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ParallelThreshold is the cell count from which Build computes rows
// concurrently.
const ParallelThreshold = 4096

// Build returns a rows×cols cost matrix with entry (i, j) = fn(i, j), or
// nil when either dimension is zero. fn must be safe for concurrent use;
// each row is written by exactly one goroutine so the result does not
// depend on scheduling.
func Build(rows, cols int, fn func(i, j int) float64) *mat.Dense {
	if rows == 0 || cols == 0 {
		return nil
	}
	data := make([]float64, rows*cols)
	fill := func(i int) {
		row := data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] = fn(i, j)
		}
	}

	if rows*cols < ParallelThreshold || rows == 1 {
		for i := 0; i < rows; i++ {
			fill(i)
		}
		return mat.NewDense(rows, cols, data)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < rows; i++ {
		g.Go(func() error {
			fill(i)
			return nil
		})
	}
	_ = g.Wait()
	return mat.NewDense(rows, cols, data)
}
