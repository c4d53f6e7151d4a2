// Package assign solves the rectangular optimal assignment problem used by
// both association stages of the fusion pipeline.
//
// Cost matrices are gonum mat.Matrix values. Entries that are +Inf or NaN
// are forbidden (gated) and never appear in a result. Among all one-to-one
// matchings over permitted entries the solver returns one with the largest
// number of pairs, and among those the smallest total cost.
package assign
