package detection

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Box2D is an axis-aligned image rectangle in pixels. (X1, Y1) is the
// top-left corner and (X2, Y2) the bottom-right corner.
//
// It encodes to JSON as [x1, y1, x2, y2].
type Box2D struct {
	X1, Y1, X2, Y2 float64
}

// Center returns the rectangle centre.
func (b Box2D) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Width returns X2 - X1.
func (b Box2D) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Box2D) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the rectangle area, or 0 for degenerate rectangles.
func (b Box2D) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// problem returns a non-empty reason when the rectangle is unusable.
func (b Box2D) problem() string {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "bbox_2d has non-finite coordinates"
		}
	}
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return fmt.Sprintf("bbox_2d is inverted or empty [%g %g %g %g]", b.X1, b.Y1, b.X2, b.Y2)
	}
	return ""
}

// MarshalJSON encodes the box as [x1, y1, x2, y2].
func (b Box2D) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON decodes a [x1, y1, x2, y2] array.
func (b *Box2D) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("bbox_2d: %w", err)
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox_2d: want 4 values, got %d", len(v))
	}
	b.X1, b.Y1, b.X2, b.Y2 = v[0], v[1], v[2], v[3]
	return nil
}

// CenterDistance is the Euclidean distance between two rectangle centres.
func CenterDistance(a, b Box2D) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return floats.Distance([]float64{ax, ay}, []float64{bx, by}, 2)
}

// IoU returns the intersection-over-union of two rectangles in [0, 1].
func IoU(a, b Box2D) float64 {
	ix := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	iy := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Box3D is a lidar cuboid expressed in the camera frame (metres): X right,
// Y down, Z forward. Length runs along Z, Width along X and Height along Y
// before the Yaw rotation about the Y axis is applied.
type Box3D struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Yaw    float64 `json:"yaw,omitempty"`
}

// Center returns the cuboid centre.
func (b Box3D) Center() r3.Vec {
	return r3.Vec{X: b.X, Y: b.Y, Z: b.Z}
}

// Corners returns the eight cuboid corners.
func (b Box3D) Corners() [8]r3.Vec {
	sin, cos := math.Sincos(b.Yaw)
	hl, hw, hh := b.Length/2, b.Width/2, b.Height/2
	var out [8]r3.Vec
	k := 0
	for _, dx := range []float64{-hw, hw} {
		for _, dy := range []float64{-hh, hh} {
			for _, dz := range []float64{-hl, hl} {
				// Rotation about Y keeps the vertical offset unchanged.
				off := r3.Vec{
					X: cos*dx + sin*dz,
					Y: dy,
					Z: -sin*dx + cos*dz,
				}
				out[k] = r3.Add(b.Center(), off)
				k++
			}
		}
	}
	return out
}

// GroundDistance is the distance between two cuboid centres on the X/Z
// ground plane.
func GroundDistance(a, b Box3D) float64 {
	d := r3.Sub(a.Center(), b.Center())
	d.Y = 0
	return r3.Norm(d)
}

func (b Box3D) problem() string {
	for _, v := range []float64{b.X, b.Y, b.Z, b.Length, b.Width, b.Height, b.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "bbox_3d has non-finite values"
		}
	}
	if b.Length <= 0 || b.Width <= 0 || b.Height <= 0 {
		return fmt.Sprintf("bbox_3d has non-positive size (%g x %g x %g)", b.Length, b.Width, b.Height)
	}
	return ""
}
