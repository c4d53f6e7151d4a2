package detection

import "math"

// CameraModel is a pinhole camera used to project lidar cuboids into the
// image. Width and Height bound the image; zero disables clipping.
type CameraModel struct {
	Width       int
	Height      int
	FocalLength float64
	PrincipalX  float64
	PrincipalY  float64
}

// Project returns the image rectangle enclosing the projection of all eight
// cuboid corners. It returns false when any corner lies at or behind the
// image plane or the clipped projection is empty.
func (c CameraModel) Project(b Box3D) (Box2D, bool) {
	if c.FocalLength <= 0 {
		return Box2D{}, false
	}
	out := Box2D{
		X1: math.Inf(1), Y1: math.Inf(1),
		X2: math.Inf(-1), Y2: math.Inf(-1),
	}
	for _, p := range b.Corners() {
		if p.Z <= 0 {
			return Box2D{}, false
		}
		u := c.FocalLength*p.X/p.Z + c.PrincipalX
		v := c.FocalLength*p.Y/p.Z + c.PrincipalY
		out.X1 = math.Min(out.X1, u)
		out.Y1 = math.Min(out.Y1, v)
		out.X2 = math.Max(out.X2, u)
		out.Y2 = math.Max(out.Y2, v)
	}
	if c.Width > 0 && c.Height > 0 {
		out.X1 = math.Max(out.X1, 0)
		out.Y1 = math.Max(out.Y1, 0)
		out.X2 = math.Min(out.X2, float64(c.Width))
		out.Y2 = math.Min(out.Y2, float64(c.Height))
	}
	if out.X2 <= out.X1 || out.Y2 <= out.Y1 {
		return Box2D{}, false
	}
	return out, true
}
