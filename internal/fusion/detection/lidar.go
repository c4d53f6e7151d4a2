package detection

import "math"

// LidarCoverage is the horizontal field of view and range of a lidar
// co-located with the camera, in the camera frame (Z forward). Zero values
// leave the corresponding limit off.
type LidarCoverage struct {
	FOV      float64 // full horizontal angle, radians
	MaxRange float64 // metres, on the X/Z plane
}

// Bearing is the horizontal angle of the cuboid centre off the optical
// axis, in radians.
func (b Box3D) Bearing() float64 {
	return math.Atan2(math.Abs(b.X), b.Z)
}

// Covers reports whether the cuboid centre lies inside the coverage.
func (c LidarCoverage) Covers(b Box3D) bool {
	if c.FOV > 0 && c.FOV < 2*math.Pi && b.Bearing() > c.FOV/2 {
		return false
	}
	if c.MaxRange > 0 && math.Hypot(b.X, b.Z) > c.MaxRange {
		return false
	}
	return true
}

// Check returns a *GeometryError when a lidar detection's cuboid lies
// outside the coverage. Detections without a cuboid always pass.
func (c LidarCoverage) Check(d Detection) error {
	if d.Box3D == nil || c.Covers(*d.Box3D) {
		return nil
	}
	return geometryErrorf(SensorLidar, d.ID, "outside lidar coverage (bearing %.1f°, range %.1f m)",
		d.Box3D.Bearing()*180/math.Pi, math.Hypot(d.Box3D.X, d.Box3D.Z))
}
