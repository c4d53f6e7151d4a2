package detection

import "math"

// Sensor names the modality a detection came from.
type Sensor string

const (
	SensorCamera Sensor = "camera"
	SensorLidar  Sensor = "lidar"
)

// Detection is a single sensor measurement for one frame. ID is unique
// only within its sensor's list for that frame and carries no identity
// across frames.
type Detection struct {
	ID           int64    `json:"id"`
	Box2D        *Box2D   `json:"bbox_2d,omitempty"`
	Box3D        *Box3D   `json:"bbox_3d,omitempty"`
	Confidence2D *float64 `json:"confidence_2d,omitempty"`
	Confidence3D *float64 `json:"confidence_3d,omitempty"`
}

// Validate checks the detection's geometry for use as a sensor measurement.
// Camera detections need a 2D box. Lidar detections need a 3D box or an
// already projected 2D box. Any box present must be finite and non-inverted,
// and confidences must lie in [0, 1]. The returned error is a *GeometryError.
func (d Detection) Validate(sensor Sensor) error {
	if d.Box2D == nil && d.Box3D == nil {
		return geometryErrorf(sensor, d.ID, "no bbox_2d or bbox_3d")
	}
	if sensor == SensorCamera && d.Box2D == nil {
		return geometryErrorf(sensor, d.ID, "camera detection has no bbox_2d")
	}
	if d.Box2D != nil {
		if p := d.Box2D.problem(); p != "" {
			return geometryErrorf(sensor, d.ID, "%s", p)
		}
	}
	if d.Box3D != nil {
		if p := d.Box3D.problem(); p != "" {
			return geometryErrorf(sensor, d.ID, "%s", p)
		}
	}
	if !validConfidence(d.Confidence2D) {
		return geometryErrorf(sensor, d.ID, "confidence_2d %g outside [0, 1]", *d.Confidence2D)
	}
	if !validConfidence(d.Confidence3D) {
		return geometryErrorf(sensor, d.ID, "confidence_3d %g outside [0, 1]", *d.Confidence3D)
	}
	return nil
}

func validConfidence(c *float64) bool {
	if c == nil {
		return true
	}
	return !math.IsNaN(*c) && *c >= 0 && *c <= 1
}

// Clone returns a deep copy of d.
func (d Detection) Clone() Detection {
	out := Detection{ID: d.ID}
	if d.Box2D != nil {
		b := *d.Box2D
		out.Box2D = &b
	}
	if d.Box3D != nil {
		b := *d.Box3D
		out.Box3D = &b
	}
	out.Confidence2D = cloneFloat(d.Confidence2D)
	out.Confidence3D = cloneFloat(d.Confidence3D)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v. Used to populate optional confidences.
func Float(v float64) *float64 { return &v }
