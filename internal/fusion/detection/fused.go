package detection

// Space identifies the coordinate frame a position is expressed in.
type Space int

const (
	SpaceNone   Space = iota
	SpaceImage        // pixels, from a 2D box centre
	SpaceGround       // metres, X/Z plane of a 3D box
)

func (s Space) String() string {
	switch s {
	case SpaceImage:
		return "image"
	case SpaceGround:
		return "ground"
	}
	return "none"
}

// FusedDetection is the per-frame output of cross-sensor association: a
// matched camera/lidar pair or a single-modality detection. At least one of
// Camera and Lidar is set.
type FusedDetection struct {
	Camera *Detection `json:"source_camera,omitempty"`
	Lidar  *Detection `json:"source_lidar,omitempty"`

	Box2D        *Box2D   `json:"bbox_2d,omitempty"`
	Box3D        *Box3D   `json:"bbox_3d,omitempty"`
	Confidence2D *float64 `json:"confidence_2d,omitempty"`
	Confidence3D *float64 `json:"confidence_3d,omitempty"`
}

// Fuse builds the fused record for a camera and/or lidar detection. The 2D
// box and confidence come from the camera when present; the 3D box and
// confidence come from lidar. A lidar-only result keeps its own 2D box, or
// the projection of its cuboid when cam is non-nil and the cuboid is in view.
func Fuse(camera, lidar *Detection, cam *CameraModel) FusedDetection {
	var f FusedDetection
	if camera != nil {
		c := camera.Clone()
		f.Camera = &c
		f.Box2D = c.Box2D
		f.Confidence2D = c.Confidence2D
		if f.Box3D == nil {
			f.Box3D = c.Box3D
		}
	}
	if lidar != nil {
		l := lidar.Clone()
		f.Lidar = &l
		if l.Box3D != nil {
			f.Box3D = l.Box3D
		}
		f.Confidence3D = l.Confidence3D
		if f.Box2D == nil {
			switch {
			case l.Box2D != nil:
				f.Box2D = l.Box2D
			case cam != nil && l.Box3D != nil:
				if b, ok := cam.Project(*l.Box3D); ok {
					f.Box2D = &b
				}
			}
		}
		if f.Confidence2D == nil {
			f.Confidence2D = l.Confidence2D
		}
	}
	return f
}

// Matched reports whether both sensors contributed.
func (f FusedDetection) Matched() bool {
	return f.Camera != nil && f.Lidar != nil
}

// Position returns the point used for frame-to-frame association: the 2D
// box centre in image space when a 2D box exists, else the 3D box centre on
// the ground plane (X, Z).
func (f FusedDetection) Position() (x, y float64, space Space) {
	switch {
	case f.Box2D != nil:
		x, y = f.Box2D.Center()
		return x, y, SpaceImage
	case f.Box3D != nil:
		return f.Box3D.X, f.Box3D.Z, SpaceGround
	}
	return 0, 0, SpaceNone
}

// Clone returns a deep copy. Sources and boxes are never shared with the
// original.
func (f FusedDetection) Clone() FusedDetection {
	var out FusedDetection
	if f.Camera != nil {
		c := f.Camera.Clone()
		out.Camera = &c
	}
	if f.Lidar != nil {
		l := f.Lidar.Clone()
		out.Lidar = &l
	}
	if f.Box2D != nil {
		b := *f.Box2D
		out.Box2D = &b
	}
	if f.Box3D != nil {
		b := *f.Box3D
		out.Box3D = &b
	}
	out.Confidence2D = cloneFloat(f.Confidence2D)
	out.Confidence3D = cloneFloat(f.Confidence3D)
	return out
}
