package detection

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectionValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		sensor  Sensor
		det     Detection
		wantErr bool
	}{
		{"camera ok", SensorCamera, Detection{ID: 1, Box2D: &Box2D{0, 0, 10, 10}, Confidence2D: Float(0.5)}, false},
		{"lidar cuboid ok", SensorLidar, Detection{ID: 1, Box3D: &Box3D{Z: 10, Length: 4, Width: 2, Height: 1.5}}, false},
		{"lidar pre-projected ok", SensorLidar, Detection{ID: 1, Box2D: &Box2D{0, 0, 10, 10}}, false},
		{"no boxes", SensorLidar, Detection{ID: 2}, true},
		{"camera without 2d", SensorCamera, Detection{ID: 3, Box3D: &Box3D{Z: 10, Length: 1, Width: 1, Height: 1}}, true},
		{"inverted", SensorCamera, Detection{ID: 4, Box2D: &Box2D{10, 10, 0, 0}}, true},
		{"empty", SensorCamera, Detection{ID: 5, Box2D: &Box2D{10, 10, 10, 20}}, true},
		{"nan", SensorCamera, Detection{ID: 6, Box2D: &Box2D{math.NaN(), 0, 10, 10}}, true},
		{"inf cuboid", SensorLidar, Detection{ID: 7, Box3D: &Box3D{Z: math.Inf(1), Length: 1, Width: 1, Height: 1}}, true},
		{"zero size cuboid", SensorLidar, Detection{ID: 8, Box3D: &Box3D{Z: 5}}, true},
		{"confidence too high", SensorCamera, Detection{ID: 9, Box2D: &Box2D{0, 0, 1, 1}, Confidence2D: Float(1.5)}, true},
		{"confidence nan", SensorLidar, Detection{ID: 10, Box2D: &Box2D{0, 0, 1, 1}, Confidence3D: Float(math.NaN())}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.det.Validate(tc.sensor)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGeometry))
			var gerr *GeometryError
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tc.sensor, gerr.Sensor)
			assert.Equal(t, tc.det.ID, gerr.ID)
		})
	}
}

func TestIoUAndCenterDistance(t *testing.T) {
	t.Parallel()

	a := Box2D{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-12)
	assert.Equal(t, 0.0, IoU(a, Box2D{20, 20, 30, 30}))
	// Half overlap: inter 50, union 150.
	assert.InDelta(t, 1.0/3.0, IoU(a, Box2D{5, 0, 15, 10}), 1e-12)

	assert.InDelta(t, math.Sqrt2, CenterDistance(Box2D{100, 100, 200, 200}, Box2D{101, 101, 201, 201}), 1e-12)
}

func TestBox2DJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Box2D{1, 2, 3, 4})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3,4]`, string(data))

	var b Box2D
	require.NoError(t, json.Unmarshal([]byte(`[100,100,200,200]`), &b))
	assert.Equal(t, Box2D{100, 100, 200, 200}, b)

	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &b))
}

func TestCameraModelProject(t *testing.T) {
	t.Parallel()

	cam := CameraModel{Width: 640, Height: 480, FocalLength: 525, PrincipalX: 320, PrincipalY: 240}

	t.Run("centred cuboid projects around principal point", func(t *testing.T) {
		t.Parallel()
		b, ok := cam.Project(Box3D{Z: 10, Length: 2, Width: 2, Height: 2})
		require.True(t, ok)
		cx, cy := b.Center()
		assert.InDelta(t, 320, cx, 1e-9)
		assert.InDelta(t, 240, cy, 1e-9)
		// Near face at z=9 spans 2*525/9 pixels.
		assert.InDelta(t, 2*525.0/9.0, b.Width(), 1e-9)
	})

	t.Run("behind camera is not projectable", func(t *testing.T) {
		t.Parallel()
		_, ok := cam.Project(Box3D{Z: -5, Length: 2, Width: 2, Height: 2})
		assert.False(t, ok)
	})

	t.Run("outside image is clipped away", func(t *testing.T) {
		t.Parallel()
		_, ok := cam.Project(Box3D{X: 500, Z: 10, Length: 1, Width: 1, Height: 1})
		assert.False(t, ok)
	})

	t.Run("zero focal length", func(t *testing.T) {
		t.Parallel()
		_, ok := CameraModel{}.Project(Box3D{Z: 10, Length: 1, Width: 1, Height: 1})
		assert.False(t, ok)
	})
}

func TestFuse(t *testing.T) {
	t.Parallel()

	camDet := Detection{ID: 1, Box2D: &Box2D{100, 100, 200, 200}, Confidence2D: Float(0.9)}
	lidDet := Detection{ID: 7, Box3D: &Box3D{Z: 10, Length: 2, Width: 2, Height: 2}, Confidence3D: Float(0.8)}

	f := Fuse(&camDet, &lidDet, nil)
	require.True(t, f.Matched())
	assert.Equal(t, camDet.Box2D, f.Box2D)
	assert.Equal(t, lidDet.Box3D, f.Box3D)
	assert.Equal(t, 0.9, *f.Confidence2D)
	assert.Equal(t, 0.8, *f.Confidence3D)

	// Mutating the inputs must not leak into the fused record.
	camDet.Box2D.X1 = -1
	assert.Equal(t, 100.0, f.Box2D.X1)

	cam := CameraModel{FocalLength: 525, PrincipalX: 320, PrincipalY: 240}
	only := Fuse(nil, &lidDet, &cam)
	assert.False(t, only.Matched())
	require.NotNil(t, only.Box2D, "lidar-only detection should carry its projection")
	x, y, space := only.Position()
	assert.Equal(t, SpaceImage, space)
	assert.InDelta(t, 320, x, 1e-9)
	assert.InDelta(t, 240, y, 1e-9)

	ground := Fuse(nil, &lidDet, nil)
	_, z, space := ground.Position()
	assert.Equal(t, SpaceGround, space)
	assert.Equal(t, 10.0, z)
}

func TestFusedClone(t *testing.T) {
	t.Parallel()

	camDet := Detection{ID: 1, Box2D: &Box2D{0, 0, 1, 1}, Confidence2D: Float(0.5)}
	f := Fuse(&camDet, nil, nil)
	c := f.Clone()
	c.Box2D.X2 = 99
	*c.Confidence2D = 0.1
	c.Camera.Box2D.Y2 = 42

	assert.Equal(t, 1.0, f.Box2D.X2)
	assert.Equal(t, 0.5, *f.Confidence2D)
	assert.Equal(t, 1.0, f.Camera.Box2D.Y2)
}

func TestLidarCoverage(t *testing.T) {
	t.Parallel()

	cov := LidarCoverage{FOV: 120 * math.Pi / 180, MaxRange: 100}
	at := func(x, z float64) Box3D { return Box3D{X: x, Z: z, Length: 4, Width: 2, Height: 1.5} }

	assert.True(t, cov.Covers(at(0, 10)))
	assert.True(t, cov.Covers(at(-10, 10)), "45° off axis")
	assert.False(t, cov.Covers(at(10, 1)), "84° off axis")
	assert.False(t, cov.Covers(at(0, -5)), "behind the sensor")
	assert.False(t, cov.Covers(at(0, 101)))
	assert.True(t, LidarCoverage{}.Covers(at(0, -500)), "zero coverage is unlimited")

	d := Detection{ID: 3, Box3D: &Box3D{X: 0, Z: 150, Length: 1, Width: 1, Height: 1}}
	err := cov.Check(d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeometry))
	var gerr *GeometryError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, SensorLidar, gerr.Sensor)
	assert.Equal(t, int64(3), gerr.ID)

	assert.NoError(t, cov.Check(Detection{ID: 4, Box2D: &Box2D{X2: 1, Y2: 1}}), "no cuboid")
}
