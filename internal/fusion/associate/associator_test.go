package associate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/assign"
	"github.com/banshee-data/eagerfusion/internal/fusion/debug"
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
)

func box(x1, y1, x2, y2 float64) *detection.Box2D {
	return &detection.Box2D{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func cam(id int64, b *detection.Box2D) detection.Detection {
	return detection.Detection{ID: id, Box2D: b, Confidence2D: detection.Float(0.9)}
}

func lid(id int64, b *detection.Box2D) detection.Detection {
	return detection.Detection{ID: id, Box2D: b, Confidence3D: detection.Float(0.9)}
}

func newAssociator(t *testing.T, gate float64) *FusionAssociator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GatingDistance = gate
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// sourceCounts tallies how often each camera and lidar ID appears.
func sourceCounts(fused []detection.FusedDetection) (map[int64]int, map[int64]int) {
	c, l := map[int64]int{}, map[int64]int{}
	for _, f := range fused {
		if f.Camera != nil {
			c[f.Camera.ID]++
		}
		if f.Lidar != nil {
			l[f.Lidar.ID]++
		}
	}
	return c, l
}

func TestAssociate_SinglePair(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 50)

	res, err := a.Associate(context.Background(),
		[]detection.Detection{cam(1, box(100, 100, 200, 200))},
		[]detection.Detection{lid(1, box(101, 101, 201, 201))},
	)
	require.NoError(t, err)
	require.Len(t, res.Fused, 1)
	f := res.Fused[0]
	assert.True(t, f.Matched())
	assert.Equal(t, int64(1), f.Camera.ID)
	assert.Equal(t, int64(1), f.Lidar.ID)
	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, res.Errors)
}

func TestAssociate_Coverage(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 1e6)

	camera := []detection.Detection{
		cam(1, box(0, 0, 10, 10)),
		cam(2, box(100, 0, 110, 10)),
		cam(3, box(200, 0, 210, 10)),
	}
	lidar := []detection.Detection{
		lid(1, box(1, 0, 11, 10)),
		lid(2, box(201, 0, 211, 10)),
	}
	res, err := a.Associate(context.Background(), camera, lidar)
	require.NoError(t, err)

	assert.Len(t, res.Fused, 3)
	assert.Equal(t, 2, res.Matched)
	c, l := sourceCounts(res.Fused)
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, c)
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, l)

	// Matched pairs and camera-only entries keep camera order.
	assert.Equal(t, int64(1), res.Fused[0].Lidar.ID)
	assert.Nil(t, res.Fused[1].Lidar)
	assert.Equal(t, int64(2), res.Fused[2].Lidar.ID)
}

func TestAssociate_NoMatchesWorstCase(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 5)

	camera := []detection.Detection{cam(1, box(0, 0, 10, 10)), cam(2, box(500, 0, 510, 10))}
	lidar := []detection.Detection{lid(1, box(100, 100, 110, 110)), lid(2, box(300, 300, 310, 310)), lid(3, box(400, 0, 410, 10))}

	res, err := a.Associate(context.Background(), camera, lidar)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Len(t, res.Fused, 5)
	for _, f := range res.Fused[:2] {
		assert.NotNil(t, f.Camera)
		assert.Nil(t, f.Lidar)
	}
	for _, f := range res.Fused[2:] {
		assert.Nil(t, f.Camera)
		assert.NotNil(t, f.Lidar)
	}
}

func TestAssociate_GlobalOptimumBeatsGreedy(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 30)

	// Camera 1 is nearest lidar 1 (d=5) but can also reach lidar 2 (d=10).
	// Camera 2 can only reach lidar 1 (d=20). Greedy would pair 1-1 and
	// strand camera 2; the optimal assignment pairs 1-2 and 2-1.
	camera := []detection.Detection{
		cam(1, box(0, 0, 10, 10)),
		cam(2, box(25, 0, 35, 10)),
	}
	lidar := []detection.Detection{
		lid(1, box(5, 0, 15, 10)),
		lid(2, box(-10, 0, 0, 10)),
	}
	res, err := a.Associate(context.Background(), camera, lidar)
	require.NoError(t, err)
	require.Equal(t, 2, res.Matched)
	assert.Equal(t, int64(2), res.Fused[0].Lidar.ID)
	assert.Equal(t, int64(1), res.Fused[1].Lidar.ID)
}

func TestAssociate_GatingRejectsCheapestPair(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 10)

	// The only pair is 20px apart: cheapest available, but over the gate.
	res, err := a.Associate(context.Background(),
		[]detection.Detection{cam(1, box(0, 0, 10, 10))},
		[]detection.Detection{lid(1, box(20, 0, 30, 10))},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Len(t, res.Fused, 2)
}

func TestAssociate_EmptyInputs(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 50)

	res, err := a.Associate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fused)

	res, err = a.Associate(context.Background(), []detection.Detection{cam(1, box(0, 0, 1, 1))}, nil)
	require.NoError(t, err)
	require.Len(t, res.Fused, 1)
	assert.Nil(t, res.Fused[0].Lidar, "empty lidar list yields camera-only detections")

	res, err = a.Associate(context.Background(), nil, []detection.Detection{lid(4, box(0, 0, 1, 1))})
	require.NoError(t, err)
	require.Len(t, res.Fused, 1)
	assert.Nil(t, res.Fused[0].Camera)
}

func TestAssociate_GeometryErrorsAreDropped(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 50)

	camera := []detection.Detection{
		cam(1, box(math.NaN(), 0, 10, 10)),
		cam(2, box(100, 100, 200, 200)),
	}
	lidar := []detection.Detection{
		lid(1, box(50, 50, 40, 40)), // inverted
		lid(2, box(101, 101, 201, 201)),
	}
	res, err := a.Associate(context.Background(), camera, lidar)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.True(t, errors.Is(e, detection.ErrGeometry))
	}
	require.Len(t, res.Fused, 1)
	assert.Equal(t, int64(2), res.Fused[0].Camera.ID)
	assert.Equal(t, int64(2), res.Fused[0].Lidar.ID)
}

func TestAssociate_ProjectsLidarCuboids(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GatingDistance = 20
	cfg.Lidar = detection.LidarCoverage{} // keep the cuboid behind the camera
	a, err := New(cfg)
	require.NoError(t, err)

	// Cuboid at the optical axis projects around the principal point.
	cuboid := detection.Detection{ID: 9, Box3D: &detection.Box3D{Z: 10, Length: 2, Width: 2, Height: 2}}
	behind := detection.Detection{ID: 10, Box3D: &detection.Box3D{Z: -10, Length: 2, Width: 2, Height: 2}}

	res, err := a.Associate(context.Background(),
		[]detection.Detection{cam(1, box(270, 190, 370, 290))},
		[]detection.Detection{behind, cuboid},
	)
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)
	assert.Equal(t, int64(9), res.Fused[0].Lidar.ID)
	require.NotNil(t, res.Fused[0].Box3D)
	assert.Equal(t, 10.0, res.Fused[0].Box3D.Z)
	assert.Len(t, res.Fused, 2)
}

func TestAssociate_LidarCoverage(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 20)
	cuboid := func(id int64, x, z float64) detection.Detection {
		return detection.Detection{ID: id, Box3D: &detection.Box3D{X: x, Z: z, Length: 2, Width: 2, Height: 2}}
	}

	res, err := a.Associate(context.Background(),
		[]detection.Detection{cam(1, box(270, 190, 370, 290))},
		[]detection.Detection{
			cuboid(1, 0, 10),   // on axis
			cuboid(2, 10, 1),   // bearing ~84°, outside 120° FOV
			cuboid(3, 0, 150),  // beyond 100 m
			cuboid(4, -10, 10), // bearing 45°, inside
		},
	)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.ErrorIs(t, e, detection.ErrGeometry)
	}
	var gerr *detection.GeometryError
	require.True(t, errors.As(res.Errors[0], &gerr))
	assert.Equal(t, int64(2), gerr.ID)
	assert.Contains(t, gerr.Reason, "outside lidar coverage")

	_, lidarSeen := sourceCounts(res.Fused)
	assert.Equal(t, map[int64]int{1: 1, 4: 1}, lidarSeen)
	assert.Equal(t, 1, res.Matched)
}

func TestAssociate_IoUCost(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Cost = config.CostIoU
	cfg.MaxIoUCost = 0.5
	a, err := New(cfg)
	require.NoError(t, err)

	camera := []detection.Detection{cam(1, box(0, 0, 10, 10))}
	lidar := []detection.Detection{
		lid(1, box(5, 0, 15, 10)), // IoU 1/3, cost 2/3 > 0.5
		lid(2, box(1, 0, 11, 10)), // IoU 9/11, cost ~0.18
	}
	res, err := a.Associate(context.Background(), camera, lidar)
	require.NoError(t, err)
	require.Equal(t, 1, res.Matched)
	assert.Equal(t, int64(2), res.Fused[0].Lidar.ID)
}

func TestAssociate_DebugCollector(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 50)
	dc := debug.NewDebugCollector()
	dc.SetEnabled(true)
	dc.BeginFrame(1)
	a.SetDebugCollector(dc)

	_, err := a.Associate(context.Background(),
		[]detection.Detection{cam(1, box(0, 0, 10, 10)), cam(2, box(100, 0, 110, 10))},
		[]detection.Detection{lid(7, box(1, 0, 11, 10))},
	)
	require.NoError(t, err)

	frame := dc.Emit()
	require.NotNil(t, frame)
	assert.Len(t, frame.AssociationCandidates, 2)
	accepted := frame.Accepted(debug.StageFusion)
	require.Len(t, accepted, 1)
	assert.Equal(t, int64(1), accepted[0].RowID)
	assert.Equal(t, int64(7), accepted[0].ColID)
}

func TestAssociate_CancelledContext(t *testing.T) {
	t.Parallel()
	a := newAssociator(t, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Associate(ctx,
		[]detection.Detection{cam(1, box(0, 0, 10, 10))},
		[]detection.Detection{lid(1, box(0, 0, 10, 10))},
	)
	assert.ErrorIs(t, err, assign.ErrDeadlineExceeded)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"negative gate":          func(c *Config) { c.GatingDistance = -1 },
		"infinite gate":          func(c *Config) { c.GatingDistance = math.Inf(1) },
		"NaN gate":               func(c *Config) { c.GatingDistance = math.NaN() },
		"negative gate in iou":   func(c *Config) { c.Cost = config.CostIoU; c.GatingDistance = -1 },
		"bad iou gate in center": func(c *Config) { c.Cost = config.CostCenter; c.MaxIoUCost = -0.1 },
		"unknown cost":           func(c *Config) { c.Cost = "greedy" },
		"iou out of range":       func(c *Config) { c.Cost = config.CostIoU; c.MaxIoUCost = 2 },
		"infinite focal length":  func(c *Config) { c.Camera.FocalLength = math.Inf(1) },
		"negative timeout":       func(c *Config) { c.SolveTimeout = -1 },
		"lidar fov over 2π":      func(c *Config) { c.Lidar.FOV = 7 },
		"negative lidar range":   func(c *Config) { c.Lidar.MaxRange = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}
