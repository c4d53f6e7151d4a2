package tracks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
)

// fusedAt returns a camera-only fused detection whose box is centred on
// (x, y).
func fusedAt(id int64, x, y float64) detection.FusedDetection {
	d := detection.Detection{
		ID:           id,
		Box2D:        &detection.Box2D{X1: x - 5, Y1: y - 5, X2: x + 5, Y2: y + 5},
		Confidence2D: detection.Float(0.9),
	}
	return detection.Fuse(&d, nil, nil)
}

// groundAt returns a lidar-only fused detection without an image box.
func groundAt(id int64, x, z float64) detection.FusedDetection {
	d := detection.Detection{
		ID:    id,
		Box3D: &detection.Box3D{X: x, Z: z, Length: 4, Width: 2, Height: 1.5},
	}
	return detection.Fuse(nil, &d, nil)
}

// pairedAt returns a camera/lidar fused detection: an image box centred on
// (x, y) and a cuboid at ground position (gx, gz).
func pairedAt(id int64, x, y, gx, gz float64) detection.FusedDetection {
	c := detection.Detection{
		ID:    id,
		Box2D: &detection.Box2D{X1: x - 5, Y1: y - 5, X2: x + 5, Y2: y + 5},
	}
	l := detection.Detection{
		ID:    id,
		Box3D: &detection.Box3D{X: gx, Z: gz, Length: 4, Width: 2, Height: 1.5},
	}
	return detection.Fuse(&c, &l, nil)
}

func testConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.GatingDistance = 20
	cfg.GroundGatingDistance = 2
	cfg.PromoteThreshold = 10
	cfg.MaxAge = 3
	return cfg
}

func newTestManager(t *testing.T, cfg ManagerConfig) *TrackManager {
	t.Helper()
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func mustUpdate(t *testing.T, m *TrackManager, fused ...detection.FusedDetection) UpdateResult {
	t.Helper()
	res, err := m.Update(context.Background(), fused)
	require.NoError(t, err)
	return res
}
