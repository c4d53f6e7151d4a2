package associate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/assign"
	"github.com/banshee-data/eagerfusion/internal/fusion/debug"
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"gonum.org/v1/gonum/mat"
)

// Config holds the camera × lidar gating parameters.
type Config struct {
	Cost           string  // config.CostCenter or config.CostIoU
	GatingDistance float64 // max centre distance in pixels (centre cost)
	MaxIoUCost     float64 // max 1-IoU (iou cost)

	// Camera projects lidar cuboids that carry no 2D box. Nil disables
	// projection; such lidar detections can then only stay unmatched.
	Camera *detection.CameraModel

	// Lidar drops lidar cuboids outside the sensor's field of view or
	// range, reporting them like malformed geometry.
	Lidar detection.LidarCoverage

	// SolveTimeout bounds the assignment solve; zero means unbounded.
	SolveTimeout time.Duration
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning derives the associator config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Cost:           cfg.GetFusionCost(),
		GatingDistance: cfg.GetFusionGatingDistance(),
		MaxIoUCost:     cfg.GetFusionMaxIoUCost(),
		Camera: &detection.CameraModel{
			Width:       cfg.GetCameraWidth(),
			Height:      cfg.GetCameraHeight(),
			FocalLength: cfg.GetFocalLength(),
			PrincipalX:  cfg.GetPrincipalPointX(),
			PrincipalY:  cfg.GetPrincipalPointY(),
		},
		Lidar: detection.LidarCoverage{
			FOV:      cfg.GetLidarFOV() * math.Pi / 180,
			MaxRange: cfg.GetLidarMaxRange(),
		},
		SolveTimeout: cfg.GetSolveTimeout(),
	}
}

// Validate returns a *config.ConfigurationError for unusable values.
func (c Config) Validate() error {
	if c.Cost != config.CostCenter && c.Cost != config.CostIoU {
		return config.Invalidf("fusion_cost", "must be %q or %q, got %q", config.CostCenter, config.CostIoU, c.Cost)
	}
	if !finite(c.GatingDistance) || c.GatingDistance < 0 {
		return config.Invalidf("fusion_gating_distance", "must be finite and non-negative, got %g", c.GatingDistance)
	}
	if !finite(c.MaxIoUCost) || c.MaxIoUCost < 0 || c.MaxIoUCost > 1 {
		return config.Invalidf("fusion_max_iou_cost", "must be between 0 and 1, got %g", c.MaxIoUCost)
	}
	if c.Camera != nil && (!finite(c.Camera.FocalLength) || c.Camera.FocalLength < 0) {
		return config.Invalidf("focal_length", "must be finite and non-negative, got %g", c.Camera.FocalLength)
	}
	if !finite(c.Lidar.FOV) || c.Lidar.FOV < 0 || c.Lidar.FOV > 2*math.Pi+1e-9 {
		return config.Invalidf("lidar_fov", "must be between 0 and 2π radians, got %g", c.Lidar.FOV)
	}
	if !finite(c.Lidar.MaxRange) || c.Lidar.MaxRange < 0 {
		return config.Invalidf("lidar_max_range", "must be finite and non-negative, got %g", c.Lidar.MaxRange)
	}
	if c.SolveTimeout < 0 {
		return config.Invalidf("solve_timeout", "must be non-negative, got %s", c.SolveTimeout)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// DebugCollector receives every evaluated camera/lidar pair.
type DebugCollector interface {
	IsEnabled() bool
	RecordAssociation(stage debug.Stage, rowID, colID int64, cost float64, accepted bool)
}

// Result is the outcome of associating one frame.
type Result struct {
	Fused   []detection.FusedDetection
	Matched int     // number of camera/lidar pairs
	Errors  []error // *detection.GeometryError for every dropped detection
}

// FusionAssociator matches camera detections to lidar detections. It holds
// only configuration, so a single instance may be shared.
type FusionAssociator struct {
	cfg   Config
	debug DebugCollector
}

// New validates cfg and returns an associator.
func New(cfg Config) (*FusionAssociator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FusionAssociator{cfg: cfg}, nil
}

// Config returns the associator's configuration.
func (a *FusionAssociator) Config() Config { return a.cfg }

// SetDebugCollector installs an optional collector; nil removes it.
func (a *FusionAssociator) SetDebugCollector(dc DebugCollector) {
	a.debug = dc
}

// Associate fuses one frame. The only returned error is a solver deadline
// or invariant failure; malformed detections are reported in Result.Errors.
func (a *FusionAssociator) Associate(ctx context.Context, camera, lidar []detection.Detection) (Result, error) {
	var res Result

	cams := a.admit(detection.SensorCamera, camera, &res)
	lids := a.admit(detection.SensorLidar, lidar, &res)

	// Image-space box for each lidar detection, nil when unavailable.
	lidBoxes := make([]*detection.Box2D, len(lids))
	for j, l := range lids {
		switch {
		case l.Box2D != nil:
			lidBoxes[j] = l.Box2D
		case l.Box3D != nil && a.cfg.Camera != nil:
			if b, ok := a.cfg.Camera.Project(*l.Box3D); ok {
				lidBoxes[j] = &b
			}
		}
	}

	cost := assign.Build(len(cams), len(lids), func(i, j int) float64 {
		return a.pairCost(*cams[i].Box2D, lidBoxes[j])
	})

	assignment := make([]int, len(cams))
	for i := range assignment {
		assignment[i] = assign.Unassigned
	}
	if cost != nil {
		solveCtx := ctx
		if a.cfg.SolveTimeout > 0 {
			var cancel context.CancelFunc
			solveCtx, cancel = context.WithTimeout(ctx, a.cfg.SolveTimeout)
			defer cancel()
		}
		var err error
		assignment, err = assign.SolveContext(solveCtx, cost)
		if err != nil {
			opsf("fusion solve over %dx%d aborted: %v", len(cams), len(lids), err)
			return Result{}, fmt.Errorf("fusion association: %w", err)
		}
		if err := assign.Verify(assignment, len(lids)); err != nil {
			opsf("fusion solve produced invalid assignment: %v", err)
			return Result{}, fmt.Errorf("fusion association: %w", err)
		}
		a.record(cams, lids, cost, assignment)
	}

	lidarTaken := assign.Columns(assignment, len(lids))
	res.Fused = make([]detection.FusedDetection, 0, len(cams)+len(lids))
	for i := range cams {
		if j := assignment[i]; j != assign.Unassigned {
			res.Fused = append(res.Fused, detection.Fuse(&cams[i], &lids[j], a.cfg.Camera))
			res.Matched++
			continue
		}
		res.Fused = append(res.Fused, detection.Fuse(&cams[i], nil, a.cfg.Camera))
	}
	for j := range lids {
		if lidarTaken[j] == assign.Unassigned {
			res.Fused = append(res.Fused, detection.Fuse(nil, &lids[j], a.cfg.Camera))
		}
	}

	diagf("fused %d camera + %d lidar -> %d (%d matched, %d dropped)",
		len(cams), len(lids), len(res.Fused), res.Matched, len(res.Errors))
	return res, nil
}

// admit returns the valid detections and records an error for the rest.
// Lidar detections must also fall inside the configured coverage.
func (a *FusionAssociator) admit(sensor detection.Sensor, in []detection.Detection, res *Result) []detection.Detection {
	out := make([]detection.Detection, 0, len(in))
	for _, d := range in {
		err := d.Validate(sensor)
		if err == nil && sensor == detection.SensorLidar {
			err = a.cfg.Lidar.Check(d)
		}
		if err != nil {
			opsf("dropping detection: %v", err)
			res.Errors = append(res.Errors, err)
			continue
		}
		out = append(out, d)
	}
	return out
}

// pairCost is the gated cost of a camera box against a lidar image box.
func (a *FusionAssociator) pairCost(cam detection.Box2D, lid *detection.Box2D) float64 {
	if lid == nil {
		return assign.Forbidden
	}
	switch a.cfg.Cost {
	case config.CostIoU:
		c := 1 - detection.IoU(cam, *lid)
		if c > a.cfg.MaxIoUCost {
			return assign.Forbidden
		}
		return c
	default:
		d := detection.CenterDistance(cam, *lid)
		if d > a.cfg.GatingDistance {
			return assign.Forbidden
		}
		return d
	}
}

func (a *FusionAssociator) record(cams, lids []detection.Detection, cost mat.Matrix, assignment []int) {
	enabled := a.debug != nil && a.debug.IsEnabled()
	if !enabled && traceLogger == nil {
		return
	}
	for i := range cams {
		for j := range lids {
			c := cost.At(i, j)
			accepted := assignment[i] == j
			if enabled {
				a.debug.RecordAssociation(debug.StageFusion, cams[i].ID, lids[j].ID, c, accepted)
			}
			tracef("camera %d x lidar %d cost=%g accepted=%t", cams[i].ID, lids[j].ID, c, accepted)
		}
	}
}
