package replay

import (
	"math"
	"math/rand"

	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/pipeline"
)

// SyntheticGenerator produces frames of objects moving in straight lines
// in front of a pinhole camera. Lidar sees each object as a cuboid in
// camera coordinates (z forward, y down); the camera sees the projected
// box plus pixel noise. Either sensor may drop an object in a frame, and
// the camera may report clutter that has no lidar counterpart.
type SyntheticGenerator struct {
	Camera detection.CameraModel
	Lidar  detection.LidarCoverage // objects outside it get no lidar detection

	Objects       int     // objects in the scene
	PixelNoise    float64 // std dev of camera box corner noise, pixels
	CameraDropout float64 // per-object probability of a missed camera detection
	LidarDropout  float64 // per-object probability of a missed lidar detection
	ClutterRate   float64 // expected camera false positives per frame
	SpeedPerFrame float64 // max ground speed, metres per frame
	MinDepth      float64 // objects respawn once closer than this
	MaxDepth      float64
	LateralExtent float64 // |x| bound for spawn positions, metres
	CameraHeightM float64 // object centre y below the camera

	objects []object
	rng     *rand.Rand
	frame   uint64
}

type object struct {
	x, z, vx, vz float64
	l, w, h, yaw float64
}

// NewSyntheticGenerator returns a generator with a deterministic seed.
func NewSyntheticGenerator(cam detection.CameraModel, seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		Camera:        cam,
		Lidar:         pipeline.DefaultConfig().Fusion.Lidar,
		Objects:       4,
		PixelNoise:    2,
		CameraDropout: 0.05,
		LidarDropout:  0.05,
		ClutterRate:   0.2,
		SpeedPerFrame: 0.3,
		MinDepth:      4,
		MaxDepth:      40,
		LateralExtent: 8,
		CameraHeightM: 0.8,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (g *SyntheticGenerator) spawn() object {
	return object{
		x:   (g.rng.Float64()*2 - 1) * g.LateralExtent,
		z:   g.MinDepth + 6 + g.rng.Float64()*(g.MaxDepth-g.MinDepth-6),
		vx:  (g.rng.Float64()*2 - 1) * g.SpeedPerFrame * 0.3,
		vz:  (g.rng.Float64()*2 - 1) * g.SpeedPerFrame,
		l:   3.5 + g.rng.Float64()*1.5,
		w:   1.6 + g.rng.Float64()*0.4,
		h:   1.4 + g.rng.Float64()*0.4,
		yaw: g.rng.Float64() * math.Pi,
	}
}

// NextFrame advances every object by one step and returns the frame.
func (g *SyntheticGenerator) NextFrame() pipeline.Frame {
	g.frame++
	for len(g.objects) < g.Objects {
		g.objects = append(g.objects, g.spawn())
	}

	var f pipeline.Frame
	var camID, lidID int64
	for i := range g.objects {
		o := &g.objects[i]
		if g.frame > 1 {
			o.x += o.vx
			o.z += o.vz
		}
		if o.z < g.MinDepth || o.z > g.MaxDepth || math.Abs(o.x) > 2*g.LateralExtent {
			*o = g.spawn()
		}

		box := detection.Box3D{X: o.x, Y: g.CameraHeightM, Z: o.z, Length: o.l, Width: o.w, Height: o.h, Yaw: o.yaw}
		if g.rng.Float64() >= g.LidarDropout && g.Lidar.Covers(box) {
			lidID++
			f.Lidar = append(f.Lidar, detection.Detection{
				ID:           lidID,
				Box3D:        &box,
				Confidence3D: detection.Float(round3(0.6 + 0.4*g.rng.Float64())),
			})
		}
		if g.rng.Float64() >= g.CameraDropout {
			if b, ok := g.Camera.Project(box); ok {
				b = g.jitter(b)
				if b.Area() > 0 {
					camID++
					f.Camera = append(f.Camera, detection.Detection{
						ID:           camID,
						Box2D:        &b,
						Confidence2D: detection.Float(round3(0.5 + 0.5*g.rng.Float64())),
					})
				}
			}
		}
	}

	for n := g.poisson(g.ClutterRate); n > 0; n-- {
		camID++
		f.Camera = append(f.Camera, detection.Detection{
			ID:           camID,
			Box2D:        g.clutterBox(),
			Confidence2D: detection.Float(round3(0.3 * g.rng.Float64())),
		})
	}
	return f
}

// Generate returns a file holding n consecutive frames.
func (g *SyntheticGenerator) Generate(n int) *File {
	f := NewFile()
	f.Frames = make([]pipeline.Frame, 0, n)
	for i := 0; i < n; i++ {
		f.Frames = append(f.Frames, g.NextFrame())
	}
	return f
}

func (g *SyntheticGenerator) jitter(b detection.Box2D) detection.Box2D {
	n := func() float64 { return g.rng.NormFloat64() * g.PixelNoise }
	b.X1 += n()
	b.Y1 += n()
	b.X2 += n()
	b.Y2 += n()
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y2 < b.Y1 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

func (g *SyntheticGenerator) clutterBox() *detection.Box2D {
	w, h := float64(g.Camera.Width), float64(g.Camera.Height)
	if w <= 0 {
		w = 640
	}
	if h <= 0 {
		h = 480
	}
	bw := 10 + g.rng.Float64()*40
	bh := 10 + g.rng.Float64()*40
	x := g.rng.Float64() * (w - bw)
	y := g.rng.Float64() * (h - bh)
	return &detection.Box2D{X1: x, Y1: y, X2: x + bw, Y2: y + bh}
}

// poisson draws from a Poisson distribution with the given mean (Knuth).
func (g *SyntheticGenerator) poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	limit := math.Exp(-mean)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
