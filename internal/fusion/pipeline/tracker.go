package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/associate"
	"github.com/banshee-data/eagerfusion/internal/fusion/debug"
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
)

// Config bundles the fusion and tracking configuration.
type Config struct {
	Fusion   associate.Config
	Tracking tracks.ManagerConfig
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning derives both component configs from one tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Fusion:   associate.ConfigFromTuning(cfg),
		Tracking: tracks.ManagerConfigFromTuning(cfg),
	}
}

// Validate checks both component configs.
func (c Config) Validate() error {
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	return c.Tracking.Validate()
}

// Frame is one synchronised pair of sensor detection lists.
type Frame struct {
	Camera []detection.Detection `json:"camera"`
	Lidar  []detection.Detection `json:"lidar"`
}

// FrameResult summarises one Update.
type FrameResult struct {
	Frame     uint64                     // sequence number, from 1
	Fused     []detection.FusedDetection // fusion output handed to the track manager
	Matched   int                        // camera/lidar pairs fused this frame
	Tracked   int                        // fused detections appended to existing tracks
	Created   []uint64
	Promoted  []uint64
	Retired   []uint64
	Discarded int     // fused detections dropped by the max_tracks cap
	Errors    []error // non-fatal, one *detection.GeometryError per dropped detection

	// Debug is the frame's association record when a collector is enabled.
	Debug *debug.DebugFrame
}

// EagerFusionTracker is the top-level orchestrator. Update calls are
// serialised; GetTracks may be called from any goroutine.
type EagerFusionTracker struct {
	cfg     Config
	fusion  *associate.FusionAssociator
	manager *tracks.TrackManager
	debug   *debug.DebugCollector

	mu sync.Mutex // serialises Update, Reset and SetDebugCollector
}

// New validates cfg and builds the associator and track manager. It
// returns a *config.ConfigurationError before any frame is processed.
func New(cfg Config) (*EagerFusionTracker, error) {
	fusion, err := associate.New(cfg.Fusion)
	if err != nil {
		return nil, err
	}
	manager, err := tracks.NewManager(cfg.Tracking)
	if err != nil {
		return nil, err
	}
	return &EagerFusionTracker{
		cfg:     cfg,
		fusion:  fusion,
		manager: manager,
	}, nil
}

// Config returns the tracker configuration.
func (t *EagerFusionTracker) Config() Config { return t.cfg }

// SetDebugCollector installs a collector shared by both association
// stages. Pass nil to remove it.
func (t *EagerFusionTracker) SetDebugCollector(dc *debug.DebugCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = dc
	if dc == nil {
		t.fusion.SetDebugCollector(nil)
		t.manager.SetDebugCollector(nil)
		return
	}
	t.fusion.SetDebugCollector(dc)
	t.manager.SetDebugCollector(dc)
}

// Update processes one frame to completion. Malformed detections are
// dropped and reported in FrameResult.Errors. A returned error is fatal
// for the frame and leaves the track set exactly as it was.
func (t *EagerFusionTracker) Update(ctx context.Context, f Frame) (FrameResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	frame := t.manager.Stats().Frames + 1
	t.debug.BeginFrame(frame)

	fused, err := t.fusion.Associate(ctx, f.Camera, f.Lidar)
	if err != nil {
		t.abort()
		opsf("frame %d rejected in fusion: %v", frame, err)
		return FrameResult{}, fmt.Errorf("frame %d: %w", frame, err)
	}
	for _, e := range fused.Errors {
		opsf("frame %d: %v", frame, e)
	}
	fusedAt := time.Now()

	upd, err := t.manager.Update(ctx, fused.Fused)
	if err != nil {
		t.abort()
		opsf("frame %d rejected in tracking: %v", frame, err)
		return FrameResult{}, fmt.Errorf("frame %d: %w", frame, err)
	}

	res := FrameResult{
		Frame:     upd.Frame,
		Fused:     fused.Fused,
		Matched:   fused.Matched,
		Tracked:   upd.Matched,
		Created:   upd.Created,
		Promoted:  upd.Promoted,
		Retired:   upd.Retired,
		Discarded: upd.Discarded,
		Errors:    fused.Errors,
	}
	if t.debug.IsEnabled() {
		res.Debug = t.debug.Emit()
	}

	diagf("frame %d: camera=%d lidar=%d fused=%d (pairs=%d) tracked=%d created=%d promoted=%d retired=%d errors=%d",
		res.Frame, len(f.Camera), len(f.Lidar), len(res.Fused), res.Matched,
		res.Tracked, len(res.Created), len(res.Promoted), len(res.Retired), len(res.Errors))
	tracef("frame %d: fusion %s, tracking %s", res.Frame, fusedAt.Sub(start), time.Since(fusedAt))
	return res, nil
}

func (t *EagerFusionTracker) abort() {
	if t.debug != nil {
		t.debug.Reset()
	}
}

// GetTracks returns a snapshot of every live track, ordered by TrackID.
func (t *EagerFusionTracker) GetTracks() []tracks.Track {
	return t.manager.GetTracks()
}

// GetActiveTracks returns only the promoted live tracks.
func (t *EagerFusionTracker) GetActiveTracks() []tracks.Track {
	all := t.manager.GetTracks()
	out := all[:0]
	for _, tr := range all {
		if tr.State == tracks.TrackActive {
			out = append(out, tr)
		}
	}
	return out
}

// GetTrackCount returns the number of live tracks by state.
func (t *EagerFusionTracker) GetTrackCount() (total, tentative, active int) {
	return t.manager.GetTrackCount()
}

// Stats returns cumulative lifecycle counters.
func (t *EagerFusionTracker) Stats() tracks.Stats {
	return t.manager.Stats()
}

// Reset drops all live tracks. Track IDs continue from where they were.
func (t *EagerFusionTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manager.Reset()
	opsf("tracker reset")
}
