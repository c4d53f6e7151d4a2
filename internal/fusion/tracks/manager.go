package tracks

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/assign"
	"github.com/banshee-data/eagerfusion/internal/fusion/debug"
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvariant reports an internal inconsistency, such as one detection
// matched to two trackers. The frame is rejected before any mutation.
var ErrInvariant = assign.ErrInvariant

// ManagerConfig holds configuration for the track manager.
type ManagerConfig struct {
	GatingDistance       float64       // max image-space distance (pixels)
	GroundGatingDistance float64       // max ground-plane distance (metres)
	PromoteThreshold     int           // hits for Tentative → Active
	MaxAge               int           // retire once misses exceed this
	MaxTracks            int           // live tracker cap, 0 = unlimited
	SolveTimeout         time.Duration // zero = unbounded
}

// DefaultManagerConfig returns the built-in defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfigFromTuning(config.EmptyTuningConfig())
}

// ManagerConfigFromTuning builds a ManagerConfig from a loaded TuningConfig.
func ManagerConfigFromTuning(cfg *config.TuningConfig) ManagerConfig {
	return ManagerConfig{
		GatingDistance:       cfg.GetTrackGatingDistance(),
		GroundGatingDistance: cfg.GetTrackGroundGatingDistance(),
		PromoteThreshold:     cfg.GetPromoteThreshold(),
		MaxAge:               cfg.GetMaxAge(),
		MaxTracks:            cfg.GetMaxTracks(),
		SolveTimeout:         cfg.GetSolveTimeout(),
	}
}

// Validate returns a *config.ConfigurationError for unusable values.
func (c ManagerConfig) Validate() error {
	if math.IsNaN(c.GatingDistance) || math.IsInf(c.GatingDistance, 0) || c.GatingDistance < 0 {
		return config.Invalidf("track_gating_distance", "must be finite and non-negative, got %g", c.GatingDistance)
	}
	if math.IsNaN(c.GroundGatingDistance) || math.IsInf(c.GroundGatingDistance, 0) || c.GroundGatingDistance < 0 {
		return config.Invalidf("track_ground_gating_distance", "must be finite and non-negative, got %g", c.GroundGatingDistance)
	}
	if c.PromoteThreshold < 1 {
		return config.Invalidf("promote_threshold", "must be at least 1, got %d", c.PromoteThreshold)
	}
	if c.MaxAge < 0 {
		return config.Invalidf("max_age", "must be non-negative, got %d", c.MaxAge)
	}
	if c.MaxTracks < 0 {
		return config.Invalidf("max_tracks", "must be non-negative, got %d", c.MaxTracks)
	}
	if c.SolveTimeout < 0 {
		return config.Invalidf("solve_timeout", "must be non-negative, got %s", c.SolveTimeout)
	}
	return nil
}

// DebugCollector receives every evaluated detection/track pair.
type DebugCollector interface {
	IsEnabled() bool
	RecordAssociation(stage debug.Stage, rowID, colID int64, cost float64, accepted bool)
}

// UpdateResult summarises one Update call.
type UpdateResult struct {
	Frame     uint64   // sequence number assigned to this update, from 1
	Matched   int      // detections appended to existing trackers
	Created   []uint64 // new track IDs
	Promoted  []uint64 // Tentative → Active this frame
	Retired   []uint64 // removed this frame
	Discarded int      // unmatched detections not admitted (MaxTracks)
}

// Stats are cumulative lifecycle counters since construction or Reset.
type Stats struct {
	Frames   uint64 `json:"frames"`
	Created  int    `json:"tracks_created"`
	Promoted int    `json:"tracks_promoted"`
	Retired  int    `json:"tracks_retired"`
}

// FragmentationRatio is the fraction of created tracks that were retired
// without ever being promoted.
func (s Stats) FragmentationRatio(live []Track) float64 {
	if s.Created == 0 {
		return 0
	}
	tentativeLive := 0
	for _, t := range live {
		if t.State == TrackTentative {
			tentativeLive++
		}
	}
	never := s.Created - s.Promoted - tentativeLive
	if never < 0 {
		never = 0
	}
	return float64(never) / float64(s.Created)
}

// TrackManager exclusively owns the track_id → Tracker map. Update calls
// are serialised; GetTracks may run concurrently with them and always
// observes the state after the last completed Update.
type TrackManager struct {
	cfg    ManagerConfig
	tracks map[uint64]*Tracker
	ids    []uint64 // live IDs, ascending
	nextID uint64
	frame  uint64
	stats  Stats

	debug DebugCollector

	mu sync.RWMutex
}

// NewManager validates cfg and returns an empty manager.
func NewManager(cfg ManagerConfig) (*TrackManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TrackManager{
		cfg:    cfg,
		tracks: make(map[uint64]*Tracker),
		nextID: 1,
	}, nil
}

// Config returns the manager configuration.
func (m *TrackManager) Config() ManagerConfig { return m.cfg }

// SetDebugCollector installs an optional collector; nil removes it.
func (m *TrackManager) SetDebugCollector(dc DebugCollector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debug = dc
}

// Reset drops every live tracker. The ID counter keeps counting so IDs
// are never reused.
func (m *TrackManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = make(map[uint64]*Tracker)
	m.ids = nil
	m.frame = 0
	m.stats = Stats{}
}

// Update applies one frame of fused detections as a single batch:
// association is solved against the state left by the previous frame, and
// only then are matches appended, misses counted, stale trackers retired
// and new trackers created. On error nothing is changed.
func (m *TrackManager) Update(ctx context.Context, fused []detection.FusedDetection) (UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame := m.frame + 1
	res := UpdateResult{Frame: frame}

	assignment, err := m.associate(ctx, fused)
	if err != nil {
		return UpdateResult{}, err
	}
	trackHit := assign.Columns(assignment, len(m.ids))

	// Matched pairs.
	for di, col := range assignment {
		if col == assign.Unassigned {
			continue
		}
		t := m.tracks[m.ids[col]]
		t.update(fused[di], frame)
		res.Matched++
		if t.promote(m.cfg.PromoteThreshold) {
			res.Promoted = append(res.Promoted, t.id)
			diagf("frame %d: track %d promoted after %d hits", frame, t.id, t.hits)
		}
	}

	// Unmatched trackers.
	kept := make([]uint64, 0, len(m.ids))
	for col, id := range m.ids {
		t := m.tracks[id]
		if trackHit[col] == assign.Unassigned {
			t.markMissed()
			if t.retire(m.cfg.MaxAge) {
				delete(m.tracks, id)
				res.Retired = append(res.Retired, id)
				diagf("frame %d: track %d retired after %d misses (%d hits, %d history)",
					frame, id, t.misses, t.hits, len(t.history))
				continue
			}
		}
		kept = append(kept, id)
	}
	m.ids = kept

	// Unmatched detections seed new trackers.
	for di, col := range assignment {
		if col != assign.Unassigned {
			continue
		}
		if m.cfg.MaxTracks > 0 && len(m.ids) >= m.cfg.MaxTracks {
			res.Discarded++
			continue
		}
		id := m.nextID
		m.nextID++
		t := newTracker(id, fused[di], frame)
		if t.promote(m.cfg.PromoteThreshold) {
			res.Promoted = append(res.Promoted, id)
		}
		m.tracks[id] = t
		m.ids = append(m.ids, id)
		res.Created = append(res.Created, id)
	}
	if res.Discarded > 0 {
		opsf("frame %d: discarded %d detections, track cap %d reached", frame, res.Discarded, m.cfg.MaxTracks)
	}

	m.frame = frame
	m.stats.Frames++
	m.stats.Created += len(res.Created)
	m.stats.Promoted += len(res.Promoted)
	m.stats.Retired += len(res.Retired)

	diagf("frame %d: %d detections, %d matched, %d created, %d retired, %d live",
		frame, len(fused), res.Matched, len(res.Created), len(res.Retired), len(m.ids))
	return res, nil
}

// associate solves detections (rows) against live trackers (columns in
// m.ids order). It never mutates manager state.
func (m *TrackManager) associate(ctx context.Context, fused []detection.FusedDetection) ([]int, error) {
	assignment := make([]int, len(fused))
	for i := range assignment {
		assignment[i] = assign.Unassigned
	}

	trackRef := make([]reference, len(m.ids))
	for j, id := range m.ids {
		trackRef[j] = m.tracks[id].reference()
	}
	detRef := make([]reference, len(fused))
	for i, f := range fused {
		detRef[i] = referenceOf(f)
	}

	cost := assign.Build(len(fused), len(m.ids), func(i, j int) float64 {
		return m.pairCost(detRef[i], trackRef[j])
	})
	if cost == nil {
		return assignment, nil
	}

	solveCtx := ctx
	if m.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, m.cfg.SolveTimeout)
		defer cancel()
	}
	assignment, err := assign.SolveContext(solveCtx, cost)
	if err != nil {
		opsf("track solve over %dx%d aborted: %v", len(fused), len(m.ids), err)
		return nil, fmt.Errorf("track association: %w", err)
	}
	if err := assign.Verify(assignment, len(m.ids)); err != nil {
		opsf("track solve produced invalid assignment: %v", err)
		return nil, fmt.Errorf("track association: %w", err)
	}
	m.record(cost, assignment)
	return assignment, nil
}

// reference is the association view of one fused detection.
type reference struct {
	x, y  float64
	space detection.Space
	box3D *detection.Box3D
}

func referenceOf(f detection.FusedDetection) reference {
	x, y, s := f.Position()
	return reference{x: x, y: y, space: s, box3D: f.Box3D}
}

// pairCost returns the distance between a detection and a track reference
// divided by the gate that applies, or assign.Forbidden. References in
// different spaces are compared on the ground plane when both carry a
// cuboid, so a track survives its object leaving or entering the image.
func (m *TrackManager) pairCost(d, t reference) float64 {
	var dist, gate float64
	switch {
	case d.space == detection.SpaceNone || t.space == detection.SpaceNone:
		return assign.Forbidden
	case d.space == t.space:
		dist = floats.Distance([]float64{d.x, d.y}, []float64{t.x, t.y}, 2)
		gate = m.cfg.GatingDistance
		if d.space == detection.SpaceGround {
			gate = m.cfg.GroundGatingDistance
		}
	case d.box3D != nil && t.box3D != nil:
		dist = detection.GroundDistance(*d.box3D, *t.box3D)
		gate = m.cfg.GroundGatingDistance
	default:
		return assign.Forbidden
	}
	if dist > gate {
		return assign.Forbidden
	}
	if gate == 0 {
		return 0
	}
	return dist / gate
}

func (m *TrackManager) record(cost mat.Matrix, assignment []int) {
	enabled := m.debug != nil && m.debug.IsEnabled()
	if !enabled && traceLogger == nil {
		return
	}
	for i := range assignment {
		for j, id := range m.ids {
			c := cost.At(i, j)
			accepted := assignment[i] == j
			if enabled {
				m.debug.RecordAssociation(debug.StageTracking, int64(i), int64(id), c, accepted)
			}
			tracef("detection %d x track %d cost=%g accepted=%t", i, id, c, accepted)
		}
	}
}

// GetTracks returns a deep copy of every live track, ordered by TrackID.
// Callers may modify the result freely.
func (m *TrackManager) GetTracks() []Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Track, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.tracks[id].view())
	}
	return out
}

// GetTrack returns a copy of one live track.
func (m *TrackManager) GetTrack(id uint64) (Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tracks[id]
	if !ok {
		return Track{}, false
	}
	return t.view(), true
}

// GetTrackCount returns the number of live trackers by state.
func (m *TrackManager) GetTrackCount() (total, tentative, active int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tracks {
		total++
		switch t.state {
		case TrackTentative:
			tentative++
		case TrackActive:
			active++
		}
	}
	return total, tentative, active
}

// Stats returns the cumulative lifecycle counters.
func (m *TrackManager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
