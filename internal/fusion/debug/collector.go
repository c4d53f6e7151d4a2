// Package debug provides instrumentation for the fusion and tracking
// association stages. The DebugCollector captures every evaluated pair
// with its cost and whether the solver accepted it, for visualisation and
// gating-threshold tuning.
package debug

// Stage names the association step a record came from.
type Stage string

const (
	StageFusion   Stage = "fusion"   // camera row × lidar column
	StageTracking Stage = "tracking" // fused-detection row × track column
)

// Typical scene: ~10 camera × ~10 lidar pairs plus ~10 × ~10 track pairs.
const defaultAssociationCapacity = 256

// DebugCollector accumulates debug artifacts during a single frame's
// processing. Call BeginFrame, let the pipeline call RecordAssociation,
// then Emit at frame completion.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame.
type DebugFrame struct {
	FrameID uint64

	AssociationCandidates []AssociationRecord
}

// AssociationRecord captures a single row/column pair considered by a
// solver. Cost is +Inf for gated pairs.
type AssociationRecord struct {
	Stage    Stage
	RowID    int64 // camera detection ID or fused-detection index
	ColID    int64 // lidar detection ID or track ID
	Cost     float64
	Accepted bool
}

// NewDebugCollector creates a collector that's initially disabled.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c != nil && c.enabled
}

// BeginFrame initialises collection for a new frame.
func (c *DebugCollector) BeginFrame(frameID uint64) {
	if !c.IsEnabled() {
		return
	}
	c.current = &DebugFrame{
		FrameID:               frameID,
		AssociationCandidates: make([]AssociationRecord, 0, defaultAssociationCapacity),
	}
}

// RecordAssociation captures one evaluated pair.
func (c *DebugCollector) RecordAssociation(stage Stage, rowID, colID int64, cost float64, accepted bool) {
	if !c.IsEnabled() || c.current == nil {
		return
	}
	c.current.AssociationCandidates = append(c.current.AssociationCandidates, AssociationRecord{
		Stage:    stage,
		RowID:    rowID,
		ColID:    colID,
		Cost:     cost,
		Accepted: accepted,
	})
}

// Emit returns the accumulated frame and clears it. Returns nil if
// collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.IsEnabled() || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset drops pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	if c == nil {
		return
	}
	c.current = nil
}

// Accepted returns the accepted records of the given stage.
func (f *DebugFrame) Accepted(stage Stage) []AssociationRecord {
	if f == nil {
		return nil
	}
	var out []AssociationRecord
	for _, r := range f.AssociationCandidates {
		if r.Stage == stage && r.Accepted {
			out = append(out, r)
		}
	}
	return out
}
