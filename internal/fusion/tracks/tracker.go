package tracks

import (
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
)

// TrackState represents the lifecycle state of a tracker.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // New track, needs confirmation
	TrackActive    TrackState = "active"    // Confirmed by promote_threshold hits
	TrackRetired   TrackState = "retired"   // Terminal; removed from the live set
)

// Tracker holds one object's identity and detection history. Readers use
// the exported accessors; all mutation goes through TrackManager.
type Tracker struct {
	id      uint64
	state   TrackState
	history []detection.FusedDetection
	hits    int // successful matches, including the creating detection
	misses  int // consecutive frames without a match

	firstFrame uint64
	lastFrame  uint64 // last frame with a match
}

func newTracker(id uint64, det detection.FusedDetection, frame uint64) *Tracker {
	return &Tracker{
		id:         id,
		state:      TrackTentative,
		history:    []detection.FusedDetection{det.Clone()},
		hits:       1,
		firstFrame: frame,
		lastFrame:  frame,
	}
}

// ID returns the immutable track identifier.
func (t *Tracker) ID() uint64 { return t.id }

// State returns the lifecycle state.
func (t *Tracker) State() TrackState { return t.state }

// Hits returns the number of successful matches.
func (t *Tracker) Hits() int { return t.hits }

// Misses returns the number of consecutive frames without a match.
func (t *Tracker) Misses() int { return t.misses }

// IsActive reports whether the tracker has been promoted. Liveness is a
// separate matter: tentative trackers are live and can still be retired.
func (t *Tracker) IsActive() bool { return t.state == TrackActive }

// Len returns the history length.
func (t *Tracker) Len() int { return len(t.history) }

// FirstFrame returns the frame sequence number the tracker was created on.
func (t *Tracker) FirstFrame() uint64 { return t.firstFrame }

// LastFrame returns the last frame sequence number with a match.
func (t *Tracker) LastFrame() uint64 { return t.lastFrame }

// Last returns a copy of the most recent history entry.
func (t *Tracker) Last() detection.FusedDetection {
	return t.history[len(t.history)-1].Clone()
}

// History returns a deep copy of the history in chronological order.
func (t *Tracker) History() []detection.FusedDetection {
	out := make([]detection.FusedDetection, len(t.history))
	for i, d := range t.history {
		out[i] = d.Clone()
	}
	return out
}

// reference is the association view of the last entry.
func (t *Tracker) reference() reference {
	return referenceOf(t.history[len(t.history)-1])
}

// update appends a matched detection. Prior entries are never touched.
func (t *Tracker) update(det detection.FusedDetection, frame uint64) {
	t.history = append(t.history, det.Clone())
	t.hits++
	t.misses = 0
	t.lastFrame = frame
}

// markMissed counts a frame without a match. Hits and history are
// unchanged.
func (t *Tracker) markMissed() {
	t.misses++
}

// promote moves a tentative tracker to active once it has enough hits.
// It reports whether a transition happened.
func (t *Tracker) promote(threshold int) bool {
	if t.state == TrackTentative && t.hits >= threshold {
		t.state = TrackActive
		return true
	}
	return false
}

// retire moves the tracker to the terminal state once misses exceed
// maxAge. It reports whether a transition happened.
func (t *Tracker) retire(maxAge int) bool {
	if t.state != TrackRetired && t.misses > maxAge {
		t.state = TrackRetired
		return true
	}
	return false
}

// Track is an immutable view of a live tracker returned by
// TrackManager.GetTracks.
type Track struct {
	TrackID    uint64                     `json:"track_id"`
	State      TrackState                 `json:"state"`
	Hits       int                        `json:"hits"`
	Misses     int                        `json:"misses"`
	FirstFrame uint64                     `json:"first_frame"`
	LastFrame  uint64                     `json:"last_frame"`
	History    []detection.FusedDetection `json:"history"`
}

// Latest returns the most recent history entry.
func (t Track) Latest() detection.FusedDetection {
	return t.History[len(t.History)-1]
}

func (t *Tracker) view() Track {
	return Track{
		TrackID:    t.id,
		State:      t.state,
		Hits:       t.hits,
		Misses:     t.misses,
		FirstFrame: t.firstFrame,
		LastFrame:  t.lastFrame,
		History:    t.History(),
	}
}
