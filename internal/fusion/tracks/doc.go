// Package tracks owns frame-to-frame track lifecycle.
//
// Responsibilities: the per-object Tracker (identity, append-only history
// of fused detections, hit/miss counters, Tentative → Active → Retired
// state) and the TrackManager that associates each frame's fused
// detections to live trackers with the optimal assignment in package
// assign, creates trackers for unmatched detections and retires stale ones.
//
// Track identity is a manager-allocated, monotonically increasing ID. It is
// never derived from sensor detection IDs and never reused.
//
// Dependency rule: tracks may depend on detection and assign, never on
// associate or pipeline.
package tracks
