// Package pipeline orchestrates camera/lidar fusion and track management.
//
// EagerFusionTracker runs one frame to completion per Update: the
// FusionAssociator fuses the frame's camera and lidar detections, then the
// TrackManager associates the fused detections to live tracks. It owns no
// domain logic of its own; it delegates to the associate and tracks
// packages and aggregates their per-frame results.
package pipeline
