// Package associate fuses one frame's camera detections with its lidar
// detections.
//
// A gated cost matrix (camera rows × lidar columns) is solved with the
// optimal assignment in package assign. Every valid input detection ends up
// in exactly one FusedDetection: matched pairs, then camera-only entries in
// camera order, then lidar-only entries in lidar order. Detections with
// malformed geometry are reported and left out.
package associate
