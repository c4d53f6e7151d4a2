// Package detection owns the per-frame measurement types of the fusion
// pipeline.
//
// Responsibilities: camera and lidar Detection records, the FusedDetection
// produced by cross-sensor association, box geometry (centres, IoU,
// validation) and the pinhole CameraModel used to project lidar cuboids
// into image space.
//
// Dependency rule: this package depends on nothing else in internal/fusion.
package detection
