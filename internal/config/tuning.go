package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Cost function names accepted by fusion_cost.
const (
	CostCenter = "center"
	CostIoU    = "iou"
)

// ErrConfiguration is the sentinel matched by every *ConfigurationError.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports an invalid threshold or parameter. It is
// returned at construction time, before any frame is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfiguration, e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Invalidf builds a *ConfigurationError for field.
func Invalidf(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TuningConfig is the root configuration for fusion and tracking.
// Fields omitted from JSON stay nil and fall back to the Get* defaults.
type TuningConfig struct {
	// Camera × lidar association
	FusionGatingDistance *float64 `json:"fusion_gating_distance,omitempty"` // pixels, centre cost
	FusionCost           *string  `json:"fusion_cost,omitempty"`            // "center" or "iou"
	FusionMaxIoUCost     *float64 `json:"fusion_max_iou_cost,omitempty"`    // max 1-IoU, iou cost

	// Frame-to-frame association
	TrackGatingDistance       *float64 `json:"track_gating_distance,omitempty"`        // pixels
	TrackGroundGatingDistance *float64 `json:"track_ground_gating_distance,omitempty"` // metres

	// Lifecycle
	PromoteThreshold *int `json:"promote_threshold,omitempty"`
	MaxAge           *int `json:"max_age,omitempty"`
	MaxTracks        *int `json:"max_tracks,omitempty"` // 0 = unlimited

	// Safety valve for the assignment solver, duration string like "50ms"
	SolveTimeout *string `json:"solve_timeout,omitempty"`

	// Pinhole camera used to project lidar cuboids
	CameraWidth     *int     `json:"camera_width,omitempty"`
	CameraHeight    *int     `json:"camera_height,omitempty"`
	FocalLength     *float64 `json:"focal_length,omitempty"`
	PrincipalPointX *float64 `json:"principal_point_x,omitempty"`
	PrincipalPointY *float64 `json:"principal_point_y,omitempty"`

	// Lidar coverage, sensor co-located with the camera; 0 = unlimited
	LidarFOV      *float64 `json:"lidar_fov,omitempty"`       // full horizontal angle, degrees
	LidarMaxRange *float64 `json:"lidar_max_range,omitempty"` // metres
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		FusionGatingDistance:      ptrFloat64(e.GetFusionGatingDistance()),
		FusionCost:                ptrString(e.GetFusionCost()),
		FusionMaxIoUCost:          ptrFloat64(e.GetFusionMaxIoUCost()),
		TrackGatingDistance:       ptrFloat64(e.GetTrackGatingDistance()),
		TrackGroundGatingDistance: ptrFloat64(e.GetTrackGroundGatingDistance()),
		PromoteThreshold:          ptrInt(e.GetPromoteThreshold()),
		MaxAge:                    ptrInt(e.GetMaxAge()),
		MaxTracks:                 ptrInt(e.GetMaxTracks()),
		SolveTimeout:              ptrString(""),
		CameraWidth:               ptrInt(e.GetCameraWidth()),
		CameraHeight:              ptrInt(e.GetCameraHeight()),
		FocalLength:               ptrFloat64(e.GetFocalLength()),
		PrincipalPointX:           ptrFloat64(e.GetPrincipalPointX()),
		PrincipalPointY:           ptrFloat64(e.GetPrincipalPointY()),
		LidarFOV:                  ptrFloat64(e.GetLidarFOV()),
		LidarMaxRange:             ptrFloat64(e.GetLidarMaxRange()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fusion/tracks/
		"../../../../" + DefaultConfigPath, // from internal/fusion/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set value is usable. The returned error is a
// *ConfigurationError.
func (c *TuningConfig) Validate() error {
	if err := nonNegative("fusion_gating_distance", c.FusionGatingDistance); err != nil {
		return err
	}
	if c.FusionCost != nil && *c.FusionCost != CostCenter && *c.FusionCost != CostIoU {
		return Invalidf("fusion_cost", "must be %q or %q, got %q", CostCenter, CostIoU, *c.FusionCost)
	}
	if c.FusionMaxIoUCost != nil {
		v := *c.FusionMaxIoUCost
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Invalidf("fusion_max_iou_cost", "must be between 0 and 1, got %g", v)
		}
	}
	if err := nonNegative("track_gating_distance", c.TrackGatingDistance); err != nil {
		return err
	}
	if err := nonNegative("track_ground_gating_distance", c.TrackGroundGatingDistance); err != nil {
		return err
	}
	if c.PromoteThreshold != nil && *c.PromoteThreshold < 1 {
		return Invalidf("promote_threshold", "must be at least 1, got %d", *c.PromoteThreshold)
	}
	if c.MaxAge != nil && *c.MaxAge < 0 {
		return Invalidf("max_age", "must be non-negative, got %d", *c.MaxAge)
	}
	if c.MaxTracks != nil && *c.MaxTracks < 0 {
		return Invalidf("max_tracks", "must be non-negative, got %d", *c.MaxTracks)
	}
	if c.SolveTimeout != nil && *c.SolveTimeout != "" {
		d, err := time.ParseDuration(*c.SolveTimeout)
		if err != nil {
			return Invalidf("solve_timeout", "%q: %v", *c.SolveTimeout, err)
		}
		if d < 0 {
			return Invalidf("solve_timeout", "must be non-negative, got %s", d)
		}
	}
	if c.CameraWidth != nil && *c.CameraWidth < 0 {
		return Invalidf("camera_width", "must be non-negative, got %d", *c.CameraWidth)
	}
	if c.CameraHeight != nil && *c.CameraHeight < 0 {
		return Invalidf("camera_height", "must be non-negative, got %d", *c.CameraHeight)
	}
	if c.FocalLength != nil {
		if v := *c.FocalLength; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Invalidf("focal_length", "must be finite and non-negative, got %g", v)
		}
	}
	if c.LidarFOV != nil {
		if v := *c.LidarFOV; math.IsNaN(v) || v < 0 || v > 360 {
			return Invalidf("lidar_fov", "must be between 0 and 360 degrees, got %g", v)
		}
	}
	return nonNegative("lidar_max_range", c.LidarMaxRange)
}

func nonNegative(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return Invalidf(field, "must be finite and non-negative, got %g", *v)
	}
	return nil
}

// GetFusionGatingDistance returns the fusion_gating_distance value or the default.
func (c *TuningConfig) GetFusionGatingDistance() float64 {
	if c.FusionGatingDistance == nil {
		return 50.0
	}
	return *c.FusionGatingDistance
}

// GetFusionCost returns the fusion_cost value or the default.
func (c *TuningConfig) GetFusionCost() string {
	if c.FusionCost == nil || *c.FusionCost == "" {
		return CostCenter
	}
	return *c.FusionCost
}

// GetFusionMaxIoUCost returns the fusion_max_iou_cost value or the default.
func (c *TuningConfig) GetFusionMaxIoUCost() float64 {
	if c.FusionMaxIoUCost == nil {
		return 0.9
	}
	return *c.FusionMaxIoUCost
}

// GetTrackGatingDistance returns the track_gating_distance value or the default.
func (c *TuningConfig) GetTrackGatingDistance() float64 {
	if c.TrackGatingDistance == nil {
		return 75.0
	}
	return *c.TrackGatingDistance
}

// GetTrackGroundGatingDistance returns the track_ground_gating_distance value or the default.
func (c *TuningConfig) GetTrackGroundGatingDistance() float64 {
	if c.TrackGroundGatingDistance == nil {
		return 2.0
	}
	return *c.TrackGroundGatingDistance
}

// GetPromoteThreshold returns the promote_threshold value or the default.
func (c *TuningConfig) GetPromoteThreshold() int {
	if c.PromoteThreshold == nil {
		return 10
	}
	return *c.PromoteThreshold
}

// GetMaxAge returns the max_age value or the default.
func (c *TuningConfig) GetMaxAge() int {
	if c.MaxAge == nil {
		return 3
	}
	return *c.MaxAge
}

// GetMaxTracks returns the max_tracks value or the default (unlimited).
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 0
	}
	return *c.MaxTracks
}

// GetSolveTimeout parses and returns SolveTimeout; zero disables the bound.
func (c *TuningConfig) GetSolveTimeout() time.Duration {
	if c.SolveTimeout == nil || *c.SolveTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.SolveTimeout)
	if err != nil {
		return 0 // default on parse error
	}
	return d
}

// GetCameraWidth returns the camera_width value or the default.
func (c *TuningConfig) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 640
	}
	return *c.CameraWidth
}

// GetCameraHeight returns the camera_height value or the default.
func (c *TuningConfig) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 480
	}
	return *c.CameraHeight
}

// GetFocalLength returns the focal_length value or the default.
func (c *TuningConfig) GetFocalLength() float64 {
	if c.FocalLength == nil {
		return 525.0
	}
	return *c.FocalLength
}

// GetPrincipalPointX returns the principal_point_x value or the default.
func (c *TuningConfig) GetPrincipalPointX() float64 {
	if c.PrincipalPointX == nil {
		return 320.0
	}
	return *c.PrincipalPointX
}

// GetPrincipalPointY returns the principal_point_y value or the default.
func (c *TuningConfig) GetPrincipalPointY() float64 {
	if c.PrincipalPointY == nil {
		return 240.0
	}
	return *c.PrincipalPointY
}

// GetLidarFOV returns the lidar_fov value in degrees or the default.
func (c *TuningConfig) GetLidarFOV() float64 {
	if c.LidarFOV == nil {
		return 120.0
	}
	return *c.LidarFOV
}

// GetLidarMaxRange returns the lidar_max_range value in metres or the default.
func (c *TuningConfig) GetLidarMaxRange() float64 {
	if c.LidarMaxRange == nil {
		return 100.0
	}
	return *c.LidarMaxRange
}
