// Package replay reads and writes frame files and generates synthetic
// scenes for them. A frame file is JSON:
//
//	{"run_id": "<uuid>", "frames": [{"camera": [...], "lidar": [...]}, ...]}
//
// Each detection uses the same JSON shape as detection.Detection.
package replay
