package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/eagerfusion/internal/fusion/pipeline"
)

// MaxFileSize bounds frame files accepted by Load.
const MaxFileSize = 256 * 1024 * 1024

// File is a recorded or generated sequence of frames.
type File struct {
	RunID  string           `json:"run_id"`
	Frames []pipeline.Frame `json:"frames"`
}

// NewFile returns an empty file with a fresh run ID.
func NewFile() *File {
	return &File{RunID: uuid.New().String()}
}

// Load reads a frame file. The path must have a .json extension.
func Load(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("frame file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat frame file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("frame file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	fh, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame file: %w", err)
	}
	defer fh.Close()
	return Decode(fh)
}

// Decode parses a frame file from r. A missing run_id is replaced with a
// new UUID; a malformed one is an error.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse frame file: %w", err)
	}
	if f.RunID == "" {
		f.RunID = uuid.New().String()
	} else if _, err := uuid.Parse(f.RunID); err != nil {
		return nil, fmt.Errorf("invalid run_id %q: %w", f.RunID, err)
	}
	return &f, nil
}

// Encode writes f as indented JSON.
func (f *File) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Save writes f to path, replacing any existing file.
func (f *File) Save(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	if err := f.Encode(fh); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write frame file: %w", err)
	}
	return fh.Close()
}
