package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/pipeline"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
)

// ErrUnknownRun is returned when a run ID has no row in fusion_runs.
var ErrUnknownRun = errors.New("unknown run")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Run is one recorded tracking session.
type Run struct {
	RunID      string          `json:"run_id"`
	Source     string          `json:"source"`
	ParamsJSON json.RawMessage `json:"params,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Frames     int             `json:"frames"`
}

// TrackStore records pipeline output. It is safe for use by one writer
// and any number of readers.
type TrackStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path, applies PRAGMAs and
// migrates it to the latest schema.
func Open(path string) (*TrackStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	s, err := NewTrackStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewTrackStore migrates db and wraps it.
func NewTrackStore(db *sql.DB) (*TrackStore, error) {
	if err := MigrateUp(db); err != nil {
		return nil, err
	}
	return &TrackStore{db: db}, nil
}

// DB exposes the underlying handle for read-only debugging tools.
func (s *TrackStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *TrackStore) Close() error { return s.db.Close() }

// StartRun inserts a run row and returns its new UUID. params is stored as
// JSON for later comparison between runs; it may be nil.
func (s *TrackStore) StartRun(source string, params any) (string, error) {
	var paramsJSON []byte
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("marshal run params: %w", err)
		}
		paramsJSON = b
	}
	runID := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO fusion_runs (run_id, source, params_json, created_at) VALUES (?, ?, ?, ?)`,
		runID, source, nullBytes(paramsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		opsf("insert run: %v", err)
		return "", fmt.Errorf("insert run: %w", err)
	}
	diagf("run %s started (source=%s)", runID, source)
	return runID, nil
}

// FinishRun stamps the run's finish time.
func (s *TrackStore) FinishRun(runID string) error {
	res, err := s.db.Exec(`UPDATE fusion_runs SET finished_at = ? WHERE run_id = ?`, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrUnknownRun)
	}
	diagf("run %s finished", runID)
	return nil
}

// RecordFrame stores one frame's summary together with the track set
// returned by GetTracks after that frame. Tracks retired during the frame
// are marked retired; their last snapshot is kept. Everything is written in
// one transaction.
func (s *TrackStore) RecordFrame(runID string, res pipeline.FrameResult, live []tracks.Track) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin frame %d: %w", res.Frame, err)
	}
	defer tx.Rollback()

	upd, err := tx.Exec(`UPDATE fusion_runs SET frames = frames + 1 WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := upd.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record frame %d for run %s: %w", res.Frame, runID, ErrUnknownRun)
	}

	var errorsJSON []byte
	if len(res.Errors) > 0 {
		msgs := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			msgs[i] = e.Error()
		}
		if errorsJSON, err = json.Marshal(msgs); err != nil {
			return fmt.Errorf("marshal frame errors: %w", err)
		}
	}
	_, err = tx.Exec(`
		INSERT INTO fusion_frames (
			run_id, frame, fused, matched, tracked, created, promoted,
			retired, discarded, errors_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(res.Frame), len(res.Fused), res.Matched, res.Tracked,
		len(res.Created), len(res.Promoted), len(res.Retired), res.Discarded,
		nullBytes(errorsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		opsf("insert frame %d: %v", res.Frame, err)
		return fmt.Errorf("insert frame %d: %w", res.Frame, err)
	}

	for _, t := range live {
		if err := upsertTrack(tx, runID, t); err != nil {
			return err
		}
		// Only a track matched this frame has a new history entry.
		if t.LastFrame == res.Frame {
			if err := insertObservation(tx, runID, t.TrackID, res.Frame, t.Latest()); err != nil {
				return err
			}
		}
	}
	for _, id := range res.Retired {
		_, err := tx.Exec(`UPDATE fusion_tracks SET state = ?, misses = misses + 1 WHERE run_id = ? AND track_id = ?`,
			string(tracks.TrackRetired), runID, int64(id))
		if err != nil {
			return fmt.Errorf("retire track %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		opsf("commit frame %d: %v", res.Frame, err)
		return fmt.Errorf("commit frame %d: %w", res.Frame, err)
	}
	tracef("run %s frame %d: %d tracks written", runID, res.Frame, len(live))
	return nil
}

// upsertTrack writes a track's counters. Its history lives in
// fusion_track_observations, one row per entry.
func upsertTrack(tx *sql.Tx, runID string, t tracks.Track) error {
	_, err := tx.Exec(`
		INSERT INTO fusion_tracks (
			run_id, track_id, state, hits, misses, first_frame, last_frame
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, track_id) DO UPDATE SET
			state = excluded.state,
			hits = excluded.hits,
			misses = excluded.misses,
			last_frame = excluded.last_frame`,
		runID, int64(t.TrackID), string(t.State), t.Hits, t.Misses,
		int64(t.FirstFrame), int64(t.LastFrame),
	)
	if err != nil {
		return fmt.Errorf("upsert track %d: %w", t.TrackID, err)
	}
	return nil
}

func insertObservation(tx *sql.Tx, runID string, trackID, frame uint64, f detection.FusedDetection) error {
	x, y, space := f.Position()
	var cameraID, lidarID *int64
	if f.Camera != nil {
		cameraID = &f.Camera.ID
	}
	if f.Lidar != nil {
		lidarID = &f.Lidar.ID
	}
	det, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal track %d detection: %w", trackID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO fusion_track_observations (
			run_id, track_id, frame, space, x, y, camera_id, lidar_id, detection_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(trackID), int64(frame), space.String(), x, y,
		nullInt64(cameraID), nullInt64(lidarID), string(det),
	)
	if err != nil {
		return fmt.Errorf("insert observation for track %d: %w", trackID, err)
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *TrackStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, source, params_json, created_at, finished_at, frames
		FROM fusion_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var params sql.NullString
		var created int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Source, &params, &created, &finished, &r.Frames); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if params.Valid {
			r.ParamsJSON = json.RawMessage(params.String)
		}
		r.CreatedAt = time.Unix(0, created)
		if finished.Valid {
			ts := time.Unix(0, finished.Int64)
			r.FinishedAt = &ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadTracks returns the last stored snapshot of every track in the run,
// retired ones included, ordered by TrackID. History holds the entries
// recorded during the run, rebuilt from its observations.
func (s *TrackStore) LoadTracks(runID string) ([]tracks.Track, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fusion_runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("load tracks for run %s: %w", runID, ErrUnknownRun)
	}

	rows, err := s.db.Query(`
		SELECT track_id, state, hits, misses, first_frame, last_frame
		FROM fusion_tracks
		WHERE run_id = ?
		ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	defer rows.Close()

	var out []tracks.Track
	index := make(map[uint64]int)
	for rows.Next() {
		var t tracks.Track
		var id, first, last int64
		var state string
		if err := rows.Scan(&id, &state, &t.Hits, &t.Misses, &first, &last); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.TrackID = uint64(id)
		t.State = tracks.TrackState(state)
		t.FirstFrame = uint64(first)
		t.LastFrame = uint64(last)
		t.History = []detection.FusedDetection{}
		index[t.TrackID] = len(out)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadHistories(runID, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TrackStore) loadHistories(runID string, out []tracks.Track, index map[uint64]int) error {
	rows, err := s.db.Query(`
		SELECT track_id, detection_json
		FROM fusion_track_observations
		WHERE run_id = ? AND detection_json IS NOT NULL
		ORDER BY track_id, frame`, runID)
	if err != nil {
		return fmt.Errorf("load track histories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan history entry: %w", err)
		}
		i, ok := index[uint64(id)]
		if !ok {
			continue
		}
		var f detection.FusedDetection
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return fmt.Errorf("decode track %d history: %w", id, err)
		}
		out[i].History = append(out[i].History, f)
	}
	return rows.Err()
}

// Observation is one row of a track's trail.
type Observation struct {
	TrackID  uint64  `json:"track_id"`
	Frame    uint64  `json:"frame"`
	Space    string  `json:"space"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	CameraID *int64  `json:"camera_id,omitempty"`
	LidarID  *int64  `json:"lidar_id,omitempty"`
}

// LoadObservations returns the run's trail rows ordered by frame then track.
func (s *TrackStore) LoadObservations(runID string) ([]Observation, error) {
	rows, err := s.db.Query(`
		SELECT track_id, frame, space, x, y, camera_id, lidar_id
		FROM fusion_track_observations
		WHERE run_id = ?
		ORDER BY frame, track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var trackID, frame int64
		var cameraID, lidarID sql.NullInt64
		if err := rows.Scan(&trackID, &frame, &o.Space, &o.X, &o.Y, &cameraID, &lidarID); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.TrackID = uint64(trackID)
		o.Frame = uint64(frame)
		if cameraID.Valid {
			o.CameraID = &cameraID.Int64
		}
		if lidarID.Valid {
			o.LidarID = &lidarID.Int64
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
