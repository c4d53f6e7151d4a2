package visualiser

import (
	"github.com/banshee-data/eagerfusion/internal/fusion/detection"
	"github.com/banshee-data/eagerfusion/internal/fusion/tracks"
)

// Point is one history entry's association position.
type Point struct {
	X, Y float64
}

// Trail returns the track's positions in history order and the space they
// lie in. Entries without a position are skipped.
func Trail(t tracks.Track) ([]Point, detection.Space) {
	pts := make([]Point, 0, len(t.History))
	space := detection.SpaceNone
	for _, f := range t.History {
		x, y, s := f.Position()
		if s == detection.SpaceNone {
			continue
		}
		space = s
		pts = append(pts, Point{X: x, Y: y})
	}
	return pts, space
}

// bySpace groups tracks by the space their trail lies in.
func bySpace(trks []tracks.Track) map[detection.Space][]tracks.Track {
	out := make(map[detection.Space][]tracks.Track)
	for _, t := range trks {
		_, s := Trail(t)
		if s == detection.SpaceNone {
			continue
		}
		out[s] = append(out[s], t)
	}
	return out
}

func axisNames(space detection.Space) (x, y string) {
	if space == detection.SpaceGround {
		return "X (m)", "Z (m)"
	}
	return "u (px)", "v (px)"
}
