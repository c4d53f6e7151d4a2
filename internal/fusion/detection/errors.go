package detection

import (
	"errors"
	"fmt"
)

// ErrGeometry is the sentinel matched by every *GeometryError.
var ErrGeometry = errors.New("malformed detection geometry")

// GeometryError reports a detection whose boxes or confidences cannot be
// used for association. The detection is dropped for the frame; the rest of
// the frame is still processed.
type GeometryError struct {
	Sensor Sensor
	ID     int64
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%s detection %d: %s: %s", e.Sensor, e.ID, ErrGeometry, e.Reason)
}

// Is reports whether target is ErrGeometry.
func (e *GeometryError) Is(target error) bool {
	return target == ErrGeometry
}

func geometryErrorf(sensor Sensor, id int64, format string, args ...interface{}) *GeometryError {
	return &GeometryError{Sensor: sensor, ID: id, Reason: fmt.Sprintf(format, args...)}
}
