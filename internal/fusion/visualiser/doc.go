// Package visualiser renders track snapshots. It only reads the
// []tracks.Track views returned by GetTracks or loaded from the track
// store, never tracker internals.
package visualiser
