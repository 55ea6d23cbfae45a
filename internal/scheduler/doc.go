// Package scheduler keeps the overlay's derived artifacts consistent with
// the current game area.
//
// A Scheduler reacts to four host events. AreaChanged replaces the
// AreaSession wholesale, which drops every classification memo, and then
// regenerates the terrain bitmap and the landmark clusters for the new
// area. Moved and ForegroundChanged refresh the cached map-view metrics the
// projector needs every frame. Closed re-arms the culling-window debounce.
//
// All reactions and the per-frame callback run on one dispatcher goroutine
// (Run) or on the caller's goroutine (Dispatch); only the terrain decoder
// and the landmark clusterer fan out internally. Every AreaChanged bumps an
// epoch counter and a recompute only commits if its epoch is still current,
// so results for a previous area are dropped rather than overwriting a
// newer one.
package scheduler
