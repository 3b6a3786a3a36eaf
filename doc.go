// Package planetmap composites time-indexed overlays, point-of-interest
// markers and a cursor-following GPU mask on top of a planetary map surface.
//
// # Overview
//
// planetmap sits between three externally owned collaborators: a map engine
// (package basemap), a GPU device (github.com/gogpu/wgpu/hal) and an
// asynchronous data source (package catalog). Everything the host view needs
// is derived from a small stored selection (overlay id, time, POI id, warp
// flag) plus the data fetched for the current planet.
//
// # Packages
//
//   - tile: deterministic placeholder tile references (SVG or PNG data URLs)
//   - timeline: time-step parsing, nearest-step snapping, default-time policy
//   - layer: the single raster overlay layer and its source on the map
//   - marker: keyed POI marker reconciliation and zoom gating
//   - mask: the WGSL cursor mask program and its frame loop
//   - frame: the single-goroutine task and frame scheduler
//   - view: the host view tying the pieces together
//
// # Threading
//
// All map and GPU work happens on one goroutine owned by a frame.Loop.
// Data fetches run on their own goroutines and post results back to the loop.
//
// # Logging
//
// Library packages log through Logger, which is silent until SetLogger is
// called.
package planetmap

// Version is the current version of the library.
const Version = "0.3.0"
