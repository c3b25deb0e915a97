// Package percept holds the shared data model for the perception core:
// per-frame detections, tracked detections with persistent identities, and
// classified detections with hover/confidence annotations.
//
// Behavior lives in the layer subpackages (track, classify, pipeline); this
// package owns only the types that flow between them.
package percept
