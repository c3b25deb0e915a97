// Package track assigns per-frame detections to persistent tracks using
// greedy nearest-neighbor matching on centroids, and maintains a short
// position/time history per track for downstream hover analysis.
//
// Track storage is a preallocated fixed-capacity arena: at most MaxTracks
// tracks exist at once and no per-frame heap allocation occurs, so the
// update path is suitable for a real-time control loop.
//
// A Tracker is single-owner: it is called synchronously once per detection
// cycle from the processing loop and needs no external synchronization.
package track
