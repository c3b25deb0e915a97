// Package classify labels tracked detections by size and movement behavior.
//
// Size classification uses the larger bounding-box dimension against the
// configured absolute and target-species ranges. Behavior analysis inspects a
// track's position history: an object that stays inside a small movement
// radius for long enough is hovering, which is the signature that separates a
// scouting hornet from bees and debris passing through the frame.
//
// Confidence combines the two: target-sized and hovering scores High,
// target-sized but transient scores Medium, everything else Low.
package classify
