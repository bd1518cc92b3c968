// Package memory manages per-session context windows: importance scoring,
// threshold-driven compression into a cold summary, and assembly of the
// message list sent to the model.
package memory
