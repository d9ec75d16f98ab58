// Package harness runs scripted two-peer replication scenarios.
//
// A scenario (YAML) creates, updates, renames and removes entities on
// peers "a" and "b", toggles their gates, injects raw messages, and
// delivers pending messages with sync steps. The run produces a trace of
// every delivered message and each peer's final entities, which
// assertions check and golden files pin down.
//
// Example:
//
//	name: collision_rename
//	description: Concurrent creations of the same name converge
//	steps:
//	  - {op: create, peer: a, collection: objects, name: Cube, as: cube_a}
//	  - {op: create, peer: b, collection: objects, name: Cube, as: cube_b}
//	  - {op: sync}
//	assertions:
//	  - {type: converged}
package harness
