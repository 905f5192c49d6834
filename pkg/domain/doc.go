// Package domain defines the core governance types and collaborator interfaces
// for the hook whitelist gate.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. Storage, oracles, transports and telemetry implement or
// consume the types defined here; the dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
//
// The engine package composes these types into the proposal, vote and
// finalization state machine.
package domain
