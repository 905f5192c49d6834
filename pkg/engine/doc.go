// Package engine implements the hook whitelist governance state machine.
//
// Architecture:
//
// engine.go     - Engine construction, parameters and per-operation instrumentation
// governance.go - Initialize, Propose, Vote and Finalize
// queries.go    - Membership checks and read accessors
//
// A proposal is open until its voting window elapses, expired until someone
// finalizes it, and closed afterwards. Finalization appends the hook to the
// whitelist when the votes for it exceed the votes against and reach the
// threshold fixed at initialization.
package engine
