// Package engine executes builds. The Orchestrator runs the stages of one
// build, the Executor prepares a stored build for it (checkout,
// configuration, previous build) and the Worker runs several builds
// concurrently, fed by the Spool.
package engine
