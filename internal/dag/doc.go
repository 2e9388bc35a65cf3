// Package dag runs named tasks in dependency order and passes derived values
// between them through single-assignment futures.
//
// A task starts only after every task it depends on has succeeded. Once any
// task fails, or the context is cancelled, no further task starts; tasks
// already running are allowed to finish and everything that never ran is
// reported as skipped. Re-running the same graph is the recovery path.
package dag
