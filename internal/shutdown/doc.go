// Package shutdown turns process signals into one orderly stop.
//
// The first SIGINT or SIGTERM cancels the workload's context; workers
// then get a bounded grace period to flush and return. Past the grace
// period the coordinator gives up waiting, logs the unclean stop, and
// returns. A panic in the workload is recovered into an error so the
// process can still exit through the normal path with a non-zero code.
package shutdown
