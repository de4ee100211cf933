// Package scheduler runs sources in rounds of bounded concurrency.
//
// The source list is fixed at startup and stably ordered. Each round
// takes the next K non-terminal sources in rotation, runs one consumer
// per source through a fixed-size worker pool, and closes the round
// after the round length elapses or once every consumer has been quiet
// for the quiescence window, whichever comes first. Closing a round
// cancels its consumers cooperatively so each one flushes its final
// records and checkpoint before the next round starts.
//
// Sources that fail permanently are excluded from all later rounds.
// Local durability failures stop the whole scheduler: continuing to
// pull events that cannot be recorded would silently drop them.
package scheduler
