// Package consumer runs one live subscription to one source. A consumer
// owns that source's event log and checkpoint exclusively: it resumes
// from a resolved sequence, appends each decoded frame's records, and
// advances the checkpoint after every N records or T seconds, whichever
// comes first.
//
// Failure policy: decode errors skip one frame; transient and
// rate-limited failures reconnect from the last durable checkpoint after
// a backoff wait; permanent failures end the source; failures to write
// the log or checkpoint escalate, because consuming without recording
// would break the at-least-once guarantee.
package consumer
