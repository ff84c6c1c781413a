// Package mux provides the socket readiness multiplexer.
//
// A single dispatch goroutine delivers readiness events to registered jobs,
// one at a time. Components register a socket handle together with a job;
// when the handle becomes readable the job runs on the dispatch goroutine.
// Registrations are one-shot: delivery consumes the registration and the
// owner re-registers ("re-arms") when it wants the next event. This mirrors
// the accept cycle of the listen socket, which must re-arm after every
// accept attempt.
//
// # Dispatch Model
//
//	         +-----------+   readable    +----------------+
//	 socket  |  watcher  | ------------> | dispatch loop  | --> job()
//	 handle  | goroutine |               | (single, runs  | --> posted fn()
//	         +-----------+               |  serially)     |
//	                                     +----------------+
//
// Jobs and functions handed to Post run on the same goroutine, so anything
// executed there observes connection state without extra locking. Jobs must
// return promptly; a stalled job stalls every other registration.
//
// # Cancellation
//
// Unregister marks the registration cancelled and pokes the handle's
// deadline so a parked watcher wakes. A cancelled registration's job never
// runs afterwards, even if a readiness event was already queued.
package mux
