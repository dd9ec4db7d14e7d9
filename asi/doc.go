// Package asi implements the serial command protocol of ASI (Applied Scientific
// Instrumentation) motorized stage controllers: the MS-2000 and LX-4000 bench-top
// controllers and the Tiger (TG-1000) modular chassis.
//
// # Protocol Overview
//
// ASI controllers speak a half-duplex, line-oriented ASCII protocol. Every
// exchange is one command followed by one reply:
//
//   - Command:  [address]VERB[ arg]*[ label=value]*  terminated by CR
//   - Success:  ":A<payload>" terminated by CR LF
//   - Error:    ":N<code>" where code indexes a fixed error table
//
// Replies that carry no ":A" marker (identity queries and single-character
// status flags) are returned verbatim. Multi-line replies separate lines with
// bare CR characters, which the decoder normalizes to LF.
//
// The three controller families differ only in framing details: the LX-4000
// prefixes every command with a fixed address and terminates replies with an
// extra ETX byte, and the Tiger parks its axes on addressed cards and widens
// the ":A" marker by one byte. These differences are captured by the [Dialect]
// value, not by separate controller types.
//
// # Architecture
//
// [Controller] owns the transport through a [Channel] that serializes all
// command/response round-trips, so commands from concurrent goroutines never
// interleave on the wire. [Axis] values are created by controller enumeration
// and route every operation through the controller; they never touch the
// transport directly.
//
// # Concurrency
//
// Distinct axes may be driven from concurrent goroutines. A command and its
// reply form one atomic transaction under the channel lock. Blocking waits
// (motion completion, limit searches) poll the controller at a configurable
// interval and honor context cancellation, releasing the channel between polls
// so other axes can interleave their commands.
//
// No operation has a built-in timeout. A controller that never terminates a
// reply blocks the transaction until the caller's context is cancelled, so
// callers should bound every call with a context deadline.
package asi
