// Package driver implements the input drivers and the DNS output driver
// described in §4.5: Console, Exec, Listener, Command, and Ping each produce
// and consume session bytes over the message bus; the DNS driver is the sole
// output driver, turning tunnel packets into DNS queries and back.
package driver

import (
	"duskcat/internal/bus"
	"duskcat/internal/reactor"
)

// InputDriver is the tagged-union interface named in the base spec's
// redesign notes (§9: "Tagged unions replace the driver-specific if/else
// chain: InputDriver = Console | Exec | Listener | Command | Ping"). Each
// concrete driver implements this instead of the process branching on a
// driver-kind enum.
type InputDriver interface {
	// Register starts the driver's I/O sources (goroutines reading stdin, a
	// child process, or a TCP listener) and subscribes to data_in on b.
	// Every bus publish made from driver goroutines goes through
	// r.Post so handlers still run on the single reactor thread (§5).
	Register(r *reactor.Reactor, b *bus.Bus)

	// Close releases the driver's OS resources. Called during shutdown,
	// after the session engine and before the output driver (§5).
	Close() error
}
