// Package dispatch routes decoded gateway events to the handlers modules
// register.
//
// Delivery is a single FIFO loop: Run pops one event at a time, looks up
// the handlers registered for its name at that moment and starts each
// handler in its own goroutine. Handler lookup happens at dispatch time, so
// once Deregister returns no later event reaches the handle. Invocations
// already running are not cancelled.
//
// An event nobody handles is dropped with a debug log. Handler errors and
// panics are logged and counted; they never stop the loop.
package dispatch
