// Package aio implements a single-threaded, cooperative async I/O runtime:
// a timer wheel, a readiness-driven dispatcher loop, and a Future type with
// FIFO callback ordering and cooperative cancellation. The stream, tlsstream,
// datagram and httpserver packages are built on top of it.
package aio
