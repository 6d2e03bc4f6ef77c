/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpserver implements the HTTP/1.1 server state machine of
// spec.md §4.4: a per-connection loop parsing requests under a
// headers-size/timeout bound, interpreting Content-Length/Transfer-Encoding/
// Expect: 100-continue, invoking a user Handler, and emitting fixed-length
// or chunked responses while honoring keep-alive.
//
// Each connection runs its own private *aio.Dispatcher (one dispatcher per
// goroutine that calls RunForever/WaitFor, per the "one per worker" rule of
// spec.md §3 generalized to Go's goroutine-per-connection networking
// style) rather than sharing one process-wide dispatcher across
// connections.
package httpserver
