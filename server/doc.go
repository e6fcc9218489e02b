// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-threaded reactor echo server. One goroutine owns the listener,
// every accepted connection and the demultiplexer; bytes read from a
// connection are queued and written back to the same connection in order.
package server
