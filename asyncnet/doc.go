// Package asyncnet
// Author: momentics <momentics@gmail.com>
//
// Future-returning TCP accept, connect, read and write over the non-blocking
// transport, executed on an explicitly supplied executor. EchoServer and
// EchoClient are the sequential echo pair built on it: every step blocks on
// the future of the previous one instead of running a readiness loop.
package asyncnet
