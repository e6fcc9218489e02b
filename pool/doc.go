// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer reuse for the reactor loops. BytePool hands out fixed-size slices
// that back outbound queue chunks.
package pool
