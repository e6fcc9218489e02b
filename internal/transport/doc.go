// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP primitives for the reactor loops: listen, accept, connect,
// read and write on raw descriptors. Linux is implemented on golang.org/x/sys/unix;
// other platforms report api.ErrNotSupported.

package transport
