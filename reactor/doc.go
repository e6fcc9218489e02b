// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness demultiplexer used by the server and
// client loops. Linux uses level-triggered epoll(7); other platforms report
// api.ErrNotSupported.
package reactor
