// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor echo client: connects asynchronously, greets the server and keeps
// answering every echoed chunk with a generated message until the peer
// closes, the stop policy fires, the wait goes idle or the context ends.
package client
