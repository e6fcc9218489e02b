// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the demultiplexer,
// connection and listener contracts in api.
package fake
