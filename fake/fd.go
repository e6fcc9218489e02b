// Author: momentics <momentics@gmail.com>

package fake

import "sync/atomic"

var lastFD atomic.Int64

func init() { lastFD.Store(1000) }

// NextFD hands out a process-unique pseudo descriptor.
func NextFD() int {
	return int(lastFD.Add(1))
}
