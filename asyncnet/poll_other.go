//go:build !linux

// Author: momentics <momentics@gmail.com>

package asyncnet

import "github.com/momentics/hioload-echo/api"

func waitReadable(int, func() bool) error { return api.ErrNotSupported }

func waitWritable(int, func() bool) error { return api.ErrNotSupported }
