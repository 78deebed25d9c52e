//go:build !windows

package recorder

import (
	"os"
	"syscall"
)

var interruptSignal os.Signal = syscall.SIGINT
