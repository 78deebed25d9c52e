//go:build windows

package recorder

import "os"

var interruptSignal os.Signal = os.Kill
