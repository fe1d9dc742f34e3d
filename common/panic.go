/*
Panic is the fatal-abort primitive.
It is reserved for invariant violations and conditions the kernel cannot recover from
(freeing a bad frame, releasing a buffer without holding its lock, running out of buffers).
Recoverable conditions such as allocator exhaustion are returned to the caller instead.
*/
package common

import (
	"fmt"

	"github.com/HayatoShiba/ppmem/logging"
)

// KernelPanic is the value passed to panic() by Panic
// tests can recover it to check which invariant was violated
type KernelPanic struct {
	Msg string
}

// Error implements error
func (p *KernelPanic) Error() string {
	return "panic: " + p.Msg
}

// Panic logs the message at critical level and halts the calling goroutine with *KernelPanic.
// it never returns
func Panic(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	logging.Logger.Critical("panic: %s", msg)
	panic(&KernelPanic{Msg: msg})
}
