package blocksync

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `blocksync` package:
// Info:
//     abnormal but recoverable behavior. This level should be silent on normal operation.
//     this includes:
//     - remote errors reported by the engine
//     - malformed event messages that were skipped
//     - transport disconnects and reconnects
// Error:
//     unrecoverable crash details
//     this includes:
//     - unexpected panics even if handled and suppressed for partial operation
// Debug (glog.V(1), glog.V(2)):
//     key events for trace debugging
//     this includes:
//     - root open/close (V(1))
//     - each request, response and event batch (V(2))

const LogLevelUrgent = 0
const LogLevelInfo = 50
const LogLevelDebug = 100

var GlobalLogLevel = LogLevelInfo

type LogFunction func(string, ...any)

func LogFn(level int, tag string) LogFunction {
	return func(format string, a ...any) {
		if level <= GlobalLogLevel {
			m := fmt.Sprintf(format, a...)
			glog.InfoDepth(1, fmt.Sprintf("%s: %s", tag, m))
		}
	}
}

func SubLogFn(level int, log LogFunction, tag string) LogFunction {
	return func(format string, a ...any) {
		if level <= GlobalLogLevel {
			m := fmt.Sprintf(format, a...)
			log("%s: %s", tag, m)
		}
	}
}
