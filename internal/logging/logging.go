// Package logging provides a small leveled-logging facade over the
// standard library, in the shape of the teacher's vlog: Infof/Errorf
// always print, V(n).Infof only prints when the configured verbosity
// is at least n. No third-party logging library appears anywhere in
// the retrieval pack this repository was built from, so this stays
// on the standard library rather than reaching for one that isn't
// grounded in any example.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Logger is the leveled logger used throughout the device manager.
type Logger struct {
	std       *log.Logger
	verbosity int32
}

// New returns a Logger writing to os.Stderr with the given initial
// verbosity level.
func New(verbosity int) *Logger {
	l := &Logger{std: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
	l.SetVerbosity(verbosity)
	return l
}

// SetVerbosity changes the level at which V(n) gates output. Safe for
// concurrent use.
func (l *Logger) SetVerbosity(v int) { atomic.StoreInt32(&l.verbosity, int32(v)) }

func (l *Logger) verbosityLevel() int { return int(atomic.LoadInt32(&l.verbosity)) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.std.Output(3, "I "+fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.std.Output(3, "E "+fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.std.Output(3, "F "+fmt.Sprintf(format, args...))
	os.Exit(1)
}

// VLevel gates verbose logging behind a verbosity threshold, mirroring
// the teacher's ctx.VI(n).Infof idiom.
type VLevel struct {
	l     *Logger
	level int
}

// V returns a handle for logging at verbosity level n.
func (l *Logger) V(n int) VLevel { return VLevel{l: l, level: n} }

func (v VLevel) Infof(format string, args ...interface{}) {
	if v.l.verbosityLevel() >= v.level {
		v.l.std.Output(3, "I "+fmt.Sprintf(format, args...))
	}
}
