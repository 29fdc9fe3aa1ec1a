// Package shutdown implements C6, the ShutdownEngine: the escalating
// teardown of every known child. Grounded in the teacher's
// instance_reaping.go poll-loop style (kill(pid, 0) liveness checks on
// a fixed interval), replacing its raw busy-poll with a buffered wake
// channel a reap signal can trip early, per spec.md §9 "Background
// waits".
package shutdown

import (
	"context"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sgnls/devicemanager/internal/launcher"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/registry"
	"github.com/sgnls/devicemanager/internal/remote"
)

const (
	releaseObjectTimeout = 3 * time.Second
	pollGranularity      = time.Millisecond
)

// Engine is C6.
type Engine struct {
	Registry *registry.Registry
	Launcher *launcher.Launcher
	Log      *logging.Logger

	// NameDirectory and ManagerContext let Run unbind the manager's own
	// naming context (spec.md §4.6 step 2). NameDirectory may be nil in
	// tests that don't exercise this step.
	NameDirectory  remote.NameDirectory
	ManagerContext string

	// DeviceForceQuitTime is the bounded wait between each signal
	// escalation (spec.md §6 DEVICE_FORCE_QUIT_TIME), default 0.5s.
	DeviceForceQuitTime time.Duration

	wake chan struct{}
}

// New returns an Engine with DeviceForceQuitTime defaulted to 500ms.
func New(reg *registry.Registry, l *launcher.Launcher, log *logging.Logger) *Engine {
	return &Engine{
		Registry:            reg,
		Launcher:            l,
		Log:                 log,
		DeviceForceQuitTime: 500 * time.Millisecond,
		wake:                make(chan struct{}, 1),
	}
}

// NotifyReaped wakes any in-progress bounded wait early, so escalation
// can proceed as soon as every target is confirmed gone rather than
// waiting out the full timeout (spec.md §4.6 "A reap signal wakes the
// wait via a condition variable for promptness").
func (e *Engine) NotifyReaped() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run executes the full shutdown sequence (spec.md §4.6). Every log
// line emitted over the course of the run carries a shared trace ID so
// a single shutdown can be followed across releaseObject calls and
// signal escalation, even when multiple children are torn down
// concurrently.
func (e *Engine) Run(ctx context.Context) {
	traceID := uuid.NewString()
	e.releaseDevices(ctx, traceID)
	e.unbindManagerContext(ctx, traceID)
	e.escalateDevicesAndServices(traceID)
}

// unbindManagerContext implements step 2: unbind the manager's own
// naming context, so no stale binding under it survives the process.
// Best-effort, like the rest of shutdown teardown.
func (e *Engine) unbindManagerContext(ctx context.Context, traceID string) {
	if e.NameDirectory == nil || e.ManagerContext == "" {
		return
	}
	if err := e.NameDirectory.Unbind(ctx, e.ManagerContext); err != nil {
		e.logf("shutdown[%s]: unbind manager context %q failed: %v", traceID, e.ManagerContext, err)
	}
}

// releaseDevices implements step 1: ask every *registered* device to
// release with a bounded call timeout; any still registered afterward
// is demoted to *pending* for the signal escalation below.
func (e *Engine) releaseDevices(ctx context.Context, traceID string) {
	for _, rec := range e.Registry.SnapshotRegisteredDevices() {
		if rec.Ref == nil {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, releaseObjectTimeout)
		err := rec.Ref.ReleaseObject(callCtx)
		cancel()
		if err != nil {
			e.logf("shutdown[%s]: releaseObject(%s) failed or timed out: %v", traceID, rec.Identifier, err)
		}
		// Whether or not release succeeded, the device is no longer
		// reachable as "registered" once shutdown has claimed it; demote
		// it so the signal escalation below can find and reap it.
		e.Registry.Demote(rec.Identifier)
	}
}

// escalateDevicesAndServices implements steps 3-4. Devices get the
// full three-step escalation (SIGINT, SIGTERM, SIGKILL); services get
// the shorter SIGTERM-then-SIGKILL pass spec.md §4.6 step 4 calls out
// separately (DESIGN.md records this split as the resolution of an
// ambiguity between steps 3 and 4).
func (e *Engine) escalateDevicesAndServices(traceID string) {
	pending := e.Registry.SnapshotPending()
	if len(pending) == 0 {
		return
	}

	var devicePids, servicePids []int
	for _, rec := range pending {
		if rec.ProcessHandle == nil {
			continue
		}
		if rec.Kind == registry.KindService {
			servicePids = append(servicePids, rec.ProcessHandle.Pid)
		} else {
			devicePids = append(devicePids, rec.ProcessHandle.Pid)
		}
	}

	e.escalate(devicePids, true, traceID)
	e.escalate(servicePids, false, traceID)
}

// escalate runs the signal sequence against pids, including a leading
// SIGINT when withSIGINT is set.
func (e *Engine) escalate(pids []int, withSIGINT bool, traceID string) {
	if len(pids) == 0 {
		return
	}
	remaining := pids
	if withSIGINT {
		for _, pid := range remaining {
			if err := e.Launcher.Signal(pid, syscall.SIGINT); err != nil {
				e.logf("shutdown[%s]: SIGINT to pid %d failed: %v", traceID, pid, err)
			}
		}
		e.waitForAllDead(remaining, e.DeviceForceQuitTime)
		remaining = stillAlive(remaining)
	}

	for _, pid := range remaining {
		if err := e.Launcher.Signal(pid, syscall.SIGTERM); err != nil {
			e.logf("shutdown[%s]: SIGTERM to pid %d failed: %v", traceID, pid, err)
		}
	}
	e.waitForAllDead(remaining, e.DeviceForceQuitTime)

	remaining = stillAlive(remaining)
	for _, pid := range remaining {
		if err := e.Launcher.Kill(pid); err != nil {
			e.logf("shutdown[%s]: SIGKILL to pid %d failed: %v", traceID, pid, err)
		}
	}
}

// waitForAllDead blocks until every pid in pids is gone or deadline
// elapses. It polls at 1ms granularity (spec.md §4.6) but a
// NotifyReaped call short-circuits the current tick instead of
// waiting out the full millisecond, keeping shutdown prompt without
// busy-waiting (spec.md §9 "Background waits").
func (e *Engine) waitForAllDead(pids []int, deadline time.Duration) {
	if len(pids) == 0 {
		return
	}
	deadlineAt := time.Now().Add(deadline)
	for {
		if len(stillAlive(pids)) == 0 {
			return
		}
		if !time.Now().Before(deadlineAt) {
			return
		}
		select {
		case <-e.wake:
		case <-time.After(pollGranularity):
		}
	}
}

func stillAlive(pids []int) []int {
	var alive []int
	for _, pid := range pids {
		if launcher.Alive(pid) {
			alive = append(alive, pid)
		}
	}
	return alive
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log != nil {
		e.Log.Errorf(format, args...)
	}
}
