// Package launcher implements C3: spawning a child process, signaling
// it, and delivering reap notifications upstream. Grounded in the
// teacher's lib/exec.ParentHandle (a pid-bearing wrapper around
// os/exec.Cmd with an options-style constructor), stripped of the
// auth-handshake protocol that package layers on top since this
// spec's Launcher contract (spec.md §4.3) needs only spawn/signal/kill
// and a reap channel.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ChildHandle is the opaque process identifier spawn returns.
type ChildHandle struct {
	Pid int
}

// ReapEvent is one (pid, exitStatus) tuple delivered asynchronously
// once a spawned child exits.
type ReapEvent struct {
	Pid        int
	ExitStatus int
	Signaled   bool
	Signal     syscall.Signal
}

// Launcher is C3.
type Launcher struct {
	reap chan ReapEvent

	mu       sync.Mutex
	children map[int]*exec.Cmd
}

// New returns a Launcher with the given reap-channel buffer size.
func New(reapBuffer int) *Launcher {
	return &Launcher{
		reap:     make(chan ReapEvent, reapBuffer),
		children: make(map[int]*exec.Cmd),
	}
}

// Reap returns the channel on which (pid, exitStatus) tuples are
// delivered as spawned children exit.
func (l *Launcher) Reap() <-chan ReapEvent { return l.reap }

// Spawn starts codePath with args and env, returning a handle carrying
// its pid. The child is tracked internally so a later Wait can report
// its exit on the reap channel.
func (l *Launcher) Spawn(codePath string, args []string, env []string) (ChildHandle, error) {
	cmd := exec.Command(codePath, args...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Put the child in its own process group so a signal escalation can
	// reach any grandchildren it spawns, mirroring how the teacher's
	// suid-helper delivers signals to a whole session.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return ChildHandle{}, fmt.Errorf("launcher: spawn %s: %w", codePath, err)
	}

	pid := cmd.Process.Pid
	l.mu.Lock()
	l.children[pid] = cmd
	l.mu.Unlock()

	go l.wait(pid, cmd)

	return ChildHandle{Pid: pid}, nil
}

func (l *Launcher) wait(pid int, cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	delete(l.children, pid)
	l.mu.Unlock()

	event := ReapEvent{Pid: pid}
	if err == nil {
		if ps := cmd.ProcessState; ps != nil {
			event.ExitStatus = ps.ExitCode()
		}
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				event.Signaled = true
				event.Signal = status.Signal()
			} else {
				event.ExitStatus = status.ExitStatus()
			}
		}
	}
	l.reap <- event
}

// Signal delivers sig to pid's process group.
func (l *Launcher) Signal(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil {
		return fmt.Errorf("launcher: signal %v to pid %d: %w", sig, pid, err)
	}
	return nil
}

// Kill sends SIGKILL to pid's process group.
func (l *Launcher) Kill(pid int) error {
	return l.Signal(pid, syscall.SIGKILL)
}

// Alive reports whether pid still exists, per spec.md §4.6's
// kill(pid, 0) liveness poll.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
