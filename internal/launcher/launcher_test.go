package launcher

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForReap(t *testing.T, l *Launcher, pid int) ReapEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-l.Reap():
			if ev.Pid == pid {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reap of pid %d", pid)
		}
	}
}

func TestSpawnAndReapExitCode(t *testing.T) {
	l := New(4)
	h, err := l.Spawn("/bin/sh", []string{"-c", "exit 3"}, os.Environ())
	require.NoError(t, err)
	require.Greater(t, h.Pid, 0)

	ev := waitForReap(t, l, h.Pid)
	require.False(t, ev.Signaled)
	require.Equal(t, 3, ev.ExitStatus)
}

func TestSpawnReapsOnSignal(t *testing.T) {
	l := New(4)
	h, err := l.Spawn("/bin/sh", []string{"-c", "sleep 30"}, os.Environ())
	require.NoError(t, err)

	require.NoError(t, l.Signal(h.Pid, syscall.SIGTERM))
	ev := waitForReap(t, l, h.Pid)
	require.True(t, ev.Signaled)
	require.Equal(t, syscall.SIGTERM, ev.Signal)
}

func TestKillSendsSIGKILL(t *testing.T) {
	l := New(4)
	h, err := l.Spawn("/bin/sh", []string{"-c", "sleep 30"}, os.Environ())
	require.NoError(t, err)

	require.NoError(t, l.Kill(h.Pid))
	ev := waitForReap(t, l, h.Pid)
	require.True(t, ev.Signaled)
	require.Equal(t, syscall.SIGKILL, ev.Signal)
}

func TestAliveReflectsProcessLifetime(t *testing.T) {
	l := New(4)
	h, err := l.Spawn("/bin/sh", []string{"-c", "sleep 30"}, os.Environ())
	require.NoError(t, err)
	require.True(t, Alive(h.Pid))

	require.NoError(t, l.Kill(h.Pid))
	waitForReap(t, l, h.Pid)

	deadline := time.Now().Add(2 * time.Second)
	for Alive(h.Pid) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, Alive(h.Pid))
}

func TestSignalToUnknownPidGroupFails(t *testing.T) {
	l := New(1)
	// pid 999999 is extremely unlikely to exist as a process group leader.
	err := l.Signal(999999, syscall.SIGTERM)
	require.Error(t, err)
}
