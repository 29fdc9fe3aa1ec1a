package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgnls/devicemanager/internal/launcher"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/profile"
	"github.com/sgnls/devicemanager/internal/registry"
)

type fakeRef struct {
	releaseCalls int
	releaseErr   error
}

func (f *fakeRef) Identifier(ctx context.Context) (string, error)     { return "", nil }
func (f *fakeRef) Label(ctx context.Context) (string, error)          { return "", nil }
func (f *fakeRef) SoftwareProfile(ctx context.Context) (string, error) { return "", nil }
func (f *fakeRef) InitializeProperties(ctx context.Context, props []profile.Property) error {
	return nil
}
func (f *fakeRef) Initialize(ctx context.Context) error { return nil }
func (f *fakeRef) Configure(ctx context.Context, props []profile.Property) error { return nil }
func (f *fakeRef) ReleaseObject(ctx context.Context) error {
	f.releaseCalls++
	return f.releaseErr
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry, *launcher.Launcher) {
	t.Helper()
	reg := registry.New()
	l := launcher.New(8)
	e := New(reg, l, logging.New(0))
	e.DeviceForceQuitTime = 100 * time.Millisecond
	return e, reg, l
}

func waitReap(t *testing.T, l *launcher.Launcher, pid int) launcher.ReapEvent {
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

func TestReleaseDevicesCallsReleaseObjectAndDemotesRegardlessOfResult(t *testing.T) {
	e, reg, _ := newTestEngine(t)
	ref := &fakeRef{}
	reg.InsertPending(registry.Record{Identifier: "dev-1", Kind: registry.KindDevice})
	require.True(t, reg.PromoteToRegistered("dev-1", "IOR:1", "obj-1", ref))
	require.Len(t, reg.SnapshotRegisteredDevices(), 1)

	e.releaseDevices(context.Background(), "test-trace")

	require.Equal(t, 1, ref.releaseCalls)
	require.Empty(t, reg.SnapshotRegisteredDevices())
}

func TestEscalateDeviceIgnoringSIGINTFallsThroughToSIGTERM(t *testing.T) {
	e, reg, l := newTestEngine(t)
	h, err := l.Spawn("/bin/sh", []string{"-c", `trap '' INT; sleep 30`}, os.Environ())
	require.NoError(t, err)
	reg.InsertPending(registry.Record{Identifier: "dev-1", Kind: registry.KindDevice, ProcessHandle: &registry.ProcessHandle{Pid: h.Pid}})

	e.escalateDevicesAndServices("test-trace")

	ev := waitReap(t, l, h.Pid)
	require.True(t, ev.Signaled)
}

func TestEscalateServiceSkipsSIGINTGoesStraightToSIGTERM(t *testing.T) {
	e, reg, l := newTestEngine(t)
	h, err := l.Spawn("/bin/sh", []string{"-c", "sleep 30"}, os.Environ())
	require.NoError(t, err)
	reg.InsertPending(registry.Record{Identifier: "svc-1", Kind: registry.KindService, ProcessHandle: &registry.ProcessHandle{Pid: h.Pid}})

	e.escalateDevicesAndServices("test-trace")

	ev := waitReap(t, l, h.Pid)
	require.True(t, ev.Signaled)
	require.Equal(t, syscall.SIGTERM, ev.Signal)
}

func TestEscalateServiceIgnoringSIGTERMEscalatesToSIGKILL(t *testing.T) {
	e, reg, l := newTestEngine(t)
	h, err := l.Spawn("/bin/sh", []string{"-c", `trap '' TERM; sleep 30`}, os.Environ())
	require.NoError(t, err)
	reg.InsertPending(registry.Record{Identifier: "svc-1", Kind: registry.KindService, ProcessHandle: &registry.ProcessHandle{Pid: h.Pid}})

	e.escalateDevicesAndServices("test-trace")

	ev := waitReap(t, l, h.Pid)
	require.True(t, ev.Signaled)
}

func TestEscalateWithNoPendingChildrenIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.escalateDevicesAndServices("test-trace")
}

func TestWaitForAllDeadReturnsAssoonAsPidIsGone(t *testing.T) {
	e, _, l := newTestEngine(t)
	h, err := l.Spawn("/bin/sh", []string{"-c", "sleep 30"}, os.Environ())
	require.NoError(t, err)

	require.NoError(t, l.Kill(h.Pid))
	waitReap(t, l, h.Pid)

	start := time.Now()
	e.waitForAllDead([]int{h.Pid}, 10*time.Second)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForAllDeadReturnsImmediatelyForEmptyPids(t *testing.T) {
	e, _, _ := newTestEngine(t)
	start := time.Now()
	e.waitForAllDead(nil, 10*time.Second)
	require.Less(t, time.Since(start), time.Second)
}
