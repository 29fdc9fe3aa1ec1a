package domainbinder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgnls/devicemanager/internal/cancel"
	"github.com/sgnls/devicemanager/internal/deverr"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/remote"
)

type fakeNameDirectory struct {
	resolveFailures int32
	resolveCalls    int32
	ref             string
	unbindCalls     int32
}

func (n *fakeNameDirectory) Resolve(ctx context.Context, name string) (string, error) {
	call := atomic.AddInt32(&n.resolveCalls, 1)
	if call <= n.resolveFailures {
		return "", remote.ErrObjectNotExist
	}
	return n.ref, nil
}
func (n *fakeNameDirectory) BindNewContext(ctx context.Context, name string) error { return nil }
func (n *fakeNameDirectory) Bind(ctx context.Context, name, objectRef string) error { return nil }
func (n *fakeNameDirectory) Unbind(ctx context.Context, name string) error {
	atomic.AddInt32(&n.unbindCalls, 1)
	return nil
}
func (n *fakeNameDirectory) Rebind(ctx context.Context, name, objectRef string) error { return nil }

type fakeRemoteRegistry struct {
	registerFailures int32
	registerCalls    int32
	registerErr      error
	unregisterCalls  int32
}

func (r *fakeRemoteRegistry) RegisterManager(ctx context.Context, managerName string) error {
	call := atomic.AddInt32(&r.registerCalls, 1)
	if call <= r.registerFailures {
		if r.registerErr != nil {
			return r.registerErr
		}
		return remote.ErrTransient
	}
	return nil
}
func (r *fakeRemoteRegistry) UnregisterManager(ctx context.Context, managerName string) error {
	atomic.AddInt32(&r.unregisterCalls, 1)
	return nil
}
func (r *fakeRemoteRegistry) RegisterDevice(ctx context.Context, info remote.DeviceInfo) error { return nil }
func (r *fakeRemoteRegistry) RegisterService(ctx context.Context, info remote.ServiceInfo) error {
	return nil
}
func (r *fakeRemoteRegistry) UnregisterDevice(ctx context.Context, identifier string) error { return nil }
func (r *fakeRemoteRegistry) UnregisterService(ctx context.Context, identifier string) error { return nil }
func (r *fakeRemoteRegistry) EventChannelMgr(ctx context.Context) (string, error) { return "ec", nil }

func TestBindHappyPathLocatesAndRegisters(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	err := b.Bind(context.Background())
	require.NoError(t, err)
	require.Equal(t, "IOR:domain", b.domainManagerRef)
	require.Equal(t, int32(1), rr.registerCalls)
}

func TestBindRetriesLocateUntilNameDirectoryResolves(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain", resolveFailures: 3}
	rr := &fakeRemoteRegistry{}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	err := b.Bind(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, nd.resolveCalls, int32(4))
}

func TestBindRetriesRegistrationThroughTransientFailures(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{registerFailures: 2}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	err := b.Bind(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, rr.registerCalls, int32(3))
}

func TestBindTerminalRegisterErrorIsNotRetried(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{registerFailures: 1, registerErr: deverr.New(deverr.RegisterError, "op", "rejected", nil)}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	err := b.Bind(context.Background())
	require.Error(t, err)
	require.Equal(t, int32(1), rr.registerCalls)
}

func TestBindObservesCancelDuringLocate(t *testing.T) {
	nd := &fakeNameDirectory{resolveFailures: 1000000}
	rr := &fakeRemoteRegistry{}
	c := &cancel.Flag{}
	b := New(nd, rr, c, logging.New(0), "DomainName", "DevMgr")

	c.Set()
	err := b.Bind(context.Background())
	require.Error(t, err)
}

func TestBindRespectsContextCancellationDuringRegisterRetry(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{registerFailures: 1000000}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	ctx, cancelCtx := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelCtx()
	err := b.Bind(ctx)
	require.Error(t, err)
}

func TestUnbindIsBestEffortAndAlwaysSucceeds(t *testing.T) {
	nd := &fakeNameDirectory{}
	rr := &fakeRemoteRegistry{}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	b.Unbind(context.Background())
	require.Equal(t, int32(1), rr.unregisterCalls)
}

func TestClientWaitTimeBoundsOutboundCallContext(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")
	b.ClientWaitTime = 20 * time.Millisecond

	ctx, cancel := b.callCtx(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 10*time.Millisecond)
}

func TestClientWaitTimeUnsetLeavesContextUnbounded(t *testing.T) {
	nd := &fakeNameDirectory{ref: "IOR:domain"}
	rr := &fakeRemoteRegistry{}
	b := New(nd, rr, &cancel.Flag{}, logging.New(0), "DomainName", "DevMgr")

	ctx, cancel := b.callCtx(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	require.False(t, ok)
}
