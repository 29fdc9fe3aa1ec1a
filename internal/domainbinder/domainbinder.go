// Package domainbinder implements C5, the DomainBinder: locating the
// Domain Manager, registering this manager with it through transient
// faults, and unregistering on shutdown. Grounded in the teacher's
// DomainBinder equivalent, services/mgmt/device/impl/callback.go and
// dispatcher.go's retry-and-log-once idioms.
package domainbinder

import (
	"context"
	"errors"
	"time"

	"github.com/sgnls/devicemanager/internal/cancel"
	"github.com/sgnls/devicemanager/internal/deverr"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/remote"
)

const (
	lookupPollInterval   = 10 * time.Millisecond
	registerRetryInterval = 100 * time.Millisecond
	registerLogEvery      = 10
)

// Binder is C5.
type Binder struct {
	NameDirectory  remote.NameDirectory
	RemoteRegistry remote.RemoteRegistry
	Cancel         *cancel.Flag
	Log            *logging.Logger

	// DirectoryName is the name the Domain Manager is bound at in the
	// NameDirectory; ManagerName is the name this manager registers
	// itself under with the RemoteRegistry.
	DirectoryName string
	ManagerName   string

	// ClientWaitTime bounds each individual outbound RPC to the
	// NameDirectory and RemoteRegistry (spec.md §6 CLIENT_WAIT_TIME).
	// Zero means no bound.
	ClientWaitTime time.Duration

	domainManagerRef string
}

// callCtx derives a per-call context bounded by ClientWaitTime, or
// returns ctx unchanged with a no-op cancel if ClientWaitTime is unset.
func (b *Binder) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.ClientWaitTime <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.ClientWaitTime)
}

// New returns a Binder.
func New(nameDir remote.NameDirectory, reg remote.RemoteRegistry, cancelFlag *cancel.Flag, log *logging.Logger, directoryName, managerName string) *Binder {
	return &Binder{
		NameDirectory:  nameDir,
		RemoteRegistry: reg,
		Cancel:         cancelFlag,
		Log:            log,
		DirectoryName:  directoryName,
		ManagerName:    managerName,
	}
}

// Bind implements spec.md §4.5: locate the Domain Manager, then
// register this manager with retry through transient faults. Returns
// once registration succeeds, or a terminal error.
func (b *Binder) Bind(ctx context.Context) error {
	ref, err := b.locate(ctx)
	if err != nil {
		return err
	}
	b.domainManagerRef = ref

	return b.registerWithRetry(ctx)
}

// locate polls NameDirectory.Resolve at lookupPollInterval until the
// Domain Manager's reference appears, logging a single warning on the
// first failure to avoid spam, and aborting if Cancel is observed.
func (b *Binder) locate(ctx context.Context) (string, error) {
	const op = "domainBind.locate"
	loggedOnce := false
	for {
		if b.Cancel.IsSet() {
			return "", deverr.New(deverr.InternalFailure, op, "cancelled waiting for domain manager", cancel.ErrCancelled)
		}
		resolveCtx, cancel := b.callCtx(ctx)
		ref, err := b.NameDirectory.Resolve(resolveCtx, b.DirectoryName)
		cancel()
		if err == nil {
			return ref, nil
		}
		if !loggedOnce {
			b.logf("domainBind: resolve(%s) failed, will keep retrying: %v", b.DirectoryName, err)
			loggedOnce = true
		}
		select {
		case <-ctx.Done():
			return "", deverr.New(deverr.InternalFailure, op, "context cancelled", ctx.Err())
		case <-time.After(lookupPollInterval):
		}
	}
}

// registerWithRetry implements the retry policy in spec.md §4.5:
// Transient/ObjectNotExist retried indefinitely at 100ms, every 10th
// attempt logged; RegisterError/InvalidReference are terminal.
func (b *Binder) registerWithRetry(ctx context.Context) error {
	const op = "domainBind.register"
	attempt := 0
	for {
		if b.Cancel.IsSet() {
			return deverr.New(deverr.InternalFailure, op, "cancelled during registration retry", cancel.ErrCancelled)
		}
		attempt++
		regCtx, cancel := b.callCtx(ctx)
		err := b.RemoteRegistry.RegisterManager(regCtx, b.ManagerName)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, remote.ErrTransient) || errors.Is(err, remote.ErrObjectNotExist) {
			if attempt%registerLogEvery == 0 {
				b.logf("domainBind: registerManager(%s) still failing after %d attempts: %v", b.ManagerName, attempt, err)
			}
			select {
			case <-ctx.Done():
				return deverr.New(deverr.InternalFailure, op, "context cancelled", ctx.Err())
			case <-time.After(registerRetryInterval):
			}
			continue
		}
		if de, ok := err.(*deverr.Error); ok && (de.Kind == deverr.RegisterError || de.Kind == deverr.InvalidReference) {
			return de
		}
		return deverr.New(deverr.RegisterError, op, "registerManager failed", err)
	}
}

// Unbind unregisters this manager and releases any event-channel
// subscriptions, best-effort: every failure is logged and swallowed
// (spec.md §4.5, §7 "SR-502").
func (b *Binder) Unbind(ctx context.Context) {
	unregCtx, unregCancel := b.callCtx(ctx)
	if err := b.RemoteRegistry.UnregisterManager(unregCtx, b.ManagerName); err != nil {
		b.logf("domainBind: unregisterManager(%s) failed, continuing shutdown: %v", b.ManagerName, err)
	}
	unregCancel()

	evCtx, evCancel := b.callCtx(ctx)
	if _, err := b.RemoteRegistry.EventChannelMgr(evCtx); err != nil {
		b.logf("domainBind: releasing event channel subscriptions failed, continuing shutdown: %v", err)
	}
	evCancel()
}

func (b *Binder) logf(format string, args ...interface{}) {
	if b.Log != nil {
		b.Log.Errorf(format, args...)
	}
}
