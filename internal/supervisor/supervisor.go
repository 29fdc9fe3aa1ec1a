// Package supervisor implements C7: the top-level coordinator that
// wires ProfileResolver, ChildRegistry, Launcher, RegistrationService,
// DomainBinder, and ShutdownEngine together, owns the AdminState
// machine, and drains the reap channel. Grounded in the teacher's
// services/mgmt/device/impl/dispatcher.go, which plays the same role
// of a single struct fronting every inbound RPC operation and owning
// the goroutine that watches child exits.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sgnls/devicemanager/internal/adminstate"
	"github.com/sgnls/devicemanager/internal/cancel"
	"github.com/sgnls/devicemanager/internal/childapi"
	"github.com/sgnls/devicemanager/internal/deverr"
	"github.com/sgnls/devicemanager/internal/domainbinder"
	"github.com/sgnls/devicemanager/internal/launcher"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/profile"
	"github.com/sgnls/devicemanager/internal/registration"
	"github.com/sgnls/devicemanager/internal/registry"
	"github.com/sgnls/devicemanager/internal/shutdown"
)

// compositeIORPollInterval is the interval C1+C7 interaction (spec.md
// §4.8) polls C2 at while waiting for a composite's parent IOR to
// appear.
const compositeIORPollInterval = 100 * time.Microsecond

// Identity is the manager's self-identification, returned by the
// identifier()/label()/deviceConfigurationProfile()/fileSys()/domMgr()
// read-only accessors (spec.md §6).
type Identity struct {
	Identifier              string
	Label                   string
	DeviceConfigurationProfile string
	FileSys                 string
	DomMgr                  string
}

// Supervisor is C7.
type Supervisor struct {
	Admin      *adminstate.Machine
	Registry   *registry.Registry
	Launcher   *launcher.Launcher
	Registrar  *registration.Service
	Binder     *domainbinder.Binder
	ShutdownEngine *shutdown.Engine
	Cancel     *cancel.Flag
	Log        *logging.Logger
	Identity   Identity

	mu               sync.Mutex
	implByInstanceID map[string]string // instantiation ID -> selected ImplementationVariant ID

	shutdownOnce sync.Once
	shutDownCh   chan struct{}
}

// New assembles a Supervisor from its already-constructed components.
func New(admin *adminstate.Machine, reg *registry.Registry, l *launcher.Launcher, registrar *registration.Service, binder *domainbinder.Binder, shutdownEngine *shutdown.Engine, cancelFlag *cancel.Flag, log *logging.Logger, identity Identity) *Supervisor {
	return &Supervisor{
		Admin:            admin,
		Registry:         reg,
		Launcher:         l,
		Registrar:        registrar,
		Binder:           binder,
		ShutdownEngine:   shutdownEngine,
		Cancel:           cancelFlag,
		Log:              log,
		Identity:         identity,
		implByInstanceID: make(map[string]string),
		shutDownCh:       make(chan struct{}),
	}
}

// Start runs the full startup sequence (spec.md §2 "Data flow on
// startup") from an already-computed deployment plan: spawn every
// standalone placement, then spawn composites in dependency order,
// then bind into the domain. The caller (the command entrypoint) runs
// ProfileResolver.Plan first so it can build the RegistrationService's
// ProfileStore from the same plan before constructing the Supervisor.
// A fatal condition at any step triggers abort() and returns the
// classifying error.
func (s *Supervisor) Start(ctx context.Context, standalone, composite []profile.DeploymentSpec, env []string) error {
	for _, spec := range standalone {
		if err := s.spawnPlacement(spec, env); err != nil {
			s.logf("start: failed to spawn %s: %v", spec.Placement.FileRef, err)
		}
	}

	s.spawnComposites(ctx, composite, env)

	if err := s.Binder.Bind(ctx); err != nil {
		s.abort()
		return err
	}
	if err := s.Registrar.NameDirectory.BindNewContext(ctx, s.Registrar.ManagerContext); err != nil {
		s.abort()
		return deverr.New(deverr.FatalInitError, "start", "failed to create manager naming context", err)
	}
	if !s.Admin.CAS(adminstate.Unregistered, adminstate.Registered) {
		s.abort()
		return deverr.New(deverr.FatalInitError, "start", "admin state was not Unregistered after domain bind", nil)
	}
	return nil
}

// spawnPlacement launches one standalone DeploymentSpec and files it
// into the registry as pending.
func (s *Supervisor) spawnPlacement(spec profile.DeploymentSpec, env []string) error {
	handle, err := s.Launcher.Spawn(spec.CodePath, execArgs(spec), env)
	if err != nil {
		return err
	}
	identifier := placementIdentifier(spec)
	s.Registry.InsertPending(registry.Record{
		Identifier:    identifier,
		Label:         placementLabel(spec),
		ProcessHandle: &registry.ProcessHandle{Pid: handle.Pid},
		Kind:          placementKind(spec),
	})
	s.recordImpl(spec)
	return nil
}

// spawnComposites implements spec.md §4.8: after standalone placements
// are up, each composite's parentInstanceID must correspond to a live
// (pending or registered) record before the shared library is loaded
// into that parent's address space.
func (s *Supervisor) spawnComposites(ctx context.Context, composite []profile.DeploymentSpec, env []string) {
	for _, spec := range composite {
		parentID := spec.Placement.ParentInstanceID
		parent := s.findRecordByInstanceID(parentID)
		if parent == nil {
			s.logf("composite: parent instantiation %q for %s not found in pending or registered, skipping", parentID, spec.Placement.FileRef)
			continue
		}

		ior, err := s.waitForParentIOR(ctx, parentID)
		if err != nil {
			s.logf("composite: %v", err)
			continue
		}

		args := append(execArgs(spec), "--composite-device-ior="+ior)
		handle, err := s.Launcher.Spawn(spec.CodePath, args, env)
		if err != nil {
			s.logf("composite: failed to spawn %s: %v", spec.Placement.FileRef, err)
			continue
		}
		identifier := placementIdentifier(spec)
		s.Registry.InsertPending(registry.Record{
			Identifier:    identifier,
			Label:         placementLabel(spec),
			ProcessHandle: &registry.ProcessHandle{Pid: handle.Pid},
			Kind:          registry.KindDevice,
		})
		s.recordImpl(spec)
	}
}

// waitForParentIOR polls the registry at compositeIORPollInterval
// until the parent's IOR is available (i.e. it has registered),
// aborting early if Cancel is observed set.
func (s *Supervisor) waitForParentIOR(ctx context.Context, parentID string) (string, error) {
	for {
		if s.Cancel.IsSet() {
			return "", deverr.New(deverr.InternalFailure, "composite.waitForParentIOR", "cancelled waiting for parent IOR", cancel.ErrCancelled)
		}
		if rec := s.findRecordByInstanceID(parentID); rec != nil && rec.IOR != "" {
			return rec.IOR, nil
		}
		select {
		case <-ctx.Done():
			return "", deverr.New(deverr.InternalFailure, "composite.waitForParentIOR", "context cancelled", ctx.Err())
		case <-time.After(compositeIORPollInterval):
		}
	}
}

func (s *Supervisor) findRecordByInstanceID(instanceID string) *registry.Record {
	for _, rec := range s.Registry.SnapshotPending() {
		if rec.Identifier == instanceID {
			return &rec
		}
	}
	for _, rec := range s.Registry.SnapshotDevices() {
		if rec.Identifier == instanceID {
			return &rec
		}
	}
	return nil
}

func (s *Supervisor) recordImpl(spec profile.DeploymentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.implByInstanceID[placementIdentifier(spec)] = spec.SelectedImpl.ID
}

// Identifier returns the manager's own instance identifier.
func (s *Supervisor) Identifier() string { return s.Identity.Identifier }

// Label returns the manager's own human-readable label.
func (s *Supervisor) Label() string { return s.Identity.Label }

// SoftwareProfile returns the manager's own device configuration
// profile path (its "softwareProfile" self-identification accessor).
func (s *Supervisor) SoftwareProfile() string { return s.Identity.DeviceConfigurationProfile }

// FileSys returns the manager's SDR cache root, its "fileSys"
// self-identification accessor.
func (s *Supervisor) FileSys() string { return s.Identity.FileSys }

// DomMgr returns the domain name this manager is registered under,
// its "domMgr" self-identification accessor.
func (s *Supervisor) DomMgr() string { return s.Identity.DomMgr }

// GetComponentImplementationID implements the getComponentImplementationId
// read-only accessor (spec.md §6): the selected ImplementationVariant
// id for a given instantiation, or "" if unknown.
func (s *Supervisor) GetComponentImplementationID(instantiationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.implByInstanceID[instantiationID]
}

// WatchReaps drains the Launcher's reap channel until ctx is done,
// removing each reaped child's record from the registry and notifying
// the ShutdownEngine so a pending escalation wait can wake early.
// Intended to run in its own goroutine.
func (s *Supervisor) WatchReaps(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.Launcher.Reap():
			s.handleReap(ev)
		}
	}
}

func (s *Supervisor) handleReap(ev launcher.ReapEvent) {
	rec := s.Registry.FindByPid(ev.Pid)
	if rec == nil {
		s.ShutdownEngine.NotifyReaped()
		return
	}
	if rec.Bucket == registry.BucketRegistered {
		// Still registered at exit time: demote it out of *registered*
		// before removal. This is a registry-only transition; the
		// NameDirectory binding and the RemoteRegistry registration are
		// not removed here.
		s.Registry.Demote(rec.Identifier)
	}
	removed := s.Registry.Remove(rec.Identifier)

	if ev.Signaled && removed != nil && removed.Kind == registry.KindDevice {
		s.logf("reap: device %s exited by signal %v", removed.Identifier, ev.Signal)
	} else if removed != nil {
		s.Log.V(1).Infof("reap: %v %s exited (status %d, signaled=%v)", removed.Kind, removed.Identifier, ev.ExitStatus, ev.Signaled)
	}

	s.ShutdownEngine.NotifyReaped()
	s.maybeFinishShutdown()
}

// RegisterDevice, RegisterService, UnregisterDevice, UnregisterService
// are the inbound RPC operations spec.md §6 lists, delegated straight
// to the RegistrationService.
func (s *Supervisor) RegisterDevice(ctx context.Context, ref childapi.Reference) error {
	return s.Registrar.RegisterDevice(ctx, ref)
}

func (s *Supervisor) RegisterService(ctx context.Context, ref childapi.Reference, name string) error {
	return s.Registrar.RegisterService(ctx, ref, name)
}

func (s *Supervisor) UnregisterDevice(ctx context.Context, ref childapi.Reference) error {
	return s.Registrar.UnregisterDevice(ctx, ref)
}

func (s *Supervisor) UnregisterService(ctx context.Context, ref childapi.Reference, name string) error {
	return s.Registrar.UnregisterService(ctx, ref, name)
}

// RegisteredDevices and RegisteredServices are the read-only snapshot
// accessors spec.md §6 requires.
func (s *Supervisor) RegisteredDevices() []registry.Record  { return s.Registry.SnapshotDevices() }
func (s *Supervisor) RegisteredServices() []registry.Record { return s.Registry.SnapshotServices() }

// RequestShutdown implements the idempotent shutdown() RPC: it
// returns once AdminState = ShutDown, driving the transition the
// first time it is called and simply waiting on every subsequent call
// (spec.md §6, §4.7).
func (s *Supervisor) RequestShutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		go s.runShutdown(ctx)
	})
	select {
	case <-s.shutDownCh:
	case <-ctx.Done():
	}
}

func (s *Supervisor) runShutdown(ctx context.Context) {
	if !s.Admin.CAS(adminstate.Registered, adminstate.ShuttingDown) {
		s.Admin.ForceTo(adminstate.ShuttingDown)
	}

	s.Binder.Unbind(ctx)
	s.ShutdownEngine.Run(ctx)
	s.maybeFinishShutdown()
}

// maybeFinishShutdown implements the ShuttingDown -> ShutDown
// transition: it fires once every pending child is gone and the
// manager has unregistered itself (spec.md §4.7's transition table).
// It is safe to call from both the reap handler and runShutdown.
func (s *Supervisor) maybeFinishShutdown() {
	if s.Admin.Get() != adminstate.ShuttingDown {
		return
	}
	if len(s.Registry.SnapshotPending()) > 0 {
		return
	}
	if s.Admin.CAS(adminstate.ShuttingDown, adminstate.ShutDown) {
		s.closeShutDownCh()
	}
}

func (s *Supervisor) closeShutDownCh() {
	select {
	case <-s.shutDownCh:
	default:
		close(s.shutDownCh)
	}
}

// abort implements the forced path spec.md §4.7 describes: SIGKILL to
// every pending child, then jump straight to ShutDown without
// graceful release.
func (s *Supervisor) abort() {
	s.Cancel.Set()
	for _, rec := range s.Registry.SnapshotPending() {
		if rec.ProcessHandle != nil {
			if err := s.Launcher.Kill(rec.ProcessHandle.Pid); err != nil {
				s.logf("abort: SIGKILL to pid %d failed: %v", rec.ProcessHandle.Pid, err)
			}
		}
	}
	s.Admin.ForceTo(adminstate.ShutDown)
	s.closeShutDownCh()
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Errorf(format, args...)
	}
}

func placementIdentifier(spec profile.DeploymentSpec) string {
	if spec.Instantiation.ID != "" {
		return spec.Instantiation.ID
	}
	return spec.Placement.FileRef
}

func placementLabel(spec profile.DeploymentSpec) string {
	if spec.Instantiation.UsageName != "" {
		return spec.Instantiation.UsageName
	}
	return spec.ProgramProfile.Title
}

func placementKind(spec profile.DeploymentSpec) registry.Kind {
	if spec.ComponentType == profile.ComponentService {
		return registry.KindService
	}
	return registry.KindDevice
}

func execArgs(spec profile.DeploymentSpec) []string {
	var args []string
	for _, p := range spec.ProgramProfile.ComponentProperties {
		if p.Kind == profile.PropertyConstruct && p.CommandLine {
			args = append(args, fmt.Sprintf("--%s=%s", p.Name, p.Value))
		}
	}
	return args
}
