// Package registration implements C4, the RegistrationService: the
// nine-step registerDevice/registerService protocol and their
// unregister counterparts, grounded in the teacher's dispatcher
// (services/mgmt/device/impl/dispatcher.go) pattern of a single
// struct holding shared state and exposing narrow inbound operations,
// with transport errors always remapped to one of deverr's kinds
// before they reach the caller (spec.md §7).
package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/sgnls/devicemanager/internal/adminstate"
	"github.com/sgnls/devicemanager/internal/childapi"
	"github.com/sgnls/devicemanager/internal/deverr"
	"github.com/sgnls/devicemanager/internal/logging"
	"github.com/sgnls/devicemanager/internal/profile"
	"github.com/sgnls/devicemanager/internal/registry"
	"github.com/sgnls/devicemanager/internal/remote"
)

// ProfileStore loads the program profile of an already-running child,
// either by its stable identifier (devices) or its usage name
// (services). Distinct from profile.Loader, which loads a placement's
// program profile by SPD file ref during planning.
type ProfileStore interface {
	ProgramProfileForDevice(ctx context.Context, identifier string) (*profile.ProgramProfile, error)
	ProgramProfileForService(ctx context.Context, usageName string) (*profile.ProgramProfile, error)
}

// ErrPartialConfiguration is returned by a Reference's
// InitializeProperties/Configure call when the child only partially
// applied the requested properties. It is fatal to that child's
// registration when returned by InitializeProperties (spec.md §4.4
// step 5); when returned by Configure it is logged and ignored.
type ErrPartialConfiguration struct{ Detail string }

func (e *ErrPartialConfiguration) Error() string {
	return fmt.Sprintf("partial configuration: %s", e.Detail)
}

// Service is C4.
type Service struct {
	Registry      *registry.Registry
	Admin         *adminstate.Machine
	Profiles      ProfileStore
	NameDirectory remote.NameDirectory
	RemoteRegistry remote.RemoteRegistry
	EventSink     remote.EventSink // optional, nil is valid
	ManagerContext string          // the manager's own naming context
	Log           *logging.Logger

	// ClientWaitTime bounds each individual outbound RPC this service
	// issues to the NameDirectory and RemoteRegistry (spec.md §6
	// CLIENT_WAIT_TIME). Zero means no bound.
	ClientWaitTime time.Duration
}

// callCtx derives a per-call context bounded by ClientWaitTime, or
// returns ctx unchanged with a no-op cancel if ClientWaitTime is unset.
func (s *Service) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ClientWaitTime <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.ClientWaitTime)
}

// RegisterDevice implements spec.md §4.4's registerDevice, keyed by
// the device's own identifier.
func (s *Service) RegisterDevice(ctx context.Context, ref childapi.Reference) error {
	return s.register(ctx, ref, registry.KindDevice, "")
}

// RegisterService implements registerService, keyed by the given
// usage name rather than the service's self-reported identifier.
func (s *Service) RegisterService(ctx context.Context, ref childapi.Reference, usageName string) error {
	return s.register(ctx, ref, registry.KindService, usageName)
}

func (s *Service) register(ctx context.Context, ref childapi.Reference, kind registry.Kind, usageName string) error {
	const op = "register"

	// Step 1: ignore silently once shutdown has begun.
	if s.Admin.IsShuttingDownOrDown() {
		return nil
	}

	// Step 2: reject nil reference.
	if ref == nil {
		return deverr.New(deverr.InvalidReference, op, "nil child reference", nil)
	}

	identifier, err := ref.Identifier(ctx)
	if err != nil {
		return deverr.New(deverr.InvalidReference, op, "identifier() failed", err)
	}

	// Step 3: idempotent no-op if already known.
	if s.Registry.IsKnown(identifier) {
		return nil
	}

	// Step 4: load the child's program profile.
	var pp *profile.ProgramProfile
	if kind == registry.KindDevice {
		pp, err = s.Profiles.ProgramProfileForDevice(ctx, identifier)
	} else {
		pp, err = s.Profiles.ProgramProfileForService(ctx, usageName)
	}
	if err != nil {
		return deverr.New(deverr.InvalidReference, op, "failed to load program profile", err)
	}

	construct, configure := classifyProperties(pp.ComponentProperties)

	// Step 5: push construct properties, if any. Any failure (including
	// partial configuration) aborts registration.
	if len(construct) > 0 {
		if err := ref.InitializeProperties(ctx, construct); err != nil {
			return deverr.New(deverr.InvalidReference, op, "initializeProperties failed", err)
		}
	}

	// Step 6: initialize.
	if err := ref.Initialize(ctx); err != nil {
		return deverr.New(deverr.InvalidReference, op, "initialize failed", err)
	}

	// Step 7: push configure properties, if any. A PartialConfiguration
	// response is, per the source behavior this spec replicates,
	// swallowed here (not on initializeProperties) — see DESIGN.md.
	if len(configure) > 0 {
		if err := ref.Configure(ctx, configure); err != nil {
			if _, partial := err.(*ErrPartialConfiguration); !partial {
				return deverr.New(deverr.InvalidReference, op, "configure failed", err)
			}
			s.logf("register: %s: partial configuration during configure, ignoring: %v", identifier, err)
		}
	}

	label, err := ref.Label(ctx)
	if err != nil {
		return deverr.New(deverr.InvalidReference, op, "label() failed", err)
	}
	if kind == registry.KindService {
		label = usageName
	}

	// Step 8: bind into the naming directory. A collision is treated as
	// already-registered.
	bindName := s.ManagerContext + "/" + label
	bindCtx, cancel := s.callCtx(ctx)
	bindErr := s.NameDirectory.Bind(bindCtx, bindName, identifier)
	cancel()
	if bindErr != nil {
		if bindErr == remote.ErrAlreadyBound {
			return nil
		}
		return deverr.New(deverr.InternalFailure, op, "naming directory bind failed", bindErr)
	}

	// Step 9: promote locally, then forward to the RemoteRegistry if the
	// manager itself is registered. RemoteRegistry failure is logged,
	// never raised: local state stays authoritative.
	objectRef := bindName
	promoted := s.Registry.PromoteToRegistered(identifier, identifier, objectRef, ref)
	if !promoted {
		s.Registry.InsertExternal(registry.Record{
			Identifier: identifier,
			Label:      label,
			IOR:        identifier,
			ObjectRef:  objectRef,
			Kind:       kind,
			Ref:        ref,
		})
	}

	if s.Admin.Get() == adminstate.Registered {
		regCtx, regCancel := s.callCtx(ctx)
		if kind == registry.KindDevice {
			err = s.RemoteRegistry.RegisterDevice(regCtx, remote.DeviceInfo{Identifier: identifier, Label: label, Ref: ref})
		} else {
			err = s.RemoteRegistry.RegisterService(regCtx, remote.ServiceInfo{Identifier: identifier, UsageName: usageName, Ref: ref})
		}
		regCancel()
		if err != nil {
			s.logf("register: %s: forwarding to RemoteRegistry failed, local state kept: %v", identifier, err)
		}
	}

	if s.EventSink != nil {
		s.EventSink.Publish(ctx, identifier, "registered")
	}
	return nil
}

// UnregisterDevice implements unregisterDevice, keyed by IOR.
func (s *Service) UnregisterDevice(ctx context.Context, ref childapi.Reference) error {
	return s.unregister(ctx, ref, registry.KindDevice, "")
}

// UnregisterService implements unregisterService, keyed by label.
func (s *Service) UnregisterService(ctx context.Context, ref childapi.Reference, usageName string) error {
	return s.unregister(ctx, ref, registry.KindService, usageName)
}

func (s *Service) unregister(ctx context.Context, ref childapi.Reference, kind registry.Kind, usageName string) error {
	const op = "unregister"

	if ref == nil {
		return deverr.New(deverr.InvalidReference, op, "nil child reference", nil)
	}

	var rec *registry.Record
	if kind == registry.KindDevice {
		ior, err := ref.Identifier(ctx)
		if err != nil {
			return deverr.New(deverr.InvalidReference, op, "identifier() failed", err)
		}
		rec = s.Registry.FindByIor(ior)
	} else {
		rec = s.Registry.FindByLabel(usageName)
	}
	if rec == nil {
		return deverr.New(deverr.InvalidReference, op, "no such registered child", nil)
	}

	s.Registry.Demote(rec.Identifier)

	bindName := s.ManagerContext + "/" + rec.Label
	unbindCtx, unbindCancel := s.callCtx(ctx)
	unbindErr := s.NameDirectory.Unbind(unbindCtx, bindName)
	unbindCancel()
	if unbindErr != nil {
		s.logf("unregister: %s: naming directory unbind failed: %v", rec.Identifier, unbindErr)
	}

	if s.Admin.Get() == adminstate.Registered {
		var err error
		unregCtx, unregCancel := s.callCtx(ctx)
		if kind == registry.KindDevice {
			err = s.RemoteRegistry.UnregisterDevice(unregCtx, rec.Identifier)
		} else {
			err = s.RemoteRegistry.UnregisterService(unregCtx, rec.Identifier)
		}
		unregCancel()
		if err != nil {
			s.logf("unregister: %s: RemoteRegistry unregister failed: %v", rec.Identifier, err)
		}
	}

	if s.EventSink != nil {
		s.EventSink.Publish(ctx, rec.Identifier, "unregistered")
	}
	return nil
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Errorf(format, args...)
	}
}

// classifyProperties splits pp's joined property set into the
// construct-time and configure-time sets the registration protocol
// needs, excluding read-only configure properties from the configure
// set (spec.md §4.4 "Property joining").
func classifyProperties(props []profile.Property) (construct, configure []profile.Property) {
	for _, p := range props {
		switch p.Kind {
		case profile.PropertyConstruct:
			construct = append(construct, p)
		case profile.PropertyConfigure:
			if p.Mode != profile.PropertyReadOnly {
				configure = append(configure, p)
			}
		}
	}
	return construct, configure
}
