// Package remote defines the two outbound capabilities the Device
// Manager consumes but does not implement: a RemoteRegistry (the
// Domain Manager's registration surface) and a NameDirectory (the
// naming service the manager binds its own children into). spec.md
// §1 lists the RPC transport and naming directory as external
// collaborators, abstracted here as interfaces; internal/remote/wsrpc
// provides one concrete transport.
package remote

import (
	"context"
	"errors"

	"github.com/sgnls/devicemanager/internal/childapi"
)

// ErrTransient marks a RemoteRegistry failure DomainBinder should
// retry indefinitely (spec.md §4.5).
var ErrTransient = errors.New("remote: transient failure")

// ErrObjectNotExist marks a RemoteRegistry failure equivalent to the
// source's OBJECT_NOT_EXIST, also retried indefinitely.
var ErrObjectNotExist = errors.New("remote: object does not exist")

// ErrAlreadyBound marks a NameDirectory.Bind collision: something is
// already bound under that name.
var ErrAlreadyBound = errors.New("remote: name already bound")

// DeviceInfo and ServiceInfo are the registration payloads forwarded
// to the RemoteRegistry once a child has been promoted locally.
type DeviceInfo struct {
	Identifier string
	Label      string
	Ref        childapi.Reference
}

type ServiceInfo struct {
	Identifier string
	UsageName  string
	Ref        childapi.Reference
}

// RemoteRegistry is the Domain Manager's inbound surface, as consumed
// by DomainBinder (C5) and RegistrationService (C4).
type RemoteRegistry interface {
	RegisterManager(ctx context.Context, managerName string) error
	UnregisterManager(ctx context.Context, managerName string) error
	RegisterDevice(ctx context.Context, info DeviceInfo) error
	RegisterService(ctx context.Context, info ServiceInfo) error
	UnregisterDevice(ctx context.Context, identifier string) error
	UnregisterService(ctx context.Context, identifier string) error
	// EventChannelMgr returns the object name of the event channel
	// manager, used to release any EventSink subscriptions on shutdown.
	EventChannelMgr(ctx context.Context) (string, error)
}

// NameDirectory is the naming service the manager binds its own
// naming context and child labels into.
type NameDirectory interface {
	Resolve(ctx context.Context, name string) (string, error)
	BindNewContext(ctx context.Context, name string) error
	Bind(ctx context.Context, name, objectRef string) error
	Unbind(ctx context.Context, name string) error
	Rebind(ctx context.Context, name, objectRef string) error
}

// EventSink is the optional device state change publication channel
// (spec.md §1). A nil EventSink is valid: publication is best-effort
// and never blocks registration.
type EventSink interface {
	Publish(ctx context.Context, identifier string, state string)
}
