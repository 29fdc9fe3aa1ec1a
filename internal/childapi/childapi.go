// Package childapi defines the capability surface a registered child
// exposes back to the device manager. spec.md §6 lists these as
// "Child objects" consumed, not implemented, by this repository; the
// concrete transport that resolves a Reference into live RPC calls is
// external (see internal/remote).
package childapi

import (
	"context"

	"github.com/sgnls/devicemanager/internal/profile"
)

// Reference is an opaque capability-like handle to a child, looked up
// on demand rather than owned directly (spec.md §9 "Cyclic object
// graph"). A nil Reference is rejected by the registration protocol
// with InvalidReference.
type Reference interface {
	// Identifier returns the child's stable identifier.
	Identifier(ctx context.Context) (string, error)
	// Label returns the child's naming label (device) or usage name
	// (service).
	Label(ctx context.Context) (string, error)
	// SoftwareProfile returns the file ref of the child's own SPD, used
	// to load its ProgramProfile for the registration protocol.
	SoftwareProfile(ctx context.Context) (string, error)
	// InitializeProperties pushes non-nil construct properties before
	// Initialize is called.
	InitializeProperties(ctx context.Context, props []profile.Property) error
	// Initialize performs the child's own startup sequence.
	Initialize(ctx context.Context) error
	// Configure pushes non-nil configure properties.
	Configure(ctx context.Context, props []profile.Property) error
	// ReleaseObject asks a device to release, as the first step of
	// shutdown escalation (spec.md §4.6 step 1).
	ReleaseObject(ctx context.Context) error
}
