// Package registry implements C2, the ChildRegistry: the single
// serialization point for every child's lifecycle bucket transition.
// Modeled on the teacher's dispatcher/updatingState pattern of a
// small mutex-guarded struct exposing narrow, atomic operations
// rather than exposing its maps directly.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sgnls/devicemanager/internal/childapi"
)

// Bucket is which of the disjoint buckets a ChildRecord currently
// occupies. Terminated is not a stored bucket: a reaped record is
// removed outright (spec.md §3 "Lifecycle summary" — "the record is
// removed from whichever bucket holds it and deleted"), so Terminated
// only ever appears as the reported Bucket of a record just returned
// by Remove, never as a value a record is filed under.
type Bucket int

const (
	BucketPending Bucket = iota
	BucketRegistered
	BucketExternalRegistered
	BucketTerminated
)

func (b Bucket) String() string {
	switch b {
	case BucketPending:
		return "pending"
	case BucketRegistered:
		return "registered"
	case BucketExternalRegistered:
		return "external-registered"
	case BucketTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Kind distinguishes devices from services for the RPC-facing
// registeredDevices/registeredServices snapshots.
type Kind int

const (
	KindDevice Kind = iota
	KindService
)

// ProcessHandle is the opaque process identifier a Launcher hands
// back for a spawned child. It is present in a ChildRecord iff this
// manager launched the child (spec.md §3).
type ProcessHandle struct {
	Pid int
}

// Record is one child's authoritative state, per spec.md §3.
type Record struct {
	Identifier    string
	Label         string
	ProcessHandle *ProcessHandle
	IOR           string
	ObjectRef     string
	Kind          Kind
	Bucket        Bucket
	Ref           childapi.Reference
}

func (r Record) copy() Record {
	c := r
	if r.ProcessHandle != nil {
		h := *r.ProcessHandle
		c.ProcessHandle = &h
	}
	return c
}

// Registry is C2: the ChildRegistry. All mutating operations run
// under a single mutex; read snapshots return by-value copies so
// callers never observe (or race on) the registry's internal maps.
type Registry struct {
	mu       sync.Mutex
	pending  map[string]Record
	registered map[string]Record
	external map[string]Record
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		pending:    make(map[string]Record),
		registered: make(map[string]Record),
		external:   make(map[string]Record),
	}
}

// InsertPending files a freshly-launched child under *pending*.
func (r *Registry) InsertPending(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Bucket = BucketPending
	r.pending[rec.Identifier] = rec
}

// PromoteToRegistered moves a *pending* child to *registered*,
// attaching its ior/objectRef. It requires the identifier to
// currently be in *pending* and returns false otherwise, so the
// caller can fall back to InsertExternal (spec.md §4.2).
func (r *Registry) PromoteToRegistered(identifier, ior, objectRef string, ref childapi.Reference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.pending[identifier]
	if !ok {
		return false
	}
	delete(r.pending, identifier)
	rec.IOR = ior
	rec.ObjectRef = objectRef
	rec.Ref = ref
	rec.Bucket = BucketRegistered
	r.registered[identifier] = rec
	return true
}

// InsertExternal files a child that registered without a prior spawn
// directly into *external-registered*, with no processHandle. A child
// that arrives with no identifier of its own (nothing in the node
// profile's placements to join against) is assigned a synthetic one,
// since every downstream lookup (FindByIor, FindByLabel, snapshots) is
// keyed on it.
func (r *Registry) InsertExternal(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Identifier == "" {
		rec.Identifier = uuid.NewString()
	}
	rec.ProcessHandle = nil
	rec.Bucket = BucketExternalRegistered
	r.external[rec.Identifier] = rec
}

// Demote handles unregister: a *registered* child with a live
// processHandle moves back to *pending* (awaiting reap); one without
// a processHandle (i.e. it was external-registered) is dropped. It
// returns the record as it stood before the transition, or nil if the
// identifier was not registered anywhere.
func (r *Registry) Demote(identifier string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.registered[identifier]; ok {
		delete(r.registered, identifier)
		before := rec.copy()
		if rec.ProcessHandle != nil {
			rec.Bucket = BucketPending
			r.pending[identifier] = rec
		}
		return &before
	}
	if rec, ok := r.external[identifier]; ok {
		delete(r.external, identifier)
		before := rec.copy()
		return &before
	}
	return nil
}

// Remove deletes identifier from whichever bucket holds it (reap
// path) and returns the record as it stood, or nil if unknown.
func (r *Registry) Remove(identifier string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range []map[string]Record{r.pending, r.registered, r.external} {
		if rec, ok := bucket[identifier]; ok {
			delete(bucket, identifier)
			out := rec.copy()
			out.Bucket = BucketTerminated
			return &out
		}
	}
	return nil
}

// FindByPid returns the record whose live processHandle matches pid,
// searching *pending* and *registered* (the only buckets a
// processHandle can appear in).
func (r *Registry) FindByPid(pid int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range []map[string]Record{r.pending, r.registered} {
		for _, rec := range bucket {
			if rec.ProcessHandle != nil && rec.ProcessHandle.Pid == pid {
				out := rec.copy()
				return &out
			}
		}
	}
	return nil
}

// FindByIor returns the registered or external-registered record
// bound to ior.
func (r *Registry) FindByIor(ior string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range []map[string]Record{r.registered, r.external} {
		for _, rec := range bucket {
			if rec.IOR == ior {
				out := rec.copy()
				return &out
			}
		}
	}
	return nil
}

// FindByLabel returns the registered or external-registered record
// with the given label (used by unregisterService, keyed on usageName
// stored as Label).
func (r *Registry) FindByLabel(label string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range []map[string]Record{r.registered, r.external} {
		for _, rec := range bucket {
			if rec.Label == label {
				out := rec.copy()
				return &out
			}
		}
	}
	return nil
}

// IsKnown reports whether identifier is currently registered or
// external-registered (used by the registration protocol's
// idempotency check in spec.md §4.4 step 3).
func (r *Registry) IsKnown(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered[identifier]; ok {
		return true
	}
	_, ok := r.external[identifier]
	return ok
}

// SnapshotDevices returns a by-value copy of every registered or
// external-registered device.
func (r *Registry) SnapshotDevices() []Record { return r.snapshotKind(KindDevice) }

// SnapshotServices returns a by-value copy of every registered or
// external-registered service.
func (r *Registry) SnapshotServices() []Record { return r.snapshotKind(KindService) }

func (r *Registry) snapshotKind(kind Kind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, bucket := range []map[string]Record{r.registered, r.external} {
		for _, rec := range bucket {
			if rec.Kind == kind {
				out = append(out, rec.copy())
			}
		}
	}
	return out
}

// SnapshotPending returns a by-value copy of every *pending* record,
// used by ShutdownEngine to enumerate signal-escalation targets.
func (r *Registry) SnapshotPending() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.pending))
	for _, rec := range r.pending {
		out = append(out, rec.copy())
	}
	return out
}

// SnapshotRegisteredDevices returns a by-value copy of every
// *registered* (not external) device, used by ShutdownEngine's
// releaseObject pass.
func (r *Registry) SnapshotRegisteredDevices() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.registered {
		if rec.Kind == KindDevice {
			out = append(out, rec.copy())
		}
	}
	return out
}
